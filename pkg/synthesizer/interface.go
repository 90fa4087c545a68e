// Package synthesizer is the boundary to the text + reference voice -> waveform model.
//
// The model itself is a black box behind Model. Gateway adapts it to what a
// streaming session needs: it resolves the reference audio, invokes the model
// once per request, normalizes the waveform into int16 samples and never
// propagates a failure as anything but an empty Result.
package synthesizer

import "context"

// Reference is the decoded, mono reference voice handed to the model.
type Reference struct {
	Path       string
	Samples    []float32
	SampleRate int
}

// Model produces a waveform in the nominal [-1.0, 1.0] range and the rate it was generated at.
type Model interface {
	Generate(ctx context.Context, text string, reference Reference) (waveform []float32, sampleRate int, err error)
}

// Loader creates the model handle. It runs at most once successfully per Gateway.
type Loader func() (Model, error)

// Static wraps an already constructed model as a Loader.
func Static(m Model) Loader {
	return func() (Model, error) { return m, nil }
}
