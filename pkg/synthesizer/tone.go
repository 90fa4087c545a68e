package synthesizer

import (
	"context"
	"math"
	"time"
	"unicode/utf8"

	"github.com/petrzlen/voiceclone-golang/pkg/audio_utils"
)

const (
	toneDurationPerRune = 60 * time.Millisecond
	toneMinDuration     = 200 * time.Millisecond
	toneMaxDuration     = 10 * time.Second
	toneFade            = 10 * time.Millisecond
)

// toneModel is an offline stand-in for the neural model: it hums one tone per request,
// longer for longer text, louder for louder reference audio. Output is deterministic.
type toneModel struct {
	sampleRate int
}

func NewToneModel() Model {
	return &toneModel{sampleRate: audio_utils.DefaultSampleRate}
}

func (m *toneModel) Generate(ctx context.Context, text string, reference Reference) ([]float32, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	runes := utf8.RuneCountInString(text)
	if runes == 0 {
		return nil, m.sampleRate, nil
	}

	duration := time.Duration(runes) * toneDurationPerRune
	if duration < toneMinDuration {
		duration = toneMinDuration
	}
	if duration > toneMaxDuration {
		duration = toneMaxDuration
	}

	sum := 0
	for _, r := range text {
		sum += int(r)
	}
	freq := 220.0 + float64(sum%200)
	amplitude := math.Min(math.Max(2*rms(reference.Samples), 0.1), 0.8)

	n := int(duration.Seconds() * float64(m.sampleRate))
	fade := int(toneFade.Seconds() * float64(m.sampleRate))
	out := make([]float32, n)
	for i := range out {
		envelope := 1.0
		if i < fade {
			envelope = float64(i) / float64(fade)
		} else if n-i < fade {
			envelope = float64(n-i) / float64(fade)
		}
		out[i] = float32(amplitude * envelope * math.Sin(2*math.Pi*freq*float64(i)/float64(m.sampleRate)))
	}
	return out, m.sampleRate, nil
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var acc float64
	for _, s := range samples {
		acc += float64(s) * float64(s)
	}
	return math.Sqrt(acc / float64(len(samples)))
}
