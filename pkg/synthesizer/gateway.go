package synthesizer

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/petrzlen/voiceclone-golang/pkg/audio_utils"
)

var (
	ErrEmptyWaveform = errors.New("model returned an empty waveform")
	ErrNoReference   = errors.New("no reference audio path")
)

// Result is the tagged outcome of one generation. On failure Samples is empty,
// SampleRate is the default rate and Err says why.
type Result struct {
	Samples    []int16
	SampleRate int
	Err        error
}

func (r Result) OK() bool {
	return r.Err == nil && len(r.Samples) > 0
}

// Duration of the generated audio at its reported rate.
func (r Result) Duration() time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(r.Samples)) * time.Second / time.Duration(r.SampleRate)
}

func failed(err error) Result {
	return Result{SampleRate: audio_utils.DefaultSampleRate, Err: err}
}

type Gateway struct {
	fs      afero.Fs
	load    Loader
	timeout time.Duration

	mu    sync.Mutex // guards model initialization
	model Model
}

type Option func(*Gateway)

// WithTimeout bounds each model call. Zero, the default, means a call may block forever.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.timeout = d
	}
}

func NewGateway(fs afero.Fs, load Loader, opts ...Option) *Gateway {
	g := &Gateway{fs: fs, load: load}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Warmup loads the model ahead of the first request.
func (g *Gateway) Warmup() error {
	_, err := g.handle()
	return err
}

// Generate runs the model for text in the voice of the reference audio at referencePath.
// It blocks until the model returns and is safe for concurrent use.
func (g *Gateway) Generate(text, referencePath string) (result Result) {
	startTime := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = failed(errors.Errorf("model panicked: %v", r))
		}
		if result.Err != nil {
			log.Error().Err(result.Err).Str("reference_path", referencePath).Int("text_len", len(text)).Msg("audio generation failed")
			return
		}
		log.Debug().Dur("generation_time", time.Since(startTime)).Int("samples", len(result.Samples)).Int("sample_rate", result.SampleRate).Msg("audio generation done")
	}()

	if referencePath == "" {
		return failed(ErrNoReference)
	}
	model, err := g.handle()
	if err != nil {
		return failed(errors.Wrap(err, "cannot load model"))
	}

	buf, err := audio_utils.DecodeFile(g.fs, referencePath)
	if err != nil {
		return failed(errors.Wrap(err, "cannot load reference audio"))
	}
	reference := Reference{
		Path:       referencePath,
		Samples:    audio_utils.DownmixToMono(buf),
		SampleRate: buf.Format.SampleRate,
	}

	ctx := context.Background()
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	waveform, sampleRate, err := model.Generate(ctx, text, reference)
	if err != nil {
		return failed(errors.Wrap(err, "model generate"))
	}
	if len(waveform) == 0 {
		return failed(ErrEmptyWaveform)
	}
	if sampleRate <= 0 {
		sampleRate = audio_utils.DefaultSampleRate
	}
	if sampleRate != audio_utils.DefaultSampleRate {
		log.Warn().Int("sample_rate", sampleRate).Int("client_assumed_rate", audio_utils.DefaultSampleRate).Msg("model rate differs from the rate clients assume, playback will be mis-pitched")
	}
	return Result{Samples: audio_utils.FloatToInt16(waveform), SampleRate: sampleRate}
}

// handle returns the model, loading it on first use. A failed load is not cached,
// the next request tries again.
func (g *Gateway) handle() (Model, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.model != nil {
		return g.model, nil
	}
	if g.load == nil {
		return nil, errors.New("no model loader configured")
	}
	log.Info().Msg("loading generation model for the first time")
	loadStart := time.Now()
	m, err := g.load()
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.New("model loader returned nil model")
	}
	g.model = m
	log.Info().Dur("load_time", time.Since(loadStart)).Msg("generation model loaded")
	return m, nil
}
