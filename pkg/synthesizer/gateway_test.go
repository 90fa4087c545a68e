package synthesizer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/petrzlen/voiceclone-golang/pkg/audio_utils"
)

type stubModel struct {
	waveform   []float32
	sampleRate int
	err        error
	panicMsg   string

	mu       sync.Mutex
	lastText string
	lastRef  Reference
}

func (s *stubModel) Generate(ctx context.Context, text string, reference Reference) ([]float32, int, error) {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	s.mu.Lock()
	s.lastText = text
	s.lastRef = reference
	s.mu.Unlock()
	return s.waveform, s.sampleRate, s.err
}

func writeReference(t *testing.T, fs afero.Fs, path string, samples []int16, sampleRate int) {
	t.Helper()
	data, err := audio_utils.Int16SamplesToWav(samples, sampleRate)
	if err != nil {
		t.Fatalf("Int16SamplesToWav() error = %v", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestGatewayNormalizesWaveform(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeReference(t, fs, "prompts/ref.wav", []int16{1000, -1000, 2000}, 22050)

	model := &stubModel{waveform: []float32{0, 1, -1, 0.5}, sampleRate: 16000}
	g := NewGateway(fs, Static(model))

	res := g.Generate("hello", "prompts/ref.wav")
	if !res.OK() {
		t.Fatalf("Generate() failed: %v", res.Err)
	}
	want := []int16{0, 32767, -32767, 16383}
	for i := range want {
		if res.Samples[i] != want[i] {
			t.Fatalf("Samples[%d] = %d, want %d", i, res.Samples[i], want[i])
		}
	}
	if res.SampleRate != 16000 {
		t.Fatalf("SampleRate = %d, want 16000", res.SampleRate)
	}
	if model.lastText != "hello" {
		t.Fatalf("model saw text %q, want %q", model.lastText, "hello")
	}
	if model.lastRef.SampleRate != 22050 || len(model.lastRef.Samples) != 3 || model.lastRef.Path != "prompts/ref.wav" {
		t.Fatalf("unexpected reference passed to model: %+v", model.lastRef)
	}
}

func TestGatewayFailuresYieldEmptyResult(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeReference(t, fs, "prompts/ref.wav", []int16{1, 2, 3}, 16000)
	if err := afero.WriteFile(fs, "prompts/broken.wav", []byte("nope"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cases := []struct {
		name  string
		model *stubModel
		ref   string
	}{
		{name: "missing file", model: &stubModel{waveform: []float32{0.1}}, ref: "prompts/missing.wav"},
		{name: "malformed audio", model: &stubModel{waveform: []float32{0.1}}, ref: "prompts/broken.wav"},
		{name: "model error", model: &stubModel{err: errors.New("cuda out of memory")}, ref: "prompts/ref.wav"},
		{name: "model panic", model: &stubModel{panicMsg: "boom"}, ref: "prompts/ref.wav"},
		{name: "empty waveform", model: &stubModel{sampleRate: 16000}, ref: "prompts/ref.wav"},
		{name: "no reference", model: &stubModel{waveform: []float32{0.1}}, ref: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := NewGateway(fs, Static(tc.model)).Generate("hello", tc.ref)
			if res.OK() {
				t.Fatalf("Generate() OK, want failure")
			}
			if res.Err == nil {
				t.Fatalf("Err = nil, want a reason")
			}
			if len(res.Samples) != 0 {
				t.Fatalf("len(Samples) = %d, want 0", len(res.Samples))
			}
			if res.SampleRate != 16000 {
				t.Fatalf("SampleRate = %d, want default 16000", res.SampleRate)
			}
		})
	}
}

func TestGatewayLoadsModelOnce(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeReference(t, fs, "ref.wav", []int16{1, 2, 3}, 16000)

	var loads atomic.Int32
	loader := func() (Model, error) {
		loads.Add(1)
		time.Sleep(10 * time.Millisecond)
		return &stubModel{waveform: []float32{0.25}, sampleRate: 16000}, nil
	}
	g := NewGateway(fs, loader)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := g.Generate("hi", "ref.wav"); !res.OK() {
				t.Errorf("Generate() failed: %v", res.Err)
			}
		}()
	}
	wg.Wait()

	if got := loads.Load(); got != 1 {
		t.Fatalf("loader called %d times, want 1", got)
	}
}

func TestGatewayRetriesFailedLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeReference(t, fs, "ref.wav", []int16{1, 2, 3}, 16000)

	var calls atomic.Int32
	loader := func() (Model, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("weights not downloaded yet")
		}
		return &stubModel{waveform: []float32{0.25}, sampleRate: 16000}, nil
	}
	g := NewGateway(fs, loader)

	if res := g.Generate("hi", "ref.wav"); res.OK() {
		t.Fatalf("first Generate() OK, want load failure")
	}
	if res := g.Generate("hi", "ref.wav"); !res.OK() {
		t.Fatalf("second Generate() failed: %v", res.Err)
	}
}

type blockingModel struct{}

func (blockingModel) Generate(ctx context.Context, _ string, _ Reference) ([]float32, int, error) {
	<-ctx.Done()
	return nil, 0, ctx.Err()
}

func TestGatewayTimeoutIsOptIn(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeReference(t, fs, "ref.wav", []int16{1, 2, 3}, 16000)

	g := NewGateway(fs, Static(blockingModel{}), WithTimeout(20*time.Millisecond))
	res := g.Generate("hi", "ref.wav")
	if res.OK() || !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("Err = %v, want deadline exceeded", res.Err)
	}
}

func TestToneModelFollowsText(t *testing.T) {
	m := NewToneModel()
	short, rate, err := m.Generate(context.Background(), "hi", Reference{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	long, _, err := m.Generate(context.Background(), "a considerably longer sentence to speak", Reference{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if rate != 16000 {
		t.Fatalf("rate = %d, want 16000", rate)
	}
	if len(long) <= len(short) {
		t.Fatalf("len(long) = %d, len(short) = %d, want longer text to produce more audio", len(long), len(short))
	}
	for i, v := range long {
		if v > 1 || v < -1 {
			t.Fatalf("sample %d = %v out of nominal range", i, v)
		}
	}

	again, _, _ := m.Generate(context.Background(), "hi", Reference{})
	for i := range short {
		if short[i] != again[i] {
			t.Fatalf("tone output not deterministic at %d", i)
		}
	}
}

func TestNewLoader(t *testing.T) {
	if _, err := NewLoader(BackendConfig{Backend: "tone"}); err != nil {
		t.Fatalf("tone loader error = %v", err)
	}
	if _, err := NewLoader(BackendConfig{Backend: "exec"}); err == nil {
		t.Fatalf("exec loader without command should fail")
	}
	if _, err := NewLoader(BackendConfig{Backend: "wavenet"}); err == nil {
		t.Fatalf("unknown backend should fail")
	}

	load, err := NewLoader(BackendConfig{Backend: "openai"})
	if err != nil {
		t.Fatalf("openai loader error = %v", err)
	}
	if _, err := load(); err == nil {
		t.Fatalf("openai model without api key should fail to load")
	}
}

func TestNewExecModelParsesCommand(t *testing.T) {
	m, err := NewExecModel(`python3 worker.py --voice "my ref"`)
	if err != nil {
		t.Fatalf("NewExecModel() error = %v", err)
	}
	em := m.(*execModel)
	want := []string{"python3", "worker.py", "--voice", "my ref"}
	if len(em.cmd) != len(want) {
		t.Fatalf("cmd = %q, want %q", em.cmd, want)
	}
	for i := range want {
		if em.cmd[i] != want[i] {
			t.Fatalf("cmd = %q, want %q", em.cmd, want)
		}
	}
	if _, err := NewExecModel("   "); err == nil {
		t.Fatalf("expected error for empty command")
	}
}
