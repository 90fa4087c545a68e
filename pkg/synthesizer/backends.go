package synthesizer

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	BackendTone   = "tone"
	BackendExec   = "exec"
	BackendOpenAI = "openai"
)

type BackendConfig struct {
	Backend      string
	ModelCommand string
	OpenAIAPIKey string
	OpenAIVoice  string
}

// NewLoader picks the model backend. The returned Loader defers construction to the
// gateway's first request.
func NewLoader(cfg BackendConfig) (Loader, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendTone:
		return func() (Model, error) { return NewToneModel(), nil }, nil
	case BackendExec:
		if strings.TrimSpace(cfg.ModelCommand) == "" {
			return nil, errors.New("exec backend needs a model command")
		}
		return func() (Model, error) { return NewExecModel(cfg.ModelCommand) }, nil
	case BackendOpenAI:
		return func() (Model, error) { return NewOpenAITTS(cfg.OpenAIAPIKey, cfg.OpenAIVoice) }, nil
	default:
		return nil, errors.Errorf("unknown model backend %q", cfg.Backend)
	}
}
