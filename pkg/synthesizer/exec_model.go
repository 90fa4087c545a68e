package synthesizer

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/petrzlen/voiceclone-golang/pkg/audio_utils"
)

// execModel runs an external model process per request, e.g. a Python worker wrapping
// the neural model. The request goes to stdin as JSON, a WAV file is expected on stdout.
type execModel struct {
	cmd []string
}

type execRequest struct {
	Text                string `json:"text"`
	ReferenceAudioPath  string `json:"reference_audio_path"`
	ReferenceSampleRate int    `json:"reference_sample_rate"`
}

func NewExecModel(command string) (Model, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(command)
	if err != nil {
		return nil, errors.Wrap(err, "parse model command")
	}
	if len(args) == 0 {
		return nil, errors.New("model command empty")
	}
	return &execModel{cmd: args}, nil
}

func (e *execModel) Generate(ctx context.Context, text string, reference Reference) ([]float32, int, error) {
	payload, err := json.Marshal(execRequest{
		Text:                text,
		ReferenceAudioPath:  reference.Path,
		ReferenceSampleRate: reference.SampleRate,
	})
	if err != nil {
		return nil, 0, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug().Strs("command", e.cmd).Int("text_len", len(text)).Msg("running model command")
	if err := cmd.Run(); err != nil {
		return nil, 0, errors.Wrapf(err, "model command failed: %s", strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, 0, ErrEmptyWaveform
	}

	buf, err := audio_utils.DecodeFromWav(stdout.Bytes())
	if err != nil {
		return nil, 0, errors.Wrap(err, "model command output")
	}
	return audio_utils.DownmixToMono(buf), buf.Format.SampleRate, nil
}
