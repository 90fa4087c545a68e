package audioio

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/petrzlen/voiceclone-golang/pkg/audio_utils"
)

// wavFileSink writes every chunk to <dir>/response-<n>.wav, for machines without speakers.
type wavFileSink struct {
	fs  afero.Fs
	dir string

	mu    sync.Mutex
	count int
}

func NewWavFileSink(fs afero.Fs, dir string) (OutputDevice, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create output dir %s", dir)
	}
	return &wavFileSink{fs: fs, dir: dir}, nil
}

// Play finishes synchronously, the returned WaitGroup is already done.
func (w *wavFileSink) Play(samples []int16, sampleRate int) (*sync.WaitGroup, error) {
	data, err := audio_utils.Int16SamplesToWav(samples, sampleRate)
	if err != nil {
		return nil, errors.Wrap(err, "encode wav")
	}

	w.mu.Lock()
	w.count++
	name := filepath.Join(w.dir, fmt.Sprintf("response-%d.wav", w.count))
	w.mu.Unlock()

	if err := afero.WriteFile(w.fs, name, data, 0o644); err != nil {
		return nil, errors.Wrapf(err, "write %s", name)
	}
	log.Info().Str("file", name).Int("samples", len(samples)).Int("sample_rate", sampleRate).Msg("audio written")
	return &sync.WaitGroup{}, nil
}

func (w *wavFileSink) Stop() error {
	return nil
}
