package voicestore

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const DefaultPromptsDir = "prompts"

var ErrInvalidFilename = errors.New("invalid reference audio filename")

// Prompts persists uploaded reference audio under a single directory keyed by the
// uploaded filename and binds the stored path. A second upload with the same name
// overwrites the first one.
type Prompts struct {
	fs    afero.Fs
	dir   string
	store *Store
}

func NewPrompts(fs afero.Fs, dir string, store *Store) (*Prompts, error) {
	if dir == "" {
		dir = DefaultPromptsDir
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "cannot create prompts dir %s", dir)
	}
	return &Prompts{fs: fs, dir: dir, store: store}, nil
}

func (p *Prompts) Dir() string {
	return p.dir
}

func (p *Prompts) Store() *Store {
	return p.store
}

// Save writes the upload to the prompts dir and binds it. The binding only moves
// once the file is completely written.
func (p *Prompts) Save(filename string, content io.Reader) (Binding, error) {
	name, err := sanitizeFilename(filename)
	if err != nil {
		return Binding{}, err
	}
	path := filepath.Join(p.dir, name)

	f, err := p.fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return Binding{}, errors.Wrapf(err, "cannot open %s", path)
	}
	written, err := io.Copy(f, content)
	if err != nil {
		dbg(f.Close())
		return Binding{}, errors.Wrapf(err, "cannot write %s", path)
	}
	if err := f.Close(); err != nil {
		return Binding{}, errors.Wrapf(err, "cannot close %s", path)
	}

	binding := p.store.Set(path)
	log.Info().Str("reference_path", path).Int64("bytes", written).Uint64("binding_version", binding.Version).Msg("reference audio updated")
	return binding, nil
}

// sanitizeFilename keeps the as-uploaded base name but never lets it escape the prompts dir.
func sanitizeFilename(filename string) (string, error) {
	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	switch name {
	case "", ".", "..", "/":
		return "", errors.Wrapf(ErrInvalidFilename, "%q", filename)
	}
	return name, nil
}

func dbg(err error) {
	if err != nil {
		log.Debug().Err(err).Msg("sth non-essential failed")
	}
}
