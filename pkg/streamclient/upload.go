package streamclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/petrzlen/voiceclone-golang/pkg/protocol"
)

// UploadReferenceAudio posts the file at path to the server's upload endpoint, which
// makes it the reference voice for every following generation.
func UploadReferenceAudio(ctx context.Context, httpBase string, fs afero.Fs, path string) (protocol.UploadResponse, error) {
	f, err := fs.Open(path)
	if err != nil {
		return protocol.UploadResponse{}, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile(protocol.UploadFormField, filepath.Base(path))
	if err != nil {
		return protocol.UploadResponse{}, errors.Wrap(err, "create form file")
	}
	if _, err := io.Copy(part, f); err != nil {
		return protocol.UploadResponse{}, errors.Wrapf(err, "read %s", path)
	}
	if err := form.Close(); err != nil {
		return protocol.UploadResponse{}, errors.Wrap(err, "close multipart form")
	}

	url := strings.TrimRight(httpBase, "/") + protocol.UploadPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return protocol.UploadResponse{}, errors.Wrap(err, "build upload request")
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return protocol.UploadResponse{}, errors.Wrap(err, "upload reference audio")
	}
	defer resp.Body.Close()

	var out protocol.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return protocol.UploadResponse{}, errors.Wrapf(err, "decode upload response (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || out.Status != protocol.UploadStatusSuccess {
		return out, errors.Errorf("upload rejected with status %d: %s", resp.StatusCode, out.Message)
	}
	log.Info().Str("path", path).Str("message", out.Message).Msg("reference audio uploaded")
	return out, nil
}
