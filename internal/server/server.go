// Package server exposes the upload endpoint, the /audio websocket and the
// operational endpoints on one chi router.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/petrzlen/voiceclone-golang/internal/config"
	"github.com/petrzlen/voiceclone-golang/internal/networking"
	"github.com/petrzlen/voiceclone-golang/internal/observability"
	"github.com/petrzlen/voiceclone-golang/pkg/protocol"
	"github.com/petrzlen/voiceclone-golang/pkg/session"
	"github.com/petrzlen/voiceclone-golang/pkg/voicestore"
)

// multipart parts above this size spill to temp files
const maxUploadMemory = 32 << 20

type Server struct {
	cfg     config.ServerConfig
	prompts *voicestore.Prompts
	gen     session.Generator
	metrics *observability.Metrics
	hub     *networking.Hub
}

func New(cfg config.ServerConfig, prompts *voicestore.Prompts, gen session.Generator, metrics *observability.Metrics) *Server {
	s := &Server{
		cfg:     cfg,
		prompts: prompts,
		gen:     gen,
		metrics: metrics,
	}
	s.hub = networking.NewHub(networking.HubOptions{
		CheckOrigin:  s.checkOrigin,
		ReadLimit:    cfg.WSReadLimit,
		WriteTimeout: cfg.WSWriteTimeout,
		OnMessage:    s.observeFrame,
	})
	return s
}

// observeFrame counts every frame the hub moved, by direction and frame kind.
func (s *Server) observeFrame(direction string, msg []byte) {
	s.metrics.ObserveMessage(direction, frameKind(direction, msg))
}

func frameKind(direction string, msg []byte) string {
	if direction == "inbound" {
		if _, err := protocol.ParseTextFrame(msg); err != nil {
			return "malformed"
		}
		return string(protocol.KindText)
	}
	if strings.HasPrefix(string(msg), protocol.AudioEnvelopePrefix) {
		return string(protocol.KindAudio)
	}
	return string(protocol.KindError)
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(withSentryRecovery)
	if s.cfg.AllowAnyOrigin {
		r.Use(withCORS)
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", s.metrics.Handler().ServeHTTP)

	r.Post(protocol.UploadPath, s.handleUploadReferenceAudio)
	r.Get(protocol.ReferenceAudioPath, s.handleGetReferenceAudio)
	r.Get(protocol.AudioPath, s.hub.HandlerFunc(s.newSession))

	return r
}

// Shutdown closes every live websocket, which ends their sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.hub.Shutdown(ctx)
}

func (s *Server) ActiveConnections() int {
	return s.hub.Active()
}

func (s *Server) newSession(r *http.Request) networking.WebsocketMessageHandler {
	return session.New(s.gen, s.prompts.Store(), s.metrics)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_, bound := s.prompts.Store().Current()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"reference_bound":    bound,
		"active_connections": s.hub.Active(),
	})
}

func (s *Server) handleUploadReferenceAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		s.uploadFailed(w, r, http.StatusBadRequest, errors.Wrap(err, "invalid multipart form"))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			dbg(r.MultipartForm.RemoveAll())
		}
	}()

	file, header, err := r.FormFile(protocol.UploadFormField)
	if err != nil {
		s.uploadFailed(w, r, http.StatusBadRequest, errors.Wrapf(err, "missing %q form field", protocol.UploadFormField))
		return
	}
	defer file.Close()

	binding, err := s.prompts.Save(header.Filename, file)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, voicestore.ErrInvalidFilename) {
			status = http.StatusBadRequest
		}
		s.uploadFailed(w, r, status, err)
		return
	}

	s.metrics.ObserveUpload(protocol.UploadStatusSuccess)
	log.Info().Str("filename", header.Filename).Int64("size", header.Size).Uint64("binding_version", binding.Version).Msg("reference audio uploaded")
	respondJSON(w, http.StatusOK, protocol.UploadResponse{
		Message: fmt.Sprintf("File '%s' uploaded successfully.", header.Filename),
		Status:  protocol.UploadStatusSuccess,
	})
}

func (s *Server) uploadFailed(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.metrics.ObserveUpload(protocol.UploadStatusError)
	log.Error().Err(err).Int("status", status).Msg("reference audio upload failed")
	if status >= http.StatusInternalServerError {
		captureError(r, err, "reference audio upload failed")
	}
	respondJSON(w, status, protocol.UploadResponse{
		Message: fmt.Sprintf("Error uploading file: %v", err),
		Status:  protocol.UploadStatusError,
	})
}

func (s *Server) handleGetReferenceAudio(w http.ResponseWriter, _ *http.Request) {
	binding, ok := s.prompts.Store().Current()
	if !ok {
		respondJSON(w, http.StatusNotFound, protocol.ErrorFrame{Error: protocol.NoReferenceAudioMessage})
		return
	}
	respondJSON(w, http.StatusOK, binding)
}

// checkOrigin allows everything when configured so, otherwise only same-origin
// browsers and clients that send no Origin at all.
func (s *Server) checkOrigin(r *http.Request) bool {
	if s.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("panic", err).Str("path", req.URL.Path).Msg("recovered http handler panic")
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}

func dbg(err error) {
	if err != nil {
		log.Debug().Err(err).Msg("sth non-essential failed")
	}
}
