// Package session runs one websocket connection's request loop: text frames in,
// audio frames out, one generation at a time, in arrival order.
package session

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/petrzlen/voiceclone-golang/internal/observability"
	"github.com/petrzlen/voiceclone-golang/pkg/models"
	"github.com/petrzlen/voiceclone-golang/pkg/protocol"
	"github.com/petrzlen/voiceclone-golang/pkg/synthesizer"
	"github.com/petrzlen/voiceclone-golang/pkg/voicestore"
)

type State int32

const (
	Accepted State = iota
	Ready
	Processing
	Closed
)

func (s State) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case Ready:
		return "ready"
	case Processing:
		return "processing"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Generator is satisfied by *synthesizer.Gateway.
type Generator interface {
	Generate(text, referencePath string) synthesizer.Result
}

// VoiceBinding is satisfied by *voicestore.Store.
type VoiceBinding interface {
	Current() (voicestore.Binding, bool)
}

// StreamingSession implements networking.WebsocketMessageHandler.
// Frames pushed into GetReader are handled strictly one after another; the writer
// chan is closed once the reader chan was closed and the last request finished.
type StreamingSession struct {
	id      string
	gen     Generator
	voices  VoiceBinding
	metrics *observability.Metrics

	readChan  chan []byte
	writeChan chan []byte

	state atomic.Int32
	seq   int
	done  chan struct{}
}

func New(gen Generator, voices VoiceBinding, metrics *observability.Metrics) *StreamingSession {
	s := &StreamingSession{
		id:        uuid.NewString(),
		gen:       gen,
		voices:    voices,
		metrics:   metrics,
		readChan:  make(chan []byte, 100),
		writeChan: make(chan []byte, 100),
		done:      make(chan struct{}),
	}
	s.state.Store(int32(Accepted))
	metrics.SessionOpened()
	log.Info().Str("session_id", s.id).Msg("streaming session accepted")

	s.setState(Ready)
	go s.processUntilChanClosed()
	return s
}

func (s *StreamingSession) GetReader() chan<- []byte {
	return s.readChan
}

func (s *StreamingSession) GetWriter() <-chan []byte {
	return s.writeChan
}

func (s *StreamingSession) ID() string {
	return s.id
}

func (s *StreamingSession) State() State {
	return State(s.state.Load())
}

// Done is closed once the session reached Closed.
func (s *StreamingSession) Done() <-chan struct{} {
	return s.done
}

func (s *StreamingSession) setState(state State) {
	s.state.Store(int32(state))
}

func (s *StreamingSession) processUntilChanClosed() {
	defer func() {
		s.setState(Closed)
		close(s.writeChan)
		s.metrics.SessionClosed()
		log.Info().Str("session_id", s.id).Int("requests", s.seq).Msg("streaming session closed")
		close(s.done)
	}()

	for msg := range s.readChan {
		s.handleMessage(msg)
	}
}

// handleMessage never lets a panic escape, the session stays Ready for the next frame.
func (s *StreamingSession) handleMessage(msg []byte) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Errorf("panic while handling message: %v", r)
			log.Error().Err(err).Str("session_id", s.id).Msg("recovered, session stays open")
			s.capture(err)
			s.setState(Ready)
		}
	}()

	frame, err := protocol.ParseTextFrame(msg)
	if err != nil {
		log.Warn().Err(err).Str("session_id", s.id).Int("size", len(msg)).Msg("dropping malformed frame")
		return
	}
	// Whitespace is text too, only a missing or empty field is skipped.
	if frame.Text == "" {
		log.Debug().Str("session_id", s.id).Msg("ignoring empty text")
		return
	}

	s.seq++
	req := models.NewGenerationRequest(s.id, s.seq, frame.Text)
	req.Trace.ReceivedAt = time.Now()

	binding, ok := s.voices.Current()
	if !ok {
		log.Info().Str("session_id", s.id).Msg("no reference audio bound yet")
		s.sendError(protocol.NoReferenceAudioMessage)
		return
	}
	req.ReferencePath = binding.Path
	req.BindingVersion = binding.Version

	s.setState(Processing)
	defer s.setState(Ready)
	s.process(&req)
}

func (s *StreamingSession) process(req *models.GenerationRequest) {
	startTime := time.Now()
	result := s.gen.Generate(req.Text, req.ReferencePath)
	elapsed := time.Since(startTime)
	req.Done("generator")

	logger := log.With().Str("session_id", s.id).Int("seq", req.Seq).Uint64("binding_version", req.BindingVersion).Logger()
	if latest, ok := s.voices.Current(); ok && latest.Version != req.BindingVersion {
		logger.Info().Uint64("latest_binding_version", latest.Version).Msg("reference audio changed while generating, result uses the older voice")
	}

	if !result.OK() {
		reason := failureReason(result.Err)
		s.metrics.ObserveGeneration(elapsed, false, reason)
		logger.Warn().Err(result.Err).Str("reason", reason).Dur("generation_time", elapsed).Msg("generation produced no audio, nothing sent")
		if result.Err != nil {
			s.capture(result.Err)
		}
		return
	}
	s.metrics.ObserveGeneration(elapsed, true, "")

	s.writeChan <- []byte(protocol.EncodeAudio(result.Samples, result.SampleRate))
	logger.Info().Int("samples", len(result.Samples)).Int("sample_rate", result.SampleRate).Dur("duration", result.Duration()).Dur("generation_time", elapsed).Msg("audio sent")
}

func (s *StreamingSession) sendError(message string) {
	payload, err := protocol.EncodeErrorFrame(message)
	if err != nil {
		log.Error().Err(err).Msg("protocol.EncodeErrorFrame")
		return
	}
	s.writeChan <- payload
}

func (s *StreamingSession) capture(err error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("session_id", s.id)
		sentry.CaptureException(err)
	})
}

func failureReason(err error) string {
	switch {
	case err == nil:
		return "empty_result"
	case errors.Is(err, synthesizer.ErrEmptyWaveform):
		return "empty_waveform"
	case errors.Is(err, synthesizer.ErrNoReference):
		return "no_reference"
	default:
		return "generation_error"
	}
}
