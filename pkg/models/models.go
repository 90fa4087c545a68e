package models

import (
	"time"

	"github.com/rs/zerolog/log"
)

type Trace struct {
	CreatedAt time.Time
	Creator   string

	ReceivedAt time.Time

	ProcessedAt time.Time
	Processor   string
}

func NewTrace(creator string) Trace {
	return Trace{
		CreatedAt: time.Now(),
		Creator:   creator,
	}
}

func (t Trace) Log() {
	log.Trace().Time("created_at", t.CreatedAt).Str("creator", t.Creator).Time("processed_at", t.ProcessedAt).Str("processor", t.Processor).Dur("dur_to_process", t.ProcessedAt.Sub(t.CreatedAt)).Msgf("tracing")
}

// GenerationRequest is one accepted text frame on its way to the model.
// Text is never empty, empty requests are dropped before one is built.
type GenerationRequest struct {
	SessionID string
	Seq       int
	Text      string
	// ReferencePath is read from the binding at request time, not at session start.
	ReferencePath  string
	BindingVersion uint64
	Trace          Trace
}

func NewGenerationRequest(sessionID string, seq int, text string) GenerationRequest {
	return GenerationRequest{
		SessionID: sessionID,
		Seq:       seq,
		Text:      text,
		Trace:     NewTrace(sessionID),
	}
}

// Done stamps the processing side of the trace and logs it.
func (r *GenerationRequest) Done(processor string) {
	r.Trace.ProcessedAt = time.Now()
	r.Trace.Processor = processor
	r.Trace.Log()
}
