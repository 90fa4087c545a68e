// Package protocol defines the frames exchanged over the /audio websocket.
//
// Client to server frames are JSON objects {"text": "..."}. Server to client
// frames are either the audio envelope string "data:audio/raw;base64,<pcm16le>"
// or a JSON object {"error": "..."}. Every frame is a whole websocket text message.
package protocol

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

type FrameKind string

const (
	KindText  FrameKind = "text"
	KindAudio FrameKind = "audio"
	KindError FrameKind = "error"
)

// NoReferenceAudioMessage is sent when a request arrives before any reference audio was uploaded.
const NoReferenceAudioMessage = "Please upload a reference audio file first."

var ErrUnsupportedFrame = errors.New("unsupported frame")

// TextFrame is the only client to server frame.
type TextFrame struct {
	Text string `json:"text"`
}

// ErrorFrame is sent to the client for user-recoverable problems, the session stays open.
type ErrorFrame struct {
	Error string `json:"error"`
}

// ServerFrame is a decoded server to client frame, exactly one of Audio or Error is meaningful.
type ServerFrame struct {
	Kind  FrameKind
	Audio AudioChunk
	Error string
}

// ParseTextFrame decodes a client frame. A missing "text" field yields an empty TextFrame.
func ParseTextFrame(raw []byte) (TextFrame, error) {
	var frame TextFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return TextFrame{}, errors.Wrap(err, "invalid text frame")
	}
	return frame, nil
}

func EncodeTextFrame(text string) ([]byte, error) {
	return json.Marshal(TextFrame{Text: text})
}

func EncodeErrorFrame(message string) ([]byte, error) {
	return json.Marshal(ErrorFrame{Error: message})
}

// ParseServerFrame tells the audio envelope apart from a JSON error frame.
func ParseServerFrame(raw []byte) (ServerFrame, error) {
	msg := string(raw)
	if strings.HasPrefix(msg, AudioEnvelopePrefix) {
		chunk, err := DecodeAudio(msg)
		if err != nil {
			return ServerFrame{}, err
		}
		return ServerFrame{Kind: KindAudio, Audio: chunk}, nil
	}

	var frame ErrorFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return ServerFrame{}, errors.Wrap(ErrUnsupportedFrame, err.Error())
	}
	if frame.Error == "" {
		return ServerFrame{}, ErrUnsupportedFrame
	}
	return ServerFrame{Kind: KindError, Error: frame.Error}, nil
}
