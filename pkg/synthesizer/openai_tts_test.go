package synthesizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
)

func TestOpenAITTSSendsSpeechRequest(t *testing.T) {
	type request struct {
		path string
		body map[string]any
	}
	requests := make(chan request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := request{path: r.URL.Path}
		_ = json.NewDecoder(r.Body).Decode(&req.body)
		requests <- req
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"quota","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	model := &openAITTS{client: openai.NewClientWithConfig(cfg), voice: openai.VoiceAlloy, speed: 1.0}

	_, _, err := model.Generate(context.Background(), "hello", Reference{Path: "prompts/a.wav"})
	if err == nil {
		t.Fatalf("Generate() error = nil, want the API error")
	}
	req := <-requests
	if req.path != "/v1/audio/speech" {
		t.Fatalf("path = %q, want /v1/audio/speech", req.path)
	}
	got := req.body
	if got["model"] != "tts-1" || got["input"] != "hello" || got["voice"] != "alloy" || got["response_format"] != "mp3" {
		t.Fatalf("request body = %v", got)
	}
}

func TestNewOpenAITTSNeedsKey(t *testing.T) {
	if _, err := NewOpenAITTS("", ""); err == nil {
		t.Fatalf("expected error without an API key")
	}
}
