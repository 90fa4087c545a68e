package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadServerDefaults(t *testing.T) {
	cfg, err := LoadServer("")
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.BindAddr != ":8000" || cfg.PromptsDir != "prompts" || cfg.ModelBackend != "tone" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.GenerationTimeout != 0 {
		t.Fatalf("GenerationTimeout = %v, want no timeout by default", cfg.GenerationTimeout)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = false, want true")
	}
	if cfg.ShutdownTimeout != 15*time.Second || cfg.WSWriteTimeout != 10*time.Second {
		t.Fatalf("timeouts = %v / %v", cfg.ShutdownTimeout, cfg.WSWriteTimeout)
	}
}

func TestLoadServerEnvOverrides(t *testing.T) {
	t.Setenv("VOICECLONE_BIND_ADDR", ":9100")
	t.Setenv("VOICECLONE_GENERATION_TIMEOUT", "90s")
	t.Setenv("VOICECLONE_ALLOW_ANY_ORIGIN", "false")
	t.Setenv("OPEN_AI_API_KEY", "sk-test")

	cfg, err := LoadServer("")
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.BindAddr != ":9100" {
		t.Fatalf("BindAddr = %q, want :9100", cfg.BindAddr)
	}
	if cfg.GenerationTimeout != 90*time.Second {
		t.Fatalf("GenerationTimeout = %v, want 90s", cfg.GenerationTimeout)
	}
	if cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = true, want false")
	}
	if cfg.OpenAIAPIKey != "sk-test" {
		t.Fatalf("OpenAIAPIKey = %q, want sk-test", cfg.OpenAIAPIKey)
	}
}

func TestLoadServerFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	content := "prompts_dir: /srv/prompts\nmodel_backend: exec\nmodel_command: python3 worker.py\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := LoadServer(path)
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.PromptsDir != "/srv/prompts" || cfg.ModelBackend != "exec" || cfg.ModelCommand != "python3 worker.py" {
		t.Fatalf("file values not applied: %+v", cfg)
	}

	if _, err := LoadServer(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for a missing config file")
	}
}

func TestLoadServerRejectsNegativeTimeout(t *testing.T) {
	t.Setenv("VOICECLONE_GENERATION_TIMEOUT", "-1s")
	if _, err := LoadServer(""); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadClientDefaults(t *testing.T) {
	cfg, err := LoadClient("")
	if err != nil {
		t.Fatalf("LoadClient() error = %v", err)
	}
	if cfg.ServerURL != "ws://localhost:8000" || cfg.HTTPServerURL != "http://localhost:8000" {
		t.Fatalf("urls = %q / %q", cfg.ServerURL, cfg.HTTPServerURL)
	}
	if cfg.RetryInterval != 2*time.Second || cfg.IdlePoll != time.Second || cfg.MaxReconnectAttempts != 0 {
		t.Fatalf("reconnect defaults = %+v", cfg)
	}
	if cfg.PongWait != 60*time.Second {
		t.Fatalf("PongWait = %v, want 60s", cfg.PongWait)
	}
	if cfg.Output != "speakers" || cfg.SampleRate != 16000 {
		t.Fatalf("output defaults = %q @ %d", cfg.Output, cfg.SampleRate)
	}
}

func TestLoadClientValidation(t *testing.T) {
	t.Setenv("VOICECLONE_SERVER_URL", "http://localhost:8000")
	if _, err := LoadClient(""); err == nil {
		t.Fatalf("expected error for a non-websocket server_url")
	}

	t.Setenv("VOICECLONE_SERVER_URL", "ws://localhost:8000")
	t.Setenv("VOICECLONE_OUTPUT", "tape")
	if _, err := LoadClient(""); err == nil {
		t.Fatalf("expected error for an unknown output")
	}
}
