// Package config loads server and client settings from .env, the environment
// (VOICECLONE_ prefix) and an optional config file, in increasing precedence of
// file < environment.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const EnvPrefix = "VOICECLONE"

type ServerConfig struct {
	BindAddr       string `mapstructure:"bind_addr"`
	PromptsDir     string `mapstructure:"prompts_dir"`
	LogLevel       string `mapstructure:"log_level"`
	AllowAnyOrigin bool   `mapstructure:"allow_any_origin"`

	ModelBackend      string        `mapstructure:"model_backend"`
	ModelCommand      string        `mapstructure:"model_command"`
	OpenAIAPIKey      string        `mapstructure:"openai_api_key"`
	OpenAIVoice       string        `mapstructure:"openai_voice"`
	GenerationTimeout time.Duration `mapstructure:"generation_timeout"`
	WarmupModel       bool          `mapstructure:"warmup_model"`

	WSReadLimit     int64         `mapstructure:"ws_read_limit"`
	WSWriteTimeout  time.Duration `mapstructure:"ws_write_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	MetricsNamespace  string `mapstructure:"metrics_namespace"`
	SentryDSN         string `mapstructure:"sentry_dsn"`
	SentryEnvironment string `mapstructure:"sentry_environment"`
}

type ClientConfig struct {
	ServerURL     string `mapstructure:"server_url"`
	HTTPServerURL string `mapstructure:"http_server_url"`
	LogLevel      string `mapstructure:"log_level"`

	RetryInterval        time.Duration `mapstructure:"retry_interval"`
	IdlePoll             time.Duration `mapstructure:"idle_poll"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	BackoffMultiplier    float64       `mapstructure:"backoff_multiplier"`
	MaxRetryInterval     time.Duration `mapstructure:"max_retry_interval"`
	PongWait             time.Duration `mapstructure:"pong_wait"`

	Output     string `mapstructure:"output"`
	OutputDir  string `mapstructure:"output_dir"`
	SampleRate int    `mapstructure:"sample_rate"`
}

// LoadDotEnv loads .env from the working directory if there is one.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file loaded")
	}
}

func newViper(file string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", file)
		}
	}
	return v, nil
}

func unmarshal(v *viper.Viper, out interface{}) error {
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	return errors.Wrap(v.Unmarshal(out, hook), "decode config")
}

func LoadServer(file string) (ServerConfig, error) {
	LoadDotEnv()
	v, err := newViper(file)
	if err != nil {
		return ServerConfig{}, err
	}
	v.SetDefault("bind_addr", ":8000")
	v.SetDefault("prompts_dir", "prompts")
	v.SetDefault("log_level", "debug")
	v.SetDefault("allow_any_origin", true)
	v.SetDefault("model_backend", "tone")
	v.SetDefault("model_command", "")
	v.SetDefault("openai_voice", "alloy")
	v.SetDefault("generation_timeout", 0)
	v.SetDefault("warmup_model", false)
	v.SetDefault("ws_read_limit", 1<<20)
	v.SetDefault("ws_write_timeout", 10*time.Second)
	v.SetDefault("max_upload_bytes", 50<<20)
	v.SetDefault("shutdown_timeout", 15*time.Second)
	v.SetDefault("metrics_namespace", "voiceclone")
	v.SetDefault("sentry_environment", "development")
	// The unprefixed names are what the rest of the tooling already exports.
	dbg(v.BindEnv("openai_api_key", EnvPrefix+"_OPENAI_API_KEY", "OPEN_AI_API_KEY"))
	dbg(v.BindEnv("sentry_dsn", EnvPrefix+"_SENTRY_DSN", "SENTRY_DSN"))

	var cfg ServerConfig
	if err := unmarshal(v, &cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, cfg.Validate()
}

func (c ServerConfig) Validate() error {
	switch {
	case c.BindAddr == "":
		return errors.New("bind_addr must not be empty")
	case c.PromptsDir == "":
		return errors.New("prompts_dir must not be empty")
	case c.GenerationTimeout < 0:
		return errors.New("generation_timeout must not be negative")
	case c.MaxUploadBytes <= 0:
		return errors.New("max_upload_bytes must be positive")
	case c.WSReadLimit <= 0:
		return errors.New("ws_read_limit must be positive")
	}
	return nil
}

func LoadClient(file string) (ClientConfig, error) {
	LoadDotEnv()
	v, err := newViper(file)
	if err != nil {
		return ClientConfig{}, err
	}
	v.SetDefault("server_url", "ws://localhost:8000")
	v.SetDefault("http_server_url", "http://localhost:8000")
	v.SetDefault("log_level", "info")
	v.SetDefault("retry_interval", 2*time.Second)
	v.SetDefault("idle_poll", time.Second)
	v.SetDefault("max_reconnect_attempts", 0)
	v.SetDefault("backoff_multiplier", 1.0)
	v.SetDefault("max_retry_interval", 30*time.Second)
	v.SetDefault("pong_wait", 60*time.Second)
	v.SetDefault("output", "speakers")
	v.SetDefault("output_dir", "output")
	v.SetDefault("sample_rate", 16000)

	var cfg ClientConfig
	if err := unmarshal(v, &cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, cfg.Validate()
}

func (c ClientConfig) Validate() error {
	switch {
	case !strings.HasPrefix(c.ServerURL, "ws://") && !strings.HasPrefix(c.ServerURL, "wss://"):
		return errors.Errorf("server_url must be a ws:// or wss:// url, got %q", c.ServerURL)
	case c.RetryInterval <= 0:
		return errors.New("retry_interval must be positive")
	case c.IdlePoll <= 0:
		return errors.New("idle_poll must be positive")
	case c.MaxReconnectAttempts < 0:
		return errors.New("max_reconnect_attempts must not be negative")
	case c.Output != "speakers" && c.Output != "wav":
		return errors.Errorf("output must be speakers or wav, got %q", c.Output)
	case c.SampleRate <= 0:
		return errors.New("sample_rate must be positive")
	}
	return nil
}

func dbg(err error) {
	if err != nil {
		log.Debug().Err(err).Msg("sth non-essential failed")
	}
}
