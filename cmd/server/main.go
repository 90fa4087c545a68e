package main

import (
	"bytes"
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/dimiro1/banner"
	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/petrzlen/voiceclone-golang/internal/config"
	"github.com/petrzlen/voiceclone-golang/internal/observability"
	"github.com/petrzlen/voiceclone-golang/internal/server"
	"github.com/petrzlen/voiceclone-golang/internal/utils"
	"github.com/petrzlen/voiceclone-golang/pkg/synthesizer"
	"github.com/petrzlen/voiceclone-golang/pkg/voicestore"
)

const version = "dev"

func printBanner() {
	tpl := "{{ .Title \"VOICECLONE\" \"\" 0 }}\nVersion: " + version + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}

func main() {
	configFile := flag.String("config", "", "optional config file (yaml, toml or json)")
	flag.Parse()

	cfg, err := config.LoadServer(*configFile)
	utils.SetupZerolog(cfg.LogLevel)
	ftl(err)
	printBanner()

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.SentryEnvironment,
			Release:     version,
		})
		if err != nil {
			log.Warn().Err(err).Msg("sentry init failed, continuing without error reporting")
		} else {
			log.Info().Msg("sentry initialized")
			defer sentry.Flush(2 * time.Second)
		}
	}

	fs := afero.NewOsFs()
	prompts, err := voicestore.NewPrompts(fs, cfg.PromptsDir, voicestore.NewStore())
	ftl(err)

	loader, err := synthesizer.NewLoader(synthesizer.BackendConfig{
		Backend:      cfg.ModelBackend,
		ModelCommand: cfg.ModelCommand,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		OpenAIVoice:  cfg.OpenAIVoice,
	})
	ftl(err)
	gateway := synthesizer.NewGateway(fs, loader, synthesizer.WithTimeout(cfg.GenerationTimeout))
	if cfg.WarmupModel {
		// A failed warmup is retried by the first request.
		if err := gateway.Warmup(); err != nil {
			log.Error().Err(err).Msg("model warmup failed")
		}
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace, nil)
	s := server.New(cfg, prompts, gateway, metrics)

	srv := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("bind_addr", cfg.BindAddr).Str("model_backend", cfg.ModelBackend).Str("prompts_dir", cfg.PromptsDir).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sentry.CaptureException(err)
			ftl(err)
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	// http.Server.Shutdown does not wait for hijacked websocket connections, the hub does.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown")
	}
	if err := s.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Int("still_open", s.ActiveConnections()).Msg("websocket sessions did not finish in time")
	}
	log.Info().Msg("bye")
}

func ftl(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("sth essential failed")
		debug.PrintStack()
	}
}
