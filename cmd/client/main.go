package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/petrzlen/voiceclone-golang/internal/config"
	"github.com/petrzlen/voiceclone-golang/internal/utils"
	"github.com/petrzlen/voiceclone-golang/pkg/audioio"
	"github.com/petrzlen/voiceclone-golang/pkg/protocol"
	"github.com/petrzlen/voiceclone-golang/pkg/streamclient"
)

func setupOutputDevice(cfg config.ClientConfig, fs afero.Fs) audioio.OutputDevice {
	if cfg.Output == "speakers" {
		speakers, err := audioio.NewSpeakers(cfg.SampleRate)
		if err == nil {
			return speakers
		}
		log.Warn().Err(err).Msg("cannot open speakers, writing wav files instead")
	}
	sink, err := audioio.NewWavFileSink(fs, cfg.OutputDir)
	ftl(err)
	return sink
}

func main() {
	configFile := flag.String("config", "", "optional config file (yaml, toml or json)")
	uploadPath := flag.String("upload", "", "reference audio (wav, mp3 or flac) to upload before reading text")
	linger := flag.Duration("linger", 0, "after stdin closes, wait this long for remaining audio (0 waits for Ctrl-C)")
	flag.Parse()

	cfg, err := config.LoadClient(*configFile)
	utils.SetupZerolog(cfg.LogLevel)
	ftl(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fs := afero.NewOsFs()
	if *uploadPath != "" {
		resp, err := streamclient.UploadReferenceAudio(ctx, cfg.HTTPServerURL, fs, *uploadPath)
		ftl(err)
		fmt.Println(resp.Message)
	}

	outputDevice := setupOutputDevice(cfg, fs)
	chunks := make(chan protocol.AudioChunk, 16)
	playerDone := make(chan struct{})
	go func() {
		defer close(playerDone)
		audioio.PlayAudioChunksRoutine(outputDevice, chunks)
	}()

	client := streamclient.New(cfg.ServerURL, streamclient.ReconnectPolicy{
		RetryInterval: cfg.RetryInterval,
		IdlePoll:      cfg.IdlePoll,
		MaxAttempts:   cfg.MaxReconnectAttempts,
		Multiplier:    cfg.BackoffMultiplier,
		MaxInterval:   cfg.MaxRetryInterval,
		PongWait:      cfg.PongWait,
	})

	listenDone := make(chan struct{})
	go func() {
		defer close(listenDone)
		sink := streamclient.AudioSinkFunc(func(chunk protocol.AudioChunk) {
			log.Info().Int("samples", len(chunk.Samples)).Msg("audio received")
			chunks <- chunk
		})
		err := client.Listen(ctx, sink, func(message string) {
			fmt.Fprintf(os.Stderr, "server: %s\n", message)
		})
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("listener stopped")
			stop()
		}
	}()

	fmt.Println("Type text and press Enter to hear it in the reference voice.")
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		dbg(scanner.Err())
	}()

readLoop:
	for {
		select {
		case <-ctx.Done():
			break readLoop
		case line, ok := <-lines:
			if !ok {
				break readLoop
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := client.SendText(ctx, text); err != nil {
				log.Error().Err(err).Msg("cannot send text, is the server up?")
			}
		}
	}

	if ctx.Err() == nil {
		if *linger > 0 {
			log.Info().Dur("linger", *linger).Msg("stdin closed, waiting for remaining audio")
			select {
			case <-time.After(*linger):
			case <-ctx.Done():
			}
		} else {
			log.Info().Msg("stdin closed, press Ctrl-C to quit")
			<-ctx.Done()
		}
	}

	stop()
	dbg(client.Close())
	<-listenDone
	close(chunks)
	<-playerDone
	dbg(outputDevice.Stop())
}

func ftl(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("sth essential failed")
		debug.PrintStack()
	}
}

func dbg(err error) {
	if err != nil {
		log.Debug().Err(err).Msg("sth non-essential failed")
	}
}
