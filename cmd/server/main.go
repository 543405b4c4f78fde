package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/voicebridge/internal/config"
	"github.com/obiente/translate/voicebridge/internal/gspeech"
	serverhttp "github.com/obiente/translate/voicebridge/internal/http"
	"github.com/obiente/translate/voicebridge/internal/lang"
	"github.com/obiente/translate/voicebridge/internal/observe"
	"github.com/obiente/translate/voicebridge/internal/transcript"
	"github.com/obiente/translate/voicebridge/internal/whisper"
	"github.com/obiente/translate/voicebridge/internal/ws"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func setupLogging(level, format string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	lvl := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(level); err == nil && level != "" {
		lvl = l
	}
	if strings.EqualFold(format, "console") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	log.Logger = log.Level(lvl)
}

// newRecognizer builds the configured speech-to-text backend and its
// release func.
func newRecognizer(ctx context.Context, cfg config.Config) (transcript.Recognizer, func() error, error) {
	switch cfg.STTBackend {
	case config.BackendWhisper:
		eng, err := whisper.NewEngine(cfg.ModelPath, cfg.WhisperThreads)
		if err != nil {
			return nil, nil, err
		}
		return whisper.NewRecognizer(eng), eng.Close, nil
	case config.BackendWhisperServer:
		c, err := whisper.NewServerClient(cfg.WhisperServerURL, whisper.WithModel(cfg.WhisperServerModel))
		if err != nil {
			return nil, nil, err
		}
		return c, func() error { return nil }, nil
	case config.BackendGoogle:
		r, err := gspeech.New(ctx, gspeech.WithDefaultLanguage(lang.Regional(cfg.DefaultSourceLanguage)))
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown stt backend %q", cfg.STTBackend)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogging(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: cfg.ServiceName, ServiceVersion: version})
	if err != nil {
		log.Fatal().Err(err).Msg("telemetry init failed")
	}
	metrics := observe.DefaultMetrics()

	rec, closeRec, err := newRecognizer(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.STTBackend).Msg("speech recognizer init failed")
	}
	inv := transcript.NewInvoker(rec,
		transcript.WithBackendName(cfg.STTBackend),
		transcript.WithTimeout(cfg.STTTimeout),
		transcript.WithMetrics(metrics),
	)

	wss := ws.NewServer(cfg, inv, ws.WithMetrics(metrics))
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: serverhttp.NewRouter(serverhttp.Deps{
			WS:             wss,
			Metrics:        tel.Handler,
			DefaultSource:  cfg.DefaultSourceLanguage,
			DefaultTargets: cfg.DefaultTargetLanguages,
		}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Addr).
			Str("stt", cfg.STTBackend).
			Str("mode", cfg.PipelineMode.String()).
			Str("version", version).
			Msg("voicebridge server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := wss.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("websocket shutdown incomplete")
	}
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if err := closeRec(); err != nil {
		log.Warn().Err(err).Msg("recognizer close failed")
	}
	if err := tel.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("telemetry shutdown failed")
	}
	log.Info().Msg("server stopped")
}
