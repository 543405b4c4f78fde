package ws

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/voicebridge/internal/config"
	"github.com/obiente/translate/voicebridge/internal/observe"
	"github.com/obiente/translate/voicebridge/internal/transcript"
	"github.com/obiente/translate/voicebridge/internal/translation"
	"github.com/obiente/translate/voicebridge/internal/tts"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	closeTimeout = 5 * time.Second
)

type Server struct {
	cfg      config.Config
	invoker  *transcript.Invoker
	upgrader websocket.Upgrader
	metrics  *observe.Metrics
	renderer *Renderer

	translator Translator
	synth      Synthesizer

	mu      sync.RWMutex
	rooms   map[string]map[*client]clientMeta
	clients map[*client]struct{}
	closing bool
	wg      sync.WaitGroup
}

type Option func(*Server)

// WithTranslator replaces the LibreTranslate client built from config.
func WithTranslator(t Translator) Option {
	return func(s *Server) { s.translator = t }
}

// WithSynthesizer replaces the TTS client built from config.
func WithSynthesizer(sy Synthesizer) Option {
	return func(s *Server) { s.synth = sy }
}

func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func NewServer(cfg config.Config, inv *transcript.Invoker, opts ...Option) *Server {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	s := &Server{
		cfg:     cfg,
		invoker: inv,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024 * 16,
			WriteBufferSize: 1024 * 16,
		},
		rooms:   make(map[string]map[*client]clientMeta),
		clients: make(map[*client]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.translator == nil && cfg.TranslationEnabled && cfg.TranslationBaseURL != "" {
		s.translator = translation.New(cfg.TranslationBaseURL, cfg.TranslationTimeoutSec, translation.WithMetrics(s.metrics))
	}
	if s.synth == nil && cfg.TTSEnabled && cfg.TTSBaseURL != "" {
		s.synth = tts.New(cfg.TTSBaseURL, cfg.TTSTimeoutSec, tts.WithMetrics(s.metrics))
	}
	s.renderer = NewRenderer(s.translator, s.synth, time.Duration(cfg.TranslationTimeoutSec)*time.Second)
	return s
}

// Renderer exposes the translate-and-speak path for non-streaming callers.
func (s *Server) Renderer() *Renderer { return s.renderer }

func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}

	c := newClient(s, conn)
	if !s.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	defer s.unregister(c)

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(readTimeout)); return nil })
	c.run()
}

func (s *Server) register(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.clients[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	s.wg.Done()
}

// Shutdown refuses new connections, closes the open ones (tearing down
// their sessions) and waits for their handlers, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	log.Info().Int("connections", len(clients)).Msg("ws: shutting down")
	for _, c := range clients {
		c.kick(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f
	default:
		return 0
	}
}
