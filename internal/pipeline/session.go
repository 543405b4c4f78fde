// Package pipeline runs the per-stream transcription state machine: every
// inbound frame is decoded, encoded into a temporary WAV unit, handed to the
// recognizer, and the outcome is published to the session's Mailbox.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/voicebridge/internal/audio"
	"github.com/obiente/translate/voicebridge/internal/observe"
	"github.com/obiente/translate/voicebridge/internal/transcript"
)

// ErrSessionClosed is returned by HandleFrame after Close.
var ErrSessionClosed = errors.New("pipeline: session closed")

// State is the coordinator's position within one frame's processing.
type State int32

const (
	StateIdle State = iota
	StateDecoding
	StateEncoding
	StateInvoking
	StatePublishing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDecoding:
		return "decoding"
	case StateEncoding:
		return "encoding"
	case StateInvoking:
		return "invoking"
	case StatePublishing:
		return "publishing"
	default:
		return "unknown"
	}
}

// Mode selects how frames are grouped before recognition.
type Mode int

const (
	// ModePerFrame transcribes every frame on its own.
	ModePerFrame Mode = iota
	// ModeBuffered joins frames into utterances split on silence.
	ModeBuffered
)

func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "frame":
		return ModePerFrame, nil
	case "buffered":
		return ModeBuffered, nil
	default:
		return ModePerFrame, fmt.Errorf("pipeline: unknown mode %q", s)
	}
}

func (m Mode) String() string {
	if m == ModeBuffered {
		return "buffered"
	}
	return "frame"
}

// Options configures a Session.
type Options struct {
	ID              string
	SourceLanguage  string
	TargetLanguages []string
	// Dir receives the temporary WAV units; os.TempDir when empty.
	Dir        string
	SampleMode audio.SampleMode
	Mode       Mode

	// Buffered mode thresholds; zero values use the accumulator defaults.
	SilenceRMS float64
	Silence    time.Duration
	MaxBuffer  time.Duration

	Metrics *observe.Metrics
}

// Session is one live audio stream. HandleFrame is the producer entry point;
// Mailbox is read by the consumer. Frames are processed one at a time.
type Session struct {
	id      string
	opts    Options
	invoker *transcript.Invoker
	mailbox *transcript.Mailbox
	metrics *observe.Metrics
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	lifeMu   sync.Mutex // guards closed and inflight.Add
	closed   bool
	inflight sync.WaitGroup

	frameMu sync.Mutex // serializes frames
	acc     *audio.Accumulator
	state   atomic.Int32
}

// New starts a session that transcribes through inv.
func New(inv *transcript.Invoker, opts Options) *Session {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.SourceLanguage == "" {
		opts.SourceLanguage = "auto"
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      opts.ID,
		opts:    opts,
		invoker: inv,
		mailbox: transcript.NewMailbox(),
		metrics: opts.Metrics,
		logger:  log.With().Str("session", opts.ID).Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
	if opts.Mode == ModeBuffered {
		s.acc = audio.NewAccumulator(opts.SilenceRMS, opts.Silence, opts.MaxBuffer)
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(ctx, 1)
	}
	s.logger.Info().
		Str("source_lang", opts.SourceLanguage).
		Strs("target_langs", opts.TargetLanguages).
		Str("mode", opts.Mode.String()).
		Str("sample_mode", opts.SampleMode.String()).
		Msg("pipeline: session started")
	return s
}

func (s *Session) ID() string                   { return s.id }
func (s *Session) Mailbox() *transcript.Mailbox { return s.mailbox }
func (s *Session) SourceLanguage() string       { return s.opts.SourceLanguage }
func (s *Session) TargetLanguages() []string    { return append([]string(nil), s.opts.TargetLanguages...) }
func (s *Session) State() State                 { return State(s.state.Load()) }
func (s *Session) setState(st State)            { s.state.Store(int32(st)) }
func (s *Session) Logger() *zerolog.Logger      { return &s.logger }

// HandleFrame runs one frame through decode, encode, recognize and publish.
// It blocks for the duration of the recognizer call. It returns
// ErrSessionClosed after Close and audio.ErrInvalidFrame for malformed
// frames; every other outcome, including internal panics, is published to
// the Mailbox instead of being returned.
func (s *Session) HandleFrame(f audio.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if !s.enter() {
		return ErrSessionClosed
	}
	defer s.inflight.Done()

	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	// Close may have run while this frame waited behind an in-flight one.
	if s.Closed() {
		return ErrSessionClosed
	}
	defer s.setState(StateIdle)

	if s.metrics != nil {
		s.metrics.FramesReceived.Add(s.ctx, 1)
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("state", s.State().String()).Msg("pipeline: frame processing panicked")
			s.publish(transcript.Unknown(fmt.Errorf("pipeline panic: %v", r)))
		}
	}()

	s.setState(StateDecoding)
	seg := audio.Decode(f, s.opts.SampleMode)
	segs := []audio.Segment{seg}
	if s.acc != nil {
		segs = s.acc.Add(seg)
	}
	for _, seg := range segs {
		if s.Closed() {
			return ErrSessionClosed
		}
		s.transcribe(seg)
	}
	return nil
}

// transcribe encodes seg, runs the recognizer on it and publishes the result.
// The segment file is removed on every path.
func (s *Session) transcribe(seg audio.Segment) {
	if seg.Len() == 0 {
		return
	}
	s.setState(StateEncoding)
	unit, err := audio.EncodeFile(s.opts.Dir, seg)
	if err != nil {
		s.logger.Warn().Err(err).Msg("pipeline: encode failed")
		s.publish(transcript.Unknown(err))
		return
	}
	defer func() {
		if err := unit.Remove(); err != nil {
			s.logger.Warn().Err(err).Str("unit", unit.Path).Msg("pipeline: failed to remove segment file")
		}
	}()

	s.setState(StateInvoking)
	res := s.invoker.Transcribe(s.ctx, unit, s.opts.SourceLanguage)

	s.setState(StatePublishing)
	s.publish(res)
	s.logger.Debug().
		Str("kind", res.Kind.String()).
		Int("samples", seg.Len()).
		Dur("audio", seg.Duration()).
		Msg("pipeline: segment transcribed")
}

func (s *Session) enter() bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.closed {
		return false
	}
	s.inflight.Add(1)
	return true
}

func (s *Session) publish(r transcript.Result) {
	if s.mailbox.Publish(r) && s.metrics != nil {
		s.metrics.ResultsOverwritten.Add(s.ctx, 1)
	}
	if s.metrics != nil {
		s.metrics.RecordResult(s.ctx, r.Kind.String())
	}
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	return s.closed
}

// Close stops accepting frames, cancels any in-flight recognizer call and
// waits for it to unwind (bounded by ctx), then closes the Mailbox. An
// abandoned call still removes its segment file when it returns. In buffered
// mode speech still held by the accumulator is discarded.
func (s *Session) Close(ctx context.Context) error {
	s.lifeMu.Lock()
	if s.closed {
		s.lifeMu.Unlock()
		return nil
	}
	s.closed = true
	s.lifeMu.Unlock()

	s.cancel()
	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(context.Background(), -1)
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("pipeline: close: %w", ctx.Err())
		s.logger.Warn().Msg("pipeline: abandoning in-flight recognition")
	}
	s.mailbox.Close()
	s.logger.Info().Msg("pipeline: session closed")
	return err
}
