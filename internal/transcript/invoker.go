package transcript

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/voicebridge/internal/audio"
	"github.com/obiente/translate/voicebridge/internal/observe"
)

// Recognition is what a recognizer heard. Language is the detected (or
// hinted) language and may be empty.
type Recognition struct {
	Text     string
	Language string
}

// Recognizer is an external speech-to-text capability. Implementations
// should wrap ErrUnintelligible and ErrServiceUnavailable where they apply
// and must honour ctx cancellation.
type Recognizer interface {
	Recognize(ctx context.Context, unit *audio.Unit, language string) (Recognition, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, unit *audio.Unit, language string) (Recognition, error)

func (f RecognizerFunc) Recognize(ctx context.Context, unit *audio.Unit, language string) (Recognition, error) {
	return f(ctx, unit, language)
}

// Invoker calls a Recognizer and always comes back with a Result.
type Invoker struct {
	rec     Recognizer
	backend string
	timeout time.Duration
	metrics *observe.Metrics
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithBackendName labels metrics and logs; defaults to "stt".
func WithBackendName(name string) InvokerOption {
	return func(inv *Invoker) { inv.backend = name }
}

// WithTimeout bounds every recognizer call. Zero means no extra bound.
func WithTimeout(d time.Duration) InvokerOption {
	return func(inv *Invoker) { inv.timeout = d }
}

func WithMetrics(m *observe.Metrics) InvokerOption {
	return func(inv *Invoker) { inv.metrics = m }
}

func NewInvoker(rec Recognizer, opts ...InvokerOption) *Invoker {
	inv := &Invoker{rec: rec, backend: "stt"}
	for _, o := range opts {
		o(inv)
	}
	return inv
}

// Backend returns the configured backend label.
func (inv *Invoker) Backend() string { return inv.backend }

// Transcribe runs the recognizer on unit with the given language hint. It
// never panics and never returns an error: every failure is folded into the
// Result.
func (inv *Invoker) Transcribe(ctx context.Context, unit *audio.Unit, language string) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("backend", inv.backend).Msg("stt: recognizer panicked")
			res = Unknown(fmt.Errorf("recognizer panic: %v", r))
		}
		if inv.metrics != nil {
			inv.metrics.RecordSTT(ctx, inv.backend, time.Since(start))
			if res.Kind == KindServiceUnavailable || res.Kind == KindUnknown {
				inv.metrics.RecordProviderError(ctx, inv.backend)
			}
		}
	}()

	if inv.rec == nil {
		return Unknown(fmt.Errorf("no recognizer configured"))
	}
	if unit == nil {
		return Unknown(fmt.Errorf("no audio unit"))
	}

	callCtx := ctx
	if inv.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	rec, err := inv.rec.Recognize(callCtx, unit, language)
	if err != nil {
		log.Debug().Err(err).Str("backend", inv.backend).Str("unit", unit.Path).Msg("stt: recognize failed")
	}
	lang := rec.Language
	if lang == "" {
		lang = language
	}
	return Classify(rec.Text, lang, err)
}
