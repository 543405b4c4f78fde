package ws

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/obiente/translate/voicebridge/internal/lang"
	"github.com/obiente/translate/voicebridge/internal/translation"
	"github.com/obiente/translate/voicebridge/internal/tts"
)

// Translator is satisfied by *translation.Client.
type Translator interface {
	Translate(ctx context.Context, text, source string, targets []string, altLimit int) (map[string]translation.Translation, error)
}

// Synthesizer is satisfied by *tts.Client.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang string) ([]byte, error)
}

// Rendition is what a client gets for one target language. Exactly one of
// Primary/Error is set; Warning and Audio only accompany a Primary.
type Rendition struct {
	Primary          string   `json:"primary,omitempty"`
	Alternatives     []string `json:"alternatives,omitempty"`
	DetectedLanguage string   `json:"detectedLanguage,omitempty"`
	Audio            string   `json:"audio,omitempty"` // base64 MP3
	Warning          string   `json:"warning,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// Renderer turns recognized text into per-target translations and speech.
type Renderer struct {
	translator Translator
	synth      Synthesizer
	timeout    time.Duration
	// speakers bounds concurrent synthesis requests.
	speakers int
}

func NewRenderer(tr Translator, synth Synthesizer, timeout time.Duration) *Renderer {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Renderer{translator: tr, synth: synth, timeout: timeout, speakers: 4}
}

// Render translates text into targets and, if speak is set, synthesizes
// each translation. Failures are reported per target, never returned.
func (r *Renderer) Render(ctx context.Context, text, source string, targets []string, altLimit int, speak bool) map[string]Rendition {
	out := make(map[string]Rendition, len(targets))
	if len(targets) == 0 || strings.TrimSpace(text) == "" {
		return out
	}
	if r.translator == nil {
		for _, t := range targets {
			out[t] = Rendition{Error: "Translation is disabled."}
		}
		return out
	}

	tctx, cancel := context.WithTimeout(ctx, r.timeout)
	trs, err := r.translator.Translate(tctx, text, source, targets, altLimit)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("source", source).Strs("targets", targets).Msg("ws: translation incomplete")
	}
	for _, t := range targets {
		tr, ok := trs[t]
		if !ok || tr.Primary == "" {
			out[t] = Rendition{Error: "Translation failed."}
			continue
		}
		out[t] = Rendition{Primary: tr.Primary, Alternatives: tr.Alternatives, DetectedLanguage: tr.DetectedLanguage}
	}
	if speak {
		r.speak(ctx, out)
	}
	return out
}

func (r *Renderer) speak(ctx context.Context, out map[string]Rendition) {
	var mu sync.Mutex
	set := func(t string, fn func(*Rendition)) {
		mu.Lock()
		defer mu.Unlock()
		rd := out[t]
		fn(&rd)
		out[t] = rd
	}

	pending := make(map[string]string, len(out))
	for t, rd := range out {
		if rd.Error != "" {
			continue
		}
		switch {
		case r.synth == nil:
			rd.Warning = "Speech synthesis is disabled."
			out[t] = rd
		case !tts.Supports(t):
			rd.Warning = fmt.Sprintf("Audio not supported for %s (%s).", lang.Name(t), t)
			out[t] = rd
		default:
			pending[t] = rd.Primary
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.speakers)
	for t, text := range pending {
		g.Go(func() error {
			mp3, err := r.synth.Synthesize(gctx, text, t)
			set(t, func(rd *Rendition) {
				switch {
				case errors.Is(err, tts.ErrUnsupportedLanguage):
					rd.Warning = fmt.Sprintf("Audio not supported for %s (%s).", lang.Name(t), t)
				case err != nil:
					log.Warn().Err(err).Str("lang", t).Msg("ws: synthesis failed")
					rd.Warning = "Audio unavailable."
				default:
					rd.Audio = base64.StdEncoding.EncodeToString(mp3)
				}
			})
			return nil
		})
	}
	_ = g.Wait()
}
