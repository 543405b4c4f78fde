package whisper

import (
	"context"
	"fmt"
	"strings"

	"github.com/obiente/translate/voicebridge/internal/audio"
	"github.com/obiente/translate/voicebridge/internal/transcript"
)

// SampleRate is the only rate whisper models accept.
const SampleRate = 16000

// Engine is a small interface for in-process whisper transcription.
// Implementations may be a stub or backed by whisper.cpp (build tag: whisper_cpp).
type Engine interface {
	// Process transcribes 16 kHz mono float samples. language "" or "auto"
	// enables detection. Returns the text and the language used.
	Process(samples []float32, language string) (string, string, error)
	Close() error
}

// blankMarkers are emitted by whisper for non-speech audio.
var blankMarkers = []string{"[BLANK_AUDIO]", "[ Silence ]", "(silence)"}

// Recognizer adapts an Engine to transcript.Recognizer.
type Recognizer struct {
	engine Engine
}

func NewRecognizer(e Engine) *Recognizer { return &Recognizer{engine: e} }

// Recognize reads the unit, resamples it to 16 kHz and runs the engine. The
// engine cannot be interrupted mid-decode, so on cancellation Recognize
// returns early and the decode finishes in the background.
func (r *Recognizer) Recognize(ctx context.Context, unit *audio.Unit, language string) (transcript.Recognition, error) {
	seg, err := audio.ReadSegmentFile(unit.Path)
	if err != nil {
		return transcript.Recognition{}, fmt.Errorf("whisper: read unit: %w", err)
	}
	samples := audio.ResampleLinear(audio.Float32(seg), seg.SampleRate, SampleRate)
	if err := ctx.Err(); err != nil {
		return transcript.Recognition{}, err
	}

	type out struct {
		text, lang string
		err        error
	}
	ch := make(chan out, 1)
	go func() {
		text, lang, err := r.engine.Process(samples, language)
		ch <- out{text, lang, err}
	}()

	select {
	case <-ctx.Done():
		return transcript.Recognition{}, ctx.Err()
	case o := <-ch:
		if o.err != nil {
			return transcript.Recognition{}, o.err
		}
		return transcript.Recognition{Text: stripBlank(o.text), Language: o.lang}, nil
	}
}

func stripBlank(text string) string {
	for _, m := range blankMarkers {
		text = strings.ReplaceAll(text, m, "")
	}
	return strings.TrimSpace(text)
}
