//go:build whisper_cpp

package whisper

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	whisperpkg "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog/log"
)

const (
	// minSamples skips audio shorter than 100ms at 16kHz.
	minSamples = SampleRate / 10
	// maxSamples keeps the most recent 30s, the model's window.
	maxSamples = 30 * SampleRate
)

// EngineCPP is the whisper.cpp-backed implementation of Engine.
type EngineCPP struct {
	model   whisperpkg.Model
	threads uint
	mu      sync.Mutex // whisper.cpp crashes on concurrent decodes over one model
}

// NewEngine loads the model at modelPath. threads <= 0 uses one per CPU.
func NewEngine(modelPath string, threads int) (Engine, error) {
	n := uint(runtime.NumCPU())
	if threads > 0 {
		n = uint(threads)
	}
	m, err := whisperpkg.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model: %w", err)
	}
	log.Info().Str("model", modelPath).Uint("threads", n).Msg("whisper: model loaded")
	return &EngineCPP{model: m, threads: n}, nil
}

func (e *EngineCPP) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// Process runs a full-context transcription. Calls are serialized.
func (e *EngineCPP) Process(samples []float32, language string) (string, string, error) {
	if language == "" {
		language = "auto"
	}
	if len(samples) < minSamples {
		log.Debug().Int("samples", len(samples)).Msg("whisper: skipping too-short audio")
		return "", language, nil
	}
	if len(samples) > maxSamples {
		log.Warn().Int("samples", len(samples)).Int("max", maxSamples).Msg("whisper: truncating long audio")
		samples = samples[len(samples)-maxSamples:]
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, err := e.model.NewContext()
	if err != nil {
		return "", "", fmt.Errorf("whisper: create context: %w", err)
	}
	ctx.SetThreads(e.threads)
	if err := ctx.SetLanguage(language); err != nil {
		log.Warn().Err(err).Str("language", language).Msg("whisper: unsupported language, detecting instead")
		_ = ctx.SetLanguage("auto")
	}
	ctx.SetSplitOnWord(true)
	ctx.SetMaxSegmentLength(0)
	ctx.SetMaxTokensPerSegment(0)

	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return "", "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var segments []string
	for {
		seg, err := ctx.NextSegment()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn().Err(err).Msg("whisper: error reading segment")
			}
			break
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			segments = append(segments, text)
		}
	}

	lang := ctx.Language()
	if lang == "" || lang == "auto" {
		lang = ctx.DetectedLanguage()
	}
	full := strings.TrimSpace(strings.Join(segments, " "))
	log.Debug().
		Str("lang", lang).
		Int("segments", len(segments)).
		Int("samples", len(samples)).
		Msg("whisper: transcription complete")
	return full, lang, nil
}
