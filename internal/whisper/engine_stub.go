//go:build !whisper_cpp

package whisper

import (
	"fmt"

	"github.com/obiente/translate/voicebridge/internal/transcript"
)

// Default stub (no cgo) so the project builds without whisper_cpp tag.
type stubEngine struct{}

func NewEngine(modelPath string, threads int) (Engine, error) { return &stubEngine{}, nil }
func (e *stubEngine) Close() error                            { return nil }
func (e *stubEngine) Process(samples []float32, language string) (string, string, error) {
	return "", language, fmt.Errorf("whisper: built without whisper_cpp tag: %w", transcript.ErrServiceUnavailable)
}
