// Package transcript turns recognizer calls into typed results and hands the
// latest one from the audio producer to a polling consumer.
package transcript

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Recognizer failures. Adapters wrap these so the Invoker can classify them.
var (
	ErrUnintelligible     = errors.New("speech could not be understood")
	ErrServiceUnavailable = errors.New("speech recognition service unavailable")
)

// Kind is the outcome class of one transcription.
type Kind int

const (
	KindText Kind = iota
	// KindNoSpeech: the recognizer succeeded but heard nothing.
	KindNoSpeech
	KindUnintelligible
	KindServiceUnavailable
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNoSpeech:
		return "no_speech"
	case KindUnintelligible:
		return "unintelligible"
	case KindServiceUnavailable:
		return "service_unavailable"
	case KindUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Result is one transcription outcome. Text is set only for KindText, Cause
// only for KindUnknown.
type Result struct {
	Kind     Kind
	Text     string
	Language string
	Cause    string
}

func Text(text, language string) Result {
	return Result{Kind: KindText, Text: text, Language: language}
}

func NoSpeech() Result { return Result{Kind: KindNoSpeech} }

func Unintelligible() Result { return Result{Kind: KindUnintelligible} }

func ServiceUnavailable() Result { return Result{Kind: KindServiceUnavailable} }

func Unknown(cause error) Result {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return Result{Kind: KindUnknown, Cause: msg}
}

// OK reports whether r carries recognized text.
func (r Result) OK() bool { return r.Kind == KindText }

// Status is the plain status line shown to the user.
func (r Result) Status() string {
	switch r.Kind {
	case KindText:
		return r.Text
	case KindNoSpeech:
		return "No speech detected."
	case KindUnintelligible:
		return "Could not understand the audio."
	case KindServiceUnavailable:
		return "Speech recognition service is unavailable."
	default:
		return "Error: " + r.Cause
	}
}

// Classify maps a recognizer return pair onto a Result.
func Classify(text, language string, err error) Result {
	if err == nil {
		if t := strings.TrimSpace(text); t != "" {
			return Text(t, language)
		}
		return NoSpeech()
	}
	var netErr net.Error
	switch {
	case errors.Is(err, ErrUnintelligible):
		return Unintelligible()
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return ServiceUnavailable()
	default:
		return Unknown(err)
	}
}
