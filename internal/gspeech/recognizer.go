// Package gspeech recognizes segment units with Google Cloud Speech-to-Text.
package gspeech

import (
	"context"
	"errors"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	gax "github.com/googleapis/gax-go/v2"
	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/obiente/translate/voicebridge/internal/audio"
	"github.com/obiente/translate/voicebridge/internal/lang"
	"github.com/obiente/translate/voicebridge/internal/transcript"
)

// recognizeClient is the subset of *speech.Client used here.
type recognizeClient interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	Close() error
}

// Recognizer performs one synchronous Recognize call per unit.
type Recognizer struct {
	client          recognizeClient
	defaultLanguage string
}

// Option configures a Recognizer.
type Option func(*Recognizer)

// WithDefaultLanguage is sent when the caller's hint is empty or "auto",
// since the API requires a language code. Defaults to "en-US".
func WithDefaultLanguage(code string) Option {
	return func(r *Recognizer) { r.defaultLanguage = code }
}

// New dials the Speech API using application default credentials.
func New(ctx context.Context, opts ...Option) (*Recognizer, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gspeech: create client: %w", err)
	}
	return newWithClient(c, opts...), nil
}

func newWithClient(c recognizeClient, opts ...Option) *Recognizer {
	r := &Recognizer{client: c, defaultLanguage: "en-US"}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Recognizer) Close() error { return r.client.Close() }

func (r *Recognizer) Recognize(ctx context.Context, unit *audio.Unit, language string) (transcript.Recognition, error) {
	data, err := unit.Bytes()
	if err != nil {
		return transcript.Recognition{}, fmt.Errorf("gspeech: read unit: %w", err)
	}

	code := lang.Regional(language)
	if code == "" {
		code = r.defaultLanguage
	}

	resp, err := r.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            int32(unit.SampleRate),
			AudioChannelCount:          1,
			LanguageCode:               code,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: data},
		},
	})
	if err != nil {
		return transcript.Recognition{}, classify(err)
	}

	var parts []string
	detected := ""
	for _, res := range resp.GetResults() {
		alts := res.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
		if detected == "" {
			detected = res.GetLanguageCode()
		}
	}
	if len(parts) == 0 {
		return transcript.Recognition{}, fmt.Errorf("gspeech: no results: %w", transcript.ErrUnintelligible)
	}
	if detected == "" {
		detected = code
	}
	return transcript.Recognition{Text: strings.Join(parts, " "), Language: lang.Base(detected)}, nil
}

// classify maps API failures onto the transcript sentinels. Context errors
// pass through so the invoker sees the caller's cancellation.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	c := status.Code(err)
	if ae, ok := apierror.FromError(err); ok && ae.GRPCStatus() != nil {
		c = ae.GRPCStatus().Code()
	}
	switch c {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return fmt.Errorf("gspeech: %v: %w", err, transcript.ErrServiceUnavailable)
	case codes.InvalidArgument, codes.OutOfRange:
		log.Debug().Err(err).Msg("gspeech: audio rejected")
		return fmt.Errorf("gspeech: %v: %w", err, transcript.ErrUnintelligible)
	default:
		return fmt.Errorf("gspeech: recognize: %w", err)
	}
}
