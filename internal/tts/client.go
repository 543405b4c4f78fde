// Package tts synthesizes MP3 speech through the Google Translate TTS
// endpoint used by gTTS.
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/voicebridge/internal/lang"
	"github.com/obiente/translate/voicebridge/internal/observe"
)

// ErrUnsupportedLanguage is returned for languages the voice service lacks.
var ErrUnsupportedLanguage = errors.New("speech synthesis not supported for language")

// maxTokenLen is the endpoint's per-request text limit, in runes.
const maxTokenLen = 100

// supported mirrors gTTS's language list for the voices the service offers.
var supported = map[string]bool{
	"af": true, "ar": true, "bg": true, "bn": true, "bs": true, "ca": true,
	"cs": true, "cy": true, "da": true, "de": true, "el": true, "en": true,
	"es": true, "et": true, "fi": true, "fr": true, "gu": true, "hi": true,
	"hr": true, "hu": true, "id": true, "is": true, "it": true, "ja": true,
	"jw": true, "km": true, "kn": true, "ko": true, "la": true, "lv": true,
	"ml": true, "mr": true, "ms": true, "my": true, "ne": true, "nl": true,
	"no": true, "pl": true, "pt": true, "ro": true, "ru": true, "si": true,
	"sk": true, "sq": true, "sr": true, "su": true, "sv": true, "sw": true,
	"ta": true, "te": true, "th": true, "tl": true, "tr": true, "uk": true,
	"ur": true, "vi": true, "zh": true,
}

type Client struct {
	base    string
	http    *http.Client
	metrics *observe.Metrics
}

type Option func(*Client)

func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func New(base string, timeoutSec int, opts ...Option) *Client {
	if timeoutSec <= 0 {
		timeoutSec = 10
	}
	c := &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Supports reports whether Synthesize accepts code.
func Supports(code string) bool { return supported[lang.Base(code)] }

// Synthesize returns MP3 audio for text. Long text is split into tokens the
// endpoint accepts and the returned MP3 parts are concatenated.
func (c *Client) Synthesize(ctx context.Context, text, code string) ([]byte, error) {
	tl := lang.Base(code)
	if !supported[tl] {
		return nil, fmt.Errorf("tts: %q: %w", code, ErrUnsupportedLanguage)
	}
	tokens := tokenize(text, maxTokenLen)
	if len(tokens) == 0 {
		return nil, errors.New("tts: no text to speak")
	}

	start := time.Now()
	var out bytes.Buffer
	for i, tok := range tokens {
		if err := c.fetch(ctx, &out, tok, tl, i, len(tokens)); err != nil {
			if c.metrics != nil {
				c.metrics.RecordProviderError(ctx, "tts")
			}
			return nil, err
		}
	}
	if c.metrics != nil {
		c.metrics.RecordTTS(ctx, tl, time.Since(start))
	}
	log.Debug().Str("lang", tl).Int("tokens", len(tokens)).Int("bytes", out.Len()).Msg("tts: synthesized")
	return out.Bytes(), nil
}

func (c *Client) fetch(ctx context.Context, w io.Writer, tok, tl string, idx, total int) error {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", tl)
	q.Set("q", tok)
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(utf8.RuneCountInString(tok)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/translate_tts?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("tts: create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tts: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tts: http %d for token %d/%d", resp.StatusCode, idx+1, total)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("tts: read audio: %w", err)
	}
	return nil
}

// tokenize packs whitespace-separated words into chunks of at most max
// runes. Words longer than max are cut.
func tokenize(text string, max int) []string {
	var (
		out []string
		cur strings.Builder
		n   int
	)
	flush := func() {
		if n > 0 {
			out = append(out, cur.String())
			cur.Reset()
			n = 0
		}
	}
	for _, word := range strings.Fields(text) {
		for utf8.RuneCountInString(word) > max {
			flush()
			r := []rune(word)
			out = append(out, string(r[:max]))
			word = string(r[max:])
		}
		wn := utf8.RuneCountInString(word)
		if n > 0 && n+1+wn > max {
			flush()
		}
		if n > 0 {
			cur.WriteByte(' ')
			n++
		}
		cur.WriteString(word)
		n += wn
	}
	flush()
	return out
}
