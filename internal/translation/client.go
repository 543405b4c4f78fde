package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/obiente/translate/voicebridge/internal/observe"
)

// ErrTranslationFailed marks targets the service could not translate.
var ErrTranslationFailed = errors.New("translation failed")

// Translation is the service's answer for one target language.
type Translation struct {
	Primary          string   `json:"primary"`
	Alternatives     []string `json:"alternatives,omitempty"`
	DetectedLanguage string   `json:"detectedLanguage,omitempty"`
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

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(base string, timeoutSec int, opts ...Option) *Client {
	if timeoutSec <= 0 {
		timeoutSec = 8
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

// Translate requests translations for text into targets, one LibreTranslate
// call (q, source, target, format, alternatives) per target, concurrently.
// Targets that fail are left out of the map and reported in the returned
// error, which wraps ErrTranslationFailed; the others are still returned.
func (c *Client) Translate(ctx context.Context, text string, source string, targets []string, altLimit int) (map[string]Translation, error) {
	out := make(map[string]Translation, len(targets))
	if c == nil || c.base == "" || len(targets) == 0 || strings.TrimSpace(text) == "" {
		return out, nil
	}

	src := strings.TrimSpace(source)
	if src == "" {
		src = "auto"
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, tgt := range targets {
		if tgt == src {
			mu.Lock()
			out[tgt] = Translation{Primary: strings.TrimSpace(text)}
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			start := time.Now()
			tr, err := c.translateOne(gctx, text, src, tgt, altLimit)
			if c.metrics != nil {
				c.metrics.RecordTranslation(gctx, tgt, time.Since(start))
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if c.metrics != nil {
					c.metrics.RecordProviderError(gctx, "translation")
				}
				log.Warn().Err(err).Str("target", tgt).Msg("translation: target failed")
				errs = append(errs, fmt.Errorf("%s: %w", tgt, err))
				return nil
			}
			out[tgt] = tr
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		return out, fmt.Errorf("%w: %w", ErrTranslationFailed, errors.Join(errs...))
	}
	return out, nil
}

func (c *Client) translateOne(ctx context.Context, text, src, tgt string, altLimit int) (Translation, error) {
	payload := map[string]any{
		"q":      text,
		"source": src,
		"target": tgt,
		"format": "text",
	}
	if altLimit > 0 {
		payload["alternatives"] = altLimit
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return Translation{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/translate", bytes.NewReader(b))
	if err != nil {
		return Translation{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Translation{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return Translation{}, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	// LibreTranslate: translatedText, alternatives, detectedLanguage (string
	// or {language, confidence} depending on version).
	var lr struct {
		TranslatedText   string          `json:"translatedText"`
		Alternatives     []string        `json:"alternatives"`
		DetectedLanguage json.RawMessage `json:"detectedLanguage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return Translation{}, fmt.Errorf("decode response: %w", err)
	}

	tr := Translation{Primary: strings.TrimSpace(lr.TranslatedText), DetectedLanguage: detected(lr.DetectedLanguage)}
	for _, a := range lr.Alternatives {
		if s := strings.TrimSpace(a); s != "" {
			tr.Alternatives = append(tr.Alternatives, s)
		}
	}
	return tr, nil
}

func detected(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Language string `json:"language"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.Language
	}
	return ""
}
