package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/obiente/translate/voicebridge/internal/audio"
	"github.com/obiente/translate/voicebridge/internal/transcript"
)

// ServerClient transcribes units through a running whisper.cpp server
// (POST /inference, multipart "file").
type ServerClient struct {
	base  string
	model string
	http  *http.Client
}

// ServerOption configures a ServerClient.
type ServerOption func(*ServerClient)

// WithModel forwards a model name to the server; empty uses the server's.
func WithModel(model string) ServerOption {
	return func(c *ServerClient) { c.model = model }
}

func WithHTTPClient(hc *http.Client) ServerOption {
	return func(c *ServerClient) { c.http = hc }
}

func NewServerClient(base string, opts ...ServerOption) (*ServerClient, error) {
	if base == "" {
		return nil, errors.New("whisper: server URL must not be empty")
	}
	c := &ServerClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *ServerClient) Recognize(ctx context.Context, unit *audio.Unit, language string) (transcript.Recognition, error) {
	wav, err := unit.Bytes()
	if err != nil {
		return transcript.Recognition{}, fmt.Errorf("whisper-server: read unit: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filepath.Base(unit.Path))
	if err != nil {
		return transcript.Recognition{}, fmt.Errorf("whisper-server: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return transcript.Recognition{}, fmt.Errorf("whisper-server: write wav data: %w", err)
	}
	if language == "" {
		language = "auto"
	}
	fields := map[string]string{"language": language, "response_format": "json"}
	if c.model != "" {
		fields["model"] = c.model
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return transcript.Recognition{}, fmt.Errorf("whisper-server: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return transcript.Recognition{}, fmt.Errorf("whisper-server: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/inference", &body)
	if err != nil {
		return transcript.Recognition{}, fmt.Errorf("whisper-server: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return transcript.Recognition{}, ctx.Err()
		}
		return transcript.Recognition{}, fmt.Errorf("whisper-server: %v: %w", err, transcript.ErrServiceUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return transcript.Recognition{}, fmt.Errorf("whisper-server: http %d: %w", resp.StatusCode, transcript.ErrServiceUnavailable)
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return transcript.Recognition{}, fmt.Errorf("whisper-server: http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return transcript.Recognition{}, fmt.Errorf("whisper-server: parse response: %w", err)
	}
	lang := out.Language
	if lang == "" && language != "auto" {
		lang = language
	}
	return transcript.Recognition{Text: stripBlank(out.Text), Language: lang}, nil
}
