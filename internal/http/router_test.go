package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obiente/translate/voicebridge/internal/audio"
	"github.com/obiente/translate/voicebridge/internal/config"
	"github.com/obiente/translate/voicebridge/internal/transcript"
	"github.com/obiente/translate/voicebridge/internal/translation"
	"github.com/obiente/translate/voicebridge/internal/ws"
)

type echoTranslator struct{}

func (echoTranslator) Translate(_ context.Context, text, source string, targets []string, _ int) (map[string]translation.Translation, error) {
	out := make(map[string]translation.Translation, len(targets))
	for _, t := range targets {
		out[t] = translation.Translation{Primary: source + ">" + t + ":" + text}
	}
	return out, nil
}

type mp3Synth struct{}

func (mp3Synth) Synthesize(context.Context, string, string) ([]byte, error) { return []byte("ID3"), nil }

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	rec := transcript.RecognizerFunc(func(context.Context, *audio.Unit, string) (transcript.Recognition, error) {
		return transcript.Recognition{Text: "hi"}, nil
	})
	cfg := config.Config{SegmentDir: t.TempDir(), PollInterval: 10 * time.Millisecond}
	wss := ws.NewServer(cfg, transcript.NewInvoker(rec), ws.WithTranslator(echoTranslator{}), ws.WithSynthesizer(mp3Synth{}))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = wss.Shutdown(ctx)
	})
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "# metrics\n")
	})
	return NewRouter(Deps{WS: wss, Metrics: metrics, DefaultSource: "en", DefaultTargets: []string{"te", "ta", "hi"}})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Healthz(t *testing.T) {
	rr := do(t, newRouter(t), http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != `{"ok":true}` {
		t.Fatalf("healthz = %d %s", rr.Code, rr.Body)
	}
}

func TestRouter_Metrics(t *testing.T) {
	rr := do(t, newRouter(t), http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "# metrics") {
		t.Fatalf("metrics = %d %s", rr.Code, rr.Body)
	}
}

func TestRouter_Languages(t *testing.T) {
	rr := do(t, newRouter(t), http.MethodGet, "/api/languages", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body struct {
		Languages []struct {
			Code string `json:"code"`
			Name string `json:"name"`
			TTS  bool   `json:"tts"`
		} `json:"languages"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, l := range body.Languages {
		if l.Code == "te" {
			found = l.Name == "Telugu" && l.TTS
		}
	}
	if !found {
		t.Errorf("telugu missing or wrong: %+v", body.Languages)
	}
}

func TestRouter_Speak(t *testing.T) {
	rr := do(t, newRouter(t), http.MethodPost, "/api/speak", `{"text":" good morning ","targets":["fr","FR","sn"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rr.Code, rr.Body)
	}
	var body struct {
		Source  string                  `json:"source"`
		Results map[string]ws.Rendition `json:"results"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Source != "en" || len(body.Results) != 2 {
		t.Fatalf("body = %+v", body)
	}
	if fr := body.Results["fr"]; fr.Primary != "en>fr:good morning" || fr.Audio == "" {
		t.Errorf("fr = %+v", fr)
	}
	if sn := body.Results["sn"]; sn.Audio != "" || sn.Warning == "" {
		t.Errorf("sn = %+v", sn)
	}
}

func TestRouter_SpeakDefaultsTargets(t *testing.T) {
	rr := do(t, newRouter(t), http.MethodPost, "/api/speak", `{"text":"hello","source":"en-GB"}`)
	var body struct {
		Results map[string]ws.Rendition `json:"results"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	for _, tgt := range []string{"te", "ta", "hi"} {
		if body.Results[tgt].Primary != "en>"+tgt+":hello" {
			t.Errorf("%s = %+v", tgt, body.Results[tgt])
		}
	}
}

func TestRouter_SpeakRejects(t *testing.T) {
	h := newRouter(t)
	tests := []struct {
		name, body string
		want       int
	}{
		{"blank", `{"text":"   "}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := do(t, h, http.MethodPost, "/api/speak", tt.body); rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
	if rr := do(t, h, http.MethodGet, "/api/speak", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/speak = %d", rr.Code)
	}
}

func TestRouter_WebSocket(t *testing.T) {
	hs := httptest.NewServer(newRouter(t))
	defer hs.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(hs.URL, "http")+"/ws/transcribe", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(map[string]any{"type": "ping", "ts": 1}); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil || msg["type"] != "pong" {
		t.Fatalf("got %v, %v", msg, err)
	}
}
