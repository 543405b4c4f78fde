package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/voicebridge/internal/lang"
	"github.com/obiente/translate/voicebridge/internal/tts"
	"github.com/obiente/translate/voicebridge/internal/ws"
)

const maxSpeakBody = 64 << 10

type Deps struct {
	WS *ws.Server
	// Metrics serves /metrics; the route is omitted when nil.
	Metrics        http.Handler
	DefaultSource  string
	DefaultTargets []string
}

func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}
	// Streaming transcription WebSocket
	mux.HandleFunc("/ws/transcribe", d.WS.Handle)
	mux.HandleFunc("GET /api/languages", handleLanguages)
	mux.HandleFunc("POST /api/speak", speakHandler(d))
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("http: write response")
	}
}

func handleLanguages(w http.ResponseWriter, r *http.Request) {
	cat := lang.Catalog()
	for i := range cat {
		cat[i].TTS = cat[i].TTS && tts.Supports(cat[i].Code)
	}
	writeJSON(w, http.StatusOK, map[string]any{"languages": cat})
}

type speakRequest struct {
	Text    string   `json:"text"`
	Source  string   `json:"source"`
	Targets []string `json:"targets"`
}

// speakHandler is the text-to-voice mode: translate typed text into each
// target and synthesize it.
func speakHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req speakRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSpeakBody)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
			return
		}
		text := strings.TrimSpace(req.Text)
		if text == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Please type something!"})
			return
		}
		src := lang.Base(req.Source)
		if src == "" {
			src = d.DefaultSource
		}
		targets := lang.Normalize(req.Targets)
		if len(targets) == 0 {
			targets = lang.Normalize(d.DefaultTargets)
		}
		results := d.WS.Renderer().Render(r.Context(), text, src, targets, 0, true)
		writeJSON(w, http.StatusOK, map[string]any{"text": text, "source": src, "results": results})
	}
}
