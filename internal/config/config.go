package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/obiente/translate/voicebridge/internal/audio"
	"github.com/obiente/translate/voicebridge/internal/pipeline"
)

// STT backends.
const (
	BackendWhisper       = "whisper"
	BackendWhisperServer = "whisper-server"
	BackendGoogle        = "google"
)

type Config struct {
	Addr        string
	ServiceName string
	LogLevel    string
	LogFormat   string

	STTBackend         string
	ModelPath          string
	WhisperThreads     int
	WhisperServerURL   string
	WhisperServerModel string
	STTTimeout         time.Duration

	TranslationBaseURL    string
	TranslationEnabled    bool
	TranslationTimeoutSec int

	TTSBaseURL    string
	TTSEnabled    bool
	TTSTimeoutSec int

	SegmentDir   string
	PipelineMode pipeline.Mode
	SampleMode   audio.SampleMode
	SilenceRMS   float64
	Silence      time.Duration
	MaxBuffer    time.Duration
	PollInterval time.Duration

	DefaultSourceLanguage  string
	DefaultTargetLanguages []string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "0", "false", "no", "off", "False", "FALSE":
			return false
		default:
			return true
		}
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// getenvDuration accepts Go durations ("250ms") or bare seconds ("30").
func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

func getenvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads configuration from the environment after applying envFiles
// (".env" when none are given). Missing files are skipped and variables
// already set in the environment take precedence.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	mode, err := pipeline.ParseMode(getenv("PIPELINE_MODE", "frame"))
	if err != nil {
		return Config{}, fmt.Errorf("config: PIPELINE_MODE: %w", err)
	}
	sampleMode, err := audio.ParseSampleMode(getenv("SAMPLE_MODE", "clamp"))
	if err != nil {
		return Config{}, fmt.Errorf("config: SAMPLE_MODE: %w", err)
	}

	cfg := Config{
		Addr:        getenv("ADDR", ":8080"),
		ServiceName: getenv("SERVICE_NAME", "voicebridge"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogFormat:   getenv("LOG_FORMAT", "json"),

		STTBackend:         strings.ToLower(getenv("STT_BACKEND", BackendWhisper)),
		ModelPath:          getenv("WHISPER_MODEL_PATH", "./models/ggml-base.bin"),
		WhisperThreads:     getenvInt("WHISPER_THREADS", 0),
		WhisperServerURL:   getenv("WHISPER_SERVER_URL", "http://localhost:8081"),
		WhisperServerModel: getenv("WHISPER_SERVER_MODEL", ""),
		STTTimeout:         getenvDuration("STT_TIMEOUT", 30*time.Second),

		TranslationBaseURL:    getenv("TRANSLATION_BASE_URL", "https://libretranslate.com"),
		TranslationEnabled:    getenvBool("TRANSLATION_ENABLED", true),
		TranslationTimeoutSec: getenvInt("TRANSLATION_TIMEOUT", 8),

		TTSBaseURL:    getenv("TTS_BASE_URL", "https://translate.google.com"),
		TTSEnabled:    getenvBool("TTS_ENABLED", true),
		TTSTimeoutSec: getenvInt("TTS_TIMEOUT", 10),

		SegmentDir:   getenv("SEGMENT_DIR", os.TempDir()),
		PipelineMode: mode,
		SampleMode:   sampleMode,
		SilenceRMS:   getenvFloat("SILENCE_RMS", audio.DefaultSilenceRMS),
		Silence:      time.Duration(getenvInt("SILENCE_MS", 500)) * time.Millisecond,
		MaxBuffer:    time.Duration(getenvInt("MAX_BUFFER_MS", 10000)) * time.Millisecond,
		PollInterval: getenvDuration("POLL_INTERVAL", 100*time.Millisecond),

		DefaultSourceLanguage:  getenv("DEFAULT_SOURCE_LANGUAGE", "en"),
		DefaultTargetLanguages: getenvList("DEFAULT_TARGET_LANGUAGES", []string{"te", "ta", "hi"}),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	switch c.STTBackend {
	case BackendWhisper:
		if c.ModelPath == "" {
			return errors.New("config: WHISPER_MODEL_PATH is required for the whisper backend")
		}
	case BackendWhisperServer:
		if c.WhisperServerURL == "" {
			return errors.New("config: WHISPER_SERVER_URL is required for the whisper-server backend")
		}
	case BackendGoogle:
	default:
		return fmt.Errorf("config: unknown STT_BACKEND %q", c.STTBackend)
	}
	if c.PollInterval <= 0 {
		return errors.New("config: POLL_INTERVAL must be positive")
	}
	if c.STTTimeout < 0 {
		return errors.New("config: STT_TIMEOUT must not be negative")
	}
	return nil
}
