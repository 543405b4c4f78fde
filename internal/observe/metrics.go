// Package observe holds the OpenTelemetry instruments recorded by the
// pipeline and its collaborators. InitProvider wires a Prometheus exporter so
// the instruments can be scraped from /metrics. Tests should build their own
// Metrics from a ManualReader-backed provider via NewMetrics.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/obiente/translate/voicebridge"

// Metrics is safe for concurrent use.
type Metrics struct {
	// FramesReceived counts frames handed to a session.
	FramesReceived metric.Int64Counter

	// Results counts published transcription results by "kind".
	Results metric.Int64Counter

	// ResultsOverwritten counts unread results replaced by a newer one.
	ResultsOverwritten metric.Int64Counter

	STTDuration         metric.Float64Histogram
	TranslationDuration metric.Float64Histogram
	TTSDuration         metric.Float64Histogram

	// ProviderErrors counts collaborator failures by "provider".
	ProviderErrors metric.Int64Counter

	ActiveSessions metric.Int64UpDownCounter
}

var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesReceived, err = m.Int64Counter("voicebridge.frames.received",
		metric.WithDescription("Audio frames delivered to a stream session."),
	); err != nil {
		return nil, err
	}
	if met.Results, err = m.Int64Counter("voicebridge.results",
		metric.WithDescription("Transcription results published, by kind."),
	); err != nil {
		return nil, err
	}
	if met.ResultsOverwritten, err = m.Int64Counter("voicebridge.results.overwritten",
		metric.WithDescription("Unread transcription results replaced before the consumer took them."),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("voicebridge.stt.duration",
		metric.WithDescription("Latency of speech-to-text recognition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranslationDuration, err = m.Float64Histogram("voicebridge.translation.duration",
		metric.WithDescription("Latency of text translation per target language."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("voicebridge.tts.duration",
		metric.WithDescription("Latency of speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voicebridge.provider.errors",
		metric.WithDescription("Failures reported by external collaborators, by provider."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("voicebridge.active_sessions",
		metric.WithDescription("Number of open stream sessions."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance built on the global
// meter provider. It panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordResult counts one published result of the given kind.
func (m *Metrics) RecordResult(ctx context.Context, kind string) {
	m.Results.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordSTT records one recognizer call.
func (m *Metrics) RecordSTT(ctx context.Context, backend string, d time.Duration) {
	m.STTDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("backend", backend)))
}

// RecordTranslation records one translation call for target.
func (m *Metrics) RecordTranslation(ctx context.Context, target string, d time.Duration) {
	m.TranslationDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("target", target)))
}

// RecordTTS records one synthesis call for language.
func (m *Metrics) RecordTTS(ctx context.Context, language string, d time.Duration) {
	m.TTSDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("language", language)))
}

// RecordProviderError counts one failure of provider.
func (m *Metrics) RecordProviderError(ctx context.Context, provider string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}
