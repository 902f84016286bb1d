package otel

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-turns/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const DefaultMeterName = "github.com/goliatone/go-turns"

// MetricsRecorder maps core.MetricsRecorder calls onto OpenTelemetry
// instruments. Instruments are created on first use and cached by name.
type MetricsRecorder struct {
	meter  metric.Meter
	logger core.Logger

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

type Option func(*MetricsRecorder)

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(r *MetricsRecorder) {
		if provider != nil {
			r.meter = provider.Meter(DefaultMeterName)
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(r *MetricsRecorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewMetricsRecorder(opts ...Option) *MetricsRecorder {
	recorder := &MetricsRecorder{
		meter:      otel.Meter(DefaultMeterName),
		counters:   map[string]metric.Int64Counter{},
		histograms: map[string]metric.Float64Histogram{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}
	return recorder
}

func (r *MetricsRecorder) IncCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if r == nil {
		return
	}
	counter, ok := r.counter(ctx, name)
	if !ok {
		return
	}
	counter.Add(ctx, value, metric.WithAttributes(attributes(tags)...))
}

func (r *MetricsRecorder) ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	histogram, ok := r.histogram(ctx, name)
	if !ok {
		return
	}
	histogram.Record(ctx, value, metric.WithAttributes(attributes(tags)...))
}

func (r *MetricsRecorder) counter(ctx context.Context, name string) (metric.Int64Counter, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if counter, ok := r.counters[name]; ok {
		return counter, true
	}
	counter, err := r.meter.Int64Counter(name)
	if err != nil {
		r.warn(ctx, name, err)
		return nil, false
	}
	r.counters[name] = counter
	return counter, true
}

func (r *MetricsRecorder) histogram(ctx context.Context, name string) (metric.Float64Histogram, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if histogram, ok := r.histograms[name]; ok {
		return histogram, true
	}
	options := []metric.Float64HistogramOption{}
	if strings.HasSuffix(name, "_ms") {
		options = append(options, metric.WithUnit("ms"))
	}
	histogram, err := r.meter.Float64Histogram(name, options...)
	if err != nil {
		r.warn(ctx, name, err)
		return nil, false
	}
	r.histograms[name] = histogram
	return histogram, true
}

func (r *MetricsRecorder) warn(ctx context.Context, name string, err error) {
	core.LogWithLevel(ctx, r.logger, "warn", "otel instrument unavailable", map[string]any{
		"metric": name,
		"error":  err.Error(),
	})
}

func attributes(tags map[string]string) []attribute.KeyValue {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]attribute.KeyValue, 0, len(keys))
	for _, key := range keys {
		out = append(out, attribute.String(key, tags[key]))
	}
	return out
}

var _ core.MetricsRecorder = (*MetricsRecorder)(nil)
