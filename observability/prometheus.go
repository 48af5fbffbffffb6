// Package observability backs the chain's metrics and tracing hooks with
// Prometheus and OpenTelemetry.
package observability

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goliatone/go-marketplace-hooks/core"
)

var defaultBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// PrometheusRecorder implements core.MetricsRecorder. Collectors are created
// on first use of a metric name. The label set of a metric is fixed by
// WithLabels or by the tags of its first observation; later tags outside that
// set are dropped and missing ones are recorded as "".
type PrometheusRecorder struct {
	registerer prometheus.Registerer
	namespace  string
	buckets    []float64
	labels     map[string][]string

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	failed     map[string]bool
	logger     core.Logger
}

type PrometheusOption func(*PrometheusRecorder)

func WithNamespace(namespace string) PrometheusOption {
	return func(r *PrometheusRecorder) {
		r.namespace = sanitizeName(namespace)
	}
}

func WithBuckets(buckets ...float64) PrometheusOption {
	return func(r *PrometheusRecorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

// WithLabels declares the label names of a metric up front.
func WithLabels(metric string, labels ...string) PrometheusOption {
	return func(r *PrometheusRecorder) {
		r.labels[metric] = sortedLabels(labels)
	}
}

func WithRecorderLogger(logger core.Logger) PrometheusOption {
	return func(r *PrometheusRecorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewPrometheusRecorder(registerer prometheus.Registerer, opts ...PrometheusOption) *PrometheusRecorder {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	recorder := &PrometheusRecorder{
		registerer: registerer,
		buckets:    defaultBuckets,
		labels: map[string][]string{
			"hooks.webhook.total":       {"error_code", "status"},
			"hooks.webhook.duration_ms": {"error_code", "status"},
		},
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
		failed:     map[string]bool{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}
	if recorder.logger == nil {
		recorder.logger = glog.Nop()
	}
	return recorder
}

func (r *PrometheusRecorder) IncCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	counter, labels := r.counter(ctx, name, tags)
	if counter == nil {
		return
	}
	counter.With(labelValues(labels, tags)).Add(float64(value))
}

func (r *PrometheusRecorder) ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	histogram, labels := r.histogram(ctx, name, tags)
	if histogram == nil {
		return
	}
	histogram.With(labelValues(labels, tags)).Observe(value)
}

func (r *PrometheusRecorder) counter(ctx context.Context, name string, tags map[string]string) (*prometheus.CounterVec, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	labels := r.labelsFor(name, tags)
	if existing, ok := r.counters[name]; ok {
		return existing, labels
	}
	if r.failed[name] {
		return nil, nil
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      sanitizeName(name),
		Help:      "Counter " + name + ".",
	}, labels)
	if err := r.registerer.Register(vec); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			r.registrationFailed(ctx, name, err)
			return nil, nil
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			r.registrationFailed(ctx, name, err)
			return nil, nil
		}
		vec = existing
	}
	r.counters[name] = vec
	return vec, labels
}

func (r *PrometheusRecorder) histogram(ctx context.Context, name string, tags map[string]string) (*prometheus.HistogramVec, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	labels := r.labelsFor(name, tags)
	if existing, ok := r.histograms[name]; ok {
		return existing, labels
	}
	if r.failed[name] {
		return nil, nil
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Name:      sanitizeName(name),
		Help:      "Histogram " + name + ".",
		Buckets:   r.buckets,
	}, labels)
	if err := r.registerer.Register(vec); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			r.registrationFailed(ctx, name, err)
			return nil, nil
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			r.registrationFailed(ctx, name, err)
			return nil, nil
		}
		vec = existing
	}
	r.histograms[name] = vec
	return vec, labels
}

// labelsFor must be called with mu held.
func (r *PrometheusRecorder) labelsFor(name string, tags map[string]string) []string {
	if labels, ok := r.labels[name]; ok {
		return labels
	}
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	labels := sortedLabels(keys)
	r.labels[name] = labels
	return labels
}

func (r *PrometheusRecorder) registrationFailed(ctx context.Context, name string, err error) {
	r.failed[name] = true
	core.LogAt(ctx, r.logger, core.LevelWarn, "metric registration failed", core.MergeFields(
		map[string]any{"metric": name},
		core.ErrorFields(err),
	))
}

// MetricsHandler exposes a gatherer in the Prometheus text format.
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func labelValues(labels []string, tags map[string]string) prometheus.Labels {
	values := make(prometheus.Labels, len(labels))
	for _, label := range labels {
		values[label] = tags[label]
	}
	return values
}

func sortedLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := map[string]struct{}{}
	for _, label := range labels {
		name := sanitizeName(label)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// sanitizeName maps a dotted metric or tag name onto the Prometheus charset.
func sanitizeName(name string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*PrometheusRecorder)(nil)
