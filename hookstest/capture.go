package hookstest

import (
	"context"
	"sync"

	"github.com/goliatone/go-marketplace-hooks/core"
)

type CapturedLog struct {
	Level  string
	Msg    string
	Fields map[string]any
}

// CaptureLogger records every log call. Loggers derived through WithFields or
// WithContext share the same record buffer.
type CaptureLogger struct {
	mu       *sync.Mutex
	records  *[]CapturedLog
	defaults map[string]any
}

func NewCaptureLogger() *CaptureLogger {
	records := []CapturedLog{}
	return &CaptureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *CaptureLogger) WithFields(fields map[string]any) core.Logger {
	merged := core.MergeFields(l.defaults, fields)
	return &CaptureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *CaptureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *CaptureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *CaptureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *CaptureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *CaptureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *CaptureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *CaptureLogger) WithContext(context.Context) core.Logger {
	return &CaptureLogger{mu: l.mu, records: l.records, defaults: core.CloneFields(l.defaults)}
}

func (l *CaptureLogger) record(level string, msg string, args ...any) {
	fields := core.CloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, CapturedLog{Level: level, Msg: msg, Fields: fields})
}

func (l *CaptureLogger) Records() []CapturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]CapturedLog, len(*l.records))
	copy(out, *l.records)
	return out
}

// Find returns the first record with the given level and message.
func (l *CaptureLogger) Find(level string, msg string) (CapturedLog, bool) {
	for _, record := range l.Records() {
		if record.Level == level && record.Msg == msg {
			return record, true
		}
	}
	return CapturedLog{}, false
}

type CapturedMetric struct {
	Name  string
	Value float64
	Tags  map[string]string
}

type CaptureMetricsRecorder struct {
	mu         sync.Mutex
	Counters   []CapturedMetric
	Histograms []CapturedMetric
}

func (m *CaptureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Counters = append(m.Counters, CapturedMetric{Name: name, Value: float64(value), Tags: core.CloneTags(tags)})
}

func (m *CaptureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Histograms = append(m.Histograms, CapturedMetric{Name: name, Value: value, Tags: core.CloneTags(tags)})
}

// HasCounter reports whether a counter with name and status tag was recorded.
func (m *CaptureMetricsRecorder) HasCounter(name string, status string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.Counters {
		if item.Name == name && item.Tags["status"] == status {
			return true
		}
	}
	return false
}

func (m *CaptureMetricsRecorder) HasHistogram(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.Histograms {
		if item.Name == name {
			return true
		}
	}
	return false
}

var (
	_ core.Logger          = (*CaptureLogger)(nil)
	_ core.FieldsLogger    = (*CaptureLogger)(nil)
	_ core.MetricsRecorder = (*CaptureMetricsRecorder)(nil)
)
