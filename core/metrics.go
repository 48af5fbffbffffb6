package core

import "context"

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// EnsureMetricsRecorder returns recorder, or a no-op recorder when it is nil.
func EnsureMetricsRecorder(recorder MetricsRecorder) MetricsRecorder {
	if recorder == nil {
		return NopMetricsRecorder{}
	}
	return recorder
}

func CloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
