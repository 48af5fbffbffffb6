package core

import (
	"context"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	LevelTrace = "trace"
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// ParseLogLevel normalizes a level name. An empty name resolves to debug.
func ParseLogLevel(level string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "":
		return LevelDebug, true
	case LevelTrace:
		return LevelTrace, true
	case LevelDebug:
		return LevelDebug, true
	case LevelInfo:
		return LevelInfo, true
	case LevelWarn, "warning":
		return LevelWarn, true
	case LevelError:
		return LevelError, true
	default:
		return "", false
	}
}

// LogAt writes message at level with fields flattened into sorted key/value
// args. Nil loggers are ignored.
func LogAt(ctx context.Context, logger Logger, level string, message string, fields map[string]any) {
	if logger == nil {
		return
	}
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(CloneFields(fields))
	}
	args := flattenFields(fields)
	resolved, _ := ParseLogLevel(level)
	switch resolved {
	case LevelTrace:
		logger.Trace(message, args...)
	case LevelInfo:
		logger.Info(message, args...)
	case LevelWarn:
		logger.Warn(message, args...)
	case LevelError:
		logger.Error(message, args...)
	default:
		logger.Debug(message, args...)
	}
}

// ErrorFields describes err for structured logs. Metadata is redacted and
// request_id and trace_id are promoted to top-level fields.
func ErrorFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	fields := map[string]any{"error": err.Error()}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich == nil {
		return fields
	}
	fields["error_category"] = rich.Category.String()
	if rich.Code != 0 {
		fields["error_code"] = rich.Code
	}
	if rich.TextCode != "" {
		fields["error_text_code"] = rich.TextCode
	}
	fields["error_severity"] = rich.GetSeverity().String()
	if len(rich.Metadata) > 0 {
		fields["error_metadata"] = RedactSensitiveMap(rich.Metadata)
		for _, key := range []string{"request_id", "trace_id"} {
			if value, ok := rich.Metadata[key]; ok {
				fields[key] = value
			}
		}
	}
	if rich.RequestID != "" {
		fields["request_id"] = rich.RequestID
	}
	return fields
}

// MergeFields copies base and overlays extra.
func MergeFields(base map[string]any, extra map[string]any) map[string]any {
	out := CloneFields(base)
	for key, value := range extra {
		out[key] = value
	}
	return out
}

func CloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}
