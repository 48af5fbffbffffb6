package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-marketplace-hooks/core"
)

const levelTrace = slog.Level(-8)

// slogLogger adapts log/slog to the glog contract used across the library.
type slogLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

func newLogger(w io.Writer, format, level string) *slogLogger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: slogLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return &slogLogger{logger: slog.New(handler), ctx: context.Background()}
}

func (l *slogLogger) Trace(msg string, args ...any) { l.log(levelTrace, msg, args) }
func (l *slogLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }
func (l *slogLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args) }
func (l *slogLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args) }

func (l *slogLogger) Fatal(msg string, args ...any) {
	l.log(slog.LevelError, msg, args)
	os.Exit(1)
}

func (l *slogLogger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	return &slogLogger{logger: l.logger, ctx: ctx}
}

func (l *slogLogger) log(level slog.Level, msg string, args []any) {
	l.logger.Log(l.ctx, level, msg, args...)
}

func slogLevel(level string) slog.Level {
	resolved, ok := core.ParseLogLevel(level)
	if !ok || strings.TrimSpace(level) == "" {
		return slog.LevelInfo
	}
	switch resolved {
	case core.LevelTrace:
		return levelTrace
	case core.LevelDebug:
		return slog.LevelDebug
	case core.LevelWarn:
		return slog.LevelWarn
	case core.LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var _ glog.Logger = (*slogLogger)(nil)
