package hwc

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler drops every record. Enabled reports false, so Prepare and Draw
// never build attributes for a silent logger.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger sets the package logger. Composers pick it up in NewComposer
// unless [WithLogger] gives them their own, and add a "display" attribute.
// The package is silent until SetLogger is called; nil silences it again.
//
// What a composer logs:
//   - Info "composer created": generation, resolution, framebuffer variant
//   - Warn "pipe programming failed", "queue failed", "framebuffer configure
//     failed": the driver refused the frame and it falls back
//   - Warn "prepare called without a layer list"
//   - Debug "strategy rejected" with a reason, "idle timeout", and with
//     [Config.Debug] set, "frame plan" carrying the plan dump
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the package logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
