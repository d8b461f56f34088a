package ui

import (
	"log/slog"

	"github.com/rickgao/tradewatch/internal/render"
)

// LogSink reports session events as structured log lines. It is used when the
// dashboard runs headless.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a headless sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "display")}
}

// Render implements render.Sink.
func (s *LogSink) Render(u render.Update) {
	attrs := []any{
		"category", u.Category.String(),
		"mode", u.Mode.String(),
		"count", u.Count,
		"rows", len(u.Fragment.Rows),
		"bytes", u.Bytes(),
	}
	if u.FirstLoad {
		attrs = append(attrs, "first_load", true)
	}
	if u.Reason != "" {
		attrs = append(attrs, "reason", u.Reason)
	}
	if !u.OpenedAt.IsZero() {
		attrs = append(attrs, "window", u.FlushedAt.Sub(u.OpenedAt))
	}
	if len(u.Fragment.Rows) > 0 {
		attrs = append(attrs, "top", u.Fragment.Rows[0])
	}
	s.logger.Info("update", attrs...)
}

// ConnectionOpened implements connection.Banner.
func (s *LogSink) ConnectionOpened() {
	s.logger.Info("push channel open")
}

// ConnectionLost implements connection.Banner.
func (s *LogSink) ConnectionLost() {
	s.logger.Warn("push channel lost, live updates stopped")
}

// BootstrapProgress reports a completed initial load.
func (s *LogSink) BootstrapProgress(completed, expected, percent int) {
	s.logger.Info("bootstrap progress", "completed", completed, "expected", expected, "percent", percent)
}

// BootstrapReady reports that every initial load completed.
func (s *LogSink) BootstrapReady() {
	s.logger.Info("dashboard ready")
}
