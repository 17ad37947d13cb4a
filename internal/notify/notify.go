// Package notify reports deploy progress and outcomes: a status line for
// people, a structured log entry, and optionally a CloudEvent for callers
// that subscribed with a callback URL.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Outcome is the final report of one deploy or bundle operation.
type Outcome struct {
	ID          string
	Path        string
	Name        string
	Strategy    string
	Kind        string
	Status      string // most recent status line, e.g. "ForceCode: Foo ApexClass $(check)"
	Message     string // detail shown beside the status line
	Success     bool
	Diagnostics int
	Polls       int
	Duration    time.Duration
	Err         error
}

// Sink receives status updates while a deploy runs and its outcome at the end.
type Sink interface {
	Status(ctx context.Context, line string)
	Finished(ctx context.Context, o Outcome)
}

// LogSink writes status lines at debug level and one summary per outcome.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses the default logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "notify")}
}

func (s *LogSink) Status(ctx context.Context, line string) {
	s.logger.DebugContext(ctx, "Status", "status", line)
}

func (s *LogSink) Finished(ctx context.Context, o Outcome) {
	attrs := []any{
		"id", o.ID,
		"file", o.Path,
		"strategy", o.Strategy,
		"kind", o.Kind,
		"status", o.Status,
		"diagnostics", o.Diagnostics,
		"duration", o.Duration,
	}
	if o.Polls > 0 {
		attrs = append(attrs, "polls", o.Polls)
	}
	if o.Err != nil {
		attrs = append(attrs, "error", o.Err.Error())
	}
	if !o.Success {
		s.logger.WarnContext(ctx, "Deploy finished with problems", append(attrs, "message", o.Message)...)
		return
	}
	s.logger.InfoContext(ctx, "Deploy finished", attrs...)
}

// Multi fans out to every sink in order.
type Multi []Sink

func (m Multi) Status(ctx context.Context, line string) {
	for _, s := range m {
		s.Status(ctx, line)
	}
}

func (m Multi) Finished(ctx context.Context, o Outcome) {
	for _, s := range m {
		s.Finished(ctx, o)
	}
}

// Discard drops everything.
var Discard Sink = Multi(nil)

var (
	_ Sink = (*LogSink)(nil)
	_ Sink = Multi(nil)
)
