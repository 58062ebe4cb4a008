package diag

import (
	"context"
	"log/slog"
	"sync"
)

// Sink receives the warnings of finished conversions. Implementations must
// be safe for concurrent use: conversions running on different goroutines
// share one sink.
type Sink interface {
	Report(ctx context.Context, ws Warnings)
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Report(context.Context, Warnings) {}

// LogSink writes each warning as one structured log record at Warn level.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink logging through logger (slog.Default when nil).
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Report implements Sink.
func (s *LogSink) Report(ctx context.Context, ws Warnings) {
	for _, w := range ws {
		attrs := []slog.Attr{
			slog.String("code", string(w.Code)),
			slog.String("model", w.Model),
			slog.String("direction", string(w.Direction)),
			slog.String("field", w.Field),
			slog.Int("index", w.Index),
		}
		if w.Key != "" {
			attrs = append(attrs, slog.String("key", w.Key))
		}
		s.logger.LogAttrs(ctx, slog.LevelWarn, w.Message, attrs...)
	}
}

// Buffer is a Sink that keeps every reported warning in memory.
type Buffer struct {
	mu       sync.Mutex
	warnings Warnings
}

// Report implements Sink.
func (b *Buffer) Report(_ context.Context, ws Warnings) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.warnings = append(b.warnings, ws...)
}

// Len returns the number of buffered warnings.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.warnings)
}

// Drain returns the buffered warnings and empties the buffer.
func (b *Buffer) Drain() Warnings {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.warnings
	b.warnings = nil
	return out
}

// Multi fans a report out to several sinks in order.
type Multi []Sink

// Report implements Sink.
func (m Multi) Report(ctx context.Context, ws Warnings) {
	for _, s := range m {
		s.Report(ctx, ws)
	}
}
