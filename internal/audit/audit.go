package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Event records one credential lifecycle step. Tokens and passwords never
// appear in it; Metadata carries only status codes and failure kinds.
type Event struct {
	EventID   string            `json:"event_id"`
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Endpoint  string            `json:"endpoint,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// level maps failed events to warnings.
func (e Event) level() slog.Level {
	if e.Success {
		return slog.LevelInfo
	}
	return slog.LevelWarn
}

func (e Event) logAttrs() []slog.Attr {
	out := make([]slog.Attr, 0, 7+len(e.Metadata))
	out = append(out,
		slog.String("event_id", e.EventID),
		slog.String("event_type", e.EventType),
		slog.Bool("success", e.Success),
	)
	optional := [...]struct{ key, val string }{
		{"user_id", e.UserID},
		{"request_id", e.RequestID},
		{"endpoint", e.Endpoint},
		{"error", e.Error},
	}
	for _, o := range optional {
		if o.val != "" {
			out = append(out, slog.String(o.key, o.val))
		}
	}
	for k, v := range e.Metadata {
		out = append(out, slog.String("meta."+k, v))
	}
	return out
}

// Sink consumes events delivered by a [Dispatcher].
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink exposes events on a buffered channel, mostly for tests and
// in-process consumers.
type ChannelSink struct {
	ch chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan Event, max(buffer, 1))}
}

// Emit blocks while the channel is full until ctx is done.
func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.ch <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event { return s.ch }

// JSONWriterSink writes newline-delimited JSON.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		return &JSONWriterSink{}
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(event)
}

// SlogSink logs each event under stream=audit.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger.With(slog.String("stream", "audit"))}
}

func (s *SlogSink) Emit(ctx context.Context, event Event) {
	s.logger.LogAttrs(ctx, event.level(), "audit", event.logAttrs()...)
}
