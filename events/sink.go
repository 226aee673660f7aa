package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink delivers events. Failures are reported but never undo the operation
// that produced the event.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// Buffer holds the events of one invocation until its writes are committed.
type Buffer struct {
	source string
	now    func() time.Time
	events []Event
}

func NewBuffer(source string) *Buffer {
	return &Buffer{source: source, now: time.Now}
}

func (b *Buffer) WithClock(now func() time.Time) *Buffer {
	b.now = now
	return b
}

// Emit stamps ev with an id, source and timestamp and queues it.
func (b *Buffer) Emit(_ context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Source == "" {
		ev.Source = b.source
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now().UTC()
	}
	b.events = append(b.events, ev)
	return nil
}

func (b *Buffer) Events() []Event {
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

func (b *Buffer) Len() int { return len(b.events) }

// Flush hands every queued event to sink in order and empties the buffer.
// Delivery errors are logged and do not stop the remaining events.
func (b *Buffer) Flush(ctx context.Context, sink Sink, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, ev := range b.events {
		if err := sink.Emit(ctx, ev); err != nil {
			logger.WarnContext(ctx, "event_delivery_failed",
				"event_id", ev.ID,
				"event_type", ev.Name,
				"error", err,
			)
		}
	}
	b.Reset()
}

func (b *Buffer) Reset() { b.events = nil }

// LogSink writes each event as a structured log line.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(ctx context.Context, ev Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "event_published",
		"event_id", ev.ID,
		"event_type", ev.Name,
		"source", ev.Source,
		"data", ev.Data,
	)
	return nil
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Names lists the recorded event names in emission order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Name)
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Fanout delivers to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
