package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Activity is the canonical activity record shared by the dispatcher and root APIs.
type Activity struct {
	Timestamp time.Time         `json:"timestamp"`
	Action    string            `json:"action"`
	UserID    string            `json:"user_id,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Sink records activity. A returned error is counted by the dispatcher and otherwise
// ignored.
type Sink interface {
	Record(ctx context.Context, activity Activity) error
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(ctx context.Context, activity Activity) error

// Record calls f(ctx, activity).
func (f SinkFunc) Record(ctx context.Context, activity Activity) error {
	return f(ctx, activity)
}

// NoOpSink drops activity.
type NoOpSink struct{}

// Record implements [Sink].
func (NoOpSink) Record(context.Context, Activity) error { return nil }

// ChannelSink forwards activity into a buffered channel.
type ChannelSink struct {
	activities chan Activity
}

// NewChannelSink creates a channel sink with a minimum buffer of one.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		activities: make(chan Activity, buffer),
	}
}

// Record implements [Sink]. It waits for channel space until ctx is done.
func (s *ChannelSink) Record(ctx context.Context, activity Activity) error {
	select {
	case s.activities <- activity:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Activities exposes the receive side of the sink channel.
func (s *ChannelSink) Activities() <-chan Activity {
	return s.activities
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink creates a JSON-lines sink backed by w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Record implements [Sink].
func (s *JSONWriterSink) Record(_ context.Context, activity Activity) error {
	if s == nil || s.writer == nil {
		return nil
	}
	data, err := json.Marshal(activity)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.writer.Write(data)
	return err
}
