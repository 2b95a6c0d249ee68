package audit

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Record(context.Context, Activity) error {
	<-s.gate
	return nil
}

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Record(context.Context, Activity) error {
	s.count.Add(1)
	return nil
}

func TestNewDispatcherDisabledReturnsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Activity{Action: "login"})
	d.Close()
	if d.Dropped() != 0 || d.Failed() != 0 {
		t.Fatal("expected zero counters on nil dispatcher")
	}
}

func TestDispatcherDropIfFullDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Activity{Action: "a1"})
	d.Emit(context.Background(), Activity{Action: "a2"})

	start := time.Now()
	d.Emit(context.Background(), Activity{Action: "a3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestDispatcherBlockingEmitWaitsForSpace(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: false}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Activity{Action: "a1"})
	d.Emit(context.Background(), Activity{Action: "a2"})

	done := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Activity{Action: "a3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestDispatcherBlockingEmitHonoursContext(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Activity{Action: "a1"})
	d.Emit(context.Background(), Activity{Action: "a2"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Activity{Action: "a3"})

	if d.Dropped() != 1 {
		t.Fatalf("expected the cancelled emit to count as dropped, got %d", d.Dropped())
	}
}

func TestDispatcherCountsSinkFailures(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	sink := SinkFunc(func(context.Context, Activity) error {
		return errors.New("sink down")
	})
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 4,
		OnError: func(a Activity, err error) {
			mu.Lock()
			seen = append(seen, a.Action+":"+err.Error())
			mu.Unlock()
		},
	}, sink)

	d.Emit(context.Background(), Activity{Action: "logout"})
	d.Close()

	if d.Failed() != 1 {
		t.Fatalf("expected one failed delivery, got %d", d.Failed())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != "logout:sink down" {
		t.Fatalf("unexpected OnError calls: %v", seen)
	}
}

func TestDispatcherTimeoutBoundsSinkCall(t *testing.T) {
	sink := SinkFunc(func(ctx context.Context, _ Activity) error {
		<-ctx.Done()
		return ctx.Err()
	})
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, Timeout: 20 * time.Millisecond}, sink)

	d.Emit(context.Background(), Activity{Action: "login"})

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected Close to return once the sink call timed out")
	}
	if d.Failed() != 1 {
		t.Fatalf("expected timed-out delivery to count as failed, got %d", d.Failed())
	}
}

func TestDispatcherCloseDrainsQueue(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16, DropIfFull: true}, sink)
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Activity{Action: "login"})
	}
	d.Close()
	d.Close()
	d.Emit(context.Background(), Activity{Action: "after-close"})

	if got := sink.count.Load(); got != 10 {
		t.Fatalf("expected 10 delivered records, got %d", got)
	}
}

func TestJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	err := sink.Record(context.Background(), Activity{
		Timestamp: time.Now().UTC(),
		Action:    "login",
		UserID:    "u1",
		Success:   true,
		Details:   map[string]string{"role": "student"},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	line := buf.String()
	if !strings.HasSuffix(line, "\n") {
		t.Fatal("expected newline-terminated record")
	}
	for _, want := range []string{`"action":"login"`, `"user_id":"u1"`, `"role":"student"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in %s", want, line)
		}
	}
}

func TestChannelSinkRespectsContext(t *testing.T) {
	sink := NewChannelSink(1)
	if err := sink.Record(context.Background(), Activity{Action: "a1"}); err != nil {
		t.Fatalf("first record: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sink.Record(ctx, Activity{Action: "a2"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	got := <-sink.Activities()
	if got.Action != "a1" {
		t.Fatalf("expected a1, got %q", got.Action)
	}
}
