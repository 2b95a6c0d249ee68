package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// Timeout bounds each Sink.Record call; zero leaves it unbounded.
	Timeout time.Duration
	// OnError, when set, observes sink failures from the dispatcher goroutine.
	OnError func(Activity, error)
}

// Dispatcher asynchronously forwards activity records to a sink.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	ch        chan Activity
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts the delivery goroutine. It returns nil when cfg is disabled;
// every method is safe on a nil *Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan Activity, cfg.BufferSize),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case activity := <-d.ch:
			d.deliver(activity)
		case <-d.done:
			for {
				select {
				case activity := <-d.ch:
					d.deliver(activity)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(activity Activity) {
	ctx := context.Background()
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	if err := d.sink.Record(ctx, activity); err != nil {
		d.failed.Add(1)
		if d.cfg.OnError != nil {
			d.cfg.OnError(activity, err)
		}
	}
}

// Emit queues activity for delivery. With DropIfFull it never blocks; otherwise it
// waits for queue space until ctx is done or the dispatcher closes.
func (d *Dispatcher) Emit(ctx context.Context, activity Activity) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- activity:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- activity:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.done:
	}
}

// Close stops accepting records, drains the queue and waits for the goroutine.
// It is idempotent.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns records discarded because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Failed returns records the sink rejected.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
