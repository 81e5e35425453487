package authcore

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
)

// auditDispatcher decouples security decisions from the audit sink: events
// are queued on a buffered channel and delivered by a single worker
// goroutine, so a slow or failing sink never blocks a state transition.
type auditDispatcher struct {
	config AuditConfig
	sink   Sink

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	closed    atomic.Bool
	closeOnce sync.Once
	dropped   atomic.Uint64
}

func newAuditDispatcher(cfg AuditConfig, sink Sink) *auditDispatcher {
	if !cfg.Enabled || sink == nil {
		return nil
	}
	d := &auditDispatcher{
		config: cfg,
		sink:   sink,
		events: make(chan Event, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *auditDispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.events:
			d.deliver(event)
		case <-d.done:
			// Drain whatever was queued before Close.
			for {
				select {
				case event := <-d.events:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver attempts the sink, retrying failed deliveries up to the
// configured count before dropping the event with a local log line.
func (d *auditDispatcher) deliver(event Event) {
	var err error
	for attempt := 0; attempt <= d.config.RetryAttempts; attempt++ {
		if err = d.sink.Record(context.Background(), event); err == nil {
			return
		}
	}
	d.dropped.Add(1)
	log.Printf("authcore: audit event %s for %q dropped: %v", event.Type, event.Identity, err)
}

// Emit queues an event. When the buffer is full the event is either
// dropped (DropIfFull) or delivered blocking, per configuration.
func (d *auditDispatcher) Emit(event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if d.config.DropIfFull {
		select {
		case d.events <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}
	select {
	case d.events <- event:
	case <-d.done:
	}
}

// Dropped reports how many events were lost to a full buffer or a failing
// sink.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Close stops intake, drains the queue, and waits for the worker.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}
