// Package notify implements the decoupled notification pipeline.
//
// Ingestion enqueues the *name* of a changed measurement and returns
// immediately; a single consumer goroutine drains the queue and fans the
// value out to listeners. Because the queue carries names rather than
// values, the consumer re-reads the current value at dequeue time:
// rapid updates to the same name coalesce into fewer notifications that
// always carry the latest value. This trade-off (freshness over
// per-update delivery) is deliberate and keeps the producer thread
// insulated from slow listeners.
//
// The queue is a bounded ring with drop-oldest overflow rather than an
// unbounded list: the producer is never blocked, and under sustained
// overload the oldest pending names are shed. A shed name only loses
// its notification entirely if it is never updated again; any later
// update for it re-enqueues it. Drops are visible in buffer statistics
// and metrics.
package notify

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/vehiclehub/errors"
	"github.com/c360/vehiclehub/listener"
	"github.com/c360/vehiclehub/metric"
	"github.com/c360/vehiclehub/pkg/buffer"
	"github.com/c360/vehiclehub/store"
)

// DefaultQueueCapacity bounds the pending-name queue.
const DefaultQueueCapacity = 4096

// DefaultPollInterval bounds how long the consumer waits for a queue
// item before re-checking the shutdown flag. Shutdown is therefore
// observed within this interval even when the queue stays empty.
const DefaultPollInterval = time.Second

// Deps holds construction dependencies for the notifier.
type Deps struct {
	Store     *store.Store
	Listeners *listener.Registry
	Logger    *slog.Logger

	// QueueCapacity and PollInterval fall back to the package defaults
	// when zero.
	QueueCapacity int
	PollInterval  time.Duration

	// Metrics is optional; when set, queue statistics and delivery
	// counters are exported.
	Metrics *metric.MetricsRegistry
}

// Notifier owns the pending-name queue and the single consumer
// goroutine that performs fan-out.
type Notifier struct {
	store     *store.Store
	listeners *listener.Registry
	queue     buffer.Buffer[string]
	poll      time.Duration
	logger    *slog.Logger

	wake     chan struct{}
	shutdown chan struct{}
	done     chan struct{}
	running  atomic.Bool

	// optional metrics, nil when disabled
	delivered prometheus.Counter
	depth     prometheus.Gauge
}

// New creates a notifier. It does not start the consumer; call Start.
func New(deps Deps) (*Notifier, error) {
	if deps.Store == nil || deps.Listeners == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"Notifier", "New", "store and listener registry validation")
	}

	capacity := deps.QueueCapacity
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	poll := deps.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "notifier")
	}

	var queueOpts []buffer.Option[string]
	queueOpts = append(queueOpts, buffer.WithOverflowPolicy[string](buffer.DropOldest))
	if deps.Metrics != nil {
		queueOpts = append(queueOpts, buffer.WithMetrics[string](deps.Metrics, "notify_queue"))
	}

	queue, err := buffer.NewRing(capacity, queueOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "Notifier", "New", "queue creation")
	}

	n := &Notifier{
		store:     deps.Store,
		listeners: deps.Listeners,
		queue:     queue,
		poll:      poll,
		logger:    logger,
		wake:      make(chan struct{}, 1),
	}

	if deps.Metrics != nil {
		n.delivered = deps.Metrics.Metrics.NotificationsDelivered
		n.depth = deps.Metrics.Metrics.QueueDepth
	}

	return n, nil
}

// Start launches the consumer goroutine. Idempotent.
func (n *Notifier) Start(ctx context.Context) error {
	if !n.running.CompareAndSwap(false, true) {
		return nil // already running
	}

	n.shutdown = make(chan struct{})
	n.done = make(chan struct{})

	go n.consume(ctx)
	return nil
}

// Enqueue queues name for fan-out. It never blocks: when the queue is
// full the oldest pending name is shed. Safe to call from the producer
// thread at any ingestion rate.
func (n *Notifier) Enqueue(name string) {
	if err := n.queue.Write(name); err != nil {
		// queue closed, shutting down
		return
	}
	if n.depth != nil {
		n.depth.Set(float64(n.queue.Size()))
	}

	// Non-blocking wake; a pending signal already covers this item.
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Backlog returns the number of names waiting for fan-out.
func (n *Notifier) Backlog() int {
	return n.queue.Size()
}

// Stop requests shutdown and waits up to timeout for the consumer to
// exit. No new items are processed after Stop is called; an in-flight
// broadcast completes. Idempotent and safe from any goroutine.
func (n *Notifier) Stop(timeout time.Duration) error {
	if !n.running.CompareAndSwap(true, false) {
		return nil // not running
	}

	n.logger.Debug("Stopping notification consumer")
	close(n.shutdown)

	select {
	case <-n.done:
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrConnectionTimeout,
			"Notifier", "Stop", "waiting for consumer exit")
	}

	return n.queue.Close()
}

// consume is the single consumer loop. It drains the queue, re-reading
// the current value and the current listener set for each dequeued
// name, and waits with a bounded poll when the queue is empty so the
// shutdown flag is observed promptly.
func (n *Notifier) consume(ctx context.Context) {
	defer close(n.done)
	n.logger.Debug("Notification consumer started", "poll", n.poll)

	for {
		if !n.running.Load() {
			n.logger.Debug("Notification consumer stopped")
			return
		}

		name, ok := n.queue.Read()
		if !ok {
			timer := time.NewTimer(n.poll)
			select {
			case <-n.shutdown:
				timer.Stop()
				n.logger.Debug("Notification consumer stopped while idle")
				return
			case <-ctx.Done():
				timer.Stop()
				n.running.Store(false)
				n.logger.Debug("Notification consumer context cancelled")
				return
			case <-n.wake:
				timer.Stop()
			case <-timer.C:
			}
			continue
		}

		if n.depth != nil {
			n.depth.Set(float64(n.queue.Size()))
		}

		// The value is read here, not captured at enqueue time, so
		// coalesced updates always deliver the latest value.
		m := n.store.Get(name)
		count := n.listeners.Broadcast(name, m)
		if count > 0 && n.delivered != nil {
			n.delivered.Add(float64(count))
		}
	}
}
