package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"fuel-order-service/internal/models"
	"fuel-order-service/internal/util"

	"go.uber.org/zap"
)

var errSinkPanic = errors.New("event sink panicked")

// Sink receives order events from the bus
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event *models.OrderEvent) error
}

// SinkFunc adapts a function to Sink
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, event *models.OrderEvent) error
}

func (f SinkFunc) Name() string { return f.SinkName }

func (f SinkFunc) Deliver(ctx context.Context, event *models.OrderEvent) error {
	return f.Fn(ctx, event)
}

// Bus decouples committed order mutations from their side effects. Emit never blocks:
// when the queue is full the event is dropped and counted. Workers deliver each event
// to every sink; a failing sink does not stop the others.
type Bus struct {
	queue          chan models.OrderEvent
	sinks          []Sink
	workers        int
	deliverTimeout time.Duration
	logger         *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewBus creates a new event bus
func NewBus(queueSize, workers int, sinks ...Sink) *Bus {
	if queueSize < 1 {
		queueSize = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &Bus{
		queue:          make(chan models.OrderEvent, queueSize),
		sinks:          sinks,
		workers:        workers,
		deliverTimeout: 10 * time.Second,
		logger:         util.Named("events"),
	}
}

// Start launches the delivery workers
func (b *Bus) Start() {
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.run()
	}
	b.logger.Info("Event bus started",
		zap.Int("workers", b.workers),
		zap.Int("queue_size", cap(b.queue)),
		zap.Int("sinks", len(b.sinks)))
}

// Emit enqueues events without blocking and reports how many were accepted
func (b *Bus) Emit(events ...models.OrderEvent) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	accepted := 0
	for _, ev := range events {
		if b.closed {
			util.EventsDroppedTotal.WithLabelValues(ev.EventType).Inc()
			continue
		}
		select {
		case b.queue <- ev:
			accepted++
			util.EventsEmittedTotal.WithLabelValues(ev.EventType).Inc()
		default:
			util.EventsDroppedTotal.WithLabelValues(ev.EventType).Inc()
			b.logger.Warn("Event queue full, dropping event",
				zap.String("event_type", ev.EventType),
				zap.String("event_id", ev.EventID),
				zap.Int64("order_id", ev.OrderID))
		}
	}
	return accepted
}

// Close stops accepting events and waits until queued events are delivered or ctx ends
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) run() {
	defer b.wg.Done()
	for ev := range b.queue {
		ev := ev
		b.deliver(&ev)
	}
}

func (b *Bus) deliver(ev *models.OrderEvent) {
	for _, sink := range b.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), b.deliverTimeout)
		err := b.safeDeliver(ctx, sink, ev)
		cancel()
		if err != nil {
			util.EventSinkFailures.WithLabelValues(sink.Name()).Inc()
			b.logger.Error("Failed to deliver event",
				zap.String("sink", sink.Name()),
				zap.String("event_type", ev.EventType),
				zap.String("event_id", ev.EventID),
				zap.Int64("order_id", ev.OrderID),
				zap.Error(err))
		}
	}
}

func (b *Bus) safeDeliver(ctx context.Context, sink Sink, ev *models.OrderEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event sink panicked",
				zap.String("sink", sink.Name()),
				zap.Any("panic", r))
			err = errSinkPanic
		}
	}()
	return sink.Deliver(ctx, ev)
}
