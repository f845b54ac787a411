package worker

import (
	"context"
	"fmt"

	"fuel-order-service/internal/broker"
	"fuel-order-service/internal/models"
	"fuel-order-service/internal/store"
	"fuel-order-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// MessageSource is the consuming side of the order-events topic
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// EventProcessor reacts to one order event
type EventProcessor interface {
	Handle(ctx context.Context, ev *models.OrderEvent) error
}

// NotificationWorker turns order events read from Kafka into notifications.
// Kafka delivers at least once, so every event id is recorded after it is handled
// and redeliveries are skipped.
type NotificationWorker struct {
	source       MessageSource
	eventHandler *broker.EventHandler
	processor    EventProcessor
	processed    store.EventLog
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(source MessageSource, processor EventProcessor, processed store.EventLog) *NotificationWorker {
	w := &NotificationWorker{
		source:       source,
		eventHandler: broker.NewEventHandler(),
		processor:    processor,
		processed:    processed,
		logger:       util.Named("worker"),
	}
	w.eventHandler.OnAny(w.handle)
	return w
}

// Start consumes until ctx is cancelled
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.source.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop closes the underlying consumer
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.source.Close()
}

func (w *NotificationWorker) handle(ctx context.Context, ev *models.OrderEvent) error {
	ctx, span := util.StartSpan(ctx, "NotificationWorker.handle",
		attribute.String("event_id", ev.EventID),
		attribute.String("event_type", ev.EventType),
		attribute.Int64("order_id", ev.OrderID))
	defer span.End()

	logger := w.logger.With(
		zap.String("event_id", ev.EventID),
		zap.String("event_type", ev.EventType),
		zap.Int64("order_id", ev.OrderID))

	if ev.EventID == "" {
		logger.Warn("Dropping event without id")
		return nil
	}

	done, err := w.processed.IsEventProcessed(ctx, ev.EventID)
	if err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to check event %s: %w", ev.EventID, err)
	}
	if done {
		logger.Debug("Skipping already processed event")
		return nil
	}

	if err := w.processor.Handle(ctx, ev); err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to handle event %s: %w", ev.EventID, err)
	}

	if err := w.processed.MarkEventProcessed(ctx, ev.EventID, ev.EventType); err != nil {
		// commit anyway: the notifications already exist
		util.RecordError(span, err)
		logger.Error("Failed to record processed event", zap.Error(err))
		return nil
	}
	logger.Debug("Event processed")
	return nil
}
