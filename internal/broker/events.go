package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"fuel-order-service/internal/models"
	"fuel-order-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher writes order events to the order-events topic. It is an events.Sink.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// Name identifies the sink in logs and metrics
func (ep *EventPublisher) Name() string {
	return "kafka"
}

// Deliver publishes the event keyed by order so one order's events stay ordered
func (ep *EventPublisher) Deliver(ctx context.Context, event *models.OrderEvent) error {
	ctx, span := util.StartSpan(ctx, "EventPublisher.Deliver")
	defer span.End()

	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishOrderEvent(ctx, key, event)
}

// OrderEventHandler processes one decoded order event
type OrderEventHandler func(ctx context.Context, event *models.OrderEvent) error

// EventHandler handles incoming events
type EventHandler struct {
	handlers map[string]OrderEventHandler
	fallback OrderEventHandler
	logger   *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{
		handlers: make(map[string]OrderEventHandler),
		logger:   util.Named("kafka"),
	}
}

// On registers a handler for one event type
func (eh *EventHandler) On(eventType string, handler OrderEventHandler) {
	eh.handlers[eventType] = handler
}

// OnAny registers the handler for every type without a specific handler
func (eh *EventHandler) OnAny(handler OrderEventHandler) {
	eh.fallback = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		// a poison message is logged and skipped so it cannot stall the partition
		eh.logger.Error("Dropping undecodable message", zap.ByteString("key", msg.Key), zap.Error(err))
		return nil
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	handler, ok := eh.handlers[baseEvent.EventType]
	if !ok {
		handler = eh.fallback
	}
	if handler == nil {
		eh.logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
		return nil
	}

	var event models.OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal %s event: %w", baseEvent.EventType, err)
	}
	return handler(ctx, &event)
}
