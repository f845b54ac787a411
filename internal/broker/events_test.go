package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"fuel-order-service/internal/models"
	"fuel-order-service/internal/util"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestEventPublisherKeysByOrder(t *testing.T) {
	w := &fakeWriter{}
	publisher := NewEventPublisher(&Producer{writer: w, logger: util.GetLogger()})

	ev := models.NewOrderEvent(models.EventTypeOrderCreated,
		&models.Order{ID: 42, CustomerID: 3, VendorID: 9, Status: models.OrderStatusPending, TotalAmount: 6500},
		&models.Vendor{ID: 9, OwnerUserID: 11, Name: "Total Ikoyi"}, nil)

	require.NoError(t, publisher.Deliver(context.Background(), &ev))
	require.Len(t, w.messages, 1)
	assert.Equal(t, "order-42", string(w.messages[0].Key))
	assert.Equal(t, models.EventTypeOrderCreated, header(w.messages[0], HeaderEventType))
	assert.Equal(t, ev.EventID, header(w.messages[0], HeaderEventID))

	var decoded models.OrderEvent
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &decoded))
	assert.Equal(t, models.EventTypeOrderCreated, decoded.EventType)
	assert.Equal(t, int64(11), decoded.VendorUserID)
	assert.Equal(t, int64(6500), decoded.TotalAmount)
}

func TestEventPublisherWrapsWriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	publisher := NewEventPublisher(&Producer{writer: w, logger: util.GetLogger()})

	ev := models.NewOrderEvent(models.EventTypeOrderCancelled, &models.Order{ID: 1}, nil, nil)
	err := publisher.Deliver(context.Background(), &ev)
	assert.ErrorContains(t, err, "leader not available")
}

func TestEventHandlerRoutesByType(t *testing.T) {
	eh := NewEventHandler()

	var specific, fallback []string
	eh.On(models.EventTypeDriverAssigned, func(ctx context.Context, ev *models.OrderEvent) error {
		specific = append(specific, ev.EventType)
		return nil
	})
	eh.OnAny(func(ctx context.Context, ev *models.OrderEvent) error {
		fallback = append(fallback, ev.EventType)
		return nil
	})

	for _, typ := range []string{models.EventTypeDriverAssigned, models.EventTypeOrderCreated} {
		ev := models.NewOrderEvent(typ, &models.Order{ID: 5}, nil, nil)
		value, err := json.Marshal(ev)
		require.NoError(t, err)
		require.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: value}))
	}

	assert.Equal(t, []string{models.EventTypeDriverAssigned}, specific)
	assert.Equal(t, []string{models.EventTypeOrderCreated}, fallback)
}

func TestEventHandlerSkipsPoisonMessage(t *testing.T) {
	eh := NewEventHandler()
	called := false
	eh.OnAny(func(ctx context.Context, ev *models.OrderEvent) error {
		called = true
		return nil
	})

	assert.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")}))
	assert.False(t, called)
}
