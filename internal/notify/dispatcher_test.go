package notify

import (
	"context"
	"sync"
	"testing"

	"fuel-order-service/internal/models"
	"fuel-order-service/internal/push"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	reqs []Request
}

func (r *recordingNotifier) Notify(ctx context.Context, req Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
}

func recipients(reqs []Request) []int64 {
	ids := make([]int64, len(reqs))
	for i, r := range reqs {
		ids[i] = r.RecipientUserID
	}
	return ids
}

func event(eventType string) *models.OrderEvent {
	ev := models.NewOrderEvent(eventType,
		&models.Order{ID: 12, CustomerID: 100, VendorID: 3, Status: models.OrderStatusConfirmed, TotalAmount: 6500},
		&models.Vendor{ID: 3, OwnerUserID: 200, Name: "Mobil Yaba"}, nil)
	return &ev
}

func TestRequestsRecipients(t *testing.T) {
	created := Requests(event(models.EventTypeOrderCreated))
	assert.Equal(t, []int64{100, 200}, recipients(created))
	assert.Contains(t, created[0].Message, "65.00")
	assert.Equal(t, models.PriorityHigh, created[1].Priority)

	changed := event(models.EventTypeOrderStatusChanged)
	assert.Equal(t, []int64{100}, recipients(Requests(changed)))
	changed.DriverUserID = 300
	assert.Equal(t, []int64{100, 300}, recipients(Requests(changed)))

	assigned := event(models.EventTypeDriverAssigned)
	assigned.DriverUserID = 300
	assert.Equal(t, []int64{100, 300}, recipients(Requests(assigned)))

	cancelled := event(models.EventTypeOrderCancelled)
	cancelled.Reason = "changed my mind"
	reqs := Requests(cancelled)
	assert.Equal(t, []int64{100, 200}, recipients(reqs))
	assert.Contains(t, reqs[1].Message, "changed my mind")

	assert.Equal(t, []int64{100, 200}, recipients(Requests(event(models.EventTypeDeliveryCompleted))))

	override := event(models.EventTypeAdminOverride)
	override.DriverUserID = 300
	override.Reason = "customer called support"
	reqs = Requests(override)
	assert.Equal(t, []int64{100, 200, 300}, recipients(reqs))
	for _, r := range reqs {
		assert.Equal(t, models.PriorityHigh, r.Priority)
	}
}

func TestDispatcherBroadcastsOverridesToAdmins(t *testing.T) {
	rec := &recordingNotifier{}
	hub := push.NewHub()
	feed, cancel, err := hub.Subscribe(context.Background(), 1, models.RoleAdmin)
	require.NoError(t, err)
	defer cancel()

	d := NewDispatcher(rec, hub)
	ev := event(models.EventTypeAdminOverride)
	ev.Action = "FORCE_CANCEL"
	ev.Reason = "fraud"
	require.NoError(t, d.Deliver(context.Background(), ev))

	msg := <-feed
	assert.Equal(t, models.EventTypeAdminOverride, msg.Type)
	assert.Contains(t, msg.Message, "FORCE_CANCEL")
	assert.Len(t, rec.reqs, 2)
}
