package push

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubRoutesByUserAndRole(t *testing.T) {
	h := NewHub()
	ctx := context.Background()

	customer, cancelCustomer, err := h.Subscribe(ctx, 1, "customer")
	require.NoError(t, err)
	defer cancelCustomer()
	admin, cancelAdmin, err := h.Subscribe(ctx, 2, "admin")
	require.NoError(t, err)
	defer cancelAdmin()

	require.NoError(t, h.PushToUser(ctx, 1, Message{Title: "Order placed"}))
	require.NoError(t, h.PushToRole(ctx, "admin", Message{Title: "Override"}))

	assert.Equal(t, "Order placed", (<-customer).Title)
	assert.Equal(t, "Override", (<-admin).Title)
	assert.Len(t, customer, 0)
	assert.Len(t, admin, 0)
}

func TestHubCancelClosesFeed(t *testing.T) {
	h := NewHub()
	feed, cancel, err := h.Subscribe(context.Background(), 1, "driver")
	require.NoError(t, err)
	assert.Equal(t, 1, h.Subscribers())

	cancel()
	cancel()
	_, open := <-feed
	assert.False(t, open)
	assert.Equal(t, 0, h.Subscribers())

	assert.NoError(t, h.PushToUser(context.Background(), 1, Message{}))
}

func TestHubDropsWhenReaderIsSlow(t *testing.T) {
	h := NewHub()
	h.buffer = 1
	feed, cancel, err := h.Subscribe(context.Background(), 1, "customer")
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < 5; i++ {
		require.NoError(t, h.PushToUser(context.Background(), 1, Message{}))
	}
	assert.Len(t, feed, 1)
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "push:user:17", UserChannel(17))
	assert.Equal(t, "push:role:admin", RoleChannel("admin"))
}
