package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTableClosure(t *testing.T) {
	legal := map[[2]OrderStatus]bool{
		{OrderStatusPending, OrderStatusConfirmed}:        true,
		{OrderStatusPending, OrderStatusCancelled}:        true,
		{OrderStatusConfirmed, OrderStatusPreparing}:      true,
		{OrderStatusConfirmed, OrderStatusCancelled}:      true,
		{OrderStatusPreparing, OrderStatusOutForDelivery}: true,
		{OrderStatusPreparing, OrderStatusCancelled}:      true,
		{OrderStatusOutForDelivery, OrderStatusDelivered}: true,
		{OrderStatusOutForDelivery, OrderStatusCancelled}: true,
	}

	for _, from := range AllOrderStatuses {
		for _, to := range AllOrderStatuses {
			want := legal[[2]OrderStatus{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)

			err := CheckTransition(from, to)
			if want {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrIllegalTransition, "%s -> %s", from, to)
			}
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range AllOrderStatuses {
		terminal := s == OrderStatusDelivered || s == OrderStatusCancelled
		assert.Equal(t, terminal, s.IsTerminal(), s)
		assert.Equal(t, !terminal, s.HoldsStock(), s)
		if terminal {
			assert.False(t, s.AcceptsDriver(), s)
			assert.False(t, s.CustomerCancellable(), s)
		}
	}
	assert.False(t, OrderStatusPending.AcceptsDriver())
	assert.True(t, OrderStatusConfirmed.CustomerCancellable())
	assert.False(t, OrderStatusPreparing.CustomerCancellable())
}

func TestParseOrderStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want OrderStatus
	}{
		{"pending", OrderStatusPending},
		{" Confirmed ", OrderStatusConfirmed},
		{"out-for-delivery", OrderStatusOutForDelivery},
		{"out for delivery", OrderStatusOutForDelivery},
		{"OUT_FOR_DELIVERY", OrderStatusOutForDelivery},
		{"canceled", OrderStatusCancelled},
		{"DELIVERED", OrderStatusDelivered},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseOrderStatus(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, raw := range []string{"", "shipped", "out-for"} {
		_, err := ParseOrderStatus(raw)
		assert.ErrorIs(t, err, ErrValidation, raw)
	}
}

func TestDeriveProductStatus(t *testing.T) {
	assert.Equal(t, ProductStatusOutOfStock, DeriveProductStatus(ProductStatusActive, 0))
	assert.Equal(t, ProductStatusActive, DeriveProductStatus(ProductStatusOutOfStock, 5))
	assert.Equal(t, ProductStatusDiscontinued, DeriveProductStatus(ProductStatusDiscontinued, 5))
}

func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("reserve product 4: %w", ErrInsufficientStock)
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, "INSUFFICIENT_STOCK", CodeOf(wrapped))

	assert.Equal(t, KindValidation, KindOf(ErrReasonRequired))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("%w: 9", ErrOrderNotFound)))
	assert.True(t, errors.Is(fmt.Errorf("x: %w", ErrOrderNotFound), ErrOrderNotFound))

	plain := errors.New("connection reset")
	assert.Equal(t, KindInternal, KindOf(plain))
	assert.Equal(t, "INTERNAL", CodeOf(plain))
}

func TestMoney(t *testing.T) {
	assert.Equal(t, int64(6000), LineTotal(600, 10))
	assert.Equal(t, "65.00", FormatAmount(6500))
	assert.Equal(t, "0.05", FormatAmount(5))
	assert.Equal(t, "-12.30", FormatAmount(-1230))
}
