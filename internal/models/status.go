package models

import (
	"fmt"
	"strings"
)

// OrderStatus is the canonical order state used by every layer of the service.
// Inbound strings are mapped through ParseOrderStatus; storage and JSON use the constant values.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "PENDING"
	OrderStatusConfirmed      OrderStatus = "CONFIRMED"
	OrderStatusPreparing      OrderStatus = "PREPARING"
	OrderStatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	OrderStatusDelivered      OrderStatus = "DELIVERED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
)

// AllOrderStatuses lists every status in lifecycle order.
var AllOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// orderTransitions is the complete set of legal moves. Pairs missing here are illegal.
var orderTransitions = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPending:        {OrderStatusConfirmed: true, OrderStatusCancelled: true},
	OrderStatusConfirmed:      {OrderStatusPreparing: true, OrderStatusCancelled: true},
	OrderStatusPreparing:      {OrderStatusOutForDelivery: true, OrderStatusCancelled: true},
	OrderStatusOutForDelivery: {OrderStatusDelivered: true, OrderStatusCancelled: true},
	OrderStatusDelivered:      {},
	OrderStatusCancelled:      {},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to OrderStatus) bool {
	return orderTransitions[from][to]
}

// CheckTransition returns ErrIllegalTransition when from -> to is not allowed.
func CheckTransition(from, to OrderStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// IsTerminal reports whether no further transition is permitted.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// HoldsStock reports whether an order in this status still has its lines reserved.
// Delivered stock is consumed and cancelled stock was released.
func (s OrderStatus) HoldsStock() bool {
	return s.Valid() && !s.IsTerminal()
}

// CustomerCancellable reports whether the customer may still cancel.
func (s OrderStatus) CustomerCancellable() bool {
	return s == OrderStatusPending || s == OrderStatusConfirmed
}

// AcceptsDriver reports whether a driver may be assigned in this status.
func (s OrderStatus) AcceptsDriver() bool {
	switch s {
	case OrderStatusConfirmed, OrderStatusPreparing, OrderStatusOutForDelivery:
		return true
	}
	return false
}

// ParseOrderStatus maps an external representation ("out-for-delivery", "pending",
// "OUT_FOR_DELIVERY") to the canonical status.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	if normalized == "CANCELED" {
		normalized = string(OrderStatusCancelled)
	}
	s := OrderStatus(normalized)
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown order status %q", ErrValidation, raw)
	}
	return s, nil
}

// DeriveProductStatus recomputes a product status after its available quantity changed.
// Discontinued products stay discontinued; otherwise zero stock means OUT_OF_STOCK.
func DeriveProductStatus(current string, available int) string {
	if current == ProductStatusDiscontinued {
		return current
	}
	if available <= 0 {
		return ProductStatusOutOfStock
	}
	return ProductStatusActive
}
