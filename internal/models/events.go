package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeDriverAssigned     = "DRIVER_ASSIGNED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
	EventTypeDeliveryCompleted  = "DELIVERY_COMPLETED"
	EventTypeAdminOverride      = "ADMIN_OVERRIDE"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id and time.
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// OrderEvent is emitted after an order mutation commits. Recipient user ids are
// resolved by the engine so consumers never read back from the store.
type OrderEvent struct {
	BaseEvent
	OrderID        int64           `json:"order_id"`
	CustomerUserID int64           `json:"customer_user_id"`
	VendorID       int64           `json:"vendor_id"`
	VendorUserID   int64           `json:"vendor_user_id"`
	VendorName     string          `json:"vendor_name,omitempty"`
	DriverID       int64           `json:"driver_id,omitempty"`
	DriverUserID   int64           `json:"driver_user_id,omitempty"`
	FromStatus     OrderStatus     `json:"from_status,omitempty"`
	ToStatus       OrderStatus     `json:"to_status"`
	TotalAmount    int64           `json:"total_amount"`
	Items          []OrderItemData `json:"items,omitempty"`
	ActorID        int64           `json:"actor_id,omitempty"`
	Action         string          `json:"action,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}

// NewOrderEvent builds an event carrying the order's parties and current status.
func NewOrderEvent(eventType string, order *Order, vendor *Vendor, driver *Driver) OrderEvent {
	ev := OrderEvent{
		BaseEvent:      NewBaseEvent(eventType),
		OrderID:        order.ID,
		CustomerUserID: order.CustomerID,
		VendorID:       order.VendorID,
		ToStatus:       order.Status,
		TotalAmount:    order.TotalAmount,
	}
	if vendor != nil {
		ev.VendorUserID = vendor.OwnerUserID
		ev.VendorName = vendor.Name
	}
	if driver != nil {
		ev.DriverID = driver.ID
		ev.DriverUserID = driver.UserID
	}
	return ev
}
