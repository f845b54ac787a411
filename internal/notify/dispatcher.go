package notify

import (
	"context"
	"fmt"
	"strings"

	"fuel-order-service/internal/models"
	"fuel-order-service/internal/push"
	"fuel-order-service/internal/util"

	"go.uber.org/zap"
)

// Dispatcher turns committed order events into per-recipient notifications
type Dispatcher struct {
	notifier Notifier
	push     push.Channel
	logger   *zap.Logger
}

// NewDispatcher creates a new dispatcher. pc receives role-wide broadcasts such as the
// admin audit stream.
func NewDispatcher(notifier Notifier, pc push.Channel) *Dispatcher {
	if pc == nil {
		pc = push.Noop{}
	}
	return &Dispatcher{notifier: notifier, push: pc, logger: util.Named("dispatcher")}
}

// Name identifies the dispatcher as an event sink
func (d *Dispatcher) Name() string {
	return "notify"
}

// Deliver implements events.Sink
func (d *Dispatcher) Deliver(ctx context.Context, event *models.OrderEvent) error {
	return d.Handle(ctx, event)
}

type payload struct {
	OrderID    int64              `json:"order_id"`
	Status     models.OrderStatus `json:"status"`
	FromStatus models.OrderStatus `json:"from_status,omitempty"`
	Total      int64              `json:"total_amount,omitempty"`
	DriverID   int64              `json:"driver_id,omitempty"`
	Action     string             `json:"action,omitempty"`
	Reason     string             `json:"reason,omitempty"`
}

// Handle notifies every party of the order that the event concerns
func (d *Dispatcher) Handle(ctx context.Context, ev *models.OrderEvent) error {
	ctx, span := util.StartSpan(ctx, "Dispatcher.Handle")
	defer span.End()

	for _, req := range Requests(ev) {
		d.notifier.Notify(ctx, req)
	}

	if ev.EventType == models.EventTypeAdminOverride {
		msg := push.Message{
			Type:     ev.EventType,
			Title:    "Admin override",
			Message:  fmt.Sprintf("%s on order #%d: %s", ev.Action, ev.OrderID, ev.Reason),
			Priority: models.PriorityHigh,
			SentAt:   ev.Timestamp,
		}
		if err := d.push.PushToRole(ctx, models.RoleAdmin, msg); err != nil {
			d.logger.Warn("Failed to push audit event",
				zap.Int64("order_id", ev.OrderID),
				zap.Error(err))
		}
	}
	return nil
}

// Requests maps an event to its notifications. Recipients without a user id are skipped.
func Requests(ev *models.OrderEvent) []Request {
	p := payload{
		OrderID:    ev.OrderID,
		Status:     ev.ToStatus,
		FromStatus: ev.FromStatus,
		Total:      ev.TotalAmount,
		DriverID:   ev.DriverID,
		Action:     ev.Action,
		Reason:     ev.Reason,
	}
	vendor := ev.VendorName
	if vendor == "" {
		vendor = "the vendor"
	}

	var reqs []Request
	add := func(userID int64, title, message, priority string) {
		if userID == 0 {
			return
		}
		reqs = append(reqs, Request{
			RecipientUserID: userID,
			Type:            ev.EventType,
			Title:           title,
			Message:         message,
			Payload:         p,
			Priority:        priority,
		})
	}

	switch ev.EventType {
	case models.EventTypeOrderCreated:
		add(ev.CustomerUserID, "Order placed",
			fmt.Sprintf("Your order #%d with %s has been placed. Total: %s", ev.OrderID, vendor, models.FormatAmount(ev.TotalAmount)),
			models.PriorityNormal)
		add(ev.VendorUserID, "New order received",
			fmt.Sprintf("Order #%d (%s) is waiting for confirmation", ev.OrderID, models.FormatAmount(ev.TotalAmount)),
			models.PriorityHigh)

	case models.EventTypeOrderStatusChanged:
		priority := models.PriorityNormal
		if ev.ToStatus == models.OrderStatusOutForDelivery || ev.ToStatus == models.OrderStatusCancelled {
			priority = models.PriorityHigh
		}
		add(ev.CustomerUserID, "Order "+humanStatus(ev.ToStatus), statusMessage(ev.OrderID, ev.ToStatus), priority)
		add(ev.DriverUserID, "Order "+humanStatus(ev.ToStatus),
			fmt.Sprintf("Order #%d is now %s", ev.OrderID, humanStatus(ev.ToStatus)), models.PriorityNormal)

	case models.EventTypeDriverAssigned:
		add(ev.CustomerUserID, "Driver assigned",
			fmt.Sprintf("A driver has been assigned to your order #%d", ev.OrderID), models.PriorityNormal)
		add(ev.DriverUserID, "New delivery assigned",
			fmt.Sprintf("You have been assigned order #%d from %s", ev.OrderID, vendor), models.PriorityHigh)

	case models.EventTypeOrderCancelled:
		reason := ""
		if ev.Reason != "" {
			reason = " Reason: " + ev.Reason
		}
		add(ev.CustomerUserID, "Order cancelled",
			fmt.Sprintf("Your order #%d has been cancelled.%s", ev.OrderID, reason), models.PriorityNormal)
		add(ev.VendorUserID, "Order cancelled by customer",
			fmt.Sprintf("Order #%d was cancelled by the customer.%s", ev.OrderID, reason), models.PriorityHigh)

	case models.EventTypeDeliveryCompleted:
		add(ev.CustomerUserID, "Order delivered",
			fmt.Sprintf("Your order #%d has been delivered", ev.OrderID), models.PriorityNormal)
		add(ev.VendorUserID, "Delivery completed",
			fmt.Sprintf("Order #%d was delivered to the customer", ev.OrderID), models.PriorityNormal)

	case models.EventTypeAdminOverride:
		msg := fmt.Sprintf("Order #%d was updated by support (%s -> %s). Reason: %s",
			ev.OrderID, humanStatus(ev.FromStatus), humanStatus(ev.ToStatus), ev.Reason)
		add(ev.CustomerUserID, "Order updated by support", msg, models.PriorityHigh)
		add(ev.VendorUserID, "Order updated by support", msg, models.PriorityHigh)
		add(ev.DriverUserID, "Order updated by support", msg, models.PriorityHigh)
	}
	return reqs
}

func humanStatus(s models.OrderStatus) string {
	return strings.ToLower(strings.ReplaceAll(string(s), "_", " "))
}

func statusMessage(orderID int64, s models.OrderStatus) string {
	switch s {
	case models.OrderStatusConfirmed:
		return fmt.Sprintf("Your order #%d has been confirmed by the vendor", orderID)
	case models.OrderStatusPreparing:
		return fmt.Sprintf("Your order #%d is being prepared", orderID)
	case models.OrderStatusOutForDelivery:
		return fmt.Sprintf("Your order #%d is on its way", orderID)
	case models.OrderStatusDelivered:
		return fmt.Sprintf("Your order #%d has been delivered", orderID)
	case models.OrderStatusCancelled:
		return fmt.Sprintf("Your order #%d has been cancelled by the vendor", orderID)
	}
	return fmt.Sprintf("Your order #%d is now %s", orderID, humanStatus(s))
}
