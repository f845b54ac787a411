package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"fuel-order-service/internal/inventory"
	"fuel-order-service/internal/models"
	"fuel-order-service/internal/store"
	"fuel-order-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Admin override actions
const (
	ActionForceCancel       = "FORCE_CANCEL"
	ActionForceConfirm      = "FORCE_CONFIRM"
	ActionForceStatus       = "FORCE_STATUS"
	ActionForceAssignDriver = "FORCE_ASSIGN_DRIVER"
)

// OverrideRequest is a support intervention on a single order
type OverrideRequest struct {
	OrderID  int64  `json:"-"`
	AdminID  int64  `json:"-"`
	Action   string `json:"action"`
	Reason   string `json:"reason"`
	Status   string `json:"status,omitempty"`
	DriverID int64  `json:"driver_id,omitempty"`
}

type overrideDetails struct {
	PreviousDriverID *int64 `json:"previous_driver_id,omitempty"`
	DriverID         *int64 `json:"driver_id,omitempty"`
	StockReleased    bool   `json:"stock_released,omitempty"`
	StockReserved    bool   `json:"stock_reserved,omitempty"`
}

// AdminOverride applies an action outside the transition table. Existence checks and
// stock accounting still apply, and the audit entry is written in the same unit of work.
func (s *OrderService) AdminOverride(ctx context.Context, req *OverrideRequest) (*Result, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AdminOverride",
		attribute.Int64("order_id", req.OrderID),
		attribute.Int64("admin_id", req.AdminID),
		attribute.String("action", req.Action))
	defer span.End()

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, s.fail("admin_override", models.ErrReasonRequired)
	}
	action := strings.ToUpper(strings.TrimSpace(req.Action))

	var target models.OrderStatus
	switch action {
	case ActionForceCancel:
		target = models.OrderStatusCancelled
	case ActionForceConfirm:
		target = models.OrderStatusConfirmed
	case ActionForceStatus:
		status, err := models.ParseOrderStatus(req.Status)
		if err != nil {
			return nil, s.fail("admin_override", err)
		}
		target = status
	case ActionForceAssignDriver:
		if req.DriverID == 0 {
			return nil, s.fail("admin_override", fmt.Errorf("%w: driver_id is required for %s", models.ErrValidation, action))
		}
	default:
		return nil, s.fail("admin_override", fmt.Errorf("%w: unknown override action %q", models.ErrValidation, req.Action))
	}

	var (
		order  *models.Order
		from   models.OrderStatus
		driver *models.Driver
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		from = order.Status
		details := overrideDetails{PreviousDriverID: order.DriverID}

		if action == ActionForceAssignDriver {
			driver, err = s.forceAssign(ctx, tx, order, req.DriverID)
			if err != nil {
				return err
			}
			details.DriverID = &driver.ID
		} else {
			if target == from {
				return fmt.Errorf("%w: order is already %s", models.ErrIllegalTransition, from)
			}
			if details, err = s.forceStatus(ctx, tx, order, target, details); err != nil {
				return err
			}
		}

		if err := tx.UpdateOrderState(ctx, order, from); err != nil {
			return err
		}

		raw, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		return tx.InsertAuditEntry(ctx, &models.AuditEntry{
			OrderID:    order.ID,
			ActorID:    req.AdminID,
			Action:     action,
			Reason:     reason,
			FromStatus: from,
			ToStatus:   order.Status,
			Details:    raw,
		})
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, s.fail("admin_override", err)
	}

	util.AdminOverridesTotal.WithLabelValues(action).Inc()
	if from != order.Status {
		util.OrderTransitionsTotal.WithLabelValues(string(from), string(order.Status)).Inc()
	}
	if order.Status == models.OrderStatusCancelled && from != models.OrderStatusCancelled {
		util.OrdersCancelledTotal.WithLabelValues("admin").Inc()
	}
	s.logger.Warn("Admin override applied",
		zap.Int64("order_id", order.ID),
		zap.Int64("admin_id", req.AdminID),
		zap.String("action", action),
		zap.String("reason", reason),
		zap.String("from", string(from)),
		zap.String("to", string(order.Status)))

	if driver == nil {
		driver = s.driverOf(ctx, order)
	}
	ev := models.NewOrderEvent(models.EventTypeAdminOverride, order, s.vendorByID(ctx, order.VendorID), driver)
	ev.FromStatus = from
	ev.ActorID = req.AdminID
	ev.Action = action
	ev.Reason = reason
	return s.committed(order, ev), nil
}

// forceStatus moves the order to target and keeps stock and driver state consistent with it
func (s *OrderService) forceStatus(ctx context.Context, tx store.Tx, order *models.Order, target models.OrderStatus, details overrideDetails) (overrideDetails, error) {
	from := order.Status

	switch {
	case from == models.OrderStatusDelivered && !target.IsTerminal():
		return details, fmt.Errorf("%w: a delivered order cannot be reopened as %s", models.ErrIllegalTransition, target)
	case target == models.OrderStatusCancelled:
		if from.HoldsStock() {
			if err := s.ledger.ReleaseItems(ctx, tx, order.Items); err != nil {
				return details, err
			}
			details.StockReleased = true
		}
	case from == models.OrderStatusCancelled:
		if err := s.ledger.ReserveAll(ctx, tx, order.VendorID, inventory.LinesOf(order.Items)); err != nil {
			return details, err
		}
		details.StockReserved = true
	}

	// a terminal order already gave its driver back
	if order.HasDriver() && !from.IsTerminal() && (target.IsTerminal() || target == models.OrderStatusPending) {
		if err := tx.SetDriverStatus(ctx, *order.DriverID, "", models.DriverStatusAvailable); err != nil {
			return details, err
		}
		if target == models.OrderStatusPending {
			order.DriverID = nil
		}
	}

	order.Status = target
	return details, nil
}

// forceAssign replaces the order's driver regardless of the new driver's availability
func (s *OrderService) forceAssign(ctx context.Context, tx store.Tx, order *models.Order, driverID int64) (*models.Driver, error) {
	if order.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot assign a driver to a %s order", models.ErrIllegalTransition, order.Status)
	}
	driver, err := tx.LockDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if driver.VendorID != order.VendorID {
		return nil, fmt.Errorf("%w: driver %d does not belong to vendor %d", models.ErrDriverUnavailable, driverID, order.VendorID)
	}
	if order.HasDriver() && *order.DriverID == driver.ID {
		return nil, fmt.Errorf("%w: driver %d is already assigned", models.ErrIllegalTransition, driverID)
	}

	if order.HasDriver() {
		if err := tx.SetDriverStatus(ctx, *order.DriverID, "", models.DriverStatusAvailable); err != nil {
			return nil, err
		}
	}
	if driver.Status != models.DriverStatusAvailable {
		s.logger.Warn("Forcing assignment of a driver that is not available",
			zap.Int64("order_id", order.ID),
			zap.Int64("driver_id", driver.ID),
			zap.String("driver_status", driver.Status))
	}
	if err := tx.SetDriverStatus(ctx, driver.ID, "", models.DriverStatusBusy); err != nil {
		return nil, err
	}
	driver.Status = models.DriverStatusBusy
	order.DriverID = &driver.ID
	return driver, nil
}
