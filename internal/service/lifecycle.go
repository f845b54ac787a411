package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fuel-order-service/internal/models"
	"fuel-order-service/internal/store"
	"fuel-order-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// TransitionStatus moves an order along the transition table on behalf of its vendor
func (s *OrderService) TransitionStatus(ctx context.Context, orderID, vendorUserID int64, to models.OrderStatus) (*Result, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.TransitionStatus",
		attribute.Int64("order_id", orderID), attribute.String("to", string(to)))
	defer span.End()

	if !to.Valid() {
		return nil, s.fail("transition", fmt.Errorf("%w: unknown order status %q", models.ErrValidation, to))
	}
	vendor, err := s.vendorOf(ctx, vendorUserID)
	if err != nil {
		return nil, s.fail("transition", err)
	}

	var (
		order *models.Order
		from  models.OrderStatus
	)
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.VendorID != vendor.ID {
			return fmt.Errorf("%w: order %d belongs to another vendor", models.ErrNotPermitted, orderID)
		}
		from = order.Status
		if err := models.CheckTransition(from, to); err != nil {
			return err
		}

		if to == models.OrderStatusCancelled {
			if err := s.ledger.ReleaseItems(ctx, tx, order.Items); err != nil {
				return err
			}
		}
		if to.IsTerminal() && order.HasDriver() {
			if err := tx.SetDriverStatus(ctx, *order.DriverID, "", models.DriverStatusAvailable); err != nil {
				return err
			}
		}

		order.Status = to
		return tx.UpdateOrderState(ctx, order, from)
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, s.fail("transition", err)
	}

	util.OrderTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	if to == models.OrderStatusCancelled {
		util.OrdersCancelledTotal.WithLabelValues("vendor").Inc()
	}
	s.logger.Info("Order status changed",
		zap.Int64("order_id", order.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))

	ev := models.NewOrderEvent(models.EventTypeOrderStatusChanged, order, vendor, s.driverOf(ctx, order))
	ev.FromStatus = from
	ev.ActorID = vendorUserID
	return s.committed(order, ev), nil
}

// AssignDriver attaches an available driver of the order's vendor and marks the driver busy
func (s *OrderService) AssignDriver(ctx context.Context, orderID, vendorUserID, driverID int64) (*Result, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AssignDriver",
		attribute.Int64("order_id", orderID), attribute.Int64("driver_id", driverID))
	defer span.End()

	if driverID == 0 {
		return nil, s.fail("assign_driver", fmt.Errorf("%w: driver_id is required", models.ErrValidation))
	}
	vendor, err := s.vendorOf(ctx, vendorUserID)
	if err != nil {
		return nil, s.fail("assign_driver", err)
	}

	var (
		order  *models.Order
		driver *models.Driver
	)
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.VendorID != vendor.ID {
			return fmt.Errorf("%w: order %d belongs to another vendor", models.ErrNotPermitted, orderID)
		}
		if !order.Status.AcceptsDriver() {
			return fmt.Errorf("%w: cannot assign a driver while order is %s", models.ErrIllegalTransition, order.Status)
		}
		if order.HasDriver() {
			return fmt.Errorf("%w: order %d already has driver %d", models.ErrIllegalTransition, orderID, *order.DriverID)
		}

		driver, err = tx.LockDriver(ctx, driverID)
		if err != nil {
			return err
		}
		if driver.VendorID != vendor.ID {
			return fmt.Errorf("%w: driver %d does not belong to vendor %d", models.ErrDriverUnavailable, driverID, vendor.ID)
		}
		if err := tx.SetDriverStatus(ctx, driverID, models.DriverStatusAvailable, models.DriverStatusBusy); err != nil {
			return err
		}
		driver.Status = models.DriverStatusBusy

		order.DriverID = &driver.ID
		return tx.UpdateOrderState(ctx, order, order.Status)
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, s.fail("assign_driver", err)
	}

	util.DriverAssignmentsTotal.Inc()
	s.logger.Info("Driver assigned",
		zap.Int64("order_id", order.ID),
		zap.Int64("driver_id", driver.ID))

	ev := models.NewOrderEvent(models.EventTypeDriverAssigned, order, vendor, driver)
	ev.ActorID = vendorUserID
	return s.committed(order, ev), nil
}

// CancelOrder lets the customer cancel while the order is PENDING or CONFIRMED.
// Every line item returns to stock in the same unit of work.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, customerID int64, reason string) (*Result, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder", attribute.Int64("order_id", orderID))
	defer span.End()

	var (
		order *models.Order
		from  models.OrderStatus
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.CustomerID != customerID {
			return fmt.Errorf("%w: order %d belongs to another customer", models.ErrNotPermitted, orderID)
		}
		from = order.Status
		if !from.CustomerCancellable() {
			return fmt.Errorf("%w: order can no longer be cancelled once %s", models.ErrIllegalTransition, from)
		}

		if err := s.ledger.ReleaseItems(ctx, tx, order.Items); err != nil {
			return err
		}
		if order.HasDriver() {
			if err := tx.SetDriverStatus(ctx, *order.DriverID, "", models.DriverStatusAvailable); err != nil {
				return err
			}
		}

		order.Status = models.OrderStatusCancelled
		return tx.UpdateOrderState(ctx, order, from)
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, s.fail("cancel", err)
	}

	util.OrdersCancelledTotal.WithLabelValues("customer").Inc()
	util.OrderTransitionsTotal.WithLabelValues(string(from), string(order.Status)).Inc()
	s.logger.Info("Order cancelled by customer",
		zap.Int64("order_id", order.ID),
		zap.String("from", string(from)))

	ev := models.NewOrderEvent(models.EventTypeOrderCancelled, order, s.vendorByID(ctx, order.VendorID), s.driverOf(ctx, order))
	ev.FromStatus = from
	ev.ActorID = customerID
	ev.Reason = strings.TrimSpace(reason)
	return s.committed(order, ev), nil
}

// CompleteDelivery marks an out-for-delivery order DELIVERED and frees its driver
func (s *OrderService) CompleteDelivery(ctx context.Context, orderID, driverUserID int64) (*Result, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CompleteDelivery", attribute.Int64("order_id", orderID))
	defer span.End()

	driver, err := s.store.GetDriverByUser(ctx, driverUserID)
	if err != nil {
		if errors.Is(err, models.ErrDriverNotFound) {
			err = fmt.Errorf("%w: user %d is not a driver", models.ErrNotPermitted, driverUserID)
		}
		return nil, s.fail("complete_delivery", err)
	}

	var order *models.Order
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.HasDriver() || *order.DriverID != driver.ID {
			return fmt.Errorf("%w: order %d is not assigned to driver %d", models.ErrNotPermitted, orderID, driver.ID)
		}
		if err := models.CheckTransition(order.Status, models.OrderStatusDelivered); err != nil {
			return err
		}
		if err := tx.SetDriverStatus(ctx, driver.ID, "", models.DriverStatusAvailable); err != nil {
			return err
		}
		driver.Status = models.DriverStatusAvailable

		order.Status = models.OrderStatusDelivered
		return tx.UpdateOrderState(ctx, order, models.OrderStatusOutForDelivery)
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, s.fail("complete_delivery", err)
	}

	util.OrderTransitionsTotal.WithLabelValues(string(models.OrderStatusOutForDelivery), string(models.OrderStatusDelivered)).Inc()
	s.logger.Info("Delivery completed",
		zap.Int64("order_id", order.ID),
		zap.Int64("driver_id", driver.ID))

	ev := models.NewOrderEvent(models.EventTypeDeliveryCompleted, order, s.vendorByID(ctx, order.VendorID), driver)
	ev.FromStatus = models.OrderStatusOutForDelivery
	ev.ActorID = driverUserID
	return s.committed(order, ev), nil
}

// vendorOf resolves the vendor an acting user owns
func (s *OrderService) vendorOf(ctx context.Context, userID int64) (*models.Vendor, error) {
	vendor, err := s.store.GetVendorByOwner(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrVendorNotFound) {
			return nil, fmt.Errorf("%w: user %d does not own a vendor", models.ErrNotPermitted, userID)
		}
		return nil, err
	}
	return vendor, nil
}

// vendorByID loads event context; a failure only degrades the notification text
func (s *OrderService) vendorByID(ctx context.Context, vendorID int64) *models.Vendor {
	vendor, err := s.store.GetVendor(ctx, vendorID)
	if err != nil {
		s.logger.Warn("Failed to load vendor for event", zap.Int64("vendor_id", vendorID), zap.Error(err))
		return nil
	}
	return vendor
}

func (s *OrderService) driverOf(ctx context.Context, order *models.Order) *models.Driver {
	if !order.HasDriver() {
		return nil
	}
	driver, err := s.store.GetDriver(ctx, *order.DriverID)
	if err != nil {
		s.logger.Warn("Failed to load driver for event", zap.Int64("driver_id", *order.DriverID), zap.Error(err))
		return nil
	}
	return driver
}
