package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fuel-order-service/internal/models"
	"fuel-order-service/internal/store"
	"fuel-order-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Ledger is the only component that changes a product's available quantity. Every
// mutation runs inside the caller's unit of work so it commits or rolls back together
// with the order row.
type Ledger struct {
	logger *zap.Logger
}

// NewLedger creates a new inventory ledger
func NewLedger() *Ledger {
	return &Ledger{logger: util.Named("inventory")}
}

// Line is a requested quantity of one product
type Line struct {
	ProductID int64
	Quantity  int
}

// Check validates a requested quantity against a product without reserving anything.
// Only a discontinued or foreign product is unavailable. OUT_OF_STOCK follows the stock
// level, so a sold-out product fails as InsufficientStock and recovers on restock.
func (l *Ledger) Check(product *models.Product, vendorID int64, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", models.ErrQuantityOutOfRange, qty)
	}
	if product == nil || product.VendorID != vendorID {
		return fmt.Errorf("%w: product does not belong to vendor %d", models.ErrProductUnavailable, vendorID)
	}
	if product.Status == models.ProductStatusDiscontinued {
		return fmt.Errorf("%w: product %d is discontinued", models.ErrProductUnavailable, product.ID)
	}
	if qty < product.MinOrderQty || qty > product.MaxOrderQty {
		return fmt.Errorf("%w: %d not within %d..%d for product %d",
			models.ErrQuantityOutOfRange, qty, product.MinOrderQty, product.MaxOrderQty, product.ID)
	}
	if product.AvailableQty < qty {
		return fmt.Errorf("%w: product %d has %d, requested %d",
			models.ErrInsufficientStock, product.ID, product.AvailableQty, qty)
	}
	return nil
}

// Reserve takes qty from the product's stock. Two reservations racing for the last
// units cannot both succeed because the decrement is conditional on the remaining stock.
func (l *Ledger) Reserve(ctx context.Context, tx store.Tx, vendorID, productID int64, qty int) error {
	ctx, span := util.StartSpan(ctx, "Ledger.Reserve",
		attribute.Int64("product_id", productID), attribute.Int("quantity", qty))
	defer span.End()

	start := time.Now()
	defer func() {
		util.InventoryReserveLatency.Observe(time.Since(start).Seconds())
	}()

	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", models.ErrQuantityOutOfRange, qty)
	}

	if err := tx.DecrementStock(ctx, vendorID, productID, qty); err != nil {
		util.RecordError(span, err)
		if errors.Is(err, models.ErrInsufficientStock) {
			util.InventoryReservationsFailed.WithLabelValues("insufficient_stock").Inc()
		} else {
			util.InventoryReservationsFailed.WithLabelValues("error").Inc()
		}
		return err
	}

	l.logger.Debug("Stock reserved",
		zap.Int64("product_id", productID),
		zap.Int("quantity", qty))
	return nil
}

// ReserveAll reserves every line or none: the first failure is returned and the
// caller's unit of work rolls back the lines already taken.
func (l *Ledger) ReserveAll(ctx context.Context, tx store.Tx, vendorID int64, lines []Line) error {
	for _, line := range lines {
		if err := l.Reserve(ctx, tx, vendorID, line.ProductID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// Release returns qty to the product's stock
func (l *Ledger) Release(ctx context.Context, tx store.Tx, productID int64, qty int) error {
	ctx, span := util.StartSpan(ctx, "Ledger.Release",
		attribute.Int64("product_id", productID), attribute.Int("quantity", qty))
	defer span.End()

	if qty <= 0 {
		return nil
	}
	if err := tx.IncrementStock(ctx, productID, qty); err != nil {
		util.RecordError(span, err)
		return err
	}

	util.InventoryReleasedUnits.Add(float64(qty))
	l.logger.Debug("Stock released",
		zap.Int64("product_id", productID),
		zap.Int("quantity", qty))
	return nil
}

// ReleaseItems returns the quantities of every order line
func (l *Ledger) ReleaseItems(ctx context.Context, tx store.Tx, items []models.OrderItem) error {
	for _, item := range items {
		if err := l.Release(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return fmt.Errorf("failed to release product %d: %w", item.ProductID, err)
		}
	}
	return nil
}

// LinesOf converts order items back into reservation lines
func LinesOf(items []models.OrderItem) []Line {
	lines := make([]Line, len(items))
	for i, item := range items {
		lines[i] = Line{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return lines
}

// DeriveStatus is the product status implied by an available quantity
func DeriveStatus(current string, available int) string {
	return models.DeriveProductStatus(current, available)
}
