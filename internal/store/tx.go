package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fuel-order-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// pgTx implements Tx on top of a sqlx transaction
type pgTx struct {
	tx *sqlx.Tx
}

// DecrementStock performs the conditional decrement. The status is re-derived in the
// same statement so readers never observe a stale OUT_OF_STOCK/ACTIVE flag.
func (t *pgTx) DecrementStock(ctx context.Context, vendorID, productID int64, qty int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET available_qty = available_qty - $1,
		    status = CASE WHEN available_qty - $1 = 0 THEN 'OUT_OF_STOCK' ELSE status END,
		    updated_at = NOW()
		WHERE id = $2 AND vendor_id = $3 AND status <> 'DISCONTINUED' AND available_qty >= $1`,
		qty, productID, vendorID)
	if err != nil {
		return fmt.Errorf("failed to reserve stock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		p := models.Product{ID: productID}
		err := t.tx.GetContext(ctx, &p, `SELECT id, vendor_id, status, available_qty FROM products WHERE id = $1`, productID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to inspect product %d: %w", productID, err)
		}
		return reservationError(err == nil, p, vendorID, qty)
	}
	return nil
}

// reservationError classifies a decrement that matched no row: a missing, foreign or
// discontinued product is unavailable, anything else is short on stock.
func reservationError(found bool, p models.Product, vendorID int64, qty int) error {
	switch {
	case !found || p.VendorID != vendorID:
		return fmt.Errorf("%w: product %d is not sold by vendor %d", models.ErrProductUnavailable, p.ID, vendorID)
	case p.Status == models.ProductStatusDiscontinued:
		return fmt.Errorf("%w: product %d is discontinued", models.ErrProductUnavailable, p.ID)
	default:
		return fmt.Errorf("%w: product %d, requested %d, available %d", models.ErrInsufficientStock, p.ID, qty, p.AvailableQty)
	}
}

// IncrementStock returns quantity to a product
func (t *pgTx) IncrementStock(ctx context.Context, productID int64, qty int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET available_qty = available_qty + $1,
		    status = CASE WHEN status = 'OUT_OF_STOCK' AND available_qty + $1 > 0 THEN 'ACTIVE' ELSE status END,
		    updated_at = NOW()
		WHERE id = $2`,
		qty, productID)
	if err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", models.ErrProductNotFound, productID)
	}
	return nil
}

// InsertOrder creates the order row and its items
func (t *pgTx) InsertOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (customer_id, vendor_id, driver_id, subtotal, delivery_fee, total_amount,
		                    status, payment_status, payment_method, delivery_address, instructions, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	row := t.tx.QueryRowxContext(ctx, query,
		order.CustomerID, order.VendorID, order.DriverID, order.Subtotal, order.DeliveryFee, order.TotalAmount,
		order.Status, order.PaymentStatus, order.PaymentMethod, order.DeliveryAddress, order.Instructions, order.IdempotencyKey)
	if err := row.Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: idempotency key already used", models.ErrDuplicateRequest)
		}
		return fmt.Errorf("failed to create order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err := t.tx.GetContext(ctx, &item.ID, `
			INSERT INTO order_items (order_id, product_id, product_name, product_type, unit, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			item.OrderID, item.ProductID, item.ProductName, item.ProductType, item.Unit,
			item.Quantity, item.UnitPrice, item.LineTotal)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}
	return nil
}

// LockOrder loads the order row FOR UPDATE together with its items
func (t *pgTx) LockOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	var order models.Order
	err := t.tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", models.ErrOrderNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}

	items, err := selectItems(ctx, t.tx, []int64{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	return &order, nil
}

// UpdateOrderState writes the mutable order fields if the status is still expected
func (t *pgTx) UpdateOrderState(ctx context.Context, order *models.Order, expected models.OrderStatus) error {
	err := t.tx.GetContext(ctx, &order.UpdatedAt, `
		UPDATE orders
		SET status = $1, driver_id = $2, payment_status = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5
		RETURNING updated_at`,
		order.Status, order.DriverID, order.PaymentStatus, order.ID, expected)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: order %d is no longer %s", models.ErrConcurrentUpdate, order.ID, expected)
	}
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	return nil
}

// LockDriver loads the driver row FOR UPDATE
func (t *pgTx) LockDriver(ctx context.Context, driverID int64) (*models.Driver, error) {
	var driver models.Driver
	err := t.tx.GetContext(ctx, &driver, "SELECT * FROM drivers WHERE id = $1 FOR UPDATE", driverID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", models.ErrDriverNotFound, driverID)
	}
	if err != nil {
		return nil, err
	}
	return &driver, nil
}

// SetDriverStatus flips driver availability, optionally guarded by the expected status
func (t *pgTx) SetDriverStatus(ctx context.Context, driverID int64, expected, to string) error {
	var (
		res sql.Result
		err error
	)
	if expected == "" {
		res, err = t.tx.ExecContext(ctx,
			"UPDATE drivers SET status = $1, updated_at = NOW() WHERE id = $2", to, driverID)
	} else {
		res, err = t.tx.ExecContext(ctx,
			"UPDATE drivers SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3", to, driverID, expected)
	}
	if err != nil {
		return fmt.Errorf("failed to update driver: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if expected == "" {
			return fmt.Errorf("%w: %d", models.ErrDriverNotFound, driverID)
		}
		return fmt.Errorf("%w: driver %d is not %s", models.ErrDriverUnavailable, driverID, expected)
	}
	return nil
}

// InsertAuditEntry appends to the override audit log
func (t *pgTx) InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	row := t.tx.QueryRowxContext(ctx, `
		INSERT INTO order_audit_log (order_id, actor_id, action, reason, from_status, to_status, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		entry.OrderID, entry.ActorID, entry.Action, entry.Reason, entry.FromStatus, entry.ToStatus,
		nullableJSON(entry.Details))
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}
