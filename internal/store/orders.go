package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"fuel-order-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetOrder retrieves an order with its items
func (s *Store) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", models.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	items, err := selectItems(ctx, s.db, []int64{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by the customer's idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, customerID int64, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE customer_id = $1 AND idempotency_key = $2", customerID, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	items, err := selectItems(ctx, s.db, []int64{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	return &order, nil
}

// ListOrders returns one page of matching orders, newest first, and the total match count
func (s *Store) ListOrders(ctx context.Context, filter OrderFilter, page PageRequest) ([]models.Order, int, error) {
	page = page.Normalize()
	where, args := filter.sqlWhere()

	countQuery, countArgs, err := sqlx.In("SELECT COUNT(*) FROM orders o"+where, args...)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	listArgs := append(append([]interface{}{}, args...), page.Limit, page.Offset())
	listQuery, listArgs, err := sqlx.In(
		"SELECT o.* FROM orders o"+where+" ORDER BY o.created_at DESC, o.id DESC LIMIT ? OFFSET ?",
		listArgs...)
	if err != nil {
		return nil, 0, err
	}

	orders := []models.Order{}
	if err := s.db.SelectContext(ctx, &orders, s.db.Rebind(listQuery), listArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}

	ids := make([]int64, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	items, err := selectItems(ctx, s.db, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, total, nil
}

// OrderStats aggregates counts and delivered revenue over matching orders
func (s *Store) OrderStats(ctx context.Context, filter OrderFilter) (*OrderStats, error) {
	where, args := filter.sqlWhere()
	query, args, err := sqlx.In(
		"SELECT o.status, COUNT(*) AS count, COALESCE(SUM(o.total_amount), 0) AS amount FROM orders o"+where+" GROUP BY o.status",
		args...)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Status models.OrderStatus `db:"status"`
		Count  int                `db:"count"`
		Amount int64              `db:"amount"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to aggregate orders: %w", err)
	}

	stats := &OrderStats{ByStatus: make(map[models.OrderStatus]int)}
	for _, r := range rows {
		stats.Total += r.Count
		stats.ByStatus[r.Status] = r.Count
		if r.Status == models.OrderStatusDelivered {
			stats.DeliveredCount = r.Count
			stats.DeliveredRevenue = r.Amount
		}
	}
	return stats, nil
}

// ListAuditEntries returns the override history of an order, oldest first
func (s *Store) ListAuditEntries(ctx context.Context, orderID int64) ([]models.AuditEntry, error) {
	entries := []models.AuditEntry{}
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM order_audit_log WHERE order_id = $1 ORDER BY created_at, id", orderID)
	return entries, err
}

// sqlWhere renders the filter with ? placeholders for sqlx.In and Rebind
func (f OrderFilter) sqlWhere() (string, []interface{}) {
	var conds []string
	var args []interface{}

	if f.CustomerID != 0 {
		conds = append(conds, "o.customer_id = ?")
		args = append(args, f.CustomerID)
	}
	if f.VendorID != 0 {
		conds = append(conds, "o.vendor_id = ?")
		args = append(args, f.VendorID)
	}
	if f.DriverID != 0 {
		conds = append(conds, "o.driver_id = ?")
		args = append(args, f.DriverID)
	}
	if len(f.Statuses) > 0 {
		conds = append(conds, "o.status IN (?)")
		args = append(args, f.Statuses)
	}
	if !f.CreatedFrom.IsZero() {
		conds = append(conds, "o.created_at >= ?")
		args = append(args, f.CreatedFrom)
	}
	if !f.CreatedTo.IsZero() {
		conds = append(conds, "o.created_at < ?")
		args = append(args, f.CreatedTo)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + term + "%"
		conds = append(conds, "(CAST(o.id AS TEXT) = ? OR o.delivery_address->>'city' ILIKE ? OR o.delivery_address->>'street' ILIKE ? OR o.instructions ILIKE ?)")
		args = append(args, term, like, like, like)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rebindQueryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

// selectItems loads the items of several orders keyed by order id
func selectItems(ctx context.Context, q rebindQueryer, orderIDs []int64) (map[int64][]models.OrderItem, error) {
	grouped := make(map[int64][]models.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return grouped, nil
	}

	query, args, err := sqlx.In("SELECT * FROM order_items WHERE order_id IN (?) ORDER BY id", orderIDs)
	if err != nil {
		return nil, err
	}

	var items []models.OrderItem
	if err := sqlx.SelectContext(ctx, q, &items, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	for _, item := range items {
		grouped[item.OrderID] = append(grouped[item.OrderID], item)
	}
	return grouped, nil
}
