package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"fuel-order-service/internal/models"
)

// Tx is a unit of work. Every method runs inside the same database transaction;
// nothing is visible to other callers until Repository.WithTx commits.
type Tx interface {
	// DecrementStock subtracts qty from the product's available quantity only if the
	// product belongs to vendorID, is not discontinued and has at least qty available.
	// It returns models.ErrInsufficientStock when the conditional update matched no row.
	DecrementStock(ctx context.Context, vendorID, productID int64, qty int) error
	// IncrementStock adds qty back to the product's available quantity.
	IncrementStock(ctx context.Context, productID int64, qty int) error

	InsertOrder(ctx context.Context, order *models.Order) error
	// LockOrder loads the order with its items and holds it for the rest of the unit of work.
	LockOrder(ctx context.Context, orderID int64) (*models.Order, error)
	// UpdateOrderState writes status, driver and payment status, guarded by the expected
	// previous status. A mismatch yields models.ErrConcurrentUpdate.
	UpdateOrderState(ctx context.Context, order *models.Order, expected models.OrderStatus) error

	LockDriver(ctx context.Context, driverID int64) (*models.Driver, error)
	// SetDriverStatus moves the driver to status to. When expected is non-empty the update
	// only applies if the current status equals expected, otherwise models.ErrDriverUnavailable.
	SetDriverStatus(ctx context.Context, driverID int64, expected, to string) error

	InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) error
}

// NotificationStore persists notifications and per-user delivery preferences
type NotificationStore interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID int64, unreadOnly bool, page PageRequest) ([]models.Notification, int, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID int64) (*models.Notification, error)
	DeleteNotification(ctx context.Context, userID, notificationID int64) error
	GetNotificationPreferences(ctx context.Context, userID int64) (models.NotificationPreferences, error)
}

// EventLog records consumed event ids so redelivered messages are skipped
type EventLog interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Repository is the persistence boundary of the order core
type Repository interface {
	NotificationStore
	EventLog

	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error

	GetVendor(ctx context.Context, id int64) (*models.Vendor, error)
	GetVendorByOwner(ctx context.Context, userID int64) (*models.Vendor, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	GetDriver(ctx context.Context, id int64) (*models.Driver, error)
	GetDriverByUser(ctx context.Context, userID int64) (*models.Driver, error)
	GetUsersByIDs(ctx context.Context, ids []int64) ([]models.User, error)

	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	// GetOrderByIdempotencyKey returns nil, nil when the customer never used the key.
	GetOrderByIdempotencyKey(ctx context.Context, customerID int64, key string) (*models.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter, page PageRequest) ([]models.Order, int, error)
	OrderStats(ctx context.Context, filter OrderFilter) (*OrderStats, error)
	ListAuditEntries(ctx context.Context, orderID int64) ([]models.AuditEntry, error)
}

// OrderFilter selects orders. Every dimension is optional; zero values mean "any".
type OrderFilter struct {
	CustomerID  int64
	VendorID    int64
	DriverID    int64
	Statuses    []models.OrderStatus
	CreatedFrom time.Time
	CreatedTo   time.Time
	Search      string
}

// Matches applies the filter to an in-memory order.
func (f OrderFilter) Matches(o *models.Order) bool {
	if f.CustomerID != 0 && o.CustomerID != f.CustomerID {
		return false
	}
	if f.VendorID != 0 && o.VendorID != f.VendorID {
		return false
	}
	if f.DriverID != 0 && (o.DriverID == nil || *o.DriverID != f.DriverID) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if o.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.CreatedFrom.IsZero() && o.CreatedAt.Before(f.CreatedFrom) {
		return false
	}
	if !f.CreatedTo.IsZero() && !o.CreatedAt.Before(f.CreatedTo) {
		return false
	}
	if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" {
		haystack := strings.ToLower(strings.Join([]string{
			o.DeliveryAddress.City,
			o.DeliveryAddress.Street,
			o.Instructions,
		}, " "))
		if !strings.Contains(haystack, term) && formatID(o.ID) != term {
			return false
		}
	}
	return true
}

// PageRequest is a 1-based page/limit pair
type PageRequest struct {
	Page  int
	Limit int
}

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Normalize clamps page and limit to sane values.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// Offset returns the number of rows to skip.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

// OrderStats holds simple aggregate counts
type OrderStats struct {
	Total            int                        `json:"total"`
	ByStatus         map[models.OrderStatus]int `json:"by_status"`
	DeliveredCount   int                        `json:"delivered_count"`
	DeliveredRevenue int64                      `json:"delivered_revenue"`
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
