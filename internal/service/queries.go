package service

import (
	"context"
	"errors"
	"fmt"

	"fuel-order-service/internal/models"
	"fuel-order-service/internal/store"
	"fuel-order-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Actor is the authenticated caller of a query
type Actor struct {
	UserID int64
	Role   string
}

// OrderDetails is an order with the projections of its parties
type OrderDetails struct {
	*models.Order
	Customer   *models.User   `json:"customer,omitempty"`
	Vendor     *models.Vendor `json:"vendor,omitempty"`
	Driver     *models.Driver `json:"driver,omitempty"`
	DriverUser *models.User   `json:"driver_user,omitempty"`
}

// Page describes one page of a paginated listing
type Page struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// NewPage computes the page count for total rows
func NewPage(req store.PageRequest, total int) Page {
	req = req.Normalize()
	pages := 0
	if total > 0 {
		pages = (total + req.Limit - 1) / req.Limit
	}
	return Page{Page: req.Page, Limit: req.Limit, Total: total, Pages: pages}
}

// OrderList is a page of orders
type OrderList struct {
	Orders     []OrderDetails `json:"orders"`
	Pagination Page           `json:"pagination"`
}

// Analytics holds the admin aggregate view
type Analytics struct {
	TotalOrders       int                        `json:"total_orders"`
	ByStatus          map[models.OrderStatus]int `json:"by_status"`
	DeliveredOrders   int                        `json:"delivered_orders"`
	DeliveredRevenue  int64                      `json:"delivered_revenue"`
	AverageOrderValue int64                      `json:"average_order_value"`
	AverageFormatted  string                     `json:"average_order_value_formatted"`
}

// GetOrder returns the order if the actor is one of its parties or an admin
func (s *OrderService) GetOrder(ctx context.Context, actor Actor, orderID int64) (*OrderDetails, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder", attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.canView(ctx, actor, order); err != nil {
		return nil, err
	}
	details := s.describe(ctx, []models.Order{*order})
	return &details[0], nil
}

// ListOrders returns the actor's orders. Non-admin actors are scoped to their own orders
// whatever the filter says.
func (s *OrderService) ListOrders(ctx context.Context, actor Actor, filter store.OrderFilter, page store.PageRequest) (*OrderList, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders", attribute.String("role", actor.Role))
	defer span.End()

	switch actor.Role {
	case models.RoleCustomer:
		filter.CustomerID, filter.VendorID, filter.DriverID = actor.UserID, 0, 0
	case models.RoleVendor:
		vendor, err := s.vendorOf(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		filter.CustomerID, filter.VendorID, filter.DriverID = 0, vendor.ID, 0
	case models.RoleDriver:
		driver, err := s.store.GetDriverByUser(ctx, actor.UserID)
		if err != nil {
			if errors.Is(err, models.ErrDriverNotFound) {
				return nil, fmt.Errorf("%w: user %d is not a driver", models.ErrNotPermitted, actor.UserID)
			}
			return nil, err
		}
		filter.CustomerID, filter.VendorID, filter.DriverID = 0, 0, driver.ID
	case models.RoleAdmin:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", models.ErrNotPermitted, actor.Role)
	}

	page = page.Normalize()
	orders, total, err := s.store.ListOrders(ctx, filter, page)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return &OrderList{Orders: s.describe(ctx, orders), Pagination: NewPage(page, total)}, nil
}

// Analytics aggregates counts and delivered revenue for the admin dashboard
func (s *OrderService) Analytics(ctx context.Context, filter store.OrderFilter) (*Analytics, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Analytics")
	defer span.End()

	stats, err := s.store.OrderStats(ctx, filter)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to compute order stats: %w", err)
	}

	a := &Analytics{
		TotalOrders:      stats.Total,
		ByStatus:         make(map[models.OrderStatus]int, len(models.AllOrderStatuses)),
		DeliveredOrders:  stats.DeliveredCount,
		DeliveredRevenue: stats.DeliveredRevenue,
	}
	for _, status := range models.AllOrderStatuses {
		a.ByStatus[status] = stats.ByStatus[status]
	}
	if stats.DeliveredCount > 0 {
		avg := decimal.NewFromInt(stats.DeliveredRevenue).
			Div(decimal.NewFromInt(int64(stats.DeliveredCount))).
			Round(0)
		a.AverageOrderValue = avg.IntPart()
	}
	a.AverageFormatted = models.FormatAmount(a.AverageOrderValue)
	return a, nil
}

// AuditTrail lists the overrides applied to an order, oldest first
func (s *OrderService) AuditTrail(ctx context.Context, orderID int64) ([]models.AuditEntry, error) {
	if _, err := s.store.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.ListAuditEntries(ctx, orderID)
}

func (s *OrderService) canView(ctx context.Context, actor Actor, order *models.Order) error {
	denied := fmt.Errorf("%w: order %d is not visible to user %d", models.ErrNotPermitted, order.ID, actor.UserID)

	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleCustomer:
		if order.CustomerID == actor.UserID {
			return nil
		}
	case models.RoleVendor:
		vendor, err := s.store.GetVendorByOwner(ctx, actor.UserID)
		if err == nil && vendor.ID == order.VendorID {
			return nil
		}
	case models.RoleDriver:
		driver, err := s.store.GetDriverByUser(ctx, actor.UserID)
		if err == nil && order.HasDriver() && *order.DriverID == driver.ID {
			return nil
		}
	}
	return denied
}

// describe attaches user, vendor and driver projections. Lookup failures leave the
// projection empty rather than failing the read.
func (s *OrderService) describe(ctx context.Context, orders []models.Order) []OrderDetails {
	vendors := make(map[int64]*models.Vendor)
	drivers := make(map[int64]*models.Driver)
	userIDs := make([]int64, 0, len(orders)*2)

	for _, o := range orders {
		userIDs = append(userIDs, o.CustomerID)
		if _, ok := vendors[o.VendorID]; !ok {
			vendors[o.VendorID] = s.vendorByID(ctx, o.VendorID)
		}
		if o.HasDriver() {
			if _, ok := drivers[*o.DriverID]; !ok {
				drivers[*o.DriverID] = s.driverOf(ctx, &o)
			}
			if d := drivers[*o.DriverID]; d != nil {
				userIDs = append(userIDs, d.UserID)
			}
		}
	}

	users := make(map[int64]*models.User)
	if len(userIDs) > 0 {
		list, err := s.store.GetUsersByIDs(ctx, userIDs)
		if err != nil {
			s.logger.Warn("Failed to load user projections", zap.Error(err))
		}
		for i := range list {
			users[list[i].ID] = &list[i]
		}
	}

	details := make([]OrderDetails, len(orders))
	for i := range orders {
		o := &orders[i]
		d := OrderDetails{Order: o, Customer: users[o.CustomerID], Vendor: vendors[o.VendorID]}
		if o.HasDriver() {
			d.Driver = drivers[*o.DriverID]
			if d.Driver != nil {
				d.DriverUser = users[d.Driver.UserID]
			}
		}
		details[i] = d
	}
	return details
}
