package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fuel-order-service/internal/inventory"
	"fuel-order-service/internal/models"
	"fuel-order-service/internal/store"
	"fuel-order-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// EventEmitter accepts committed order events without blocking
type EventEmitter interface {
	Emit(events ...models.OrderEvent) int
}

// Locker guards concurrent requests that share an idempotency key
type Locker interface {
	AcquireLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

type noopEmitter struct{}

func (noopEmitter) Emit(events ...models.OrderEvent) int { return len(events) }

// Result is returned by every mutating operation. Events were already handed to the
// emitter after the unit of work committed; they are returned for callers and tests.
type Result struct {
	Order  *models.Order
	Events []models.OrderEvent
}

// OrderService handles order business logic
type OrderService struct {
	store   store.Repository
	ledger  *inventory.Ledger
	emitter EventEmitter
	locker  Locker
	lockTTL time.Duration
	logger  *zap.Logger
}

// Option configures an OrderService
type Option func(*OrderService)

// WithIdempotencyLock collapses concurrent creates that carry the same idempotency key
func WithIdempotencyLock(locker Locker, ttl time.Duration) Option {
	return func(s *OrderService) {
		s.locker = locker
		s.lockTTL = ttl
	}
}

// NewOrderService creates a new order service
func NewOrderService(repo store.Repository, ledger *inventory.Ledger, emitter EventEmitter, opts ...Option) *OrderService {
	if emitter == nil {
		emitter = noopEmitter{}
	}
	if ledger == nil {
		ledger = inventory.NewLedger()
	}
	s := &OrderService{
		store:   repo,
		ledger:  ledger,
		emitter: emitter,
		lockTTL: 30 * time.Second,
		logger:  util.Named("orders"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	CustomerID      int64                  `json:"-"`
	VendorID        int64                  `json:"vendor_id"`
	Items           []OrderItemRequest     `json:"items"`
	DeliveryAddress models.DeliveryAddress `json:"delivery_address"`
	PaymentMethod   models.PaymentMethod   `json:"payment_method"`
	Instructions    string                 `json:"instructions,omitempty"`
	IdempotencyKey  string                 `json:"idempotency_key,omitempty"`
}

// QuoteLine is a priced order line
type QuoteLine struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Type      models.FuelType `json:"type"`
	Unit      string          `json:"unit"`
	Quantity  int             `json:"quantity"`
	UnitPrice int64           `json:"unit_price"`
	LineTotal int64           `json:"line_total"`
}

// Quote is the priced view of a prospective order
type Quote struct {
	VendorID     int64       `json:"vendor_id"`
	VendorName   string      `json:"vendor_name"`
	Lines        []QuoteLine `json:"items"`
	Subtotal     int64       `json:"subtotal"`
	DeliveryFee  int64       `json:"delivery_fee"`
	Total        int64       `json:"total_amount"`
	MinimumOrder int64       `json:"minimum_order"`
	Shortfall    int64       `json:"shortfall"`
	MeetsMinimum bool        `json:"meets_minimum"`

	vendor *models.Vendor
}

// OrderSummary validates and prices items without reserving anything
func (s *OrderService) OrderSummary(ctx context.Context, customerID, vendorID int64, items []OrderItemRequest) (*Quote, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.OrderSummary")
	defer span.End()

	if customerID == 0 {
		return nil, fmt.Errorf("%w: customer is required", models.ErrValidation)
	}
	return s.quote(ctx, vendorID, items)
}

// CreateOrder validates, reserves stock and records a PENDING order in one unit of work
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*Result, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder",
		attribute.Int64("customer_id", req.CustomerID),
		attribute.Int64("vendor_id", req.VendorID))
	defer span.End()

	if err := validateCreate(req); err != nil {
		return nil, s.fail("create", err)
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		existing, err := s.store.GetOrderByIdempotencyKey(ctx, req.CustomerID, key)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", key),
				zap.Int64("order_id", existing.ID))
			return &Result{Order: existing}, nil
		}

		release, err := s.lockIdempotencyKey(ctx, req.CustomerID, key)
		if err != nil {
			return nil, s.fail("create", err)
		}
		defer release()

		// the previous holder may have finished while we waited for the lock
		existing, err = s.store.GetOrderByIdempotencyKey(ctx, req.CustomerID, key)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			return &Result{Order: existing}, nil
		}
	}

	quote, err := s.quote(ctx, req.VendorID, req.Items)
	if err != nil {
		util.RecordError(span, err)
		return nil, s.fail("create", err)
	}
	if !quote.MeetsMinimum {
		return nil, s.fail("create", fmt.Errorf("%w: subtotal %s is %s short of minimum %s",
			models.ErrBelowMinimumOrder,
			models.FormatAmount(quote.Subtotal),
			models.FormatAmount(quote.Shortfall),
			models.FormatAmount(quote.MinimumOrder)))
	}

	order := &models.Order{
		CustomerID:      req.CustomerID,
		VendorID:        req.VendorID,
		Subtotal:        quote.Subtotal,
		DeliveryFee:     quote.DeliveryFee,
		TotalAmount:     quote.Total,
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusPending,
		PaymentMethod:   req.PaymentMethod,
		DeliveryAddress: req.DeliveryAddress,
		Instructions:    strings.TrimSpace(req.Instructions),
		IdempotencyKey:  key,
		Items:           make([]models.OrderItem, len(quote.Lines)),
	}
	lines := make([]inventory.Line, len(quote.Lines))
	for i, l := range quote.Lines {
		order.Items[i] = models.OrderItem{
			ProductID:   l.ProductID,
			ProductName: l.Name,
			ProductType: l.Type,
			Unit:        l.Unit,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			LineTotal:   l.LineTotal,
		}
		lines[i] = inventory.Line{ProductID: l.ProductID, Quantity: l.Quantity}
	}

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		if err := s.ledger.ReserveAll(ctx, tx, req.VendorID, lines); err != nil {
			return err
		}
		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		if key != "" && errors.Is(err, models.ErrDuplicateRequest) {
			if existing, lookupErr := s.store.GetOrderByIdempotencyKey(ctx, req.CustomerID, key); lookupErr == nil && existing != nil {
				return &Result{Order: existing}, nil
			}
		}
		util.RecordError(span, err)
		return nil, s.fail("create", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("customer_id", order.CustomerID),
		zap.Int64("vendor_id", order.VendorID),
		zap.Int64("total_amount", order.TotalAmount))

	ev := models.NewOrderEvent(models.EventTypeOrderCreated, order, quote.vendor, nil)
	ev.Items = itemData(order.Items)
	return s.committed(order, ev), nil
}

// quote prices the requested lines against the vendor's current catalogue
func (s *OrderService) quote(ctx context.Context, vendorID int64, items []OrderItemRequest) (*Quote, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}

	vendor, err := s.store.GetVendor(ctx, vendorID)
	if errors.Is(err, models.ErrVendorNotFound) {
		return nil, fmt.Errorf("%w: vendor %d does not exist", models.ErrVendorUnavailable, vendorID)
	}
	if err != nil {
		return nil, err
	}
	if !vendor.Active || !vendor.Verified {
		return nil, fmt.Errorf("%w: vendor %d is not accepting orders", models.ErrVendorUnavailable, vendorID)
	}

	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	q := &Quote{
		VendorID:     vendor.ID,
		VendorName:   vendor.Name,
		DeliveryFee:  vendor.DeliveryFee,
		MinimumOrder: vendor.MinimumOrder,
		Lines:        make([]QuoteLine, 0, len(items)),
		vendor:       vendor,
	}
	for _, item := range items {
		product, ok := byID[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %d does not exist", models.ErrProductUnavailable, item.ProductID)
		}
		if err := s.ledger.Check(product, vendor.ID, item.Quantity); err != nil {
			return nil, err
		}
		line := QuoteLine{
			ProductID: product.ID,
			Name:      product.Name,
			Type:      product.Type,
			Unit:      product.Unit(),
			Quantity:  item.Quantity,
			UnitPrice: product.PricePerUnit,
			LineTotal: models.LineTotal(product.PricePerUnit, item.Quantity),
		}
		q.Lines = append(q.Lines, line)
		q.Subtotal += line.LineTotal
	}

	q.Total = q.Subtotal + q.DeliveryFee
	q.MeetsMinimum = q.Subtotal >= q.MinimumOrder
	if !q.MeetsMinimum {
		q.Shortfall = q.MinimumOrder - q.Subtotal
	}
	return q, nil
}

func (s *OrderService) lockIdempotencyKey(ctx context.Context, customerID int64, key string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	lockKey := fmt.Sprintf("order:create:%d:%s", customerID, key)
	token := uuid.New().String()
	ok, err := s.locker.AcquireLock(ctx, lockKey, token, s.lockTTL)
	if err != nil {
		// the unique index on (customer, key) still rejects the duplicate row
		s.logger.Warn("Idempotency lock unavailable", zap.String("lock_key", lockKey), zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		return nil, fmt.Errorf("%w: request with idempotency key %q is in progress", models.ErrDuplicateRequest, key)
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.locker.ReleaseLock(releaseCtx, lockKey, token); err != nil {
			s.logger.Warn("Failed to release idempotency lock", zap.String("lock_key", lockKey), zap.Error(err))
		}
	}, nil
}

func validateCreate(req *CreateOrderRequest) error {
	if req.CustomerID == 0 {
		return fmt.Errorf("%w: customer is required", models.ErrValidation)
	}
	if req.VendorID == 0 {
		return fmt.Errorf("%w: vendor_id is required", models.ErrValidation)
	}
	if !req.PaymentMethod.Valid() {
		return fmt.Errorf("%w: payment_method must be one of cash, card, transfer", models.ErrValidation)
	}
	if strings.TrimSpace(req.DeliveryAddress.Street) == "" || strings.TrimSpace(req.DeliveryAddress.City) == "" {
		return fmt.Errorf("%w: delivery_address street and city are required", models.ErrValidation)
	}
	return validateItems(req.Items)
}

func validateItems(items []OrderItemRequest) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item is required", models.ErrValidation)
	}
	seen := make(map[int64]bool, len(items))
	for _, item := range items {
		if item.ProductID == 0 {
			return fmt.Errorf("%w: product_id is required", models.ErrValidation)
		}
		if seen[item.ProductID] {
			return fmt.Errorf("%w: product %d listed more than once", models.ErrValidation, item.ProductID)
		}
		seen[item.ProductID] = true
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be positive for product %d", models.ErrQuantityOutOfRange, item.ProductID)
		}
	}
	return nil
}

func itemData(items []models.OrderItem) []models.OrderItemData {
	data := make([]models.OrderItemData, len(items))
	for i, item := range items {
		data[i] = models.OrderItemData{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice}
	}
	return data
}

// committed hands the events to the emitter and builds the operation result
func (s *OrderService) committed(order *models.Order, events ...models.OrderEvent) *Result {
	if accepted := s.emitter.Emit(events...); accepted < len(events) {
		s.logger.Warn("Some order events were not queued",
			zap.Int64("order_id", order.ID),
			zap.Int("emitted", len(events)),
			zap.Int("accepted", accepted))
	}
	return &Result{Order: order, Events: events}
}

// fail counts a rejected mutation and returns err unchanged
func (s *OrderService) fail(operation string, err error) error {
	util.OrdersFailedTotal.WithLabelValues(operation, models.CodeOf(err)).Inc()
	return err
}
