package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"fuel-order-service/internal/models"
	"fuel-order-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []models.OrderEvent
}

func (r *recordingEmitter) Emit(events ...models.OrderEvent) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return len(events)
}

func (r *recordingEmitter) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.EventType
	}
	return out
}

// fixture is one vendor with a single product and one driver
type fixture struct {
	store    *store.MemoryStore
	svc      *OrderService
	emitter  *recordingEmitter
	customer models.User
	owner    models.User
	admin    models.User
	vendor   models.Vendor
	product  models.Product
	driver   models.Driver
	driverU  models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := store.NewMemoryStore()
	f := &fixture{store: m, emitter: &recordingEmitter{}}

	f.customer = m.AddUser(models.User{Name: "Ada", Email: "ada@example.com", Role: models.RoleCustomer})
	f.owner = m.AddUser(models.User{Name: "Station Owner", Email: "owner@example.com", Role: models.RoleVendor})
	f.admin = m.AddUser(models.User{Name: "Support", Email: "support@example.com", Role: models.RoleAdmin})
	f.driverU = m.AddUser(models.User{Name: "Driver", Email: "driver@example.com", Role: models.RoleDriver})

	f.vendor = m.AddVendor(models.Vendor{
		OwnerUserID:  f.owner.ID,
		Name:         "Lekki Fuels",
		Active:       true,
		Verified:     true,
		MinimumOrder: 2000,
		DeliveryFee:  500,
	})
	f.product = m.AddProduct(models.Product{
		VendorID:     f.vendor.ID,
		Name:         "Diesel",
		Type:         models.FuelDiesel,
		PricePerUnit: 600,
		AvailableQty: 100,
		MinOrderQty:  10,
		MaxOrderQty:  50,
	})
	f.driver = m.AddDriver(models.Driver{UserID: f.driverU.ID, VendorID: f.vendor.ID})

	f.svc = NewOrderService(m, nil, f.emitter)
	return f
}

func (f *fixture) request(qty int) *CreateOrderRequest {
	return &CreateOrderRequest{
		CustomerID:      f.customer.ID,
		VendorID:        f.vendor.ID,
		Items:           []OrderItemRequest{{ProductID: f.product.ID, Quantity: qty}},
		DeliveryAddress: models.DeliveryAddress{Street: "12 Admiralty Way", City: "Lagos", State: "Lagos"},
		PaymentMethod:   models.PaymentCash,
	}
}

func (f *fixture) createOrder(t *testing.T, qty int) *models.Order {
	t.Helper()
	res, err := f.svc.CreateOrder(context.Background(), f.request(qty))
	require.NoError(t, err)
	return res.Order
}

func (f *fixture) available(t *testing.T) (int, string) {
	t.Helper()
	products, err := f.store.GetProductsByIDs(context.Background(), []int64{f.product.ID})
	require.NoError(t, err)
	require.Len(t, products, 1)
	return products[0].AvailableQty, products[0].Status
}

func (f *fixture) driverStatus(t *testing.T) string {
	t.Helper()
	d, err := f.store.GetDriver(context.Background(), f.driver.ID)
	require.NoError(t, err)
	return d.Status
}

func TestCreateOrderReservesStockAndPricesOnce(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.CreateOrder(context.Background(), f.request(10))
	require.NoError(t, err)

	order := res.Order
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, int64(6000), order.Subtotal)
	assert.Equal(t, int64(500), order.DeliveryFee)
	assert.Equal(t, int64(6500), order.TotalAmount)
	require.Len(t, order.Items, 1)
	assert.Equal(t, int64(600), order.Items[0].UnitPrice)
	assert.Equal(t, "litre", order.Items[0].Unit)

	qty, _ := f.available(t)
	assert.Equal(t, 90, qty)

	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.Equal(t, models.EventTypeOrderCreated, ev.EventType)
	assert.Equal(t, f.customer.ID, ev.CustomerUserID)
	assert.Equal(t, f.owner.ID, ev.VendorUserID)
	assert.Len(t, ev.Items, 1)
	assert.Equal(t, []string{models.EventTypeOrderCreated}, f.emitter.types())
}

func TestCreateOrderRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture, req *CreateOrderRequest)
		want   error
	}{
		{"below minimum order", func(f *fixture, req *CreateOrderRequest) {
			f.store.AddVendor(models.Vendor{ID: f.vendor.ID, OwnerUserID: f.owner.ID, Active: true, Verified: true, MinimumOrder: 10000, DeliveryFee: 500})
		}, models.ErrBelowMinimumOrder},
		{"quantity under product minimum", func(f *fixture, req *CreateOrderRequest) {
			req.Items[0].Quantity = 5
		}, models.ErrQuantityOutOfRange},
		{"quantity over product maximum", func(f *fixture, req *CreateOrderRequest) {
			req.Items[0].Quantity = 51
		}, models.ErrQuantityOutOfRange},
		{"zero quantity", func(f *fixture, req *CreateOrderRequest) {
			req.Items[0].Quantity = 0
		}, models.ErrQuantityOutOfRange},
		{"inactive vendor", func(f *fixture, req *CreateOrderRequest) {
			f.store.AddVendor(models.Vendor{ID: f.vendor.ID, OwnerUserID: f.owner.ID, Active: false, Verified: true})
		}, models.ErrVendorUnavailable},
		{"unverified vendor", func(f *fixture, req *CreateOrderRequest) {
			f.store.AddVendor(models.Vendor{ID: f.vendor.ID, OwnerUserID: f.owner.ID, Active: true, Verified: false})
		}, models.ErrVendorUnavailable},
		{"unknown vendor", func(f *fixture, req *CreateOrderRequest) {
			req.VendorID = 999
		}, models.ErrVendorUnavailable},
		{"unknown product", func(f *fixture, req *CreateOrderRequest) {
			req.Items[0].ProductID = 999
		}, models.ErrProductUnavailable},
		{"product of another vendor", func(f *fixture, req *CreateOrderRequest) {
			other := f.store.AddVendor(models.Vendor{OwnerUserID: 77, Active: true, Verified: true})
			p := f.store.AddProduct(models.Product{VendorID: other.ID, Type: models.FuelPetrol, PricePerUnit: 700, AvailableQty: 100, MinOrderQty: 1, MaxOrderQty: 50})
			req.Items[0].ProductID = p.ID
		}, models.ErrProductUnavailable},
		{"discontinued product", func(f *fixture, req *CreateOrderRequest) {
			p := f.product
			p.Status = models.ProductStatusDiscontinued
			f.store.AddProduct(p)
		}, models.ErrProductUnavailable},
		{"not enough stock", func(f *fixture, req *CreateOrderRequest) {
			p := f.product
			p.AvailableQty = 20
			f.store.AddProduct(p)
			req.Items[0].Quantity = 30
		}, models.ErrInsufficientStock},
		{"sold out product", func(f *fixture, req *CreateOrderRequest) {
			p := f.product
			p.AvailableQty = 0
			f.store.AddProduct(p)
		}, models.ErrInsufficientStock},
		{"duplicate product lines", func(f *fixture, req *CreateOrderRequest) {
			req.Items = append(req.Items, req.Items[0])
		}, models.ErrValidation},
		{"no items", func(f *fixture, req *CreateOrderRequest) {
			req.Items = nil
		}, models.ErrValidation},
		{"missing address", func(f *fixture, req *CreateOrderRequest) {
			req.DeliveryAddress = models.DeliveryAddress{}
		}, models.ErrValidation},
		{"unknown payment method", func(f *fixture, req *CreateOrderRequest) {
			req.PaymentMethod = "crypto"
		}, models.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := f.request(10)
			tt.mutate(f, req)
			before, _ := f.available(t)

			_, err := f.svc.CreateOrder(context.Background(), req)
			assert.ErrorIs(t, err, tt.want)

			after, _ := f.available(t)
			assert.Equal(t, before, after)
			assert.Empty(t, f.emitter.types())
		})
	}
}

func TestCreateOrderIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	scarce := f.store.AddProduct(models.Product{
		VendorID: f.vendor.ID, Name: "Kerosene", Type: models.FuelKerosene,
		PricePerUnit: 400, AvailableQty: 10, MinOrderQty: 1, MaxOrderQty: 20,
	})

	_, err := f.svc.CreateOrder(context.Background(), &CreateOrderRequest{
		CustomerID:      f.customer.ID,
		VendorID:        f.vendor.ID,
		Items:           []OrderItemRequest{{ProductID: scarce.ID, Quantity: 10}},
		DeliveryAddress: models.DeliveryAddress{Street: "1 Road", City: "Lagos"},
		PaymentMethod:   models.PaymentCard,
	})
	require.NoError(t, err)

	req := f.request(10)
	req.Items = append(req.Items, OrderItemRequest{ProductID: scarce.ID, Quantity: 5})
	_, err = f.svc.CreateOrder(context.Background(), req)
	require.ErrorIs(t, err, models.ErrInsufficientStock)

	qty, _ := f.available(t)
	assert.Equal(t, 100, qty)
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	const n = 5
	f := newFixture(t)
	p := f.product
	p.AvailableQty = 10 * (n - 1)
	f.store.AddProduct(p)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateOrder(context.Background(), f.request(10))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			succeeded++
		}()
	}
	wg.Wait()

	assert.Equal(t, n-1, succeeded)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], models.ErrInsufficientStock)

	qty, status := f.available(t)
	assert.Equal(t, 0, qty)
	assert.Equal(t, models.ProductStatusOutOfStock, status)
}

func TestIdempotencyKeyReturnsExistingOrder(t *testing.T) {
	f := newFixture(t)
	req := f.request(10)
	req.IdempotencyKey = "checkout-42"

	first, err := f.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	second, err := f.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Empty(t, second.Events)
	qty, _ := f.available(t)
	assert.Equal(t, 90, qty)

	// keys are scoped per customer
	other := f.store.AddUser(models.User{Role: models.RoleCustomer})
	req.CustomerID = other.ID
	third, err := f.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, first.Order.ID, third.Order.ID)
}

type heldLocker struct {
	acquired bool
	released []string
}

func (l *heldLocker) AcquireLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error) {
	return l.acquired, nil
}

func (l *heldLocker) ReleaseLock(ctx context.Context, lockKey, token string) error {
	l.released = append(l.released, lockKey)
	return nil
}

func TestIdempotencyLock(t *testing.T) {
	f := newFixture(t)

	busy := &heldLocker{acquired: false}
	svc := NewOrderService(f.store, nil, f.emitter, WithIdempotencyLock(busy, time.Second))
	req := f.request(10)
	req.IdempotencyKey = "in-flight"
	_, err := svc.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrDuplicateRequest)

	free := &heldLocker{acquired: true}
	svc = NewOrderService(f.store, nil, f.emitter, WithIdempotencyLock(free, time.Second))
	_, err = svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"order:create:1:in-flight"}, free.released)
}

func TestOrderSummaryReportsShortfall(t *testing.T) {
	f := newFixture(t)

	q, err := f.svc.OrderSummary(context.Background(), f.customer.ID, f.vendor.ID,
		[]OrderItemRequest{{ProductID: f.product.ID, Quantity: 10}})
	require.NoError(t, err)
	assert.True(t, q.MeetsMinimum)
	assert.Equal(t, int64(6500), q.Total)

	f.store.AddVendor(models.Vendor{ID: f.vendor.ID, OwnerUserID: f.owner.ID, Name: f.vendor.Name,
		Active: true, Verified: true, MinimumOrder: 10000, DeliveryFee: 500})
	q, err = f.svc.OrderSummary(context.Background(), f.customer.ID, f.vendor.ID,
		[]OrderItemRequest{{ProductID: f.product.ID, Quantity: 10}})
	require.NoError(t, err)
	assert.False(t, q.MeetsMinimum)
	assert.Equal(t, int64(4000), q.Shortfall)

	qty, _ := f.available(t)
	assert.Equal(t, 100, qty)
}
