package inventory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"fuel-order-service/internal/models"
	"fuel-order-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProduct() *models.Product {
	return &models.Product{
		ID:           1,
		VendorID:     7,
		Type:         models.FuelDiesel,
		PricePerUnit: 750,
		AvailableQty: 20,
		MinOrderQty:  5,
		MaxOrderQty:  15,
		Status:       models.ProductStatusActive,
	}
}

func TestCheck(t *testing.T) {
	l := NewLedger()

	tests := []struct {
		name    string
		mutate  func(p *models.Product)
		vendor  int64
		qty     int
		wantErr error
	}{
		{name: "ok", vendor: 7, qty: 10},
		{name: "zero quantity", vendor: 7, qty: 0, wantErr: models.ErrQuantityOutOfRange},
		{name: "below minimum", vendor: 7, qty: 4, wantErr: models.ErrQuantityOutOfRange},
		{name: "above maximum", vendor: 7, qty: 16, wantErr: models.ErrQuantityOutOfRange},
		{name: "foreign vendor", vendor: 8, qty: 10, wantErr: models.ErrProductUnavailable},
		{
			name:    "discontinued",
			mutate:  func(p *models.Product) { p.Status = models.ProductStatusDiscontinued },
			vendor:  7,
			qty:     10,
			wantErr: models.ErrProductUnavailable,
		},
		{
			name:    "insufficient",
			mutate:  func(p *models.Product) { p.AvailableQty = 6 },
			vendor:  7,
			qty:     10,
			wantErr: models.ErrInsufficientStock,
		},
		{
			name: "sold out",
			mutate: func(p *models.Product) {
				p.AvailableQty = 0
				p.Status = models.ProductStatusOutOfStock
			},
			vendor:  7,
			qty:     10,
			wantErr: models.ErrInsufficientStock,
		},
		{
			name: "sold out with quantity out of range",
			mutate: func(p *models.Product) {
				p.AvailableQty = 0
				p.Status = models.ProductStatusOutOfStock
			},
			vendor:  7,
			qty:     16,
			wantErr: models.ErrQuantityOutOfRange,
		},
		{
			name:    "discontinued with quantity out of range",
			mutate:  func(p *models.Product) { p.Status = models.ProductStatusDiscontinued },
			vendor:  7,
			qty:     16,
			wantErr: models.ErrProductUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProduct()
			if tt.mutate != nil {
				tt.mutate(p)
			}
			err := l.Check(p, tt.vendor, tt.qty)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestReserveNeverGoesNegative(t *testing.T) {
	m := store.NewMemoryStore()
	vendor := m.AddVendor(models.Vendor{OwnerUserID: 1, Active: true, Verified: true})
	product := m.AddProduct(models.Product{VendorID: vendor.ID, Type: models.FuelPetrol, AvailableQty: 10, MinOrderQty: 1, MaxOrderQty: 10})
	l := NewLedger()
	ctx := context.Background()

	var wg sync.WaitGroup
	var ok int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithTx(ctx, func(tx store.Tx) error {
				return l.Reserve(ctx, tx, vendor.ID, product.ID, 3)
			})
			if err == nil {
				atomic.AddInt32(&ok, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), ok)
	products, err := m.GetProductsByIDs(ctx, []int64{product.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, products[0].AvailableQty)
}

func TestReserveAllIsAllOrNothing(t *testing.T) {
	m := store.NewMemoryStore()
	vendor := m.AddVendor(models.Vendor{OwnerUserID: 1, Active: true, Verified: true})
	a := m.AddProduct(models.Product{VendorID: vendor.ID, Type: models.FuelPetrol, AvailableQty: 10, MinOrderQty: 1, MaxOrderQty: 10})
	b := m.AddProduct(models.Product{VendorID: vendor.ID, Type: models.FuelKerosene, AvailableQty: 2, MinOrderQty: 1, MaxOrderQty: 10})
	l := NewLedger()
	ctx := context.Background()

	err := m.WithTx(ctx, func(tx store.Tx) error {
		return l.ReserveAll(ctx, tx, vendor.ID, []Line{{ProductID: a.ID, Quantity: 4}, {ProductID: b.ID, Quantity: 3}})
	})
	assert.True(t, errors.Is(err, models.ErrInsufficientStock))

	products, err := m.GetProductsByIDs(ctx, []int64{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, 10, products[0].AvailableQty)
	assert.Equal(t, 2, products[1].AvailableQty)
}

func TestReleaseRestoresStock(t *testing.T) {
	m := store.NewMemoryStore()
	vendor := m.AddVendor(models.Vendor{OwnerUserID: 1, Active: true, Verified: true})
	p := m.AddProduct(models.Product{VendorID: vendor.ID, Type: models.FuelCookingGas, AvailableQty: 5, MinOrderQty: 1, MaxOrderQty: 10})
	l := NewLedger()
	ctx := context.Background()

	require.NoError(t, m.WithTx(ctx, func(tx store.Tx) error {
		return l.Reserve(ctx, tx, vendor.ID, p.ID, 5)
	}))
	products, _ := m.GetProductsByIDs(ctx, []int64{p.ID})
	assert.Equal(t, models.ProductStatusOutOfStock, products[0].Status)

	require.NoError(t, m.WithTx(ctx, func(tx store.Tx) error {
		return l.ReleaseItems(ctx, tx, []models.OrderItem{{ProductID: p.ID, Quantity: 5}})
	}))
	products, _ = m.GetProductsByIDs(ctx, []int64{p.ID})
	assert.Equal(t, 5, products[0].AvailableQty)
	assert.Equal(t, models.ProductStatusActive, products[0].Status)

	err := m.WithTx(ctx, func(tx store.Tx) error {
		return l.Release(ctx, tx, 999, 1)
	})
	assert.True(t, errors.Is(err, models.ErrProductNotFound))
}

func TestDeriveStatus(t *testing.T) {
	assert.Equal(t, models.ProductStatusOutOfStock, DeriveStatus(models.ProductStatusActive, 0))
	assert.Equal(t, models.ProductStatusActive, DeriveStatus(models.ProductStatusOutOfStock, 4))
	assert.Equal(t, models.ProductStatusDiscontinued, DeriveStatus(models.ProductStatusDiscontinued, 4))
}
