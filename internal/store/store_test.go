package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"fuel-order-service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - requires database")
	}

	store, err := NewStore(url)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func seedPostgresCatalog(t *testing.T, s *Store, qty int) (int64, int64) {
	t.Helper()
	ctx := context.Background()

	var userID, vendorID, productID int64
	require.NoError(t, s.db.GetContext(ctx, &userID,
		"INSERT INTO users (name, email, role) VALUES ('Owner', 'owner-'||md5(random()::text)||'@example.com', 'vendor') RETURNING id"))
	require.NoError(t, s.db.GetContext(ctx, &vendorID,
		"INSERT INTO vendors (owner_user_id, name, active, verified, minimum_order, delivery_fee) VALUES ($1, 'Station', TRUE, TRUE, 2000, 500) RETURNING id",
		userID))
	require.NoError(t, s.db.GetContext(ctx, &productID,
		"INSERT INTO products (vendor_id, name, type, price_per_unit, available_qty, min_order_qty, max_order_qty) VALUES ($1, 'Petrol', 'PETROL', 600, $2, 1, 50) RETURNING id",
		vendorID, qty))
	return vendorID, productID
}

func TestCreateOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	vendorID, productID := seedPostgresCatalog(t, store, 100)

	order := &models.Order{
		CustomerID:      123,
		VendorID:        vendorID,
		Subtotal:        6000,
		DeliveryFee:     500,
		TotalAmount:     6500,
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusPending,
		PaymentMethod:   models.PaymentCash,
		DeliveryAddress: models.DeliveryAddress{Street: "1 Marina", City: "Lagos", State: "Lagos"},
		Items: []models.OrderItem{{
			ProductID: productID, ProductName: "Petrol", ProductType: models.FuelPetrol, Unit: "litre",
			Quantity: 10, UnitPrice: 600, LineTotal: 6000,
		}},
	}

	err := store.WithTx(ctx, func(tx Tx) error {
		if err := tx.DecrementStock(ctx, vendorID, productID, 10); err != nil {
			return err
		}
		return tx.InsertOrder(ctx, order)
	})
	require.NoError(t, err)
	assert.NotZero(t, order.ID)

	retrieved, err := store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.TotalAmount, retrieved.TotalAmount)
	assert.Equal(t, "Lagos", retrieved.DeliveryAddress.City)
	require.Len(t, retrieved.Items, 1)
	assert.Equal(t, 10, retrieved.Items[0].Quantity)

	products, err := store.GetProductsByIDs(ctx, []int64{productID})
	require.NoError(t, err)
	assert.Equal(t, 90, products[0].AvailableQty)
}

func TestConditionalDecrement(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	vendorID, productID := seedPostgresCatalog(t, store, 5)

	err := store.WithTx(ctx, func(tx Tx) error {
		return tx.DecrementStock(ctx, vendorID, productID, 6)
	})
	assert.True(t, errors.Is(err, models.ErrInsufficientStock))

	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		return tx.DecrementStock(ctx, vendorID, productID, 5)
	}))

	products, err := store.GetProductsByIDs(ctx, []int64{productID})
	require.NoError(t, err)
	assert.Equal(t, 0, products[0].AvailableQty)
	assert.Equal(t, models.ProductStatusOutOfStock, products[0].Status)

	err = store.WithTx(ctx, func(tx Tx) error {
		return tx.DecrementStock(ctx, vendorID, productID, 1)
	})
	assert.True(t, errors.Is(err, models.ErrInsufficientStock))

	err = store.WithTx(ctx, func(tx Tx) error {
		return tx.DecrementStock(ctx, vendorID+1000, productID, 1)
	})
	assert.True(t, errors.Is(err, models.ErrProductUnavailable))
}

func TestIdempotency(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	vendorID, _ := seedPostgresCatalog(t, store, 5)
	key := "idempotent-" + uuid.New().String()

	newOrder := func() *models.Order {
		return &models.Order{
			CustomerID:     456,
			VendorID:       vendorID,
			Status:         models.OrderStatusPending,
			PaymentStatus:  models.PaymentStatusPending,
			PaymentMethod:  models.PaymentCash,
			IdempotencyKey: key,
		}
	}

	// First creation
	require.NoError(t, store.WithTx(ctx, func(tx Tx) error { return tx.InsertOrder(ctx, newOrder()) }))

	// Second creation with same key should fail (unique index)
	err := store.WithTx(ctx, func(tx Tx) error { return tx.InsertOrder(ctx, newOrder()) })
	assert.True(t, errors.Is(err, models.ErrDuplicateRequest))

	found, err := store.GetOrderByIdempotencyKey(ctx, 456, key)
	require.NoError(t, err)
	assert.NotNil(t, found)
}
