package main

import (
	"fuel-order-service/internal/auth"
	"fuel-order-service/internal/models"
	"fuel-order-service/internal/store"

	"go.uber.org/zap"
)

// seedDemo fills the in-memory store with one vendor, its catalogue and fleet, and logs
// a bearer token per demo user so the API can be exercised without the auth service.
func seedDemo(m *store.MemoryStore, jwt *auth.JWTService, logger *zap.Logger) {
	customer := m.AddUser(models.User{Name: "Demo Customer", Email: "customer@fuel.local", Phone: "+2348000000001", Role: models.RoleCustomer})
	owner := m.AddUser(models.User{Name: "Demo Vendor", Email: "vendor@fuel.local", Role: models.RoleVendor})
	driverUser := m.AddUser(models.User{Name: "Demo Driver", Phone: "+2348000000003", Role: models.RoleDriver})
	admin := m.AddUser(models.User{Name: "Demo Admin", Email: "admin@fuel.local", Role: models.RoleAdmin})

	vendor := m.AddVendor(models.Vendor{
		OwnerUserID:  owner.ID,
		Name:         "Lekki Fuels",
		Active:       true,
		Verified:     true,
		MinimumOrder: 2000,
		DeliveryFee:  500,
	})
	m.AddProduct(models.Product{VendorID: vendor.ID, Name: "Premium Motor Spirit", Type: models.FuelPetrol, PricePerUnit: 650, AvailableQty: 5000, MinOrderQty: 10, MaxOrderQty: 500})
	m.AddProduct(models.Product{VendorID: vendor.ID, Name: "Automotive Gas Oil", Type: models.FuelDiesel, PricePerUnit: 600, AvailableQty: 100, MinOrderQty: 10, MaxOrderQty: 50})
	m.AddProduct(models.Product{VendorID: vendor.ID, Name: "LPG Refill", Type: models.FuelCookingGas, PricePerUnit: 1100, AvailableQty: 300, MinOrderQty: 3, MaxOrderQty: 50})
	m.AddDriver(models.Driver{UserID: driverUser.ID, VendorID: vendor.ID})

	for _, u := range []models.User{customer, owner, driverUser, admin} {
		token, expires, err := jwt.GenerateToken(u.ID, u.Role)
		if err != nil {
			logger.Warn("Failed to issue demo token", zap.Int64("user_id", u.ID), zap.Error(err))
			continue
		}
		logger.Info("Demo user",
			zap.Int64("user_id", u.ID),
			zap.String("role", u.Role),
			zap.Time("expires_at", expires),
			zap.String("token", token))
	}
}
