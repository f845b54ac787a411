package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Roles supplied by the authentication layer
const (
	RoleCustomer = "customer"
	RoleVendor   = "vendor"
	RoleDriver   = "driver"
	RoleAdmin    = "admin"
)

// FuelType is the fixed product taxonomy
type FuelType string

const (
	FuelPetrol     FuelType = "PETROL"
	FuelDiesel     FuelType = "DIESEL"
	FuelKerosene   FuelType = "KEROSENE"
	FuelCookingGas FuelType = "COOKING_GAS"
)

// Unit returns the unit of measure for the fuel type.
func (t FuelType) Unit() string {
	if t == FuelCookingGas {
		return "kg"
	}
	return "litre"
}

// Valid reports whether t is part of the taxonomy.
func (t FuelType) Valid() bool {
	switch t {
	case FuelPetrol, FuelDiesel, FuelKerosene, FuelCookingGas:
		return true
	}
	return false
}

// Product statuses
const (
	ProductStatusActive       = "ACTIVE"
	ProductStatusOutOfStock   = "OUT_OF_STOCK"
	ProductStatusDiscontinued = "DISCONTINUED"
)

// Driver statuses
const (
	DriverStatusAvailable = "AVAILABLE"
	DriverStatusBusy      = "BUSY"
	DriverStatusOffline   = "OFFLINE"
)

// Payment statuses (informational only)
const (
	PaymentStatusPending  = "PENDING"
	PaymentStatusPaid     = "PAID"
	PaymentStatusRefunded = "REFUNDED"
	PaymentStatusFailed   = "FAILED"
)

// PaymentMethod is the customer-selected payment method
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer:
		return true
	}
	return false
}

// User is the read-only projection of an account owned by the auth service
type User struct {
	ID    int64  `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`
	Phone string `db:"phone" json:"phone,omitempty"`
	Role  string `db:"role" json:"role"`
}

// Vendor represents a fuel station
type Vendor struct {
	ID           int64     `db:"id" json:"id"`
	OwnerUserID  int64     `db:"owner_user_id" json:"owner_user_id"`
	Name         string    `db:"name" json:"name"`
	Active       bool      `db:"active" json:"active"`
	Verified     bool      `db:"verified" json:"verified"`
	MinimumOrder int64     `db:"minimum_order" json:"minimum_order"`
	DeliveryFee  int64     `db:"delivery_fee" json:"delivery_fee"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Product represents a vendor's fuel listing
type Product struct {
	ID           int64     `db:"id" json:"id"`
	VendorID     int64     `db:"vendor_id" json:"vendor_id"`
	Name         string    `db:"name" json:"name"`
	Type         FuelType  `db:"type" json:"type"`
	PricePerUnit int64     `db:"price_per_unit" json:"price_per_unit"`
	AvailableQty int       `db:"available_qty" json:"available_qty"`
	MinOrderQty  int       `db:"min_order_qty" json:"min_order_qty"`
	MaxOrderQty  int       `db:"max_order_qty" json:"max_order_qty"`
	Status       string    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Unit returns the unit of measure derived from the product type.
func (p *Product) Unit() string {
	return p.Type.Unit()
}

// Driver belongs to a vendor's delivery fleet
type Driver struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	VendorID  int64     `db:"vendor_id" json:"vendor_id"`
	Status    string    `db:"status" json:"status"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DeliveryAddress is stored as JSON alongside the order
type DeliveryAddress struct {
	Street    string   `json:"street"`
	City      string   `json:"city"`
	State     string   `json:"state"`
	Landmark  string   `json:"landmark,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Value implements driver.Valuer.
func (a DeliveryAddress) Value() (driver.Value, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (a *DeliveryAddress) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	case nil:
		*a = DeliveryAddress{}
		return nil
	}
	return errors.New("unsupported delivery address type")
}

// Order represents a customer order
type Order struct {
	ID              int64           `db:"id" json:"id"`
	CustomerID      int64           `db:"customer_id" json:"customer_id"`
	VendorID        int64           `db:"vendor_id" json:"vendor_id"`
	DriverID        *int64          `db:"driver_id" json:"driver_id,omitempty"`
	Subtotal        int64           `db:"subtotal" json:"subtotal"`
	DeliveryFee     int64           `db:"delivery_fee" json:"delivery_fee"`
	TotalAmount     int64           `db:"total_amount" json:"total_amount"`
	Status          OrderStatus     `db:"status" json:"status"`
	PaymentStatus   string          `db:"payment_status" json:"payment_status"`
	PaymentMethod   PaymentMethod   `db:"payment_method" json:"payment_method"`
	DeliveryAddress DeliveryAddress `db:"delivery_address" json:"delivery_address"`
	Instructions    string          `db:"instructions" json:"instructions,omitempty"`
	IdempotencyKey  string          `db:"idempotency_key" json:"-"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
	Items           []OrderItem     `db:"-" json:"items"`
}

// HasDriver reports whether a driver is assigned.
func (o *Order) HasDriver() bool {
	return o.DriverID != nil
}

// OrderItem represents a line of an order. Quantity and UnitPrice are frozen at creation.
type OrderItem struct {
	ID          int64    `db:"id" json:"id"`
	OrderID     int64    `db:"order_id" json:"order_id"`
	ProductID   int64    `db:"product_id" json:"product_id"`
	ProductName string   `db:"product_name" json:"product_name"`
	ProductType FuelType `db:"product_type" json:"product_type"`
	Unit        string   `db:"unit" json:"unit"`
	Quantity    int      `db:"quantity" json:"quantity"`
	UnitPrice   int64    `db:"unit_price" json:"unit_price"`
	LineTotal   int64    `db:"line_total" json:"line_total"`
}

// Notification priorities
const (
	PriorityLow    = "LOW"
	PriorityNormal = "NORMAL"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)

// PriorityRank orders priorities so channel rules can compare them.
func PriorityRank(p string) int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	}
	return 1
}

// Delivery channels
const (
	ChannelInApp = "in_app"
	ChannelPush  = "push"
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Notification is created once per event per recipient
type Notification struct {
	ID              int64           `db:"id" json:"id"`
	RecipientUserID int64           `db:"recipient_user_id" json:"recipient_user_id"`
	Type            string          `db:"type" json:"type"`
	Title           string          `db:"title" json:"title"`
	Message         string          `db:"message" json:"message"`
	Payload         json.RawMessage `db:"payload" json:"payload,omitempty"`
	Read            bool            `db:"is_read" json:"read"`
	Priority        string          `db:"priority" json:"priority"`
	Channels        StringList      `db:"channels" json:"channels"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	ReadAt          *time.Time      `db:"read_at" json:"read_at,omitempty"`
}

// NotificationPreferences controls the optional delivery channels of a user
type NotificationPreferences struct {
	UserID int64 `db:"user_id" json:"user_id"`
	Email  bool  `db:"email" json:"email"`
	SMS    bool  `db:"sms" json:"sms"`
	Push   bool  `db:"push" json:"push"`
}

// DefaultNotificationPreferences applies when a user never saved preferences.
func DefaultNotificationPreferences(userID int64) NotificationPreferences {
	return NotificationPreferences{UserID: userID, Email: true, SMS: false, Push: true}
}

// AuditEntry records a single admin override
type AuditEntry struct {
	ID         int64           `db:"id" json:"id"`
	OrderID    int64           `db:"order_id" json:"order_id"`
	ActorID    int64           `db:"actor_id" json:"actor_id"`
	Action     string          `db:"action" json:"action"`
	Reason     string          `db:"reason" json:"reason"`
	FromStatus OrderStatus     `db:"from_status" json:"from_status"`
	ToStatus   OrderStatus     `db:"to_status" json:"to_status"`
	Details    json.RawMessage `db:"details" json:"details,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// StringList is persisted as a JSON array
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, (*[]string)(l))
	case string:
		return json.Unmarshal([]byte(v), (*[]string)(l))
	case nil:
		*l = nil
		return nil
	}
	return errors.New("unsupported string list type")
}

// Contains reports whether s is in the list.
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}
