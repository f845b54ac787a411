package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fuel-order-service/internal/models"
)

// MemoryStore is an in-process Repository. Units of work are serialized by txMu and
// rolled back from a snapshot when fn fails; mu guards the maps for single operations.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	users         map[int64]models.User
	vendors       map[int64]models.Vendor
	products      map[int64]models.Product
	drivers       map[int64]models.Driver
	orders        map[int64]models.Order
	audit         []models.AuditEntry
	notifications map[int64]models.Notification
	prefs         map[int64]models.NotificationPreferences
	processed     map[string]models.ProcessedEvent
	seq           memorySeq
}

type memorySeq struct {
	user, vendor, product, driver, order, item, audit, notification int64
}

var _ Repository = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[int64]models.User),
		vendors:       make(map[int64]models.Vendor),
		products:      make(map[int64]models.Product),
		drivers:       make(map[int64]models.Driver),
		orders:        make(map[int64]models.Order),
		notifications: make(map[int64]models.Notification),
		prefs:         make(map[int64]models.NotificationPreferences),
		processed:     make(map[string]models.ProcessedEvent),
	}
}

// AddUser registers a user projection and assigns its ID when zero.
func (m *MemoryStore) AddUser(u models.User) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == 0 {
		m.seq.user++
		u.ID = m.seq.user
	} else if u.ID > m.seq.user {
		m.seq.user = u.ID
	}
	m.users[u.ID] = u
	return u
}

// AddVendor registers a vendor and assigns its ID when zero.
func (m *MemoryStore) AddVendor(v models.Vendor) models.Vendor {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == 0 {
		m.seq.vendor++
		v.ID = m.seq.vendor
	} else if v.ID > m.seq.vendor {
		m.seq.vendor = v.ID
	}
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	m.vendors[v.ID] = v
	return v
}

// AddProduct registers a product and assigns its ID when zero. The status is derived
// from the available quantity unless it is DISCONTINUED.
func (m *MemoryStore) AddProduct(p models.Product) models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		m.seq.product++
		p.ID = m.seq.product
	} else if p.ID > m.seq.product {
		m.seq.product = p.ID
	}
	p.Status = models.DeriveProductStatus(p.Status, p.AvailableQty)
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	m.products[p.ID] = p
	return p
}

// AddDriver registers a driver and assigns its ID when zero.
func (m *MemoryStore) AddDriver(d models.Driver) models.Driver {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == 0 {
		m.seq.driver++
		d.ID = m.seq.driver
	} else if d.ID > m.seq.driver {
		m.seq.driver = d.ID
	}
	if d.Status == "" {
		d.Status = models.DriverStatusAvailable
	}
	d.UpdatedAt = time.Now().UTC()
	m.drivers[d.ID] = d
	return d
}

// SetNotificationPreferences stores a user's channel preferences.
func (m *MemoryStore) SetNotificationPreferences(p models.NotificationPreferences) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[p.UserID] = p
}

// Ping always succeeds
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// WithTx serializes fn against every other unit of work and restores the previous state
// when fn returns an error.
func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snap := m.snapshot()
	if err := fn(&memTx{m: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	products map[int64]models.Product
	drivers  map[int64]models.Driver
	orders   map[int64]models.Order
	audit    []models.AuditEntry
	seq      memorySeq
}

func (m *MemoryStore) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := memorySnapshot{
		products: make(map[int64]models.Product, len(m.products)),
		drivers:  make(map[int64]models.Driver, len(m.drivers)),
		orders:   make(map[int64]models.Order, len(m.orders)),
		audit:    append([]models.AuditEntry(nil), m.audit...),
		seq:      m.seq,
	}
	for k, v := range m.products {
		snap.products[k] = v
	}
	for k, v := range m.drivers {
		snap.drivers[k] = v
	}
	for k, v := range m.orders {
		snap.orders[k] = cloneOrder(v)
	}
	return snap
}

func (m *MemoryStore) restore(snap memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = snap.products
	m.drivers = snap.drivers
	m.orders = snap.orders
	m.audit = snap.audit
	// notification ids may have advanced outside the unit of work
	notif := m.seq.notification
	m.seq = snap.seq
	m.seq.notification = notif
}

func (m *MemoryStore) GetVendor(ctx context.Context, id int64) (*models.Vendor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vendors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrVendorNotFound, id)
	}
	return &v, nil
}

func (m *MemoryStore) GetVendorByOwner(ctx context.Context, userID int64) (*models.Vendor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.vendors {
		if v.OwnerUserID == userID {
			v := v
			return &v, nil
		}
	}
	return nil, fmt.Errorf("%w: no vendor for user %d", models.ErrVendorNotFound, userID)
}

func (m *MemoryStore) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	products := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			products = append(products, p)
		}
	}
	return products, nil
}

func (m *MemoryStore) GetDriver(ctx context.Context, id int64) (*models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrDriverNotFound, id)
	}
	return &d, nil
}

func (m *MemoryStore) GetDriverByUser(ctx context.Context, userID int64) (*models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.drivers {
		if d.UserID == userID {
			d := d
			return &d, nil
		}
	}
	return nil, fmt.Errorf("%w: no driver for user %d", models.ErrDriverNotFound, userID)
}

func (m *MemoryStore) GetUsersByIDs(ctx context.Context, ids []int64) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrOrderNotFound, id)
	}
	o = cloneOrder(o)
	return &o, nil
}

func (m *MemoryStore) GetOrderByIdempotencyKey(ctx context.Context, customerID int64, key string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.CustomerID == customerID && o.IdempotencyKey == key {
			o = cloneOrder(o)
			return &o, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ListOrders(ctx context.Context, filter OrderFilter, page PageRequest) ([]models.Order, int, error) {
	page = page.Normalize()
	matched := m.matchOrders(filter)

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *MemoryStore) OrderStats(ctx context.Context, filter OrderFilter) (*OrderStats, error) {
	stats := &OrderStats{ByStatus: make(map[models.OrderStatus]int)}
	for _, o := range m.matchOrders(filter) {
		stats.Total++
		stats.ByStatus[o.Status]++
		if o.Status == models.OrderStatusDelivered {
			stats.DeliveredCount++
			stats.DeliveredRevenue += o.TotalAmount
		}
	}
	return stats, nil
}

func (m *MemoryStore) matchOrders(filter OrderFilter) []models.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := []models.Order{}
	for _, o := range m.orders {
		o := o
		if filter.Matches(&o) {
			matched = append(matched, cloneOrder(o))
		}
	}
	return matched
}

func (m *MemoryStore) ListAuditEntries(ctx context.Context, orderID int64) ([]models.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := []models.AuditEntry{}
	for _, e := range m.audit {
		if e.OrderID == orderID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (m *MemoryStore) InsertNotification(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq.notification++
	n.ID = m.seq.notification
	n.CreatedAt = time.Now().UTC()
	m.notifications[n.ID] = *n
	return nil
}

func (m *MemoryStore) ListNotifications(ctx context.Context, userID int64, unreadOnly bool, page PageRequest) ([]models.Notification, int, error) {
	page = page.Normalize()
	m.mu.RLock()
	matched := []models.Notification{}
	for _, n := range m.notifications {
		if n.RecipientUserID != userID || (unreadOnly && n.Read) {
			continue
		}
		matched = append(matched, n)
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := len(matched)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *MemoryStore) MarkNotificationRead(ctx context.Context, userID, notificationID int64) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[notificationID]
	if !ok || n.RecipientUserID != userID {
		return nil, fmt.Errorf("%w: %d", models.ErrNotificationNotFound, notificationID)
	}
	if !n.Read {
		now := time.Now().UTC()
		n.Read = true
		n.ReadAt = &now
		m.notifications[n.ID] = n
	}
	return &n, nil
}

func (m *MemoryStore) DeleteNotification(ctx context.Context, userID, notificationID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[notificationID]
	if !ok || n.RecipientUserID != userID {
		return fmt.Errorf("%w: %d", models.ErrNotificationNotFound, notificationID)
	}
	delete(m.notifications, notificationID)
	return nil
}

func (m *MemoryStore) GetNotificationPreferences(ctx context.Context, userID int64) (models.NotificationPreferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.prefs[userID]; ok {
		return p, nil
	}
	return models.DefaultNotificationPreferences(userID), nil
}

func (m *MemoryStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.processed[eventID]
	return ok, nil
}

func (m *MemoryStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.processed[eventID]; !ok {
		m.processed[eventID] = models.ProcessedEvent{EventID: eventID, EventType: eventType, ProcessedAt: time.Now().UTC()}
	}
	return nil
}

// memTx mutates the store directly; MemoryStore.WithTx owns rollback
type memTx struct {
	m *MemoryStore
}

func (t *memTx) DecrementStock(ctx context.Context, vendorID, productID int64, qty int) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	p, ok := t.m.products[productID]
	if !ok || p.VendorID != vendorID || p.Status == models.ProductStatusDiscontinued || p.AvailableQty < qty {
		if !ok {
			p.ID = productID
		}
		return reservationError(ok, p, vendorID, qty)
	}
	p.AvailableQty -= qty
	p.Status = models.DeriveProductStatus(p.Status, p.AvailableQty)
	p.UpdatedAt = time.Now().UTC()
	t.m.products[productID] = p
	return nil
}

func (t *memTx) IncrementStock(ctx context.Context, productID int64, qty int) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	p, ok := t.m.products[productID]
	if !ok {
		return fmt.Errorf("%w: %d", models.ErrProductNotFound, productID)
	}
	p.AvailableQty += qty
	p.Status = models.DeriveProductStatus(p.Status, p.AvailableQty)
	p.UpdatedAt = time.Now().UTC()
	t.m.products[productID] = p
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, order *models.Order) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if order.IdempotencyKey != "" {
		for _, o := range t.m.orders {
			if o.CustomerID == order.CustomerID && o.IdempotencyKey == order.IdempotencyKey {
				return fmt.Errorf("%w: idempotency key already used", models.ErrDuplicateRequest)
			}
		}
	}

	t.m.seq.order++
	order.ID = t.m.seq.order
	now := time.Now().UTC()
	order.CreatedAt, order.UpdatedAt = now, now
	for i := range order.Items {
		t.m.seq.item++
		order.Items[i].ID = t.m.seq.item
		order.Items[i].OrderID = order.ID
	}
	t.m.orders[order.ID] = cloneOrder(*order)
	return nil
}

func (t *memTx) LockOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	o, ok := t.m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrOrderNotFound, orderID)
	}
	o = cloneOrder(o)
	return &o, nil
}

func (t *memTx) UpdateOrderState(ctx context.Context, order *models.Order, expected models.OrderStatus) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	current, ok := t.m.orders[order.ID]
	if !ok {
		return fmt.Errorf("%w: %d", models.ErrOrderNotFound, order.ID)
	}
	if current.Status != expected {
		return fmt.Errorf("%w: order %d is no longer %s", models.ErrConcurrentUpdate, order.ID, expected)
	}
	current.Status = order.Status
	current.DriverID = cloneID(order.DriverID)
	current.PaymentStatus = order.PaymentStatus
	current.UpdatedAt = time.Now().UTC()
	order.UpdatedAt = current.UpdatedAt
	t.m.orders[order.ID] = current
	return nil
}

func (t *memTx) LockDriver(ctx context.Context, driverID int64) (*models.Driver, error) {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	d, ok := t.m.drivers[driverID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrDriverNotFound, driverID)
	}
	return &d, nil
}

func (t *memTx) SetDriverStatus(ctx context.Context, driverID int64, expected, to string) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	d, ok := t.m.drivers[driverID]
	if !ok {
		return fmt.Errorf("%w: %d", models.ErrDriverNotFound, driverID)
	}
	if expected != "" && d.Status != expected {
		return fmt.Errorf("%w: driver %d is not %s", models.ErrDriverUnavailable, driverID, expected)
	}
	d.Status = to
	d.UpdatedAt = time.Now().UTC()
	t.m.drivers[driverID] = d
	return nil
}

func (t *memTx) InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.m.seq.audit++
	entry.ID = t.m.seq.audit
	entry.CreatedAt = time.Now().UTC()
	t.m.audit = append(t.m.audit, *entry)
	return nil
}

func cloneOrder(o models.Order) models.Order {
	o.DriverID = cloneID(o.DriverID)
	o.Items = append([]models.OrderItem(nil), o.Items...)
	return o
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
