package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"fuel-order-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// Store is the Postgres implementation of Repository
type Store struct {
	db *sqlx.DB
}

var _ Repository = (*Store)(nil)

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates missing tables and indexes
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// WithTx runs fn inside a database transaction. The transaction commits only when fn
// returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetVendor retrieves a vendor by ID
func (s *Store) GetVendor(ctx context.Context, id int64) (*models.Vendor, error) {
	var vendor models.Vendor
	err := s.db.GetContext(ctx, &vendor, "SELECT * FROM vendors WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", models.ErrVendorNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

// GetVendorByOwner retrieves the vendor owned by a user account
func (s *Store) GetVendorByOwner(ctx context.Context, userID int64) (*models.Vendor, error) {
	var vendor models.Vendor
	err := s.db.GetContext(ctx, &vendor, "SELECT * FROM vendors WHERE owner_user_id = $1", userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no vendor for user %d", models.ErrVendorNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// GetDriver retrieves a driver by ID
func (s *Store) GetDriver(ctx context.Context, id int64) (*models.Driver, error) {
	var driver models.Driver
	err := s.db.GetContext(ctx, &driver, "SELECT * FROM drivers WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", models.ErrDriverNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &driver, nil
}

// GetDriverByUser retrieves the driver profile of a user account
func (s *Store) GetDriverByUser(ctx context.Context, userID int64) (*models.Driver, error) {
	var driver models.Driver
	err := s.db.GetContext(ctx, &driver, "SELECT * FROM drivers WHERE user_id = $1", userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no driver for user %d", models.ErrDriverNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return &driver, nil
}

// GetUsersByIDs retrieves user projections by IDs
func (s *Store) GetUsersByIDs(ctx context.Context, ids []int64) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}

	query, args, err := sqlx.In("SELECT id, name, email, phone, role FROM users WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var users []models.User
	err = s.db.SelectContext(ctx, &users, query, args...)
	return users, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}

// isUniqueViolation reports whether err is a Postgres unique_violation
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// nullableJSON keeps lib/pq from sending raw bytes as bytea into a jsonb column
func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
