package store

import (
	"context"
	"database/sql"
	"fmt"

	"fuel-order-service/internal/models"
)

// InsertNotification persists a notification
func (s *Store) InsertNotification(ctx context.Context, n *models.Notification) error {
	row := s.db.QueryRowxContext(ctx, `
		INSERT INTO notifications (recipient_user_id, type, title, message, payload, priority, channels)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		n.RecipientUserID, n.Type, n.Title, n.Message, nullableJSON(n.Payload), n.Priority, n.Channels)
	if err := row.Scan(&n.ID, &n.CreatedAt); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListNotifications returns a page of the user's notifications, newest first
func (s *Store) ListNotifications(ctx context.Context, userID int64, unreadOnly bool, page PageRequest) ([]models.Notification, int, error) {
	page = page.Normalize()

	where := " WHERE recipient_user_id = $1"
	if unreadOnly {
		where += " AND is_read = FALSE"
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM notifications"+where, userID); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	notifications := []models.Notification{}
	err := s.db.SelectContext(ctx, &notifications,
		"SELECT * FROM notifications"+where+" ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3",
		userID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, total, nil
}

// MarkNotificationRead marks one of the user's notifications as read
func (s *Store) MarkNotificationRead(ctx context.Context, userID, notificationID int64) (*models.Notification, error) {
	var n models.Notification
	err := s.db.GetContext(ctx, &n, `
		UPDATE notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND recipient_user_id = $2
		RETURNING *`,
		notificationID, userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", models.ErrNotificationNotFound, notificationID)
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// DeleteNotification removes one of the user's notifications
func (s *Store) DeleteNotification(ctx context.Context, userID, notificationID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE id = $1 AND recipient_user_id = $2", notificationID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", models.ErrNotificationNotFound, notificationID)
	}
	return nil
}

// GetNotificationPreferences returns saved preferences or the defaults
func (s *Store) GetNotificationPreferences(ctx context.Context, userID int64) (models.NotificationPreferences, error) {
	var prefs models.NotificationPreferences
	err := s.db.GetContext(ctx, &prefs,
		"SELECT user_id, email, sms, push FROM notification_preferences WHERE user_id = $1", userID)
	if err == sql.ErrNoRows {
		return models.DefaultNotificationPreferences(userID), nil
	}
	if err != nil {
		return prefs, err
	}
	return prefs, nil
}
