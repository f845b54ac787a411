package push

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Message is the real-time mirror of a persisted notification
type Message struct {
	NotificationID int64           `json:"notification_id,omitempty"`
	Type           string          `json:"type"`
	Title          string          `json:"title"`
	Message        string          `json:"message"`
	Priority       string          `json:"priority"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	SentAt         time.Time       `json:"sent_at"`
}

// Channel delivers messages to connected clients. Delivery is best-effort and
// at-most-once; offline recipients rely on the persisted notification.
type Channel interface {
	PushToUser(ctx context.Context, userID int64, msg Message) error
	PushToRole(ctx context.Context, role string, msg Message) error
}

// Subscriber opens a live feed for one user, including broadcasts to the user's role.
// The returned cancel func releases the subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, userID int64, role string) (<-chan Message, func(), error)
}

// UserChannel is the pub/sub channel for a single user
func UserChannel(userID int64) string {
	return fmt.Sprintf("push:user:%d", userID)
}

// RoleChannel is the pub/sub channel for every user of a role
func RoleChannel(role string) string {
	return "push:role:" + role
}

// Noop discards every message
type Noop struct{}

func (Noop) PushToUser(ctx context.Context, userID int64, msg Message) error { return nil }

func (Noop) PushToRole(ctx context.Context, role string, msg Message) error { return nil }
