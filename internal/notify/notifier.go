package notify

import (
	"context"
	"encoding/json"
	"time"

	"fuel-order-service/internal/models"
	"fuel-order-service/internal/push"
	"fuel-order-service/internal/store"
	"fuel-order-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Request describes one notification for one recipient
type Request struct {
	RecipientUserID int64
	Type            string
	Title           string
	Message         string
	Payload         interface{}
	Priority        string
}

// Notifier records and fans out notifications. It never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, req Request)
}

// Sender delivers a notification over an out-of-band channel (email, sms)
type Sender interface {
	Channel() string
	Send(ctx context.Context, to models.User, n *models.Notification) error
}

// UserDirectory resolves contact details for out-of-band channels
type UserDirectory interface {
	GetUsersByIDs(ctx context.Context, ids []int64) ([]models.User, error)
}

// Service is the default Notifier: the persisted notification is the durable record,
// push and senders are best-effort mirrors of it.
type Service struct {
	store   store.NotificationStore
	users   UserDirectory
	push    push.Channel
	senders map[string]Sender
	logger  *zap.Logger
}

// NewService creates a new notification service
func NewService(ns store.NotificationStore, users UserDirectory, pc push.Channel, senders ...Sender) *Service {
	if pc == nil {
		pc = push.Noop{}
	}
	byChannel := make(map[string]Sender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}
	return &Service{
		store:   ns,
		users:   users,
		push:    pc,
		senders: byChannel,
		logger:  util.Named("notify"),
	}
}

// ChannelsFor derives the delivery channels from preferences and priority.
// in_app is always present.
func ChannelsFor(prefs models.NotificationPreferences, priority string) models.StringList {
	rank := models.PriorityRank(priority)
	channels := models.StringList{models.ChannelInApp}
	if prefs.Push {
		channels = append(channels, models.ChannelPush)
	}
	if prefs.Email && rank >= models.PriorityRank(models.PriorityNormal) {
		channels = append(channels, models.ChannelEmail)
	}
	if prefs.SMS && rank >= models.PriorityRank(models.PriorityHigh) {
		channels = append(channels, models.ChannelSMS)
	}
	return channels
}

// Notify persists the notification and mirrors it to the derived channels
func (s *Service) Notify(ctx context.Context, req Request) {
	ctx, span := util.StartSpan(ctx, "Notifier.Notify",
		attribute.Int64("recipient_user_id", req.RecipientUserID),
		attribute.String("type", req.Type))
	defer span.End()

	if req.RecipientUserID == 0 {
		return
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}

	logger := s.logger.With(
		zap.Int64("recipient_user_id", req.RecipientUserID),
		zap.String("type", req.Type))

	prefs, err := s.store.GetNotificationPreferences(ctx, req.RecipientUserID)
	if err != nil {
		logger.Warn("Failed to load notification preferences, using defaults", zap.Error(err))
		prefs = models.DefaultNotificationPreferences(req.RecipientUserID)
	}

	n := &models.Notification{
		RecipientUserID: req.RecipientUserID,
		Type:            req.Type,
		Title:           req.Title,
		Message:         req.Message,
		Priority:        req.Priority,
		Channels:        ChannelsFor(prefs, req.Priority),
	}
	if req.Payload != nil {
		payload, err := json.Marshal(req.Payload)
		if err != nil {
			logger.Warn("Failed to encode notification payload", zap.Error(err))
		} else {
			n.Payload = payload
		}
	}

	if err := s.store.InsertNotification(ctx, n); err != nil {
		util.RecordError(span, err)
		util.NotificationDeliveryFailures.WithLabelValues(models.ChannelInApp).Inc()
		logger.Error("Failed to persist notification", zap.Error(err))
		return
	}
	util.NotificationsCreatedTotal.WithLabelValues(req.Type).Inc()

	if n.Channels.Contains(models.ChannelPush) {
		if err := s.push.PushToUser(ctx, req.RecipientUserID, MessageOf(n)); err != nil {
			util.NotificationDeliveryFailures.WithLabelValues(models.ChannelPush).Inc()
			logger.Warn("Failed to push notification", zap.Int64("notification_id", n.ID), zap.Error(err))
		}
	}

	s.sendOutOfBand(ctx, logger, n)
}

func (s *Service) sendOutOfBand(ctx context.Context, logger *zap.Logger, n *models.Notification) {
	var pending []Sender
	for _, ch := range []string{models.ChannelEmail, models.ChannelSMS} {
		if sender, ok := s.senders[ch]; ok && n.Channels.Contains(ch) {
			pending = append(pending, sender)
		}
	}
	if len(pending) == 0 || s.users == nil {
		return
	}

	users, err := s.users.GetUsersByIDs(ctx, []int64{n.RecipientUserID})
	if err != nil || len(users) == 0 {
		logger.Warn("Recipient contact details unavailable", zap.Error(err))
		return
	}

	for _, sender := range pending {
		if err := sender.Send(ctx, users[0], n); err != nil {
			util.NotificationDeliveryFailures.WithLabelValues(sender.Channel()).Inc()
			logger.Warn("Failed to send notification",
				zap.String("channel", sender.Channel()),
				zap.Int64("notification_id", n.ID),
				zap.Error(err))
		}
	}
}

// MessageOf converts a persisted notification into its push mirror
func MessageOf(n *models.Notification) push.Message {
	sentAt := n.CreatedAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	return push.Message{
		NotificationID: n.ID,
		Type:           n.Type,
		Title:          n.Title,
		Message:        n.Message,
		Priority:       n.Priority,
		Payload:        n.Payload,
		SentAt:         sentAt,
	}
}

// List returns the recipient's notifications, newest first
func (s *Service) List(ctx context.Context, userID int64, unreadOnly bool, page store.PageRequest) ([]models.Notification, int, error) {
	return s.store.ListNotifications(ctx, userID, unreadOnly, page.Normalize())
}

// MarkRead marks one of the recipient's notifications as read
func (s *Service) MarkRead(ctx context.Context, userID, notificationID int64) (*models.Notification, error) {
	return s.store.MarkNotificationRead(ctx, userID, notificationID)
}

// Delete removes one of the recipient's notifications
func (s *Service) Delete(ctx context.Context, userID, notificationID int64) error {
	return s.store.DeleteNotification(ctx, userID, notificationID)
}
