package services

import (
	"context"
	"encoding/json"
	"time"

	"marketplace-api/internal/apperror"
	"marketplace-api/internal/database"
	"marketplace-api/internal/models"
	"marketplace-api/pkg/logging"

	"gorm.io/gorm"
)

// Notifier is the fire-and-forget side channel used by the lifecycle services.
// Emit never fails the caller.
type Notifier interface {
	Emit(ctx context.Context, events ...Event)
}

// NotificationService persists notifications for polling clients and
// optionally fans them out to a broker
type NotificationService struct {
	db        *gorm.DB
	publisher EventPublisher
}

// NewNotificationService creates a notification service; publisher may be nil
func NewNotificationService(db *gorm.DB, publisher EventPublisher) *NotificationService {
	return &NotificationService{db: db, publisher: publisher}
}

// Emit stores and publishes each event, logging and swallowing failures
func (s *NotificationService) Emit(ctx context.Context, events ...Event) {
	for _, event := range events {
		notification := event.toNotification()
		if notification.UserID == "" {
			continue
		}

		if err := database.CreateNotification(s.db.WithContext(ctx), notification); err != nil {
			logging.Errorf("Failed to store notification - type: %s, user: %s, error: %v", event.Type(), notification.UserID, err)
			continue
		}

		if s.publisher != nil {
			s.publish(ctx, event.Type(), notification)
		}
	}
}

func (s *NotificationService) publish(ctx context.Context, t NotificationType, notification *models.Notification) {
	body, err := json.Marshal(notification)
	if err != nil {
		logging.Errorf("Failed to marshal notification %s: %v", notification.ID, err)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.publisher.Publish(pubCtx, "notification."+string(t), body); err != nil {
		logging.Errorf("Failed to publish notification %s: %v", notification.ID, err)
	}
}

// List returns the user's feed
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	notifications, err := database.ListNotifications(s.db.WithContext(ctx), userID, unreadOnly, limit)
	if err != nil {
		return nil, apperror.Internal(err, "list notifications")
	}
	return notifications, nil
}

// MarkRead marks one of the user's notifications read
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	ok, err := database.MarkNotificationRead(s.db.WithContext(ctx), id, userID)
	if err != nil {
		return apperror.Internal(err, "mark notification read")
	}
	if !ok {
		return apperror.NotFound("notification not found")
	}
	return nil
}
