package database

import (
	"marketplace-api/internal/models"

	"gorm.io/gorm"
)

// CreateNotification stores one feed entry
func CreateNotification(db *gorm.DB, notification *models.Notification) error {
	return db.Create(notification).Error
}

// ListNotifications returns a user's feed, newest first
func ListNotifications(db *gorm.DB, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	query := db.Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("read = ?", false)
	}

	var notifications []models.Notification
	err := query.Order("created_at DESC").Limit(limit).Find(&notifications).Error
	return notifications, err
}

// MarkNotificationRead marks one of the user's notifications read
func MarkNotificationRead(db *gorm.DB, id, userID string) (bool, error) {
	result := db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
