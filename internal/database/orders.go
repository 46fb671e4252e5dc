package database

import (
	"time"

	"marketplace-api/internal/models"

	"gorm.io/gorm"
)

// CreateOrder inserts an order
func CreateOrder(db *gorm.DB, order *models.Order) error {
	return db.Create(order).Error
}

// GetOrder loads an order by ID
func GetOrder(db *gorm.DB, id string) (*models.Order, error) {
	var order models.Order
	if err := db.Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// TransitionOrder applies updates only while the order is in one of from.
// It reports false when the order had already moved on.
func TransitionOrder(db *gorm.DB, id string, from []models.OrderStatus, updates map[string]interface{}) (bool, error) {
	result := db.Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CompleteOrder stores credentials and completes an accepted, paid order
func CompleteOrder(db *gorm.DB, id string, updates map[string]interface{}) (bool, error) {
	result := db.Model(&models.Order{}).
		Where("id = ? AND status = ? AND payment_status = ?", id, models.OrderAccepted, models.PaymentStatePaid).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkOrderPaid flips payment_status pending -> paid on a live order
func MarkOrderPaid(db *gorm.DB, id string, now time.Time) (bool, error) {
	result := db.Model(&models.Order{}).
		Where("id = ? AND payment_status = ? AND status IN ?", id, models.PaymentStatePending,
			[]models.OrderStatus{models.OrderPending, models.OrderAccepted}).
		Updates(map[string]interface{}{
			"payment_status": models.PaymentStatePaid,
			"paid_at":        now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListOrdersBy lists orders where column (buyer_id or seller_id) equals userID, newest first
func ListOrdersBy(db *gorm.DB, column, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := db.Where(column+" = ?", userID).Order("created_at DESC").Find(&orders).Error
	return orders, err
}

// RejectPendingOrders rejects the other pending purchase requests on a listing and returns them
func RejectPendingOrders(db *gorm.DB, listingID, exceptID, reason string) ([]models.Order, error) {
	var orders []models.Order
	if err := db.Where("listing_id = ? AND status = ? AND id <> ?", listingID, models.OrderPending, exceptID).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}

	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	err := db.Model(&models.Order{}).
		Where("id IN ? AND status = ?", ids, models.OrderPending).
		Updates(map[string]interface{}{
			"status":       models.OrderRejected,
			"seller_notes": reason,
		}).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// CancelOrder cancels a pending order, or an accepted one that is still unpaid
func CancelOrder(db *gorm.DB, id string, now time.Time) (bool, error) {
	result := db.Model(&models.Order{}).
		Where("id = ? AND (status = ? OR (status = ? AND payment_status = ?))",
			id, models.OrderPending, models.OrderAccepted, models.PaymentStatePending).
		Updates(map[string]interface{}{
			"status":       models.OrderCancelled,
			"cancelled_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
