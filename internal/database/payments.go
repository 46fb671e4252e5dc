package database

import (
	"time"

	"marketplace-api/internal/models"

	"gorm.io/gorm"
)

// CreatePayment inserts a payment; a second live payment for an order violates idx_payments_live_order
func CreatePayment(db *gorm.DB, payment *models.Payment) error {
	return db.Create(payment).Error
}

// GetPayment loads a payment by ID
func GetPayment(db *gorm.DB, id string) (*models.Payment, error) {
	var payment models.Payment
	if err := db.Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindLivePayment returns the order's payment occupying the live slot, if any
func FindLivePayment(db *gorm.DB, orderID string) (*models.Payment, error) {
	var payment models.Payment
	err := db.Where("order_id = ? AND status IN ?", orderID, models.LivePaymentStatuses).
		Order("created_at DESC").First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// TransitionPayment applies updates only while the payment is in one of from
func TransitionPayment(db *gorm.DB, id string, from []models.PaymentStatus, updates map[string]interface{}) (bool, error) {
	result := db.Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CancelOpenPayments cancels the order's pending or initiated payments
func CancelOpenPayments(db *gorm.DB, orderID, reason string) error {
	return db.Model(&models.Payment{}).
		Where("order_id = ? AND status IN ?", orderID, []models.PaymentStatus{models.PaymentPending, models.PaymentInitiated}).
		Updates(map[string]interface{}{
			"status":         models.PaymentCancelled,
			"failure_reason": reason,
		}).Error
}

// ExpireOpenPayments cancels every pending or initiated payment past its expiry
func ExpireOpenPayments(db *gorm.DB, now time.Time) (int64, error) {
	result := db.Model(&models.Payment{}).
		Where("status IN ? AND expires_at <= ?", []models.PaymentStatus{models.PaymentPending, models.PaymentInitiated}, now).
		Updates(map[string]interface{}{
			"status":         models.PaymentCancelled,
			"failure_reason": "payment link expired",
		})
	return result.RowsAffected, result.Error
}

// ListPayments lists payments where userID is payer or payee, optionally filtered by status
func ListPayments(db *gorm.DB, userID string, status models.PaymentStatus, limit, offset int) ([]models.Payment, int64, error) {
	scope := func(tx *gorm.DB) *gorm.DB {
		tx = tx.Where("payer_user_id = ? OR payee_user_id = ?", userID, userID)
		if status != "" {
			tx = tx.Where("status = ?", status)
		}
		return tx
	}

	var total int64
	if err := db.Model(&models.Payment{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var payments []models.Payment
	err := db.Scopes(scope).Order("created_at DESC").Limit(limit).Offset(offset).Find(&payments).Error
	return payments, total, err
}
