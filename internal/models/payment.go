package models

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentInitiated PaymentStatus = "initiated"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentRefunded  PaymentStatus = "refunded"
)

// LivePaymentStatuses occupy an order's single payment slot
var LivePaymentStatuses = []PaymentStatus{PaymentPending, PaymentInitiated, PaymentCompleted}

// IsOpen reports whether the payment can still be reconciled by the gateway
func (s PaymentStatus) IsOpen() bool {
	return s == PaymentPending || s == PaymentInitiated
}

// Payment is a hosted-checkout session and its reconciled outcome
type Payment struct {
	BaseModel

	OrderID       string `json:"order_id" gorm:"not null;size:36;index"`
	TransactionID string `json:"transaction_id" gorm:"not null;size:64;uniqueIndex"`
	PayerUserID   string `json:"payer_user_id" gorm:"not null;size:64;index"`
	PayeeUserID   string `json:"payee_user_id" gorm:"not null;size:64;index"`
	Amount        int64  `json:"amount" gorm:"not null"`

	Status PaymentStatus `json:"status" gorm:"not null;size:20;index"`

	// Gateway fields
	GatewayOrderID          string         `json:"gateway_order_id" gorm:"size:64;uniqueIndex"`
	GatewayTransactionToken string         `json:"-" gorm:"size:255"`
	GatewayPaymentLink      string         `json:"payment_link,omitempty" gorm:"type:text"`
	GatewayTransactionID    string         `json:"gateway_transaction_id,omitempty" gorm:"size:100"`
	GatewayResponse         datatypes.JSON `json:"-"` // stored verbatim for audit

	FailureReason string     `json:"failure_reason,omitempty" gorm:"type:text"`
	ExpiresAt     time.Time  `json:"expires_at" gorm:"not null;index"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func (Payment) TableName() string {
	return "payments"
}

// IsParticipant reports whether userID is the payer or the payee
func (p *Payment) IsParticipant(userID string) bool {
	return userID != "" && (userID == p.PayerUserID || userID == p.PayeeUserID)
}
