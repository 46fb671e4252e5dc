package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

type OrderType string

const (
	OrderDirectPurchase OrderType = "direct_purchase"
	OrderAcceptedOffer  OrderType = "accepted_offer"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderAccepted  OrderStatus = "accepted"
	OrderRejected  OrderStatus = "rejected"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
	OrderDisputed  OrderStatus = "disputed"
)

// IsTerminal reports whether no further seller transition is possible
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderRejected || s == OrderCancelled
}

type PaymentState string

const (
	PaymentStatePending  PaymentState = "pending"
	PaymentStatePaid     PaymentState = "paid"
	PaymentStateRefunded PaymentState = "refunded"
)

// AccountDetails are the credentials handed to the buyer once paid
type AccountDetails struct {
	GameID   string `json:"game_id,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// IsEmpty reports whether no credential field carries a value
func (d *AccountDetails) IsEmpty() bool {
	if d == nil {
		return true
	}
	for _, v := range []string{d.GameID, d.Email, d.Password, d.Notes} {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Order tracks a purchase from request through credential delivery
type Order struct {
	BaseModel

	ListingID      string    `json:"listing_id" gorm:"not null;size:36;index"`
	BuyerID        string    `json:"buyer_id" gorm:"not null;size:64;index"`
	SellerID       string    `json:"seller_id" gorm:"not null;size:64;index"`
	Amount         int64     `json:"amount" gorm:"not null"`
	Type           OrderType `json:"type" gorm:"not null;size:20"`
	RelatedOfferID *string   `json:"related_offer_id,omitempty" gorm:"size:36;index"` // set iff Type is accepted_offer

	Status        OrderStatus  `json:"status" gorm:"not null;size:20;index"`
	PaymentStatus PaymentState `json:"payment_status" gorm:"not null;size:20;default:'pending'"`

	BuyerNotes  string `json:"buyer_notes" gorm:"type:text"`
	SellerNotes string `json:"seller_notes" gorm:"type:text"`

	// Credentials are written only by the completion transition, which requires PaymentStatus = paid
	AccountDetails   datatypes.JSON `json:"account_details,omitempty"`
	AccountDelivered bool           `json:"account_delivered" gorm:"not null;default:false"`
	DeliveredAt      *time.Time     `json:"delivered_at,omitempty"`

	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}

// IsParticipant reports whether userID is the buyer or the seller
func (o *Order) IsParticipant(userID string) bool {
	return userID != "" && (userID == o.BuyerID || userID == o.SellerID)
}
