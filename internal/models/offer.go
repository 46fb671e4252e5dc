package models

import "time"

type OfferStatus string

const (
	OfferPending   OfferStatus = "pending"
	OfferAccepted  OfferStatus = "accepted"
	OfferRejected  OfferStatus = "rejected"
	OfferCancelled OfferStatus = "cancelled"
)

// Offer is a buyer's below-asking bid on a listing
type Offer struct {
	BaseModel

	ListingID string `json:"listing_id" gorm:"not null;size:36;index"`
	BuyerID   string `json:"buyer_id" gorm:"not null;size:64;index"`
	SellerID  string `json:"seller_id" gorm:"not null;size:64;index"` // copied from the listing at creation

	Amount          int64       `json:"amount" gorm:"not null"`
	Message         string      `json:"message" gorm:"type:text"`
	Status          OfferStatus `json:"status" gorm:"not null;size:20;index"`
	ResponseMessage string      `json:"response_message" gorm:"type:text"`

	ExpiresAt   time.Time  `json:"expires_at" gorm:"not null;index"`
	RespondedAt *time.Time `json:"responded_at"`
}

func (Offer) TableName() string {
	return "offers"
}

// IsActionable reports whether the offer can still be responded to or cancelled at now
func (o *Offer) IsActionable(now time.Time) bool {
	return o.Status == OfferPending && now.Before(o.ExpiresAt)
}
