package models

// Notification is one row of a user's polled notification feed
type Notification struct {
	BaseModel

	UserID  string `json:"user_id" gorm:"not null;size:64;index"`
	Type    string `json:"type" gorm:"not null;size:40"`
	Title   string `json:"title" gorm:"size:200"`
	Message string `json:"message" gorm:"type:text"`

	RelatedOfferID   *string `json:"related_offer_id,omitempty" gorm:"size:36"`
	RelatedOrderID   *string `json:"related_order_id,omitempty" gorm:"size:36"`
	RelatedPaymentID *string `json:"related_payment_id,omitempty" gorm:"size:36"`

	Read bool `json:"read" gorm:"not null;default:false;index"`
}

func (Notification) TableName() string {
	return "notifications"
}
