package models

// Listing is the slice of a game-account listing this service depends on.
// Listing CRUD lives elsewhere; Sold is only ever flipped through a conditional update.
type Listing struct {
	BaseModel

	SellerID string `json:"seller_id" gorm:"not null;size:64;index"`
	Title    string `json:"title" gorm:"size:200"`
	Price    int64  `json:"price" gorm:"not null"`
	Sold     bool   `json:"sold" gorm:"not null;default:false;index"`
}

func (Listing) TableName() string {
	return "listings"
}
