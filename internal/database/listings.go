package database

import (
	"marketplace-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetListing loads a listing by ID
func GetListing(db *gorm.DB, id string) (*models.Listing, error) {
	var listing models.Listing
	if err := db.Where("id = ?", id).First(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

// LockListing loads a listing with a row lock held until the transaction ends.
// Drivers without row locks (sqlite) ignore the clause.
func LockListing(tx *gorm.DB, id string) (*models.Listing, error) {
	var listing models.Listing
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

// IsListingSold re-reads the sold flag
func IsListingSold(db *gorm.DB, id string) (bool, error) {
	var sold bool
	if err := db.Model(&models.Listing{}).
		Where("id = ?", id).
		Select("sold").
		Scan(&sold).Error; err != nil {
		return false, err
	}
	return sold, nil
}

// CreateListing inserts a listing (used for seeding; listing CRUD lives in another service)
func CreateListing(db *gorm.DB, listing *models.Listing) error {
	return db.Create(listing).Error
}

// MarkListingSold flips sold false -> true. It reports false when another
// acceptance already won the listing.
func MarkListingSold(db *gorm.DB, id string) (bool, error) {
	result := db.Model(&models.Listing{}).
		Where("id = ? AND sold = ?", id, false).
		Update("sold", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// EnsureListingSold sets sold = true, succeeding when it already was
func EnsureListingSold(db *gorm.DB, id string) error {
	return db.Model(&models.Listing{}).
		Where("id = ?", id).
		Update("sold", true).Error
}

// ReleaseListing flips sold true -> false when a reserved order is cancelled
func ReleaseListing(db *gorm.DB, id string) (bool, error) {
	result := db.Model(&models.Listing{}).
		Where("id = ? AND sold = ?", id, true).
		Update("sold", false)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
