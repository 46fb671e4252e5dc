package database

import (
	"time"

	"marketplace-api/internal/models"

	"gorm.io/gorm"
)

// CreateOffer inserts an offer; a second pending offer for the same pair violates idx_offers_pending_pair
func CreateOffer(db *gorm.DB, offer *models.Offer) error {
	return db.Create(offer).Error
}

// GetOffer loads an offer by ID
func GetOffer(db *gorm.DB, id string) (*models.Offer, error) {
	var offer models.Offer
	if err := db.Where("id = ?", id).First(&offer).Error; err != nil {
		return nil, err
	}
	return &offer, nil
}

// FindPendingOffer returns the live pending offer for a (listing, buyer) pair
func FindPendingOffer(db *gorm.DB, listingID, buyerID string, now time.Time) (*models.Offer, error) {
	var offer models.Offer
	err := db.Where("listing_id = ? AND buyer_id = ? AND status = ? AND expires_at > ?",
		listingID, buyerID, models.OfferPending, now).First(&offer).Error
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// DeleteExpiredPendingOffer removes a pair's expired pending offer so it stops holding the unique slot
func DeleteExpiredPendingOffer(db *gorm.DB, listingID, buyerID string, now time.Time) error {
	return db.Where("listing_id = ? AND buyer_id = ? AND status = ? AND expires_at <= ?",
		listingID, buyerID, models.OfferPending, now).Delete(&models.Offer{}).Error
}

// PurgeExpiredOffers removes every expired pending offer
func PurgeExpiredOffers(db *gorm.DB, now time.Time) (int64, error) {
	result := db.Where("status = ? AND expires_at <= ?", models.OfferPending, now).Delete(&models.Offer{})
	return result.RowsAffected, result.Error
}

// TransitionOffer moves a live pending offer to status. It reports false when
// the offer was no longer pending or had expired.
func TransitionOffer(db *gorm.DB, id string, status models.OfferStatus, responseMessage string, now time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":       status,
		"responded_at": now,
	}
	if responseMessage != "" {
		updates["response_message"] = responseMessage
	}

	result := db.Model(&models.Offer{}).
		Where("id = ? AND status = ? AND expires_at > ?", id, models.OfferPending, now).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// RejectCompetingOffers rejects the other pending offers on a listing and returns them
func RejectCompetingOffers(db *gorm.DB, listingID, acceptedID, reason string, now time.Time) ([]models.Offer, error) {
	var offers []models.Offer
	if err := db.Where("listing_id = ? AND status = ? AND id <> ?", listingID, models.OfferPending, acceptedID).
		Find(&offers).Error; err != nil {
		return nil, err
	}
	if len(offers) == 0 {
		return nil, nil
	}

	ids := make([]string, len(offers))
	for i := range offers {
		ids[i] = offers[i].ID
	}
	err := db.Model(&models.Offer{}).
		Where("id IN ? AND status = ?", ids, models.OfferPending).
		Updates(map[string]interface{}{
			"status":           models.OfferRejected,
			"response_message": reason,
			"responded_at":     now,
		}).Error
	if err != nil {
		return nil, err
	}
	return offers, nil
}

// ListOffersBy lists offers where column (buyer_id or seller_id) equals userID, newest first
func ListOffersBy(db *gorm.DB, column, userID string) ([]models.Offer, error) {
	var offers []models.Offer
	err := db.Where(column+" = ?", userID).Order("created_at DESC").Find(&offers).Error
	return offers, err
}
