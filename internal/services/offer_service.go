package services

import (
	"context"
	"time"

	"marketplace-api/internal/apperror"
	"marketplace-api/internal/database"
	"marketplace-api/internal/models"
	"marketplace-api/pkg/logging"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DefaultOfferTTL is how long an offer stays open for the seller
const DefaultOfferTTL = 7 * 24 * time.Hour

// OfferService handles buyer offers and the seller's response to them
type OfferService struct {
	db       *gorm.DB
	notifier Notifier
	payments PaymentSessionCreator
	ttl      time.Duration
	now      Clock
}

// NewOfferService creates an offer service; payments may be nil to skip link auto-issue
func NewOfferService(db *gorm.DB, notifier Notifier, payments PaymentSessionCreator, ttl time.Duration) *OfferService {
	if ttl <= 0 {
		ttl = DefaultOfferTTL
	}
	return &OfferService{
		db:       db,
		notifier: notifier,
		payments: payments,
		ttl:      ttl,
		now:      systemClock,
	}
}

// SetClock replaces the time source
func (s *OfferService) SetClock(clock Clock) {
	s.now = clock
}

// CreateOffer places a below-asking offer on a listing. The listing row stays
// locked until the offer is stored, so a concurrent acceptance either sees the
// offer and rejects it or wins first and the offer is refused.
func (s *OfferService) CreateOffer(ctx context.Context, listingID, buyerID string, amount int64, message string) (*models.Offer, error) {
	var offer *models.Offer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		listing, err := database.LockListing(tx, listingID)
		if err != nil {
			if database.IsNotFound(err) {
				return apperror.NotFound("listing not found")
			}
			return err
		}
		if listing.Sold {
			return apperror.Conflict("listing is already sold")
		}
		if listing.SellerID == buyerID {
			return apperror.Forbidden("you cannot make an offer on your own listing")
		}
		if amount <= 0 || amount >= listing.Price {
			return apperror.InvalidArgument("offer amount must be greater than 0 and less than the listing price")
		}

		now := s.now()
		if _, err := database.FindPendingOffer(tx, listingID, buyerID, now); err == nil {
			return apperror.Conflict("you already have a pending offer on this listing")
		} else if !database.IsNotFound(err) {
			return err
		}

		// An expired pending row still holds the pair's unique slot
		if err := database.DeleteExpiredPendingOffer(tx, listingID, buyerID, now); err != nil {
			return err
		}

		offer = &models.Offer{
			ListingID: listing.ID,
			BuyerID:   buyerID,
			SellerID:  listing.SellerID,
			Amount:    amount,
			Message:   message,
			Status:    models.OfferPending,
			ExpiresAt: now.Add(s.ttl),
		}
		if err := database.CreateOffer(tx, offer); err != nil {
			if database.IsDuplicateKey(err) {
				return apperror.Conflict("you already have a pending offer on this listing")
			}
			return err
		}
		return ensureListingAvailable(tx, listing.ID)
	})
	if err != nil {
		return nil, asAppError(err, "create offer")
	}

	logging.WithFields(logrus.Fields{
		"offer_id":   offer.ID,
		"listing_id": offer.ListingID,
		"buyer_id":   buyerID,
		"amount":     amount,
	}).Info("Offer created")

	s.notifier.Emit(ctx, OfferReceived{SellerID: offer.SellerID, OfferID: offer.ID, Amount: amount})
	return offer, nil
}

// RespondToOffer applies the seller's decision. Accepting marks the offer
// accepted, reserves the listing and creates the order in one transaction.
// The order is nil for a rejection.
func (s *OfferService) RespondToOffer(ctx context.Context, offerID, actorID string, decision models.OfferStatus, responseMessage string) (*models.Offer, *models.Order, error) {
	if decision != models.OfferAccepted && decision != models.OfferRejected {
		return nil, nil, apperror.InvalidArgument("status must be accepted or rejected")
	}

	offer, err := s.load(ctx, offerID)
	if err != nil {
		return nil, nil, err
	}
	if offer.SellerID != actorID {
		return nil, nil, apperror.Forbidden("only the seller can respond to this offer")
	}
	if !offer.IsActionable(s.now()) {
		return nil, nil, apperror.Conflict("offer is no longer pending")
	}

	if decision == models.OfferRejected {
		ok, err := database.TransitionOffer(s.db.WithContext(ctx), offer.ID, models.OfferRejected, responseMessage, s.now())
		if err != nil {
			return nil, nil, apperror.Internal(err, "reject offer")
		}
		if !ok {
			return nil, nil, apperror.Conflict("offer is no longer pending")
		}

		logging.Infof("Offer %s rejected by seller", offer.ID)
		s.notifier.Emit(ctx, OfferRejected{BuyerID: offer.BuyerID, OfferID: offer.ID, Reason: responseMessage})

		offer, err = s.load(ctx, offer.ID)
		return offer, nil, err
	}

	var (
		order          *models.Order
		rejectedOffers []models.Offer
		rejectedOrders []models.Order
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()

		ok, err := database.TransitionOffer(tx, offer.ID, models.OfferAccepted, responseMessage, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.Conflict("offer is no longer pending")
		}

		sold, err := database.MarkListingSold(tx, offer.ListingID)
		if err != nil {
			return err
		}
		if !sold {
			return apperror.Conflict("listing is already sold")
		}

		offerID := offer.ID
		order = &models.Order{
			ListingID:      offer.ListingID,
			BuyerID:        offer.BuyerID,
			SellerID:       offer.SellerID,
			Amount:         offer.Amount,
			Type:           models.OrderAcceptedOffer,
			RelatedOfferID: &offerID,
			Status:         models.OrderAccepted,
			PaymentStatus:  models.PaymentStatePending,
			BuyerNotes:     offer.Message,
			AcceptedAt:     &now,
		}
		if err := database.CreateOrder(tx, order); err != nil {
			return err
		}

		if rejectedOffers, err = database.RejectCompetingOffers(tx, offer.ListingID, offer.ID, listingSoldElsewhere, now); err != nil {
			return err
		}
		rejectedOrders, err = database.RejectPendingOrders(tx, offer.ListingID, "", listingSoldElsewhere)
		return err
	})
	if err != nil {
		return nil, nil, asAppError(err, "accept offer")
	}

	logging.WithFields(logrus.Fields{
		"offer_id":   offer.ID,
		"order_id":   order.ID,
		"listing_id": offer.ListingID,
	}).Info("Offer accepted, order created")

	events := []Event{
		OfferAccepted{BuyerID: offer.BuyerID, OfferID: offer.ID, Amount: offer.Amount},
		AccountSold{SellerID: offer.SellerID, OrderID: order.ID, Amount: order.Amount},
	}
	s.notifier.Emit(ctx, append(events, competitorEvents(rejectedOffers, rejectedOrders)...)...)

	issuePaymentLink(ctx, s.payments, order.ID, order.BuyerID)

	offer, err = s.load(ctx, offer.ID)
	if err != nil {
		return nil, nil, err
	}
	return offer, order, nil
}

// CancelOffer withdraws the buyer's pending offer
func (s *OfferService) CancelOffer(ctx context.Context, offerID, actorID string) (*models.Offer, error) {
	offer, err := s.load(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.BuyerID != actorID {
		return nil, apperror.Forbidden("only the buyer can cancel this offer")
	}
	if !offer.IsActionable(s.now()) {
		return nil, apperror.Conflict("offer is no longer pending")
	}

	ok, err := database.TransitionOffer(s.db.WithContext(ctx), offer.ID, models.OfferCancelled, "", s.now())
	if err != nil {
		return nil, apperror.Internal(err, "cancel offer")
	}
	if !ok {
		return nil, apperror.Conflict("offer is no longer pending")
	}

	logging.Infof("Offer %s cancelled by buyer", offer.ID)
	return s.load(ctx, offer.ID)
}

// GetOffer loads an offer visible to its buyer or seller
func (s *OfferService) GetOffer(ctx context.Context, offerID, actorID string) (*models.Offer, error) {
	offer, err := s.load(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.BuyerID != actorID && offer.SellerID != actorID {
		return nil, apperror.Forbidden("you are not a participant of this offer")
	}
	return offer, nil
}

// ListOffers returns the offers the actor sent or received
func (s *OfferService) ListOffers(ctx context.Context, actorID, kind string) ([]models.Offer, error) {
	var column string
	switch kind {
	case "", "sent":
		column = "buyer_id"
	case "received":
		column = "seller_id"
	default:
		return nil, apperror.InvalidArgument("type must be sent or received")
	}

	offers, err := database.ListOffersBy(s.db.WithContext(ctx), column, actorID)
	if err != nil {
		return nil, apperror.Internal(err, "list offers")
	}
	return offers, nil
}

func (s *OfferService) load(ctx context.Context, offerID string) (*models.Offer, error) {
	offer, err := database.GetOffer(s.db.WithContext(ctx), offerID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, apperror.NotFound("offer not found")
		}
		return nil, apperror.Internal(err, "load offer")
	}
	return offer, nil
}
