package services

import (
	"context"
	"encoding/json"
	"errors"

	"marketplace-api/internal/apperror"
	"marketplace-api/internal/database"
	"marketplace-api/internal/models"
	"marketplace-api/pkg/logging"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const listingSoldElsewhere = "listing sold to another buyer"

// UpdateOrderStatusInput is a seller-driven order transition
type UpdateOrderStatusInput struct {
	Status         models.OrderStatus
	SellerNotes    string
	AccountDetails *models.AccountDetails
}

// OrderService drives orders from purchase request to credential delivery
type OrderService struct {
	db       *gorm.DB
	notifier Notifier
	payments PaymentSessionCreator
	now      Clock
}

// NewOrderService creates an order service; payments may be nil to skip link auto-issue
func NewOrderService(db *gorm.DB, notifier Notifier, payments PaymentSessionCreator) *OrderService {
	return &OrderService{
		db:       db,
		notifier: notifier,
		payments: payments,
		now:      systemClock,
	}
}

// SetClock replaces the time source
func (s *OrderService) SetClock(clock Clock) {
	s.now = clock
}

// CreateDirectOrder records a buyer's request to purchase a listing at its price.
// The listing stays available until the seller accepts.
func (s *OrderService) CreateDirectOrder(ctx context.Context, listingID, buyerID, buyerNotes string) (*models.Order, error) {
	var order *models.Order
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
			return apperror.Forbidden("you cannot purchase your own listing")
		}

		order = &models.Order{
			ListingID:     listing.ID,
			BuyerID:       buyerID,
			SellerID:      listing.SellerID,
			Amount:        listing.Price,
			Type:          models.OrderDirectPurchase,
			Status:        models.OrderPending,
			PaymentStatus: models.PaymentStatePending,
			BuyerNotes:    buyerNotes,
		}
		if err := database.CreateOrder(tx, order); err != nil {
			if database.IsDuplicateKey(err) {
				return apperror.Conflict("you already have a pending purchase request for this listing")
			}
			return err
		}
		return ensureListingAvailable(tx, listing.ID)
	})
	if err != nil {
		return nil, asAppError(err, "create order")
	}

	logging.WithFields(logrus.Fields{
		"order_id":   order.ID,
		"listing_id": order.ListingID,
		"buyer_id":   buyerID,
	}).Info("Purchase request created")

	s.notifier.Emit(ctx,
		PurchaseRequest{SellerID: order.SellerID, OrderID: order.ID, Amount: order.Amount},
		General{UserID: buyerID, Title: "Purchase request sent", Message: "Your purchase request was sent to the seller"},
	)
	return order, nil
}

// UpdateStatus applies a seller transition: pending -> accepted|rejected, or
// accepted -> completed with the account details once payment is confirmed
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, actorID string, input UpdateOrderStatusInput) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.SellerID != actorID {
		return nil, apperror.Forbidden("only the seller can update this order")
	}

	switch input.Status {
	case models.OrderAccepted, models.OrderRejected:
	case models.OrderCompleted:
		if input.AccountDetails.IsEmpty() {
			return nil, apperror.InvalidArgument("account details are required to complete an order")
		}
	default:
		return nil, apperror.InvalidArgument("status must be accepted, rejected or completed")
	}
	if order.Status.IsTerminal() {
		return nil, apperror.Conflict("order is already " + string(order.Status))
	}

	switch input.Status {
	case models.OrderAccepted:
		return s.accept(ctx, order, input.SellerNotes)
	case models.OrderRejected:
		return s.reject(ctx, order, input.SellerNotes)
	default:
		return s.complete(ctx, order, input)
	}
}

func (s *OrderService) accept(ctx context.Context, order *models.Order, sellerNotes string) (*models.Order, error) {
	if order.Status != models.OrderPending {
		return nil, apperror.Conflict("order is no longer pending")
	}

	var (
		rejectedOffers []models.Offer
		rejectedOrders []models.Order
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()

		sold, err := database.MarkListingSold(tx, order.ListingID)
		if err != nil {
			return err
		}
		if !sold {
			return apperror.Conflict("listing is already sold")
		}

		updates := map[string]interface{}{
			"status":      models.OrderAccepted,
			"accepted_at": now,
		}
		if sellerNotes != "" {
			updates["seller_notes"] = sellerNotes
		}
		ok, err := database.TransitionOrder(tx, order.ID, []models.OrderStatus{models.OrderPending}, updates)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.Conflict("order is no longer pending")
		}

		if rejectedOffers, err = database.RejectCompetingOffers(tx, order.ListingID, "", listingSoldElsewhere, now); err != nil {
			return err
		}
		rejectedOrders, err = database.RejectPendingOrders(tx, order.ListingID, order.ID, listingSoldElsewhere)
		return err
	})
	if err != nil {
		return nil, asAppError(err, "accept order")
	}

	logging.WithFields(logrus.Fields{
		"order_id":   order.ID,
		"listing_id": order.ListingID,
	}).Info("Order accepted, listing reserved")

	events := []Event{
		PurchaseAccepted{BuyerID: order.BuyerID, OrderID: order.ID},
		AccountSold{SellerID: order.SellerID, OrderID: order.ID, Amount: order.Amount},
	}
	s.notifier.Emit(ctx, append(events, competitorEvents(rejectedOffers, rejectedOrders)...)...)

	issuePaymentLink(ctx, s.payments, order.ID, order.BuyerID)

	return s.load(ctx, order.ID)
}

func (s *OrderService) reject(ctx context.Context, order *models.Order, sellerNotes string) (*models.Order, error) {
	if order.Status != models.OrderPending {
		return nil, apperror.Conflict("order is no longer pending")
	}

	updates := map[string]interface{}{"status": models.OrderRejected}
	if sellerNotes != "" {
		updates["seller_notes"] = sellerNotes
	}
	ok, err := database.TransitionOrder(s.db.WithContext(ctx), order.ID, []models.OrderStatus{models.OrderPending}, updates)
	if err != nil {
		return nil, apperror.Internal(err, "reject order")
	}
	if !ok {
		return nil, apperror.Conflict("order is no longer pending")
	}

	logging.Infof("Order %s rejected by seller", order.ID)
	s.notifier.Emit(ctx, PurchaseRejected{BuyerID: order.BuyerID, OrderID: order.ID, Reason: sellerNotes})
	return s.load(ctx, order.ID)
}

func (s *OrderService) complete(ctx context.Context, order *models.Order, input UpdateOrderStatusInput) (*models.Order, error) {
	if order.Status != models.OrderAccepted {
		return nil, apperror.Conflict("only accepted orders can be completed")
	}
	if order.PaymentStatus != models.PaymentStatePaid {
		return nil, apperror.PreconditionFailed("payment has not been received for this order")
	}

	details, err := json.Marshal(input.AccountDetails)
	if err != nil {
		return nil, apperror.InvalidArgument("invalid account details")
	}

	now := s.now()
	updates := map[string]interface{}{
		"status":            models.OrderCompleted,
		"account_details":   datatypes.JSON(details),
		"account_delivered": true,
		"delivered_at":      now,
		"completed_at":      now,
	}
	if input.SellerNotes != "" {
		updates["seller_notes"] = input.SellerNotes
	}
	ok, err := database.CompleteOrder(s.db.WithContext(ctx), order.ID, updates)
	if err != nil {
		return nil, apperror.Internal(err, "complete order")
	}
	if !ok {
		current, err := s.load(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == models.OrderAccepted {
			return nil, apperror.PreconditionFailed("payment has not been received for this order")
		}
		return nil, apperror.Conflict("only accepted orders can be completed")
	}

	logging.Infof("Order %s completed, account delivered to buyer %s", order.ID, order.BuyerID)
	s.notifier.Emit(ctx, AccountDelivered{BuyerID: order.BuyerID, OrderID: order.ID})
	return s.load(ctx, order.ID)
}

// MarkPaymentReceived lets the seller confirm payment manually when gateway
// reconciliation is delayed. It does not deliver the account.
func (s *OrderService) MarkPaymentReceived(ctx context.Context, orderID, actorID string) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.SellerID != actorID {
		return nil, apperror.Forbidden("only the seller can confirm payment")
	}
	if order.PaymentStatus == models.PaymentStatePaid {
		return order, nil
	}
	if order.Status != models.OrderPending && order.Status != models.OrderAccepted {
		return nil, apperror.Conflict("order is " + string(order.Status))
	}

	ok, err := database.MarkOrderPaid(s.db.WithContext(ctx), order.ID, s.now())
	if err != nil {
		return nil, apperror.Internal(err, "mark order paid")
	}
	if ok {
		logging.Infof("Payment for order %s confirmed manually by seller %s", order.ID, actorID)
		s.notifier.Emit(ctx, PaymentCompleted{UserID: order.BuyerID, OrderID: order.ID, Amount: order.Amount})
	}
	return s.load(ctx, order.ID)
}

// CancelOrder cancels a pending order, or an accepted order whose payment has not
// arrived; the latter releases the listing and closes any open payment link
func (s *OrderService) CancelOrder(ctx context.Context, orderID, actorID string) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsParticipant(actorID) {
		return nil, apperror.Forbidden("you are not a participant of this order")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := database.CancelOrder(tx, order.ID, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return apperror.Conflict("order can no longer be cancelled")
		}
		if order.Status != models.OrderAccepted {
			return nil
		}
		if _, err := database.ReleaseListing(tx, order.ListingID); err != nil {
			return err
		}
		return database.CancelOpenPayments(tx, order.ID, "order cancelled")
	})
	if err != nil {
		return nil, asAppError(err, "cancel order")
	}

	logging.Infof("Order %s cancelled by %s", order.ID, actorID)

	counterparty := order.SellerID
	if actorID == order.SellerID {
		counterparty = order.BuyerID
	}
	s.notifier.Emit(ctx, General{UserID: counterparty, Title: "Order cancelled", Message: "An order you are part of was cancelled"})
	return s.load(ctx, order.ID)
}

// GetOrder loads an order visible to its buyer or seller
func (s *OrderService) GetOrder(ctx context.Context, orderID, actorID string) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsParticipant(actorID) {
		return nil, apperror.Forbidden("you are not a participant of this order")
	}
	return order, nil
}

// ListOrders returns the actor's purchases or sales
func (s *OrderService) ListOrders(ctx context.Context, actorID, kind string) ([]models.Order, error) {
	var column string
	switch kind {
	case "", "purchases":
		column = "buyer_id"
	case "sales":
		column = "seller_id"
	default:
		return nil, apperror.InvalidArgument("type must be purchases or sales")
	}

	orders, err := database.ListOrdersBy(s.db.WithContext(ctx), column, actorID)
	if err != nil {
		return nil, apperror.Internal(err, "list orders")
	}
	return orders, nil
}

func (s *OrderService) load(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := database.GetOrder(s.db.WithContext(ctx), orderID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, apperror.NotFound("order not found")
		}
		return nil, apperror.Internal(err, "load order")
	}
	return order, nil
}

// issuePaymentLink pre-issues the buyer's payment link after an acceptance.
// Failure is logged only; the buyer can request the link again.
func issuePaymentLink(ctx context.Context, payments PaymentSessionCreator, orderID, buyerID string) {
	if payments == nil {
		return
	}
	if _, err := payments.CreateSession(ctx, orderID, buyerID); err != nil {
		logging.Errorf("Auto payment link failed - order: %s, error: %v", orderID, err)
	}
}

// competitorEvents notifies buyers who lost the listing to an acceptance
func competitorEvents(offers []models.Offer, orders []models.Order) []Event {
	events := make([]Event, 0, len(offers)+len(orders))
	for _, o := range offers {
		events = append(events, OfferRejected{BuyerID: o.BuyerID, OfferID: o.ID, Reason: listingSoldElsewhere})
	}
	for _, o := range orders {
		events = append(events, PurchaseRejected{BuyerID: o.BuyerID, OrderID: o.ID, Reason: listingSoldElsewhere})
	}
	return events
}

// asAppError keeps domain errors returned from a transaction and wraps the rest
// ensureListingAvailable fails the surrounding transaction when the listing was
// sold after it was first read
func ensureListingAvailable(tx *gorm.DB, listingID string) error {
	sold, err := database.IsListingSold(tx, listingID)
	if err != nil {
		return err
	}
	if sold {
		return apperror.Conflict("listing is already sold")
	}
	return nil
}

func asAppError(err error, op string) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperror.Internal(err, op)
}
