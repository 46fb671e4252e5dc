package services

import (
	"fmt"

	"marketplace-api/internal/models"
)

type NotificationType string

const (
	NotificationOfferReceived      NotificationType = "offer_received"
	NotificationOfferAccepted      NotificationType = "offer_accepted"
	NotificationOfferRejected      NotificationType = "offer_rejected"
	NotificationPurchaseRequest    NotificationType = "purchase_request"
	NotificationPurchaseAccepted   NotificationType = "purchase_accepted"
	NotificationPurchaseRejected   NotificationType = "purchase_rejected"
	NotificationAccountSold        NotificationType = "account_sold"
	NotificationPaymentLinkCreated NotificationType = "payment_link_created"
	NotificationPaymentCompleted   NotificationType = "payment_completed"
	NotificationPaymentFailed      NotificationType = "payment_failed"
	NotificationAccountDelivered   NotificationType = "account_delivered"
	NotificationGeneral            NotificationType = "general"
)

// Event is one notification variant. The set is closed: only types in this
// file implement toNotification.
type Event interface {
	Type() NotificationType
	toNotification() *models.Notification
}

func offerNote(userID string, t NotificationType, title, message, offerID string) *models.Notification {
	return &models.Notification{UserID: userID, Type: string(t), Title: title, Message: message, RelatedOfferID: &offerID}
}

func orderNote(userID string, t NotificationType, title, message, orderID string) *models.Notification {
	return &models.Notification{UserID: userID, Type: string(t), Title: title, Message: message, RelatedOrderID: &orderID}
}

func rupees(amount int64) string {
	return fmt.Sprintf("₹%d", amount)
}

type OfferReceived struct {
	SellerID string
	OfferID  string
	Amount   int64
}

func (e OfferReceived) Type() NotificationType { return NotificationOfferReceived }
func (e OfferReceived) toNotification() *models.Notification {
	return offerNote(e.SellerID, e.Type(), "New offer received",
		fmt.Sprintf("You received an offer of %s on your listing", rupees(e.Amount)), e.OfferID)
}

type OfferAccepted struct {
	BuyerID string
	OfferID string
	Amount  int64
}

func (e OfferAccepted) Type() NotificationType { return NotificationOfferAccepted }
func (e OfferAccepted) toNotification() *models.Notification {
	return offerNote(e.BuyerID, e.Type(), "Offer accepted",
		fmt.Sprintf("Your offer of %s was accepted. Complete the payment to receive the account", rupees(e.Amount)), e.OfferID)
}

type OfferRejected struct {
	BuyerID string
	OfferID string
	Reason  string
}

func (e OfferRejected) Type() NotificationType { return NotificationOfferRejected }
func (e OfferRejected) toNotification() *models.Notification {
	message := "Your offer was rejected"
	if e.Reason != "" {
		message += ": " + e.Reason
	}
	return offerNote(e.BuyerID, e.Type(), "Offer rejected", message, e.OfferID)
}

type PurchaseRequest struct {
	SellerID string
	OrderID  string
	Amount   int64
}

func (e PurchaseRequest) Type() NotificationType { return NotificationPurchaseRequest }
func (e PurchaseRequest) toNotification() *models.Notification {
	return orderNote(e.SellerID, e.Type(), "New purchase request",
		fmt.Sprintf("A buyer wants to purchase your listing for %s", rupees(e.Amount)), e.OrderID)
}

type PurchaseAccepted struct {
	BuyerID string
	OrderID string
}

func (e PurchaseAccepted) Type() NotificationType { return NotificationPurchaseAccepted }
func (e PurchaseAccepted) toNotification() *models.Notification {
	return orderNote(e.BuyerID, e.Type(), "Purchase accepted",
		"The seller accepted your purchase request. Complete the payment to receive the account", e.OrderID)
}

type PurchaseRejected struct {
	BuyerID string
	OrderID string
	Reason  string
}

func (e PurchaseRejected) Type() NotificationType { return NotificationPurchaseRejected }
func (e PurchaseRejected) toNotification() *models.Notification {
	message := "Your purchase request was rejected"
	if e.Reason != "" {
		message += ": " + e.Reason
	}
	return orderNote(e.BuyerID, e.Type(), "Purchase rejected", message, e.OrderID)
}

type AccountSold struct {
	SellerID string
	OrderID  string
	Amount   int64
}

func (e AccountSold) Type() NotificationType { return NotificationAccountSold }
func (e AccountSold) toNotification() *models.Notification {
	return orderNote(e.SellerID, e.Type(), "Account sold",
		fmt.Sprintf("Your account was sold for %s. Waiting for the buyer's payment", rupees(e.Amount)), e.OrderID)
}

type PaymentLinkCreated struct {
	UserID  string
	OrderID string
	Amount  int64
}

func (e PaymentLinkCreated) Type() NotificationType { return NotificationPaymentLinkCreated }
func (e PaymentLinkCreated) toNotification() *models.Notification {
	return orderNote(e.UserID, e.Type(), "Payment link ready",
		fmt.Sprintf("A payment link for %s has been created", rupees(e.Amount)), e.OrderID)
}

type PaymentCompleted struct {
	UserID  string
	OrderID string
	Amount  int64
}

func (e PaymentCompleted) Type() NotificationType { return NotificationPaymentCompleted }
func (e PaymentCompleted) toNotification() *models.Notification {
	return orderNote(e.UserID, e.Type(), "Payment completed",
		fmt.Sprintf("Payment of %s has been confirmed", rupees(e.Amount)), e.OrderID)
}

type PaymentFailed struct {
	UserID  string
	OrderID string
	Reason  string
}

func (e PaymentFailed) Type() NotificationType { return NotificationPaymentFailed }
func (e PaymentFailed) toNotification() *models.Notification {
	message := "Your payment failed"
	if e.Reason != "" {
		message += ": " + e.Reason
	}
	return orderNote(e.UserID, e.Type(), "Payment failed", message, e.OrderID)
}

type AccountDelivered struct {
	BuyerID string
	OrderID string
}

func (e AccountDelivered) Type() NotificationType { return NotificationAccountDelivered }
func (e AccountDelivered) toNotification() *models.Notification {
	return orderNote(e.BuyerID, e.Type(), "Account delivered",
		"The seller has delivered the account details for your order", e.OrderID)
}

type General struct {
	UserID  string
	Title   string
	Message string
}

func (e General) Type() NotificationType { return NotificationGeneral }
func (e General) toNotification() *models.Notification {
	return &models.Notification{UserID: e.UserID, Type: string(e.Type()), Title: e.Title, Message: e.Message}
}
