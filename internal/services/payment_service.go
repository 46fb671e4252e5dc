package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"marketplace-api/internal/apperror"
	"marketplace-api/internal/database"
	"marketplace-api/internal/models"
	"marketplace-api/pkg/logging"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Callback field names sent by the gateway
const (
	FieldOrderID   = "ORDERID"
	FieldTxnID     = "TXNID"
	FieldTxnAmount = "TXNAMOUNT"
	FieldStatus    = "STATUS"
	FieldRespCode  = "RESPCODE"
	FieldRespMsg   = "RESPMSG"
)

const (
	callbackValidationFailed = "callback validation failed"
	gatewayAmountMismatch    = "gateway amount mismatch"
)

// PaymentSessionCreator issues payment links for accepted orders
type PaymentSessionCreator interface {
	CreateSession(ctx context.Context, orderID, actorID string) (*models.Payment, error)
}

// PaymentConfig holds the orchestrator settings
type PaymentConfig struct {
	MerchantKey    string        // shared checksum secret
	PublicBaseURL  string        // used to build the callback URL
	PaymentTTL     time.Duration // lifetime of a payment link
	GatewayTimeout time.Duration // bound for each gateway call
}

// PaymentService opens gateway sessions and reconciles their outcome
type PaymentService struct {
	db       *gorm.DB
	gateway  PaymentGateway
	notifier Notifier
	guard    CallbackGuard
	cfg      PaymentConfig
	now      Clock
	inflight singleflight.Group
}

// NewPaymentService creates a payment service; guard may be nil
func NewPaymentService(db *gorm.DB, gateway PaymentGateway, notifier Notifier, guard CallbackGuard, cfg PaymentConfig) *PaymentService {
	if cfg.PaymentTTL <= 0 {
		cfg.PaymentTTL = 24 * time.Hour
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 15 * time.Second
	}
	return &PaymentService{
		db:       db,
		gateway:  gateway,
		notifier: notifier,
		guard:    guard,
		cfg:      cfg,
		now:      systemClock,
	}
}

// SetClock replaces the time source
func (s *PaymentService) SetClock(clock Clock) {
	s.now = clock
}

// CreateSession returns a payment link for an accepted order, reusing the live one if any.
// Concurrent requests for one order share a single gateway call.
func (s *PaymentService) CreateSession(ctx context.Context, orderID, actorID string) (*models.Payment, error) {
	order, err := database.GetOrder(s.db.WithContext(ctx), orderID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, apperror.NotFound("order not found")
		}
		return nil, apperror.Internal(err, "load order")
	}
	if !order.IsParticipant(actorID) {
		return nil, apperror.Forbidden("you are not a participant of this order")
	}

	v, err, _ := s.inflight.Do(orderID, func() (interface{}, error) {
		return s.createSession(ctx, orderID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Payment), nil
}

func (s *PaymentService) createSession(ctx context.Context, orderID string) (*models.Payment, error) {
	db := s.db.WithContext(ctx)
	now := s.now()

	// Reload under the flight so a sibling request's result is visible
	order, err := database.GetOrder(db, orderID)
	if err != nil {
		return nil, apperror.Internal(err, "load order")
	}
	if order.Status != models.OrderAccepted {
		return nil, apperror.Conflict("order is not accepted")
	}
	if order.PaymentStatus == models.PaymentStatePaid {
		return nil, apperror.Conflict("order is already paid")
	}

	existing, err := database.FindLivePayment(db, orderID)
	if err != nil && !database.IsNotFound(err) {
		return nil, apperror.Internal(err, "load payment")
	}
	if existing != nil {
		reused, err := s.settleExisting(db, existing, now)
		if err != nil || reused != nil {
			return reused, err
		}
	}

	payment := &models.Payment{
		OrderID:        order.ID,
		TransactionID:  newTransactionID(),
		PayerUserID:    order.BuyerID,
		PayeeUserID:    order.SellerID,
		Amount:         order.Amount,
		Status:         models.PaymentPending,
		GatewayOrderID: newGatewayOrderID(order.ID, now),
		ExpiresAt:      now.Add(s.cfg.PaymentTTL),
	}
	payment.ID = uuid.NewString()

	if err := database.CreatePayment(db, payment); err != nil {
		if database.IsDuplicateKey(err) {
			return s.liveAfterRace(db, orderID)
		}
		return nil, apperror.Internal(err, "create payment")
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	session, err := s.gateway.CreateSession(gwCtx, SessionRequest{
		GatewayOrderID: payment.GatewayOrderID,
		Amount:         payment.Amount,
		CustomerID:     payment.PayerUserID,
		CallbackURL:    s.callbackURL(payment.ID),
	})
	if err != nil {
		logging.Errorf("Gateway session failed - payment: %s, order: %s, error: %v", payment.ID, orderID, err)
		if _, uerr := database.TransitionPayment(db, payment.ID,
			[]models.PaymentStatus{models.PaymentPending},
			map[string]interface{}{
				"status":         models.PaymentFailed,
				"failure_reason": truncate(err.Error(), 500),
			}); uerr != nil {
			logging.Errorf("Failed to mark payment %s failed: %v", payment.ID, uerr)
		}
		return nil, apperror.Gateway(err, "payment gateway is unavailable, please retry")
	}

	ok, err := database.TransitionPayment(db, payment.ID,
		[]models.PaymentStatus{models.PaymentPending},
		map[string]interface{}{
			"status":                    models.PaymentInitiated,
			"gateway_transaction_token": session.TransactionToken,
			"gateway_payment_link":      session.PaymentLink,
			"gateway_response":          datatypes.JSON(session.Raw),
		})
	if err != nil {
		return nil, apperror.Internal(err, "update payment")
	}
	if !ok {
		// cancelled underneath us, e.g. by an order cancellation
		return nil, apperror.Conflict("payment was cancelled")
	}

	logging.WithFields(logrus.Fields{
		"payment_id":       payment.ID,
		"order_id":         orderID,
		"gateway_order_id": payment.GatewayOrderID,
	}).Info("Payment session created")

	s.notifier.Emit(ctx,
		PaymentLinkCreated{UserID: payment.PayerUserID, OrderID: orderID, Amount: payment.Amount},
		PaymentLinkCreated{UserID: payment.PayeeUserID, OrderID: orderID, Amount: payment.Amount},
	)

	return s.reload(db, payment.ID)
}

// settleExisting decides what to do with the payment already holding the
// order's live slot. It returns the payment to reuse, or nil once the slot is free.
func (s *PaymentService) settleExisting(db *gorm.DB, existing *models.Payment, now time.Time) (*models.Payment, error) {
	switch existing.Status {
	case models.PaymentCompleted:
		return nil, apperror.Conflict("order is already paid")

	case models.PaymentInitiated:
		if now.Before(existing.ExpiresAt) {
			return existing, nil
		}
		if _, err := database.TransitionPayment(db, existing.ID,
			[]models.PaymentStatus{models.PaymentInitiated},
			map[string]interface{}{
				"status":         models.PaymentCancelled,
				"failure_reason": "payment link expired",
			}); err != nil {
			return nil, apperror.Internal(err, "expire payment")
		}

	case models.PaymentPending:
		// A pending row younger than the gateway timeout belongs to a call still in flight
		if now.Sub(existing.CreatedAt) < 2*s.cfg.GatewayTimeout {
			return nil, apperror.Conflict("payment session creation is in progress")
		}
		if _, err := database.TransitionPayment(db, existing.ID,
			[]models.PaymentStatus{models.PaymentPending},
			map[string]interface{}{
				"status":         models.PaymentFailed,
				"failure_reason": "session creation interrupted",
			}); err != nil {
			return nil, apperror.Internal(err, "fail stale payment")
		}
	}
	return nil, nil
}

// liveAfterRace resolves a unique-index collision on the live payment slot
func (s *PaymentService) liveAfterRace(db *gorm.DB, orderID string) (*models.Payment, error) {
	live, err := database.FindLivePayment(db, orderID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, apperror.Conflict("payment changed concurrently, please retry")
		}
		return nil, apperror.Internal(err, "load payment")
	}
	switch live.Status {
	case models.PaymentInitiated:
		return live, nil
	case models.PaymentCompleted:
		return nil, apperror.Conflict("order is already paid")
	default:
		return nil, apperror.Conflict("payment session creation is in progress")
	}
}

// HandleCallback verifies and reconciles a gateway callback
func (s *PaymentService) HandleCallback(ctx context.Context, paymentID string, fields map[string]string) (*models.Payment, error) {
	db := s.db.WithContext(ctx)

	payment, err := database.GetPayment(db, paymentID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, apperror.NotFound("payment not found")
		}
		return nil, apperror.Internal(err, "load payment")
	}

	if reason := s.validateCallback(payment, fields); reason != "" {
		logging.Warnf("Rejected payment callback - payment: %s, reason: %s", paymentID, reason)
		if payment.Status.IsOpen() {
			if _, err := database.TransitionPayment(db, payment.ID,
				[]models.PaymentStatus{models.PaymentPending, models.PaymentInitiated},
				map[string]interface{}{
					"status":         models.PaymentFailed,
					"failure_reason": callbackValidationFailed,
				}); err != nil {
				logging.Errorf("Failed to mark payment %s failed: %v", payment.ID, err)
			}
		}
		return nil, apperror.ValidationFailed(callbackValidationFailed)
	}

	status := GatewayStatus{
		State:                GatewayState(fields[FieldStatus]),
		GatewayTransactionID: fields[FieldTxnID],
		Amount:               fields[FieldTxnAmount],
		Message:              fields[FieldRespMsg],
	}
	switch status.State {
	case GatewaySuccess, GatewayFailure, GatewayPending:
	default:
		return nil, apperror.InvalidArgument("unknown callback status")
	}
	raw, _ := json.Marshal(fields)
	status.Raw = raw

	key := CallbackKey(payment.ID, status.GatewayTransactionID, string(status.State))
	if s.guard != nil {
		seen, err := s.guard.Seen(ctx, key)
		if err != nil {
			logging.Warnf("Callback guard lookup failed: %v", err)
		} else if seen {
			logging.Infof("Duplicate callback for payment %s, answering from stored state", payment.ID)
			return payment, nil
		}
	}

	updated, err := s.reconcile(ctx, payment, &status)
	if err != nil {
		return nil, err
	}

	if s.guard != nil {
		if err := s.guard.Remember(ctx, key); err != nil {
			logging.Warnf("Callback guard store failed: %v", err)
		}
	}
	return updated, nil
}

// validateCallback returns a non-empty reason when the payload cannot be trusted
func (s *PaymentService) validateCallback(payment *models.Payment, fields map[string]string) string {
	if !VerifyFields(fields, s.cfg.MerchantKey) {
		return "checksum mismatch"
	}
	if fields[FieldOrderID] != payment.GatewayOrderID {
		return "order id mismatch"
	}
	if !amountMatches(payment.Amount, fields[FieldTxnAmount]) {
		return "amount mismatch"
	}
	return ""
}

// amountMatches reports whether a gateway-reported amount equals the payment amount.
// A missing amount never matches.
func amountMatches(expected int64, reported string) bool {
	reported = strings.TrimSpace(reported)
	if reported == "" {
		return false
	}
	value, err := strconv.ParseFloat(reported, 64)
	return err == nil && value == float64(expected)
}

// CheckStatus returns the payment's status, polling the gateway while it is open
func (s *PaymentService) CheckStatus(ctx context.Context, paymentID, actorID string) (*models.Payment, error) {
	payment, err := s.GetPayment(ctx, paymentID, actorID)
	if err != nil {
		return nil, err
	}
	if !payment.Status.IsOpen() {
		return payment, nil
	}

	db := s.db.WithContext(ctx)
	if payment.Status == models.PaymentInitiated {
		gwCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
		status, err := s.gateway.FetchStatus(gwCtx, payment.GatewayOrderID)
		cancel()
		if err != nil {
			logging.Warnf("Gateway status poll failed - payment: %s, error: %v", payment.ID, err)
			return payment, nil
		}
		payment, err = s.reconcile(ctx, payment, status)
		if err != nil {
			return nil, err
		}
	}

	if payment.Status.IsOpen() && !s.now().Before(payment.ExpiresAt) {
		if _, err := database.TransitionPayment(db, payment.ID,
			[]models.PaymentStatus{models.PaymentPending, models.PaymentInitiated},
			map[string]interface{}{
				"status":         models.PaymentCancelled,
				"failure_reason": "payment link expired",
			}); err != nil {
			return nil, apperror.Internal(err, "expire payment")
		}
		return s.reload(db, payment.ID)
	}
	return payment, nil
}

// reconcile applies a gateway-reported outcome. It is the only place a
// payment leaves pending/initiated because of the gateway, and is safe to repeat.
func (s *PaymentService) reconcile(ctx context.Context, payment *models.Payment, status *GatewayStatus) (*models.Payment, error) {
	db := s.db.WithContext(ctx)
	open := []models.PaymentStatus{models.PaymentPending, models.PaymentInitiated}

	// A success for the wrong amount is never applied
	if status.State == GatewaySuccess && payment.Status.IsOpen() && !amountMatches(payment.Amount, status.Amount) {
		logging.Errorf("Gateway reported amount %q for payment %s of %d, manual review required",
			status.Amount, payment.ID, payment.Amount)
		mismatch := *status
		mismatch.State = GatewayFailure
		mismatch.Message = gatewayAmountMismatch
		status = &mismatch
	}

	switch status.State {
	case GatewaySuccess:
		if payment.Status == models.PaymentCompleted {
			return payment, nil
		}
		if !payment.Status.IsOpen() {
			logging.Warnf("Gateway reported success for %s payment %s, manual review required", payment.Status, payment.ID)
			return payment, nil
		}

		applied := false
		err := db.Transaction(func(tx *gorm.DB) error {
			now := s.now()
			ok, err := database.TransitionPayment(tx, payment.ID, open, map[string]interface{}{
				"status":                 models.PaymentCompleted,
				"gateway_transaction_id": status.GatewayTransactionID,
				"gateway_response":       datatypes.JSON(status.Raw),
				"completed_at":           now,
			})
			if err != nil || !ok {
				return err
			}
			applied = true

			order, err := database.GetOrder(tx, payment.OrderID)
			if err != nil {
				return err
			}
			if order.Status == models.OrderCancelled || order.Status == models.OrderRejected {
				logging.Errorf("Payment %s completed for %s order %s, refund required", payment.ID, order.Status, order.ID)
				return nil
			}
			if _, err := database.MarkOrderPaid(tx, order.ID, now); err != nil {
				return err
			}
			return database.EnsureListingSold(tx, order.ListingID)
		})
		if err != nil {
			return nil, apperror.Internal(err, "reconcile payment")
		}

		if applied {
			logging.WithFields(logrus.Fields{
				"payment_id":     payment.ID,
				"order_id":       payment.OrderID,
				"gateway_txn_id": status.GatewayTransactionID,
			}).Info("Payment completed")
			s.notifier.Emit(ctx,
				PaymentCompleted{UserID: payment.PayerUserID, OrderID: payment.OrderID, Amount: payment.Amount},
				PaymentCompleted{UserID: payment.PayeeUserID, OrderID: payment.OrderID, Amount: payment.Amount},
			)
		}

	case GatewayFailure:
		reason := status.Message
		if reason == "" {
			reason = "payment failed at gateway"
		}
		ok, err := database.TransitionPayment(db, payment.ID, open, map[string]interface{}{
			"status":                 models.PaymentFailed,
			"failure_reason":         truncate(reason, 500),
			"gateway_transaction_id": status.GatewayTransactionID,
			"gateway_response":       datatypes.JSON(status.Raw),
		})
		if err != nil {
			return nil, apperror.Internal(err, "reconcile payment")
		}
		if ok {
			logging.Infof("Payment %s failed: %s", payment.ID, reason)
			s.notifier.Emit(ctx, PaymentFailed{UserID: payment.PayerUserID, OrderID: payment.OrderID, Reason: reason})
		}

	case GatewayPending:
		return payment, nil
	}

	return s.reload(db, payment.ID)
}

// GetPayment loads a payment visible to its payer or payee
func (s *PaymentService) GetPayment(ctx context.Context, paymentID, actorID string) (*models.Payment, error) {
	payment, err := database.GetPayment(s.db.WithContext(ctx), paymentID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, apperror.NotFound("payment not found")
		}
		return nil, apperror.Internal(err, "load payment")
	}
	if !payment.IsParticipant(actorID) {
		return nil, apperror.Forbidden("you are not a participant of this payment")
	}
	return payment, nil
}

// ListPayments returns a page of the actor's payments
func (s *PaymentService) ListPayments(ctx context.Context, actorID string, status models.PaymentStatus, page, limit int) ([]models.Payment, int64, error) {
	switch status {
	case "", models.PaymentPending, models.PaymentInitiated, models.PaymentCompleted,
		models.PaymentFailed, models.PaymentCancelled, models.PaymentRefunded:
	default:
		return nil, 0, apperror.InvalidArgument("invalid payment status filter")
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	payments, total, err := database.ListPayments(s.db.WithContext(ctx), actorID, status, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, apperror.Internal(err, "list payments")
	}
	return payments, total, nil
}

func (s *PaymentService) reload(db *gorm.DB, id string) (*models.Payment, error) {
	payment, err := database.GetPayment(db, id)
	if err != nil {
		return nil, apperror.Internal(err, "reload payment")
	}
	return payment, nil
}

func (s *PaymentService) callbackURL(paymentID string) string {
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/payments/callback?paymentId=" + paymentID
}

// newGatewayOrderID derives the gateway-facing id from the order id and a
// timestamp, with a short random suffix so retries within a millisecond differ
func newGatewayOrderID(orderID string, now time.Time) string {
	prefix := orderID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("MKT_%s_%d_%s", prefix, now.UnixMilli(), uuid.NewString()[:4])
}

func newTransactionID() string {
	return "TXN" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
