package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"marketplace-api/internal/database"
	"marketplace-api/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testMerchantKey = "test-merchant-key"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Open("", filepath.Join(t.TempDir(), "test.db"), logger.Silent)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection serialises writers the way row locks would
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func seedListing(t *testing.T, db *gorm.DB, sellerID string, price int64) *models.Listing {
	t.Helper()
	listing := &models.Listing{SellerID: sellerID, Title: "Level 80 account", Price: price}
	require.NoError(t, database.CreateListing(db, listing))
	return listing
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Emit(ctx context.Context, events ...Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, events...)
}

func (n *recordingNotifier) count(t NotificationType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, e := range n.events {
		if e.Type() == t {
			total++
		}
	}
	return total
}

type fakeGateway struct {
	mu        sync.Mutex
	sessions  int
	polls     int
	createErr error
	delay     time.Duration
	status    *GatewayStatus
	statusErr error
}

func (g *fakeGateway) CreateSession(ctx context.Context, req SessionRequest) (*SessionResult, error) {
	g.mu.Lock()
	g.sessions++
	delay, createErr := g.delay, g.createErr
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if createErr != nil {
		return nil, createErr
	}
	return &SessionResult{
		TransactionToken: "token-" + req.GatewayOrderID,
		PaymentLink:      "https://gateway.test/pay?orderId=" + req.GatewayOrderID,
		Raw:              []byte(`{"body":{"resultInfo":{"resultStatus":"S"}}}`),
	}, nil
}

func (g *fakeGateway) FetchStatus(ctx context.Context, gatewayOrderID string) (*GatewayStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.polls++
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	if g.status == nil {
		return &GatewayStatus{State: GatewayPending}, nil
	}
	status := *g.status
	return &status, nil
}

func (g *fakeGateway) sessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessions
}

type testEnv struct {
	db       *gorm.DB
	gateway  *fakeGateway
	notifier *recordingNotifier
	payments *PaymentService
	orders   *OrderService
	offers   *OfferService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	gateway := &fakeGateway{}
	notifier := &recordingNotifier{}

	guard := NewMemoryCallbackGuard(time.Hour)
	t.Cleanup(guard.Stop)

	payments := NewPaymentService(db, gateway, notifier, guard, PaymentConfig{
		MerchantKey:    testMerchantKey,
		PublicBaseURL:  "https://api.test",
		PaymentTTL:     24 * time.Hour,
		GatewayTimeout: 200 * time.Millisecond,
	})
	return &testEnv{
		db:       db,
		gateway:  gateway,
		notifier: notifier,
		payments: payments,
		orders:   NewOrderService(db, notifier, payments),
		offers:   NewOfferService(db, notifier, payments, DefaultOfferTTL),
	}
}

func (e *testEnv) setClock(clock Clock) {
	e.payments.SetClock(clock)
	e.orders.SetClock(clock)
	e.offers.SetClock(clock)
}

func signedCallback(payment *models.Payment, status GatewayState, amount string) map[string]string {
	fields := map[string]string{
		FieldOrderID:   payment.GatewayOrderID,
		FieldTxnID:     "GWTXN-" + payment.ID[:8],
		FieldTxnAmount: amount,
		FieldStatus:    string(status),
		FieldRespCode:  "01",
		FieldRespMsg:   "Txn Success",
	}
	if status == GatewayFailure {
		fields[FieldRespCode] = "227"
		fields[FieldRespMsg] = "Bank declined"
	}
	fields[ChecksumField] = SignFields(fields, testMerchantKey)
	return fields
}

// sellListingBeforeInsert marks the listing sold inside the transaction that
// inserts the next row into table, after the caller has already read it as unsold
func sellListingBeforeInsert(t *testing.T, db *gorm.DB, table, listingID string) {
	t.Helper()
	fired := false
	err := db.Callback().Create().Before("gorm:create").Register("test:sell_listing", func(tx *gorm.DB) {
		if fired || tx.Statement.Table != table {
			return
		}
		fired = true
		err := tx.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE listings SET sold = ? WHERE id = ?", true, listingID).Error
		require.NoError(t, err)
	})
	require.NoError(t, err)
}
