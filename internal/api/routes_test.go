package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"marketplace-api/internal/database"
	"marketplace-api/internal/middleware"
	"marketplace-api/internal/models"
	"marketplace-api/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testSecret      = "test-jwt-secret"
	testMerchantKey = "test-merchant-key"
)

type stubGateway struct{}

func (stubGateway) CreateSession(ctx context.Context, req services.SessionRequest) (*services.SessionResult, error) {
	return &services.SessionResult{
		TransactionToken: "tok",
		PaymentLink:      "https://gateway.test/pay?orderId=" + req.GatewayOrderID,
		Raw:              []byte(`{}`),
	}, nil
}

func (stubGateway) FetchStatus(ctx context.Context, gatewayOrderID string) (*services.GatewayStatus, error) {
	return &services.GatewayStatus{State: services.GatewayPending}, nil
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
}

func newTestServer(t *testing.T, frontendURL string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open("", filepath.Join(t.TempDir(), "api.db"), logger.Silent)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	guard := services.NewMemoryCallbackGuard(time.Hour)
	t.Cleanup(guard.Stop)

	notifier := services.NewNotificationService(db, nil)
	payments := services.NewPaymentService(db, stubGateway{}, notifier, guard, services.PaymentConfig{
		MerchantKey:   testMerchantKey,
		PublicBaseURL: "https://api.test",
	})
	handler := &Handler{
		Offers:        services.NewOfferService(db, notifier, payments, 0),
		Orders:        services.NewOrderService(db, notifier, payments),
		Payments:      payments,
		Notifications: notifier,
		FrontendURL:   frontendURL,
	}

	r := gin.New()
	SetupRoutes(r, handler, testSecret)
	return &testServer{t: t, db: db, router: r}
}

func (s *testServer) do(method, path, userID string, body interface{}) (*httptest.ResponseRecorder, apiResponse) {
	s.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := middleware.IssueToken(testSecret, userID, time.Hour)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp apiResponse
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func (s *testServer) callback(payment *models.Payment, status string) *httptest.ResponseRecorder {
	s.t.Helper()
	fields := map[string]string{
		"ORDERID":   payment.GatewayOrderID,
		"TXNID":     "GW-1",
		"TXNAMOUNT": "499.00",
		"STATUS":    status,
		"RESPCODE":  "01",
		"RESPMSG":   "Txn Success",
	}
	fields[services.ChecksumField] = services.SignFields(fields, testMerchantKey)

	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, "/payments/callback?paymentId="+payment.ID, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestOfferToDeliveryOverHTTP(t *testing.T) {
	s := newTestServer(t, "")
	listing := &models.Listing{SellerID: "seller", Title: "Diamond rank", Price: 1000}
	require.NoError(t, database.CreateListing(s.db, listing))

	w, resp := s.do(http.MethodPost, "/offers", "buyer", gin.H{"listing_id": listing.ID, "amount": 499, "message": "499?"})
	require.Equal(t, http.StatusCreated, w.Code, resp.Message)
	var offer models.Offer
	require.NoError(t, json.Unmarshal(resp.Data, &offer))

	w, resp = s.do(http.MethodPut, "/offers/"+offer.ID+"/respond", "buyer", gin.H{"status": "accepted"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", resp.Code)

	w, resp = s.do(http.MethodPut, "/offers/"+offer.ID+"/respond", "seller", gin.H{"status": "accepted"})
	require.Equal(t, http.StatusOK, w.Code, resp.Message)
	var accepted OfferResponse
	require.NoError(t, json.Unmarshal(resp.Data, &accepted))
	require.NotNil(t, accepted.Order)
	assert.Equal(t, int64(499), accepted.Order.Amount)
	orderID := accepted.Order.ID

	w, resp = s.do(http.MethodPost, "/payments/create-link", "buyer", gin.H{"order_id": orderID})
	require.Equal(t, http.StatusOK, w.Code, resp.Message)
	var link PaymentLinkResponse
	require.NoError(t, json.Unmarshal(resp.Data, &link))
	assert.NotEmpty(t, link.PaymentLink)
	assert.Equal(t, int64(499), link.Amount)

	payment, err := database.GetPayment(s.db, link.PaymentID)
	require.NoError(t, err)

	w = s.callback(payment, "TXN_SUCCESS")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, resp = s.do(http.MethodGet, "/payments/"+payment.ID+"/status", "seller", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status PaymentStatusResponse
	require.NoError(t, json.Unmarshal(resp.Data, &status))
	assert.Equal(t, models.PaymentCompleted, status.Status)
	assert.NotNil(t, status.CompletedAt)

	w, resp = s.do(http.MethodPut, "/orders/"+orderID+"/status", "seller", gin.H{
		"status":          "completed",
		"account_details": gin.H{"game_id": "player#1", "password": "secret"},
	})
	require.Equal(t, http.StatusOK, w.Code, resp.Message)

	w, resp = s.do(http.MethodGet, "/orders/"+orderID, "buyer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var order models.Order
	require.NoError(t, json.Unmarshal(resp.Data, &order))
	assert.True(t, order.AccountDelivered)
	assert.Equal(t, models.OrderCompleted, order.Status)

	w, resp = s.do(http.MethodGet, "/notifications?unread=true", "buyer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var feed []models.Notification
	require.NoError(t, json.Unmarshal(resp.Data, &feed))
	assert.NotEmpty(t, feed)

	w, _ = s.do(http.MethodPut, "/notifications/"+feed[0].ID+"/read", "buyer", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, "")
	listing := &models.Listing{SellerID: "seller", Price: 1000}
	require.NoError(t, database.CreateListing(s.db, listing))

	w, _ := s.do(http.MethodGet, "/offers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, resp := s.do(http.MethodPost, "/offers", "buyer", gin.H{"listing_id": listing.ID, "amount": 1000})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ARGUMENT", resp.Code)

	w, resp = s.do(http.MethodPost, "/offers", "buyer", gin.H{"listing_id": "missing", "amount": 10})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp.Code)

	w, resp = s.do(http.MethodPost, "/orders", "buyer", gin.H{"listing_id": listing.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	var order models.Order
	require.NoError(t, json.Unmarshal(resp.Data, &order))

	w, resp = s.do(http.MethodPost, "/orders", "buyer", gin.H{"listing_id": listing.ID})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", resp.Code)

	w, resp = s.do(http.MethodPut, "/orders/"+order.ID+"/status", "seller", gin.H{"status": "completed", "account_details": gin.H{"game_id": "x"}})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = s.do(http.MethodPut, "/orders/"+order.ID+"/status", "seller", gin.H{"status": "accepted"})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = s.do(http.MethodPut, "/orders/"+order.ID+"/status", "seller", gin.H{"status": "completed", "account_details": gin.H{"game_id": "x"}})
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Equal(t, "PRECONDITION_FAILED", resp.Code)

	w, _ = s.do(http.MethodPut, "/orders/"+order.ID+"/payment-received", "buyer", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCancelOfferReturnsNoContent(t *testing.T) {
	s := newTestServer(t, "")
	listing := &models.Listing{SellerID: "seller", Price: 1000}
	require.NoError(t, database.CreateListing(s.db, listing))

	_, resp := s.do(http.MethodPost, "/offers", "buyer", gin.H{"listing_id": listing.ID, "amount": 300})
	var offer models.Offer
	require.NoError(t, json.Unmarshal(resp.Data, &offer))

	w, _ := s.do(http.MethodDelete, "/offers/"+offer.ID, "seller", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(http.MethodDelete, "/offers/"+offer.ID, "buyer", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = s.do(http.MethodDelete, "/offers/"+offer.ID, "buyer", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCallbackRedirectsToFrontend(t *testing.T) {
	s := newTestServer(t, "https://shop.test")
	listing := &models.Listing{SellerID: "seller", Price: 1000}
	require.NoError(t, database.CreateListing(s.db, listing))

	_, resp := s.do(http.MethodPost, "/offers", "buyer", gin.H{"listing_id": listing.ID, "amount": 499})
	var offer models.Offer
	require.NoError(t, json.Unmarshal(resp.Data, &offer))
	_, resp = s.do(http.MethodPut, "/offers/"+offer.ID+"/respond", "seller", gin.H{"status": "accepted"})
	var accepted OfferResponse
	require.NoError(t, json.Unmarshal(resp.Data, &accepted))

	payment, err := database.FindLivePayment(s.db, accepted.Order.ID)
	require.NoError(t, err)

	w := s.callback(payment, "TXN_SUCCESS")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "https://shop.test/payments/"+payment.ID+"?status=completed", w.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodPost, "/payments/callback", strings.NewReader("ORDERID=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
