package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Body map[string]interface{} `json:"body"`
	Head map[string]string      `json:"head"`
}

func newGatewayServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, req recordedRequest, rawBody json.RawMessage)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var envelope struct {
			Body json.RawMessage   `json:"body"`
			Head map[string]string `json:"head"`
		}
		require.NoError(t, json.Unmarshal(data, &envelope))

		var req recordedRequest
		require.NoError(t, json.Unmarshal(data, &req))
		handler(w, r, req, envelope.Body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGatewayClientCreateSession(t *testing.T) {
	server := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request, req recordedRequest, rawBody json.RawMessage) {
		assert.Equal(t, "/theia/api/v1/initiateTransaction", r.URL.Path)
		assert.Equal(t, "MID123", r.URL.Query().Get("mid"))
		assert.Equal(t, "MKT_abc_1", r.URL.Query().Get("orderId"))
		assert.Equal(t, SignPayload(rawBody, "merchant-key"), req.Head["signature"])
		assert.Equal(t, "https://api.test/payments/callback?paymentId=p1", req.Body["callbackUrl"])

		amount := req.Body["txnAmount"].(map[string]interface{})
		assert.Equal(t, "499", amount["value"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"head":{},"body":{"resultInfo":{"resultStatus":"S","resultCode":"0000","resultMsg":"Success"},"txnToken":"tok-1"}}`))
	})

	client := NewGatewayClient(server.URL, "MID123", "merchant-key", "WEBSTAGING", time.Second)
	result, err := client.CreateSession(context.Background(), SessionRequest{
		GatewayOrderID: "MKT_abc_1",
		Amount:         499,
		CustomerID:     "buyer",
		CallbackURL:    "https://api.test/payments/callback?paymentId=p1",
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", result.TransactionToken)
	assert.NotEmpty(t, result.Raw)

	link, err := url.Parse(result.PaymentLink)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.PaymentLink, server.URL+"/theia/api/v1/showPaymentPage"))
	assert.Equal(t, "tok-1", link.Query().Get("txnToken"))
	assert.Equal(t, "MKT_abc_1", link.Query().Get("orderId"))
}

func TestGatewayClientRejectedSession(t *testing.T) {
	server := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request, req recordedRequest, rawBody json.RawMessage) {
		w.Write([]byte(`{"body":{"resultInfo":{"resultStatus":"F","resultCode":"501","resultMsg":"System Error"}}}`))
	})

	client := NewGatewayClient(server.URL, "MID123", "merchant-key", "WEBSTAGING", time.Second)
	_, err := client.CreateSession(context.Background(), SessionRequest{GatewayOrderID: "MKT_abc_1", Amount: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "System Error")
}

func TestGatewayClientHTTPErrorAndTimeout(t *testing.T) {
	failing := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request, req recordedRequest, rawBody json.RawMessage) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	client := NewGatewayClient(failing.URL, "MID123", "merchant-key", "WEBSTAGING", time.Second)
	_, err := client.FetchStatus(context.Background(), "MKT_abc_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	slow := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request, req recordedRequest, rawBody json.RawMessage) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	})
	client = NewGatewayClient(slow.URL, "MID123", "merchant-key", "WEBSTAGING", 20*time.Millisecond)
	_, err = client.CreateSession(context.Background(), SessionRequest{GatewayOrderID: "MKT_abc_1", Amount: 10})
	require.Error(t, err)
}

func TestGatewayClientFetchStatus(t *testing.T) {
	server := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request, req recordedRequest, rawBody json.RawMessage) {
		assert.Equal(t, "/v3/order/status", r.URL.Path)
		assert.Equal(t, "MKT_abc_1", req.Body["orderId"])
		w.Write([]byte(`{"body":{"resultInfo":{"resultStatus":"TXN_SUCCESS","resultCode":"01","resultMsg":"Txn Success"},"txnId":"GW-77","txnAmount":"499.00"}}`))
	})

	client := NewGatewayClient(server.URL, "MID123", "merchant-key", "WEBSTAGING", time.Second)
	status, err := client.FetchStatus(context.Background(), "MKT_abc_1")
	require.NoError(t, err)
	assert.Equal(t, GatewaySuccess, status.State)
	assert.Equal(t, "GW-77", status.GatewayTransactionID)
	assert.Equal(t, "499.00", status.Amount)
}
