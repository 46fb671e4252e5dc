package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

type GatewayState string

const (
	GatewaySuccess GatewayState = "TXN_SUCCESS"
	GatewayFailure GatewayState = "TXN_FAILURE"
	GatewayPending GatewayState = "PENDING"
)

// SessionRequest is what the gateway needs to open a hosted checkout
type SessionRequest struct {
	GatewayOrderID string
	Amount         int64
	CustomerID     string
	CallbackURL    string
}

// SessionResult is the gateway's acknowledgement of a checkout session
type SessionResult struct {
	TransactionToken string
	PaymentLink      string
	Raw              json.RawMessage
}

// GatewayStatus is a gateway-reported payment outcome
type GatewayStatus struct {
	State                GatewayState
	GatewayTransactionID string
	Amount               string
	Message              string
	Raw                  json.RawMessage
}

// PaymentGateway is the external payment processor
type PaymentGateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*SessionResult, error)
	FetchStatus(ctx context.Context, gatewayOrderID string) (*GatewayStatus, error)
}

// GatewayClient talks to a hosted-checkout payment gateway over HTTP
type GatewayClient struct {
	httpClient  *http.Client
	baseURL     string
	merchantID  string
	merchantKey string
	website     string
}

// NewGatewayClient creates a gateway client with a bounded request timeout
func NewGatewayClient(baseURL, merchantID, merchantKey, website string, timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:     baseURL,
		merchantID:  merchantID,
		merchantKey: merchantKey,
		website:     website,
	}
}

type gatewayResultInfo struct {
	ResultStatus string `json:"resultStatus"`
	ResultCode   string `json:"resultCode"`
	ResultMsg    string `json:"resultMsg"`
}

type initiateResponse struct {
	Body struct {
		ResultInfo gatewayResultInfo `json:"resultInfo"`
		TxnToken   string            `json:"txnToken"`
	} `json:"body"`
}

type statusResponse struct {
	Body struct {
		ResultInfo gatewayResultInfo `json:"resultInfo"`
		TxnID      string            `json:"txnId"`
		TxnAmount  string            `json:"txnAmount"`
	} `json:"body"`
}

// CreateSession initiates a transaction and returns its hosted payment link
func (c *GatewayClient) CreateSession(ctx context.Context, req SessionRequest) (*SessionResult, error) {
	body := map[string]interface{}{
		"requestType": "Payment",
		"mid":         c.merchantID,
		"websiteName": c.website,
		"orderId":     req.GatewayOrderID,
		"callbackUrl": req.CallbackURL,
		"txnAmount": map[string]string{
			"value":    strconv.FormatInt(req.Amount, 10),
			"currency": "INR",
		},
		"userInfo": map[string]string{
			"custId": req.CustomerID,
		},
	}

	query := url.Values{"mid": {c.merchantID}, "orderId": {req.GatewayOrderID}}
	raw, err := c.post(ctx, "/theia/api/v1/initiateTransaction?"+query.Encode(), body)
	if err != nil {
		return nil, err
	}

	var resp initiateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Body.ResultInfo.ResultStatus != "S" || resp.Body.TxnToken == "" {
		return nil, fmt.Errorf("gateway rejected session: %s (%s)", resp.Body.ResultInfo.ResultMsg, resp.Body.ResultInfo.ResultCode)
	}

	link := url.Values{
		"mid":      {c.merchantID},
		"orderId":  {req.GatewayOrderID},
		"txnToken": {resp.Body.TxnToken},
	}
	return &SessionResult{
		TransactionToken: resp.Body.TxnToken,
		PaymentLink:      c.baseURL + "/theia/api/v1/showPaymentPage?" + link.Encode(),
		Raw:              raw,
	}, nil
}

// FetchStatus asks the gateway for the current outcome of an order
func (c *GatewayClient) FetchStatus(ctx context.Context, gatewayOrderID string) (*GatewayStatus, error) {
	body := map[string]interface{}{
		"mid":     c.merchantID,
		"orderId": gatewayOrderID,
	}

	raw, err := c.post(ctx, "/v3/order/status", body)
	if err != nil {
		return nil, err
	}

	var resp statusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	state := GatewayState(resp.Body.ResultInfo.ResultStatus)
	switch state {
	case GatewaySuccess, GatewayFailure, GatewayPending:
	default:
		return nil, fmt.Errorf("unexpected gateway status %q", resp.Body.ResultInfo.ResultStatus)
	}

	return &GatewayStatus{
		State:                state,
		GatewayTransactionID: resp.Body.TxnID,
		Amount:               resp.Body.TxnAmount,
		Message:              resp.Body.ResultInfo.ResultMsg,
		Raw:                  raw,
	}, nil
}

// post sends a signed {head, body} envelope and returns the raw response
func (c *GatewayClient) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	envelope := map[string]interface{}{
		"body": json.RawMessage(bodyJSON),
		"head": map[string]string{
			"signature": SignPayload(bodyJSON, c.merchantKey),
		},
	}
	jsonData, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return raw, nil
}
