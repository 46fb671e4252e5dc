package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketplace-api/internal/apperror"
	"marketplace-api/internal/middleware"
	"marketplace-api/internal/models"
	"marketplace-api/internal/response"
	"marketplace-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// CreatePaymentLinkRequest represents a payment link request
type CreatePaymentLinkRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

// PaymentLinkResponse is the link a buyer is redirected to
type PaymentLinkResponse struct {
	PaymentID   string    `json:"payment_id"`
	PaymentLink string    `json:"payment_link"`
	Amount      int64     `json:"amount"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// PaymentStatusResponse is the reconciled status of a payment
type PaymentStatusResponse struct {
	Status        models.PaymentStatus `json:"status"`
	Amount        int64                `json:"amount"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
	FailureReason string               `json:"failure_reason,omitempty"`
}

// PaymentListResponse is one page of payments
type PaymentListResponse struct {
	Payments []models.Payment `json:"payments"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
}

// CreatePaymentLink returns the payment link for an accepted order
// POST /payments/create-link
func (h *Handler) CreatePaymentLink(c *gin.Context) {
	var req CreatePaymentLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, apperror.CodeInvalidArgument, "Invalid request format: "+err.Error())
		return
	}

	payment, err := h.Payments.CreateSession(c.Request.Context(), req.OrderID, middleware.UserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessJSON(c, PaymentLinkResponse{
		PaymentID:   payment.ID,
		PaymentLink: payment.GatewayPaymentLink,
		Amount:      payment.Amount,
		ExpiresAt:   payment.ExpiresAt,
	})
}

// ListPayments lists the caller's payments
// GET /payments?status=&page=&limit=
func (h *Handler) ListPayments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	payments, total, err := h.Payments.ListPayments(c.Request.Context(), middleware.UserID(c),
		models.PaymentStatus(c.Query("status")), page, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if page < 1 {
		page = 1
	}
	response.SuccessJSON(c, PaymentListResponse{Payments: payments, Total: total, Page: page, Limit: limit})
}

// GetPayment gets one payment
// GET /payments/:id
func (h *Handler) GetPayment(c *gin.Context) {
	payment, err := h.Payments.GetPayment(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessJSON(c, payment)
}

// GetPaymentStatus polls the gateway for an open payment
// GET /payments/:id/status
func (h *Handler) GetPaymentStatus(c *gin.Context) {
	payment, err := h.Payments.CheckStatus(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessJSON(c, PaymentStatusResponse{
		Status:        payment.Status,
		Amount:        payment.Amount,
		CompletedAt:   payment.CompletedAt,
		FailureReason: payment.FailureReason,
	})
}

// PaymentCallback receives the gateway's signed result
// POST /payments/callback?paymentId=
func (h *Handler) PaymentCallback(c *gin.Context) {
	paymentID := c.Query("paymentId")

	fields, err := callbackFields(c)
	if err != nil {
		logging.Errorf("Failed to read payment callback: %v", err)
		response.ErrorJSON(c, http.StatusBadRequest, apperror.CodeInvalidArgument, "Invalid callback payload")
		return
	}
	if paymentID == "" {
		paymentID = fields["paymentId"]
		delete(fields, "paymentId")
	}
	if paymentID == "" {
		response.ErrorJSON(c, http.StatusBadRequest, apperror.CodeInvalidArgument, "Missing paymentId")
		return
	}

	logging.Infof("Payment callback received - payment: %s, gateway order: %s, status: %s",
		paymentID, fields["ORDERID"], fields["STATUS"])

	payment, err := h.Payments.HandleCallback(c.Request.Context(), paymentID, fields)
	if err != nil {
		if h.FrontendURL != "" && apperror.CodeOf(err) != apperror.CodeInternal {
			c.Redirect(http.StatusSeeOther, h.resultURL(paymentID, "failed"))
			return
		}
		response.FromError(c, err)
		return
	}

	if h.FrontendURL != "" {
		c.Redirect(http.StatusSeeOther, h.resultURL(payment.ID, string(payment.Status)))
		return
	}
	response.SuccessJSON(c, PaymentStatusResponse{
		Status:        payment.Status,
		Amount:        payment.Amount,
		CompletedAt:   payment.CompletedAt,
		FailureReason: payment.FailureReason,
	})
}

func (h *Handler) resultURL(paymentID, status string) string {
	return fmt.Sprintf("%s/payments/%s?status=%s",
		strings.TrimRight(h.FrontendURL, "/"), url.PathEscape(paymentID), url.QueryEscape(status))
}

// callbackFields flattens a form or JSON callback body into string fields
func callbackFields(c *gin.Context) (map[string]string, error) {
	fields := make(map[string]string)

	if c.ContentType() == gin.MIMEJSON {
		var body map[string]interface{}
		decoder := json.NewDecoder(c.Request.Body)
		decoder.UseNumber()
		if err := decoder.Decode(&body); err != nil {
			return nil, err
		}
		for k, v := range body {
			fields[k] = fmt.Sprint(v)
		}
		return fields, nil
	}

	if err := c.Request.ParseForm(); err != nil {
		return nil, err
	}
	for k := range c.Request.PostForm {
		fields[k] = c.Request.PostForm.Get(k)
	}
	return fields, nil
}
