package api

import (
	"net/http"

	"marketplace-api/internal/apperror"
	"marketplace-api/internal/middleware"
	"marketplace-api/internal/models"
	"marketplace-api/internal/response"
	"marketplace-api/internal/services"

	"github.com/gin-gonic/gin"
)

// CreateOrderRequest represents a direct purchase request
type CreateOrderRequest struct {
	ListingID  string `json:"listing_id" binding:"required"`
	BuyerNotes string `json:"buyer_notes"`
}

// UpdateOrderStatusRequest represents a seller transition
type UpdateOrderStatusRequest struct {
	Status         models.OrderStatus     `json:"status" binding:"required"`
	SellerNotes    string                 `json:"seller_notes"`
	AccountDetails *models.AccountDetails `json:"account_details"`
}

// CreateOrder creates a direct purchase request
// POST /orders
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, apperror.CodeInvalidArgument, "Invalid request format: "+err.Error())
		return
	}

	order, err := h.Orders.CreateDirectOrder(c.Request.Context(), req.ListingID, middleware.UserID(c), req.BuyerNotes)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.CreatedJSON(c, order)
}

// ListOrders lists purchases or sales
// GET /orders?type=purchases|sales
func (h *Handler) ListOrders(c *gin.Context) {
	orders, err := h.Orders.ListOrders(c.Request.Context(), middleware.UserID(c), c.Query("type"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessJSON(c, orders)
}

// GetOrder gets one order
// GET /orders/:id
func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.Orders.GetOrder(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessJSON(c, order)
}

// UpdateOrderStatus applies a seller transition
// PUT /orders/:id/status
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, apperror.CodeInvalidArgument, "Invalid request format: "+err.Error())
		return
	}

	order, err := h.Orders.UpdateStatus(c.Request.Context(), c.Param("id"), middleware.UserID(c), services.UpdateOrderStatusInput{
		Status:         req.Status,
		SellerNotes:    req.SellerNotes,
		AccountDetails: req.AccountDetails,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessJSON(c, order)
}

// MarkPaymentReceived records a manual payment confirmation by the seller
// PUT /orders/:id/payment-received
func (h *Handler) MarkPaymentReceived(c *gin.Context) {
	order, err := h.Orders.MarkPaymentReceived(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessJSON(c, order)
}

// CancelOrder cancels an order that has not been paid
// POST /orders/:id/cancel
func (h *Handler) CancelOrder(c *gin.Context) {
	order, err := h.Orders.CancelOrder(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessJSON(c, order)
}
