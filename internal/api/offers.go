package api

import (
	"net/http"

	"marketplace-api/internal/apperror"
	"marketplace-api/internal/middleware"
	"marketplace-api/internal/models"
	"marketplace-api/internal/response"

	"github.com/gin-gonic/gin"
)

// CreateOfferRequest represents create offer request
type CreateOfferRequest struct {
	ListingID string `json:"listing_id" binding:"required"`
	Amount    int64  `json:"amount"`
	Message   string `json:"message"`
}

// RespondToOfferRequest represents the seller's decision on an offer
type RespondToOfferRequest struct {
	Status          models.OfferStatus `json:"status" binding:"required"`
	ResponseMessage string             `json:"response_message"`
}

// OfferResponse is an offer plus the order its acceptance created
type OfferResponse struct {
	models.Offer
	Order *models.Order `json:"order,omitempty"`
}

// CreateOffer creates an offer on a listing
// POST /offers
func (h *Handler) CreateOffer(c *gin.Context) {
	var req CreateOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, apperror.CodeInvalidArgument, "Invalid request format: "+err.Error())
		return
	}

	offer, err := h.Offers.CreateOffer(c.Request.Context(), req.ListingID, middleware.UserID(c), req.Amount, req.Message)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.CreatedJSON(c, offer)
}

// ListOffers lists sent or received offers
// GET /offers?type=sent|received
func (h *Handler) ListOffers(c *gin.Context) {
	offers, err := h.Offers.ListOffers(c.Request.Context(), middleware.UserID(c), c.Query("type"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessJSON(c, offers)
}

// GetOffer gets one offer
// GET /offers/:id
func (h *Handler) GetOffer(c *gin.Context) {
	offer, err := h.Offers.GetOffer(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessJSON(c, offer)
}

// RespondToOffer accepts or rejects an offer
// PUT /offers/:id/respond
func (h *Handler) RespondToOffer(c *gin.Context) {
	var req RespondToOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, apperror.CodeInvalidArgument, "Invalid request format: "+err.Error())
		return
	}

	offer, order, err := h.Offers.RespondToOffer(c.Request.Context(), c.Param("id"), middleware.UserID(c), req.Status, req.ResponseMessage)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessJSON(c, OfferResponse{Offer: *offer, Order: order})
}

// CancelOffer withdraws a pending offer
// DELETE /offers/:id
func (h *Handler) CancelOffer(c *gin.Context) {
	if _, err := h.Offers.CancelOffer(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		response.FromError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
