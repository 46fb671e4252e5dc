package api

import (
	"net/http"

	"marketplace-api/internal/middleware"
	"marketplace-api/internal/services"

	"github.com/gin-gonic/gin"
)

// Handler carries the services behind the REST surface
type Handler struct {
	Offers        *services.OfferService
	Orders        *services.OrderService
	Payments      *services.PaymentService
	Notifications *services.NotificationService

	// FrontendURL, when set, is where the gateway callback redirects the buyer
	FrontendURL string
}

// SetupRoutes sets up all routes
func SetupRoutes(r *gin.Engine, h *Handler, jwtSecret string) {
	auth := middleware.BearerAuth(jwtSecret)

	offers := r.Group("/offers", auth)
	{
		offers.POST("", h.CreateOffer)
		offers.GET("", h.ListOffers)
		offers.GET("/:id", h.GetOffer)
		offers.PUT("/:id/respond", h.RespondToOffer)
		offers.DELETE("/:id", h.CancelOffer)
	}

	orders := r.Group("/orders", auth)
	{
		orders.POST("", h.CreateOrder)
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
		orders.PUT("/:id/status", h.UpdateOrderStatus)
		orders.PUT("/:id/payment-received", h.MarkPaymentReceived)
		orders.POST("/:id/cancel", h.CancelOrder)
	}

	// Gateway callback is public; its payload is verified by checksum
	r.POST("/payments/callback", h.PaymentCallback)

	payments := r.Group("/payments", auth)
	{
		payments.POST("/create-link", h.CreatePaymentLink)
		payments.GET("", h.ListPayments)
		payments.GET("/:id", h.GetPayment)
		payments.GET("/:id/status", h.GetPaymentStatus)
	}

	notifications := r.Group("/notifications", auth)
	{
		notifications.GET("", h.ListNotifications)
		notifications.PUT("/:id/read", h.MarkNotificationRead)
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "marketplace-api",
		})
	})
}
