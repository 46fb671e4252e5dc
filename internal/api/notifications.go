package api

import (
	"strconv"

	"marketplace-api/internal/middleware"
	"marketplace-api/internal/response"

	"github.com/gin-gonic/gin"
)

// ListNotifications returns the caller's notification feed
// GET /notifications?unread=true&limit=
func (h *Handler) ListNotifications(c *gin.Context) {
	unreadOnly, _ := strconv.ParseBool(c.DefaultQuery("unread", "false"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	notifications, err := h.Notifications.List(c.Request.Context(), middleware.UserID(c), unreadOnly, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessJSON(c, notifications)
}

// MarkNotificationRead marks one notification read
// PUT /notifications/:id/read
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	if err := h.Notifications.MarkRead(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessJSON(c, nil)
}
