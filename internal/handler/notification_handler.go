package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
	"github.com/bodhisatwazer00ne/WAA-100/pkg/response"
)

type notificationService interface {
	ListMine(ctx context.Context, actor models.Actor) ([]models.Notification, error)
	ListAll(ctx context.Context) ([]models.NotificationView, error)
}

// NotificationHandler exposes in-app notifications.
type NotificationHandler struct {
	notifications notificationService
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(notifications notificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// Mine godoc
// @Summary The calling student's notifications
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/me [get]
func (h *NotificationHandler) Mine(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, err := h.notifications.ListMine(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// All godoc
// @Summary Latest notifications across students
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/all [get]
func (h *NotificationHandler) All(c *gin.Context) {
	items, err := h.notifications.ListAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}
