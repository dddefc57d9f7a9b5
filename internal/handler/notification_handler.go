package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/service"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/response"
)

// NotificationHandler exposes notification endpoints.
type NotificationHandler struct {
	notifications *service.NotificationService
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// Send godoc
// @Summary Send approval notifications
// @Description Fans the approval message out to every configured channel
// @Tags Notifications
// @Produce json
// @Param id path string true "Lead ID"
// @Success 200 {object} response.Envelope
// @Router /notifications/lead/{id}/send [post]
func (h *NotificationHandler) Send(c *gin.Context) {
	result, err := h.notifications.SendEnrollmentNotifications(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Resend godoc
// @Summary Retry failed notifications
// @Description Replays up to ten of the lead's newest failed attempts
// @Tags Notifications
// @Produce json
// @Param id path string true "Lead ID"
// @Success 200 {object} response.Envelope
// @Router /notifications/lead/{id}/resend [post]
func (h *NotificationHandler) Resend(c *gin.Context) {
	result, err := h.notifications.ResendFailed(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// History godoc
// @Summary Notification history
// @Tags Notifications
// @Produce json
// @Param id path string true "Lead ID"
// @Param limit query int false "Max entries"
// @Success 200 {object} response.Envelope
// @Router /notifications/lead/{id}/history [get]
func (h *NotificationHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	logs, err := h.notifications.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

// TestEmail godoc
// @Summary Probe the email transport
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/test-email [get]
func (h *NotificationHandler) TestEmail(c *gin.Context) {
	if err := h.notifications.TestChannel(c.Request.Context(), models.ChannelEmail); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"channel": models.ChannelEmail, "status": "ok"}, nil)
}

// TestWhatsApp godoc
// @Summary Probe the WhatsApp transport
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/test-whatsapp [get]
func (h *NotificationHandler) TestWhatsApp(c *gin.Context) {
	if err := h.notifications.TestChannel(c.Request.Context(), models.ChannelWhatsApp); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"channel": models.ChannelWhatsApp, "status": "ok"}, nil)
}
