package handler

import (
	"reseller-ledger/internal/core/ports"
	"reseller-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderEventSignature carries the hex HMAC-SHA256 of the raw event body.
const HeaderEventSignature = "X-Event-Signature"

// WebhookHandler receives payment gateway events.
type WebhookHandler struct {
	webhookSvc ports.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhookSvc ports.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc}
}

// Receive handles POST /api/v1/webhooks/wompi. The body is passed through
// unparsed so the signature is checked over the exact bytes received.
func (h *WebhookHandler) Receive(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		response.Error(c, bindError(err))
		return
	}

	outcome, err := h.webhookSvc.HandleWebhookEvent(c.Request.Context(), payload, c.GetHeader(HeaderEventSignature))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Acknowledged(c, string(outcome))
}
