package handler

import (
	"io"

	"vidpay/internal/core/ports"
	"vidpay/pkg/apperror"
	"vidpay/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderProviderSignature carries the gateway's HMAC over the raw body.
const HeaderProviderSignature = "x-provider-signature"

// WebhookHandler receives asynchronous gateway callbacks.
type WebhookHandler struct {
	webhookSvc ports.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhookSvc ports.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc}
}

// HandleGatewayEvent handles POST /webhooks/paystack. The body is read raw
// before any parsing because the signature covers the exact bytes sent.
func (h *WebhookHandler) HandleGatewayEvent(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}

	signature := c.GetHeader(HeaderProviderSignature)
	if err := h.webhookSvc.HandleEvent(c.Request.Context(), rawBody, signature, c.ClientIP()); err != nil {
		response.Error(c, err)
		return
	}

	// Duplicates and unhandled event types still acknowledge: the gateway
	// retries anything that is not a 200.
	response.OK(c, gin.H{"received": true})
}
