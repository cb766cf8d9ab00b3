package handlers

import (
	"net/http"

	"inkbook/internal/notify"
	"inkbook/internal/service"

	"github.com/gin-gonic/gin"
)

// Payment webhook handlers. A 200 tells the provider to stop redelivering,
// so only failures worth a retry answer with 5xx.

// MercadoPagoWebhook - POST /api/webhooks/mercadopago
func (h *Handlers) MercadoPagoWebhook(c *gin.Context) {
	h.pixWebhook(c, notify.PaymentConfirmedChannels)
}

// PaymentsWebhook - POST /api/payments/webhook
// Legacy Pix endpoint, confirms with email and CRM only.
func (h *Handlers) PaymentsWebhook(c *gin.Context) {
	h.pixWebhook(c, notify.PaymentConfirmedBasicChannels)
}

func (h *Handlers) pixWebhook(c *gin.Context, channels []string) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	notification := service.ParseNotification(c.Request.URL.Query(), body)
	result, err := h.services.Webhooks.HandlePix(c.Request.Context(), notification, channels)
	if err != nil {
		respondError(c, "Failed to process payment notification", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// StripeWebhook - POST /api/webhooks/stripe
func (h *Handlers) StripeWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	result, err := h.services.Webhooks.HandleStripe(c.Request.Context(), body, c.GetHeader("Stripe-Signature"), notify.PaymentConfirmedChannels)
	if err != nil {
		respondError(c, "Failed to process Stripe event", err)
		return
	}

	c.JSON(http.StatusOK, result)
}
