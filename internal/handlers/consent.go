package handlers

import (
	"net/http"

	"inkbook/internal/models"
	"inkbook/internal/service"

	"github.com/gin-gonic/gin"
)

// GetConsent - GET /api/consent/:bookingId
func (h *Handlers) GetConsent(c *gin.Context) {
	view, err := h.services.Consent.GetForSigning(c.Request.Context(), c.Param("bookingId"))
	if err != nil {
		respondError(c, "Failed to load consent", err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// SignConsent - POST /api/consent/:bookingId
func (h *Handlers) SignConsent(c *gin.Context) {
	// base64 inflates the image by a third, leave room for the rest of the body
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, service.MaxSignatureBytes*2)

	var req models.SignConsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	signed, err := h.services.Consent.Sign(c.Request.Context(), c.Param("bookingId"), &req, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondError(c, "Failed to sign consent", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"bookingId": signed.BookingID,
		"signedAt":  signed.SignedAt,
	})
}
