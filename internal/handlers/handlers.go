package handlers

import (
	"errors"
	"net/http"

	apperrors "inkbook/internal/errors"
	"inkbook/internal/logger"
	"inkbook/internal/payments"
	"inkbook/internal/service"

	"github.com/gin-gonic/gin"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	services *service.Services
}

// NewHandlers creates a new handlers instance
func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		services: services,
	}
}

// respondError maps service errors onto HTTP responses. Anything unknown is
// logged and answered with a generic 500 carrying msg.
func respondError(c *gin.Context, msg string, err error) {
	var verr *apperrors.ValidationError
	var initErr *payments.InitiationError
	var perr *apperrors.ProviderError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "fields": verr.Fields})
	case errors.As(err, &initErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":       "Payment could not be started",
			"bookingId":   initErr.BookingID,
			"alternative": initErr.Alternative,
		})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, apperrors.ErrSlotUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": "Requested slot is not available"})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
	case errors.As(err, &perr):
		logger.WithContext(c.Request.Context()).Error(msg, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": msg})
	default:
		logger.WithContext(c.Request.Context()).Error(msg, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
