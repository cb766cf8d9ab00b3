package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "inkbook/internal/errors"
	"inkbook/internal/models"
	"inkbook/internal/repository"

	"github.com/gin-gonic/gin"
)

// Bookings handlers

// CreateBooking - POST /api/bookings
func (h *Handlers) CreateBooking(c *gin.Context) {
	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response, err := h.services.Bookings.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "Failed to create booking", err)
		return
	}

	if response.Method == models.PaymentMethodStripe {
		c.JSON(http.StatusCreated, gin.H{
			"bookingId":    response.BookingID,
			"clientSecret": response.ClientSecret,
			"method":       response.Method,
		})
		return
	}

	c.JSON(http.StatusCreated, response)
}

// ListBookings - GET /api/admin/bookings
func (h *Handlers) ListBookings(c *gin.Context) {
	filter, err := bookingFilterFromQuery(c)
	if err != nil {
		respondError(c, "Failed to list bookings", err)
		return
	}

	bookings, err := h.services.Bookings.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, "Failed to list bookings", err)
		return
	}

	c.JSON(http.StatusOK, bookings)
}

// GetBooking - GET /api/admin/bookings/:id
func (h *Handlers) GetBooking(c *gin.Context) {
	booking, err := h.services.Bookings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to get booking", err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// UpdateBookingStatus - PATCH /api/admin/bookings/:id/status
func (h *Handlers) UpdateBookingStatus(c *gin.Context) {
	var req models.UpdateBookingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	booking, err := h.services.Bookings.ChangeStatus(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, "Failed to update booking status", err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// ExportBookings - GET /api/admin/bookings/export?format=xlsx|csv
func (h *Handlers) ExportBookings(c *gin.Context) {
	filter, err := bookingFilterFromQuery(c)
	if err != nil {
		respondError(c, "Failed to export bookings", err)
		return
	}

	format := strings.ToLower(c.Query("format"))
	data, contentType, err := h.services.Export.Bookings(c.Request.Context(), format, filter)
	if err != nil {
		respondError(c, "Failed to export bookings", err)
		return
	}

	ext := "xlsx"
	if format == "csv" {
		ext = "csv"
	}
	filename := fmt.Sprintf("bookings-%s.%s", time.Now().UTC().Format("20060102"), ext)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, contentType, data)
}

func bookingFilterFromQuery(c *gin.Context) (repository.BookingFilter, error) {
	verr := apperrors.NewValidationError()
	filter := repository.BookingFilter{
		ArtistID:    c.Query("artistId"),
		Status:      strings.ToUpper(c.Query("status")),
		ClientEmail: strings.ToLower(strings.TrimSpace(c.Query("email"))),
		CityName:    c.Query("city"),
	}

	if raw := c.Query("from"); raw != "" {
		d, err := models.ParseDate(raw)
		if err != nil {
			verr.Add("from", "must be YYYY-MM-DD")
		} else {
			filter.From = &d
		}
	}
	if raw := c.Query("to"); raw != "" {
		d, err := models.ParseDate(raw)
		if err != nil {
			verr.Add("to", "must be YYYY-MM-DD")
		} else {
			filter.To = &d
		}
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			verr.Add("limit", "must be a non-negative integer")
		} else {
			filter.Limit = n
		}
	}

	return filter, verr.OrNil()
}
