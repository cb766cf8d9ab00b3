package handlers

import (
	"net/http"
	"strconv"

	"inkbook/internal/models"

	"github.com/gin-gonic/gin"
)

// Tour calendar handlers

// ListCities - GET /api/tours/cities
func (h *Handlers) ListCities(c *gin.Context) {
	cities, err := h.services.Tours.Cities(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to list cities", err)
		return
	}

	c.JSON(http.StatusOK, cities)
}

// ListDates - GET /api/tours/dates?city=
func (h *Handlers) ListDates(c *gin.Context) {
	dates, err := h.services.Tours.Dates(c.Request.Context(), c.Query("city"))
	if err != nil {
		respondError(c, "Failed to list dates", err)
		return
	}

	c.JSON(http.StatusOK, dates)
}

// ListSlots - GET /api/tours/slots?city=&date=
func (h *Handlers) ListSlots(c *gin.Context) {
	slots, err := h.services.Tours.Slots(c.Request.Context(), c.Query("city"), c.Query("date"))
	if err != nil {
		respondError(c, "Failed to list slots", err)
		return
	}

	c.JSON(http.StatusOK, slots)
}

// ListTourSegments - GET /api/admin/tours
func (h *Handlers) ListTourSegments(c *gin.Context) {
	segments, err := h.services.Tours.List(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to list tour segments", err)
		return
	}

	c.JSON(http.StatusOK, segments)
}

// CreateTourSegment - POST /api/admin/tours
func (h *Handlers) CreateTourSegment(c *gin.Context) {
	var req models.TourSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	segment, err := h.services.Tours.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "Failed to create tour segment", err)
		return
	}

	c.JSON(http.StatusCreated, segment)
}

// UpdateTourSegment - PUT /api/admin/tours/:id
func (h *Handlers) UpdateTourSegment(c *gin.Context) {
	var req models.TourSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	segment, err := h.services.Tours.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, "Failed to update tour segment", err)
		return
	}

	c.JSON(http.StatusOK, segment)
}

// DeleteTourSegment - DELETE /api/admin/tours/:id
func (h *Handlers) DeleteTourSegment(c *gin.Context) {
	if err := h.services.Tours.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, "Failed to delete tour segment", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListGaps - GET /api/admin/gaps?limit=
func (h *Handlers) ListGaps(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	gaps, err := h.services.Gaps.Find(c.Request.Context(), limit)
	if err != nil {
		respondError(c, "Failed to find gaps", err)
		return
	}

	c.JSON(http.StatusOK, gaps)
}
