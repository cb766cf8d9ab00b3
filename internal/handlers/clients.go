package handlers

import (
	"net/http"
	"strconv"

	"inkbook/internal/models"

	"github.com/gin-gonic/gin"
)

// CRM and integration settings handlers

// ListClients - GET /api/admin/clients?q=&limit=
func (h *Handlers) ListClients(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	clients, err := h.services.Clients.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		respondError(c, "Failed to list clients", err)
		return
	}

	c.JSON(http.StatusOK, clients)
}

// GetClient - GET /api/admin/clients/:email
func (h *Handlers) GetClient(c *gin.Context) {
	client, err := h.services.Clients.Get(c.Request.Context(), c.Param("email"))
	if err != nil {
		respondError(c, "Failed to get client", err)
		return
	}

	c.JSON(http.StatusOK, client)
}

// UpdateClient - PATCH /api/admin/clients/:email
func (h *Handlers) UpdateClient(c *gin.Context) {
	var req models.UpdateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client, err := h.services.Clients.Update(c.Request.Context(), c.Param("email"), &req)
	if err != nil {
		respondError(c, "Failed to update client", err)
		return
	}

	c.JSON(http.StatusOK, client)
}

// BackfillClients - POST /api/admin/clients/backfill
func (h *Handlers) BackfillClients(c *gin.Context) {
	n, err := h.services.Clients.Backfill(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to backfill clients", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rebuilt": n})
}

// ListIntegrations - GET /api/admin/integrations
func (h *Handlers) ListIntegrations(c *gin.Context) {
	list, err := h.services.Integrations.List(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to list integrations", err)
		return
	}

	c.JSON(http.StatusOK, list)
}

// UpsertIntegration - PUT /api/admin/integrations/:serviceId
func (h *Handlers) UpsertIntegration(c *gin.Context) {
	var req models.UpsertIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	saved, err := h.services.Integrations.Upsert(c.Request.Context(), c.Param("serviceId"), &req)
	if err != nil {
		respondError(c, "Failed to save integration", err)
		return
	}

	c.JSON(http.StatusOK, saved)
}
