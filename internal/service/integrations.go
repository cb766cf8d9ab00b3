package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "inkbook/internal/errors"
	"inkbook/internal/integrations"
	"inkbook/internal/logger"
	"inkbook/internal/models"
)

const maskPrefix = "****"

type IntegrationService struct {
	store IntegrationStore
	now   func() time.Time
}

func NewIntegrationService(store IntegrationStore) *IntegrationService {
	return &IntegrationService{store: store, now: time.Now}
}

// MaskSecret hides all but the last four characters of a credential.
func MaskSecret(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 8 {
		return maskPrefix
	}
	return maskPrefix + v[len(v)-4:]
}

func masked(ic models.IntegrationConfig) models.IntegrationConfig {
	out := ic
	out.Config = make(map[string]string, len(ic.Config))
	for k, v := range ic.Config {
		if integrations.IsSecret(k) {
			v = MaskSecret(v)
		}
		out.Config[k] = v
	}
	return out
}

// List returns every supported service with secrets masked. Services never
// configured are listed as disconnected.
func (s *IntegrationService) List(ctx context.Context) ([]models.IntegrationConfig, error) {
	stored, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}

	byID := make(map[string]models.IntegrationConfig, len(stored))
	for _, ic := range stored {
		byID[ic.ServiceID] = ic
	}

	out := make([]models.IntegrationConfig, 0, len(byID))
	for _, id := range integrations.Services() {
		ic, ok := byID[id]
		if !ok {
			ic = models.IntegrationConfig{
				ServiceID: id,
				Status:    models.IntegrationDisconnected,
				Config:    map[string]string{},
			}
		}
		out = append(out, masked(ic))
	}
	return out, nil
}

// Upsert stores a service's settings. Masked secrets sent back unchanged
// keep their stored value.
func (s *IntegrationService) Upsert(ctx context.Context, serviceID string, req *models.UpsertIntegrationRequest) (*models.IntegrationConfig, error) {
	if !integrations.KnownService(serviceID) {
		return nil, apperrors.ErrNotFound
	}

	existing, err := s.store.Get(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}

	values := make(map[string]string, len(req.Config))
	for k, v := range req.Config {
		v = strings.TrimSpace(v)
		if strings.HasPrefix(v, maskPrefix) && existing != nil {
			v = existing.Config[k]
		}
		if v != "" {
			values[k] = v
		}
	}

	verr := apperrors.NewValidationError()
	for _, key := range integrations.RequiredKeys[serviceID] {
		if values[key] == "" {
			verr.Add("config."+key, "is required")
		}
	}
	if req.IsActive.Bool() {
		if err := verr.OrNil(); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	ic := &models.IntegrationConfig{
		ServiceID: serviceID,
		IsActive:  req.IsActive.Bool(),
		Status:    models.IntegrationDisconnected,
		Config:    values,
		LastSync:  &now,
	}
	if ic.IsActive && !verr.HasErrors() {
		ic.Status = models.IntegrationConnected
	}

	if err := s.store.Upsert(ctx, ic); err != nil {
		return nil, fmt.Errorf("failed to save integration: %w", err)
	}

	logger.WithContext(ctx).Info("Integration saved", "service_id", serviceID, "status", ic.Status)
	out := masked(*ic)
	return &out, nil
}
