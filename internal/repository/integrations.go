package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"inkbook/internal/database"
	"inkbook/internal/models"
)

type IntegrationRepository struct {
	db *database.DB
}

func NewIntegrationRepository(db *database.DB) *IntegrationRepository {
	return &IntegrationRepository{db: db}
}

func scanIntegration(row rowScanner) (*models.IntegrationConfig, error) {
	var ic models.IntegrationConfig
	var raw []byte
	if err := row.Scan(&ic.ServiceID, &ic.IsActive, &ic.Status, &raw, &ic.LastSync); err != nil {
		return nil, err
	}

	ic.Config = map[string]string{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &ic.Config); err != nil {
			return nil, fmt.Errorf("failed to decode config of %s: %w", ic.ServiceID, err)
		}
	}
	return &ic, nil
}

func (r *IntegrationRepository) List(ctx context.Context) ([]models.IntegrationConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT service_id, is_active, status, config, last_sync
		FROM integrations
		ORDER BY service_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.IntegrationConfig{}
	for rows.Next() {
		ic, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *ic)
	}
	return items, rows.Err()
}

func (r *IntegrationRepository) Get(ctx context.Context, serviceID string) (*models.IntegrationConfig, error) {
	ic, err := scanIntegration(r.db.QueryRowContext(ctx, `
		SELECT service_id, is_active, status, config, last_sync
		FROM integrations
		WHERE service_id = $1`, serviceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ic, err
}

// Upsert creates or replaces the settings of a service.
func (r *IntegrationRepository) Upsert(ctx context.Context, ic *models.IntegrationConfig) error {
	raw, err := json.Marshal(ic.Config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	query := `
		INSERT INTO integrations (service_id, is_active, status, config, last_sync)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (service_id) DO UPDATE SET
		    is_active = EXCLUDED.is_active,
		    status = EXCLUDED.status,
		    config = EXCLUDED.config,
		    last_sync = NOW()
		RETURNING last_sync`

	return r.db.QueryRowContext(ctx, query, ic.ServiceID, ic.IsActive, ic.Status, string(raw)).Scan(&ic.LastSync)
}
