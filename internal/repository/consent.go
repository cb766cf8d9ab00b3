package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"inkbook/internal/database"
	apperrors "inkbook/internal/errors"
	"inkbook/internal/models"
)

type ConsentRepository struct {
	db *database.DB
}

func NewConsentRepository(db *database.DB) *ConsentRepository {
	return &ConsentRepository{db: db}
}

// Create stores a signature. A second signature for the same booking is
// rejected with ErrConflict; stored signatures are never overwritten.
func (r *ConsentRepository) Create(ctx context.Context, c *models.ConsentSignature) error {
	query := `
		INSERT INTO consent_forms (booking_id, signature_image, health_data_snapshot, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (booking_id) DO NOTHING
		RETURNING signed_at`

	err := r.db.QueryRowContext(ctx, query,
		c.BookingID,
		c.SignatureImage,
		jsonParam(c.HealthDataSnapshot),
		c.IPAddress,
		c.UserAgent,
	).Scan(&c.SignedAt)
	if err == sql.ErrNoRows {
		return apperrors.ErrConflict
	}
	return err
}

func (r *ConsentRepository) GetByBookingID(ctx context.Context, bookingID string) (*models.ConsentSignature, error) {
	query := `
		SELECT booking_id, signature_image, health_data_snapshot, ip_address, user_agent, signed_at
		FROM consent_forms
		WHERE booking_id = $1`

	var c models.ConsentSignature
	var snapshot []byte
	err := r.db.QueryRowContext(ctx, query, bookingID).Scan(
		&c.BookingID,
		&c.SignatureImage,
		&snapshot,
		&c.IPAddress,
		&c.UserAgent,
		&c.SignedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		c.HealthDataSnapshot = json.RawMessage(snapshot)
	}
	return &c, nil
}
