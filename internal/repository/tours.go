package repository

import (
	"context"
	"database/sql"

	"inkbook/internal/database"
	apperrors "inkbook/internal/errors"
	"inkbook/internal/models"

	"github.com/lib/pq"
)

type TourRepository struct {
	db *database.DB
}

func NewTourRepository(db *database.DB) *TourRepository {
	return &TourRepository{db: db}
}

const tourColumns = `id, country_name, country_flag, city_name, start_date, end_date, time_slots, created_at, updated_at`

func scanTourSegment(row rowScanner) (*models.TourSegment, error) {
	var s models.TourSegment
	err := row.Scan(
		&s.ID,
		&s.CountryName,
		&s.CountryFlag,
		&s.CityName,
		&s.StartDate,
		&s.EndDate,
		pq.Array(&s.TimeSlots),
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns every segment in insertion order. Calendar queries rely on
// this order to resolve which segment wins a date.
func (r *TourRepository) List(ctx context.Context) ([]models.TourSegment, error) {
	query := `SELECT ` + tourColumns + ` FROM tour_segments ORDER BY created_at, id`

	rows, err := r.db.QueryWithRetry(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	segments := []models.TourSegment{}
	for rows.Next() {
		segment, err := scanTourSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, *segment)
	}
	return segments, rows.Err()
}

func (r *TourRepository) GetByID(ctx context.Context, id string) (*models.TourSegment, error) {
	query := `SELECT ` + tourColumns + ` FROM tour_segments WHERE id = $1`

	segment, err := scanTourSegment(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return segment, err
}

func (r *TourRepository) Create(ctx context.Context, s *models.TourSegment) error {
	query := `
		INSERT INTO tour_segments (id, country_name, country_flag, city_name, start_date, end_date, time_slots)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	return r.db.QueryRowContext(ctx, query,
		s.ID,
		s.CountryName,
		s.CountryFlag,
		s.CityName,
		s.StartDate,
		s.EndDate,
		pq.Array(s.TimeSlots),
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *TourRepository) Update(ctx context.Context, s *models.TourSegment) error {
	query := `
		UPDATE tour_segments
		SET country_name = $2,
		    country_flag = $3,
		    city_name = $4,
		    start_date = $5,
		    end_date = $6,
		    time_slots = $7,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		s.ID,
		s.CountryName,
		s.CountryFlag,
		s.CityName,
		s.StartDate,
		s.EndDate,
		pq.Array(s.TimeSlots),
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return apperrors.ErrNotFound
	}
	return err
}

func (r *TourRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tour_segments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}
