package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"inkbook/internal/database"
	apperrors "inkbook/internal/errors"
	"inkbook/internal/models"

	"github.com/lib/pq"
)

const bookingColumns = `id, artist_id, client_name, client_email, client_phone, client_language,
		       booking_date, booking_time, duration_hours, city_name, tattoo_type, description,
		       body_location, reference_images, estimated_price, deposit_amount, payment_method,
		       health_form, terms_accepted_at, status, payment_status, payment_intent_id,
		       pix_payment_id, manual_reference, payment_id, payment_metadata,
		       availability_verified, created_at, updated_at`

// BookingFilter narrows List. Zero values are ignored.
type BookingFilter struct {
	ArtistID    string
	Status      string
	ClientEmail string
	CityName    string
	From        *models.Date
	To          *models.Date
	Limit       int
}

// PaymentReference is what a payment rail attached to a booking.
type PaymentReference struct {
	PaymentIntentID string
	PixPaymentID    string
	ManualReference string
	Metadata        json.RawMessage
}

// DayCount is the number of active bookings of a city on one day.
type DayCount struct {
	CityName string
	Date     models.Date
	Count    int
}

type BookingRepository struct {
	db *database.DB
}

func NewBookingRepository(db *database.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var healthForm, metadata []byte

	err := row.Scan(
		&b.ID,
		&b.ArtistID,
		&b.ClientName,
		&b.ClientEmail,
		&b.ClientPhone,
		&b.ClientLanguage,
		&b.BookingDate,
		&b.BookingTime,
		&b.DurationHours,
		&b.CityName,
		&b.TattooType,
		&b.Description,
		&b.BodyLocation,
		pq.Array(&b.ReferenceImages),
		&b.EstimatedPrice,
		&b.DepositAmount,
		&b.PaymentMethod,
		&healthForm,
		&b.TermsAcceptedAt,
		&b.Status,
		&b.PaymentStatus,
		&b.PaymentIntentID,
		&b.PixPaymentID,
		&b.ManualReference,
		&b.PaymentID,
		&metadata,
		&b.AvailabilityVerified,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(healthForm) > 0 {
		b.HealthForm = json.RawMessage(healthForm)
	}
	if len(metadata) > 0 {
		b.PaymentMetadata = json.RawMessage(metadata)
	}
	return &b, nil
}

// jsonParam turns raw JSON into a JSONB parameter, NULL when empty.
func jsonParam(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	query := `
		INSERT INTO bookings (id, artist_id, client_name, client_email, client_phone, client_language,
		                      booking_date, booking_time, duration_hours, city_name, tattoo_type,
		                      description, body_location, reference_images, estimated_price,
		                      deposit_amount, payment_method, health_form, terms_accepted_at,
		                      status, payment_status, availability_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING created_at, updated_at`

	refs := booking.ReferenceImages
	if refs == nil {
		refs = []string{}
	}

	err := r.db.QueryRowContext(ctx, query,
		booking.ID,
		booking.ArtistID,
		booking.ClientName,
		booking.ClientEmail,
		booking.ClientPhone,
		booking.ClientLanguage,
		booking.BookingDate,
		booking.BookingTime,
		booking.DurationHours,
		booking.CityName,
		booking.TattooType,
		booking.Description,
		booking.BodyLocation,
		pq.Array(refs),
		booking.EstimatedPrice,
		booking.DepositAmount,
		booking.PaymentMethod,
		jsonParam(booking.HealthForm),
		booking.TermsAcceptedAt,
		booking.Status,
		booking.PaymentStatus,
		booking.AvailabilityVerified,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)
	if isUniqueViolation(err) {
		return apperrors.ErrSlotUnavailable
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return booking, err
}

func (r *BookingRepository) List(ctx context.Context, filter BookingFilter) ([]models.Booking, error) {
	var conditions []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.ArtistID != "" {
		add("artist_id = $%d", filter.ArtistID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.ClientEmail != "" {
		add("LOWER(client_email) = LOWER($%d)", filter.ClientEmail)
	}
	if filter.CityName != "" {
		add("LOWER(city_name) = LOWER($%d)", filter.CityName)
	}
	if filter.From != nil {
		add("booking_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("booking_date <= $%d", *filter.To)
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY booking_date, booking_time, created_at"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryWithRetry(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := []models.Booking{}
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *booking)
	}

	return bookings, rows.Err()
}

// UpdateStatus writes a new status and, when given, a new payment status.
// No transition rules are applied here.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id, status, paymentStatus string) error {
	query := `
		UPDATE bookings
		SET status = $2,
		    payment_status = COALESCE($3, payment_status),
		    updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, status, nullIfEmpty(paymentStatus))
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// SetPaymentReference stores the reference a payment rail produced.
func (r *BookingRepository) SetPaymentReference(ctx context.Context, id string, ref PaymentReference) error {
	query := `
		UPDATE bookings
		SET payment_intent_id = $2,
		    pix_payment_id = $3,
		    manual_reference = $4,
		    payment_metadata = $5,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id,
		nullIfEmpty(ref.PaymentIntentID),
		nullIfEmpty(ref.PixPaymentID),
		nullIfEmpty(ref.ManualReference),
		jsonParam(ref.Metadata),
	)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// ConfirmPayment moves a pending booking to CONFIRMED/paid. It reports
// false without error when the booking was already confirmed, so concurrent
// deliveries of one payment notification confirm at most once.
func (r *BookingRepository) ConfirmPayment(ctx context.Context, id, paymentID string) (bool, error) {
	query := `
		UPDATE bookings
		SET status = 'CONFIRMED',
		    payment_status = 'paid',
		    payment_id = COALESCE($2, payment_id),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING' AND payment_status <> 'paid'`

	result, err := r.db.ExecContext(ctx, query, id, nullIfEmpty(paymentID))
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 1 {
		return true, nil
	}
	return false, r.requireExists(ctx, id)
}

// MarkPaymentFailed flags a failed payment attempt on a booking that is not
// already paid. The booking stays PENDING so the client can retry.
func (r *BookingRepository) MarkPaymentFailed(ctx context.Context, id, paymentID string) (bool, error) {
	query := `
		UPDATE bookings
		SET payment_status = 'failed',
		    payment_id = COALESCE($2, payment_id),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING' AND payment_status = 'pending'`

	result, err := r.db.ExecContext(ctx, query, id, nullIfEmpty(paymentID))
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 1 {
		return true, nil
	}
	return false, r.requireExists(ctx, id)
}

// TakenSlots returns the start times held by active bookings in a city on a date.
func (r *BookingRepository) TakenSlots(ctx context.Context, city string, date models.Date) ([]string, error) {
	query := `
		SELECT booking_time
		FROM bookings
		WHERE LOWER(city_name) = LOWER($1) AND booking_date = $2 AND status <> 'CANCELLED'
		ORDER BY booking_time`

	rows, err := r.db.QueryContext(ctx, query, strings.TrimSpace(city), date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slots := []string{}
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// CountActiveByDay counts active bookings per city and day within a range.
func (r *BookingRepository) CountActiveByDay(ctx context.Context, from, to models.Date) ([]DayCount, error) {
	query := `
		SELECT LOWER(city_name), booking_date, COUNT(*)
		FROM bookings
		WHERE booking_date BETWEEN $1 AND $2 AND status <> 'CANCELLED'
		GROUP BY LOWER(city_name), booking_date`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := []DayCount{}
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.CityName, &dc.Date, &dc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, dc)
	}
	return counts, rows.Err()
}

// CountActiveInRange counts active bookings of a city between two dates.
func (r *BookingRepository) CountActiveInRange(ctx context.Context, city string, from, to models.Date) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM bookings
		WHERE LOWER(city_name) = LOWER($1) AND booking_date BETWEEN $2 AND $3 AND status <> 'CANCELLED'`

	var count int
	err := r.db.QueryRowContext(ctx, query, strings.TrimSpace(city), from, to).Scan(&count)
	return count, err
}

// ClientEmails returns every distinct client e-mail, lower-cased.
func (r *BookingRepository) ClientEmails(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT LOWER(client_email) FROM bookings ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	emails := []string{}
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

func (r *BookingRepository) requireExists(ctx context.Context, id string) error {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.ErrNotFound
	}
	return nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
