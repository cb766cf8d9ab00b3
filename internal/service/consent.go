package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "inkbook/internal/errors"
	"inkbook/internal/logger"
	"inkbook/internal/models"

	"github.com/google/uuid"
)

// MaxSignatureBytes caps the decoded signature image.
const MaxSignatureBytes = 2 << 20

var (
	pngMagic  = []byte("\x89PNG\r\n\x1a\n")
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
)

type ConsentService struct {
	consents ConsentStore
	bookings BookingStore
	now      func() time.Time
}

func NewConsentService(consents ConsentStore, bookings BookingStore) *ConsentService {
	return &ConsentService{consents: consents, bookings: bookings, now: time.Now}
}

func (s *ConsentService) booking(ctx context.Context, bookingID string) (*models.Booking, error) {
	if _, err := uuid.Parse(bookingID); err != nil {
		return nil, apperrors.ErrNotFound
	}
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if booking == nil {
		return nil, apperrors.ErrNotFound
	}
	return booking, nil
}

// GetForSigning returns the booking summary the signing page shows.
func (s *ConsentService) GetForSigning(ctx context.Context, bookingID string) (*models.ConsentView, error) {
	booking, err := s.booking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	existing, err := s.consents.GetByBookingID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}

	view := &models.ConsentView{
		BookingID:   booking.ID,
		ClientName:  booking.ClientName,
		BookingDate: booking.BookingDate,
		BookingTime: booking.BookingTime,
		CityName:    booking.CityName,
		TattooType:  booking.TattooType,
	}
	if existing != nil {
		view.Signed = true
		view.SignedAt = &existing.SignedAt
	}
	return view, nil
}

// Sign stores the client's signature. A booking is signed at most once.
func (s *ConsentService) Sign(ctx context.Context, bookingID string, req *models.SignConsentRequest, ipAddress, userAgent string) (*models.ConsentSignature, error) {
	booking, err := s.booking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.BookingStatusCancelled {
		return nil, fmt.Errorf("%w: booking is cancelled", apperrors.ErrConflict)
	}

	image, err := DecodeSignature(req.SignatureImage)
	if err != nil {
		verr := apperrors.NewValidationError()
		verr.Add("signatureImage", err.Error())
		return nil, verr
	}

	health := req.HealthData
	if len(health) == 0 || string(health) == "null" {
		health = booking.HealthForm
	}

	consent := &models.ConsentSignature{
		BookingID:          bookingID,
		SignatureImage:     base64.StdEncoding.EncodeToString(image),
		HealthDataSnapshot: health,
		IPAddress:          ipAddress,
		UserAgent:          userAgent,
		SignedAt:           s.now().UTC(),
	}

	if err := s.consents.Create(ctx, consent); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, fmt.Errorf("%w: consent already signed", apperrors.ErrConflict)
		}
		return nil, fmt.Errorf("failed to store consent: %w", err)
	}

	logger.WithContext(ctx).Info("Consent signed", "booking_id", bookingID, "ip", ipAddress)
	return consent, nil
}

// DecodeSignature accepts raw base64 or a data URL and returns the PNG or
// JPEG bytes.
func DecodeSignature(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if strings.HasPrefix(encoded, "data:") {
		comma := strings.IndexByte(encoded, ',')
		if comma < 0 || !strings.HasSuffix(encoded[:comma], ";base64") {
			return nil, errors.New("must be a base64 data URL")
		}
		encoded = encoded[comma+1:]
	}
	if encoded == "" {
		return nil, errors.New("is required")
	}
	if base64.StdEncoding.DecodedLen(len(encoded)) > MaxSignatureBytes+3 {
		return nil, fmt.Errorf("must not exceed %d bytes", MaxSignatureBytes)
	}

	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		image, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return nil, errors.New("must be valid base64")
		}
	}
	if len(image) > MaxSignatureBytes {
		return nil, fmt.Errorf("must not exceed %d bytes", MaxSignatureBytes)
	}
	if !bytes.HasPrefix(image, pngMagic) && !bytes.HasPrefix(image, jpegMagic) {
		return nil, errors.New("must be a PNG or JPEG image")
	}
	return image, nil
}
