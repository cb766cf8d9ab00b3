package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	apperrors "inkbook/internal/errors"
	"inkbook/internal/external"
	"inkbook/internal/logger"
	"inkbook/internal/metrics"
	"inkbook/internal/models"
	"inkbook/internal/notify"
	"inkbook/internal/repository"
	"inkbook/internal/tour"

	"github.com/google/uuid"
)

type BookingService struct {
	bookings   BookingStore
	tours      TourStore
	payments   PaymentInitiator
	dispatcher notify.Dispatcher
	now        func() time.Time
}

func NewBookingService(bookings BookingStore, tours TourStore, payments PaymentInitiator, dispatcher notify.Dispatcher) *BookingService {
	return &BookingService{
		bookings:   bookings,
		tours:      tours,
		payments:   payments,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// Create validates and stores a booking request, then starts its payment
// rail. A payment rail failure still leaves the booking stored as PENDING.
func (s *BookingService) Create(ctx context.Context, req *models.CreateBookingRequest) (*models.CreateBookingResponse, error) {
	booking, err := bookingFromRequest(req)
	if err != nil {
		return nil, err
	}

	// Re-check availability against the tour, whatever the site showed
	segments, err := s.tours.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tour segments: %w", err)
	}
	if err := checkAvailability(tour.NewIndex(segments), booking, today(s.now)); err != nil {
		return nil, err
	}

	taken, err := s.bookings.TakenSlots(ctx, booking.CityName, booking.BookingDate)
	if err != nil {
		return nil, fmt.Errorf("failed to get taken slots: %w", err)
	}
	if slices.Contains(taken, booking.BookingTime) {
		return nil, apperrors.ErrSlotUnavailable
	}

	now := s.now().UTC()
	booking.ID = uuid.New().String()
	booking.Status = models.BookingStatusPending
	booking.PaymentStatus = models.PaymentStatusPending
	booking.TermsAcceptedAt = &now
	booking.AvailabilityVerified = true

	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	metrics.BookingsCreated.WithLabelValues(booking.PaymentMethod).Inc()
	logger.WithContext(ctx).Info("Booking created",
		"booking_id", booking.ID,
		"city", booking.CityName,
		"date", booking.BookingDate.String(),
		"method", booking.PaymentMethod)

	resp, payErr := s.payments.Initiate(ctx, booking)

	s.dispatcher.Dispatch(ctx, models.EventBookingCreated, *booking, notify.BookingCreatedChannels)

	if payErr != nil {
		return nil, payErr
	}
	return resp, nil
}

func bookingFromRequest(req *models.CreateBookingRequest) (*models.Booking, error) {
	verr := apperrors.NewValidationError()

	required := map[string]string{
		"artistId":     req.ArtistID,
		"clientName":   req.ClientName,
		"clientEmail":  req.ClientEmail,
		"clientPhone":  req.ClientPhone,
		"cityName":     req.CityName,
		"bookingDate":  req.BookingDate,
		"bookingTime":  req.BookingTime,
		"tattooType":   req.TattooType,
		"bodyLocation": req.BodyLocation,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			verr.Add(field, "is required")
		}
	}

	email := strings.TrimSpace(req.ClientEmail)
	if email != "" {
		if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
			verr.Add("clientEmail", "must be a valid e-mail address")
		}
	}
	if req.ClientPhone != "" && len(external.NormalizePhone(req.ClientPhone)) < 8 {
		verr.Add("clientPhone", "must contain at least 8 digits")
	}
	if req.TattooType != "" && !slices.Contains(models.TattooTypes, req.TattooType) {
		verr.Add("tattooType", "is not a supported tattoo type")
	}
	if req.PaymentMethod == "" {
		verr.Add("paymentMethod", "is required")
	} else if !slices.Contains(models.PaymentMethods, req.PaymentMethod) {
		verr.Add("paymentMethod", "is not a supported payment method")
	}
	if req.DepositAmount <= 0 {
		verr.Add("depositAmount", "must be greater than zero")
	}
	if req.EstimatedPrice != nil && *req.EstimatedPrice < 0 {
		verr.Add("estimatedPrice", "must not be negative")
	}
	if req.DurationHours < 0 || req.DurationHours > 12 {
		verr.Add("durationHours", "must be between 0 and 12")
	}
	if !req.TermsAccepted.Bool() {
		verr.Add("termsAccepted", "must be accepted")
	}
	if len(req.HealthForm) == 0 || string(req.HealthForm) == "null" {
		verr.Add("healthForm", "is required")
	}

	var date models.Date
	if req.BookingDate != "" {
		parsed, err := models.ParseDate(req.BookingDate)
		if err != nil {
			verr.Add("bookingDate", "must be a date in YYYY-MM-DD format")
		}
		date = parsed
	}
	bookingTime := strings.TrimSpace(req.BookingTime)
	if bookingTime != "" && !tour.ValidSlot(bookingTime) {
		verr.Add("bookingTime", "must be a time in HH:MM format")
	}

	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	booking := &models.Booking{
		ArtistID:        strings.TrimSpace(req.ArtistID),
		ClientName:      strings.TrimSpace(req.ClientName),
		ClientEmail:     strings.ToLower(email),
		ClientPhone:     strings.TrimSpace(req.ClientPhone),
		BookingDate:     date,
		BookingTime:     bookingTime,
		DurationHours:   req.DurationHours,
		CityName:        strings.TrimSpace(req.CityName),
		TattooType:      req.TattooType,
		Description:     strings.TrimSpace(req.Description),
		BodyLocation:    strings.TrimSpace(req.BodyLocation),
		ReferenceImages: req.ReferenceImages,
		EstimatedPrice:  req.EstimatedPrice,
		DepositAmount:   req.DepositAmount,
		PaymentMethod:   req.PaymentMethod,
		HealthForm:      req.HealthForm,
	}
	if lang := strings.TrimSpace(req.ClientLanguage); lang != "" {
		booking.ClientLanguage = &lang
	}
	if booking.ReferenceImages == nil {
		booking.ReferenceImages = []string{}
	}
	return booking, nil
}

// checkAvailability rejects dates and slots the tour does not offer. The
// booking takes the segment's spelling of the city.
func checkAvailability(ix *tour.Index, b *models.Booking, today models.Date) error {
	verr := apperrors.NewValidationError()

	if b.BookingDate.Before(today) {
		verr.Add("bookingDate", "is in the past")
		return verr
	}

	seg, ok := ix.SegmentFor(b.CityName, b.BookingDate)
	if !ok {
		verr.Add("bookingDate", fmt.Sprintf("the artist is not in %s on %s", b.CityName, b.BookingDate))
		return verr
	}
	if !ix.IsBookable(b.CityName, b.BookingDate, b.BookingTime) {
		verr.Add("bookingTime", fmt.Sprintf("%s is not an available slot on %s", b.BookingTime, b.BookingDate))
		return verr
	}

	b.CityName = seg.CityName
	return nil
}

func (s *BookingService) Get(ctx context.Context, id string) (*models.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.ErrNotFound
	}

	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if booking == nil {
		return nil, apperrors.ErrNotFound
	}
	return booking, nil
}

func (s *BookingService) List(ctx context.Context, filter repository.BookingFilter) ([]models.Booking, error) {
	if filter.Status != "" && !validStatus(filter.Status) {
		verr := apperrors.NewValidationError()
		verr.Add("status", "is not a booking status")
		return nil, verr
	}

	bookings, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

func validStatus(status string) bool {
	switch status {
	case models.BookingStatusPending, models.BookingStatusConfirmed,
		models.BookingStatusCompleted, models.BookingStatusCancelled:
		return true
	}
	return false
}

// ChangeStatus applies a staff transition:
//
//	PENDING   -> CONFIRMED  manual methods, or any method already paid
//	CONFIRMED -> COMPLETED
//	PENDING   -> CANCELLED
//	CONFIRMED -> CANCELLED
func (s *BookingService) ChangeStatus(ctx context.Context, id string, req *models.UpdateBookingStatusRequest) (*models.Booking, error) {
	booking, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	from := booking.Status
	target := strings.ToUpper(strings.TrimSpace(req.Status))
	verr := apperrors.NewValidationError()
	if !validStatus(target) {
		verr.Add("status", "is not a booking status")
		return nil, verr
	}

	switch {
	case booking.Status == models.BookingStatusPending && target == models.BookingStatusConfirmed:
		return s.confirmByStaff(ctx, booking)

	case booking.Status == models.BookingStatusConfirmed && target == models.BookingStatusCompleted:
		if err := s.bookings.UpdateStatus(ctx, id, target, ""); err != nil {
			return nil, fmt.Errorf("failed to complete booking: %w", err)
		}

	case (booking.Status == models.BookingStatusPending || booking.Status == models.BookingStatusConfirmed) &&
		target == models.BookingStatusCancelled:
		if err := s.bookings.UpdateStatus(ctx, id, target, ""); err != nil {
			return nil, fmt.Errorf("failed to cancel booking: %w", err)
		}
		booking.Status = target
		s.dispatcher.Dispatch(ctx, models.EventBookingCancelled, *booking, []string{notify.ChannelCRM})

	default:
		verr.Add("status", fmt.Sprintf("cannot move a %s booking to %s", booking.Status, target))
		return nil, verr
	}

	logger.WithContext(ctx).Info("Booking status changed by staff",
		"booking_id", id, "from", from, "to", target)
	booking.Status = target
	return booking, nil
}

func (s *BookingService) confirmByStaff(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	paid := booking.PaymentStatus == models.PaymentStatusPaid
	if !paid && !models.IsManualMethod(booking.PaymentMethod) {
		verr := apperrors.NewValidationError()
		verr.Add("status", "online payments are confirmed by the payment provider")
		return nil, verr
	}

	var transitioned bool
	var err error
	if paid {
		err = s.bookings.UpdateStatus(ctx, booking.ID, models.BookingStatusConfirmed, "")
		transitioned = err == nil
	} else {
		transitioned, err = s.bookings.ConfirmPayment(ctx, booking.ID, "")
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to confirm booking: %w", err)
	}

	booking.Status = models.BookingStatusConfirmed
	booking.PaymentStatus = models.PaymentStatusPaid
	if transitioned {
		logger.WithContext(ctx).Info("Booking confirmed by staff", "booking_id", booking.ID, "method", booking.PaymentMethod)
		s.dispatcher.Dispatch(ctx, models.EventPaymentConfirmed, *booking, notify.PaymentConfirmedChannels)
	}
	return booking, nil
}
