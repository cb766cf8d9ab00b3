package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	apperrors "inkbook/internal/errors"
	"inkbook/internal/logger"
	"inkbook/internal/models"
	"inkbook/internal/repository"
	"inkbook/internal/tour"

	"github.com/google/uuid"
)

type TourService struct {
	tours    TourStore
	bookings BookingStore
	now      func() time.Time
}

func NewTourService(tours TourStore, bookings BookingStore) *TourService {
	return &TourService{
		tours:    tours,
		bookings: bookings,
		now:      time.Now,
	}
}

func (s *TourService) index(ctx context.Context) (*tour.Index, error) {
	segments, err := s.tours.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tour segments: %w", err)
	}
	return tour.NewIndex(segments), nil
}

// Cities lists the cities with upcoming tour days.
func (s *TourService) Cities(ctx context.Context) ([]models.CityInfo, error) {
	ix, err := s.index(ctx)
	if err != nil {
		return nil, err
	}
	return ix.Cities(today(s.now)), nil
}

// Dates lists the bookable days of a city from today on.
func (s *TourService) Dates(ctx context.Context, city string) (*models.DatesResponse, error) {
	if strings.TrimSpace(city) == "" {
		verr := apperrors.NewValidationError()
		verr.Add("city", "is required")
		return nil, verr
	}

	ix, err := s.index(ctx)
	if err != nil {
		return nil, err
	}
	return &models.DatesResponse{City: strings.TrimSpace(city), Dates: ix.UpcomingDates(city, today(s.now))}, nil
}

// Slots lists the slots of a day not yet held by an active booking.
func (s *TourService) Slots(ctx context.Context, city, date string) (*models.SlotsResponse, error) {
	verr := apperrors.NewValidationError()
	if strings.TrimSpace(city) == "" {
		verr.Add("city", "is required")
	}
	d, err := models.ParseDate(date)
	if err != nil {
		verr.Add("date", "must be a date in YYYY-MM-DD format")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	resp := &models.SlotsResponse{City: strings.TrimSpace(city), Date: d, Slots: []string{}}
	if d.Before(today(s.now)) {
		return resp, nil
	}

	ix, err := s.index(ctx)
	if err != nil {
		return nil, err
	}
	slots := ix.SlotsForDate(city, d)
	if len(slots) == 0 {
		return resp, nil
	}

	taken, err := s.bookings.TakenSlots(ctx, city, d)
	if err != nil {
		return nil, fmt.Errorf("failed to get taken slots: %w", err)
	}
	for _, slot := range slots {
		if !slices.Contains(taken, slot) {
			resp.Slots = append(resp.Slots, slot)
		}
	}
	return resp, nil
}

func (s *TourService) List(ctx context.Context) ([]models.TourSegment, error) {
	segments, err := s.tours.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tour segments: %w", err)
	}
	return segments, nil
}

func (s *TourService) Create(ctx context.Context, req *models.TourSegmentRequest) (*models.TourSegment, error) {
	segment, err := segmentFromRequest(req)
	if err != nil {
		return nil, err
	}
	segment.ID = uuid.New().String()

	if err := s.checkOverlap(ctx, segment); err != nil {
		return nil, err
	}
	if err := s.tours.Create(ctx, segment); err != nil {
		return nil, fmt.Errorf("failed to create tour segment: %w", err)
	}

	logger.WithContext(ctx).Info("Tour segment created",
		"segment_id", segment.ID, "city", segment.CityName,
		"start", segment.StartDate.String(), "end", segment.EndDate.String())
	return segment, nil
}

func (s *TourService) Update(ctx context.Context, id string, req *models.TourSegmentRequest) (*models.TourSegment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.ErrNotFound
	}

	segment, err := segmentFromRequest(req)
	if err != nil {
		return nil, err
	}
	segment.ID = id

	if err := s.checkOverlap(ctx, segment); err != nil {
		return nil, err
	}

	stored, err := s.tours.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get tour segment: %w", err)
	}
	if stored == nil {
		return nil, apperrors.ErrNotFound
	}
	if err := s.checkStranded(ctx, stored, segment); err != nil {
		return nil, err
	}

	if err := s.tours.Update(ctx, segment); err != nil {
		return nil, fmt.Errorf("failed to update tour segment: %w", err)
	}
	return segment, nil
}

// Delete removes a segment unless active bookings from today on fall
// inside it.
func (s *TourService) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.ErrNotFound
	}

	segment, err := s.tours.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get tour segment: %w", err)
	}
	if segment == nil {
		return apperrors.ErrNotFound
	}

	from := segment.StartDate
	if t := today(s.now); from.Before(t) {
		from = t
	}
	if !from.After(segment.EndDate) {
		count, err := s.bookings.CountActiveInRange(ctx, segment.CityName, from, segment.EndDate)
		if err != nil {
			return fmt.Errorf("failed to count bookings: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: %d active bookings in %s between %s and %s",
				apperrors.ErrConflict, count, segment.CityName, from, segment.EndDate)
		}
	}

	if err := s.tours.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete tour segment: %w", err)
	}
	logger.WithContext(ctx).Info("Tour segment deleted", "segment_id", id, "city", segment.CityName)
	return nil
}

// checkStranded rejects an edit that would leave active bookings from today
// on outside the segment that used to hold them. Segments of one city never
// overlap, so no other segment can take over those bookings.
func (s *TourService) checkStranded(ctx context.Context, stored, updated *models.TourSegment) error {
	from := stored.StartDate
	if t := today(s.now); from.Before(t) {
		from = t
	}
	if from.After(stored.EndDate) {
		return nil
	}

	to := stored.EndDate
	bookings, err := s.bookings.List(ctx, repository.BookingFilter{CityName: stored.CityName, From: &from, To: &to})
	if err != nil {
		return fmt.Errorf("failed to list bookings: %w", err)
	}

	stranded := 0
	for _, b := range bookings {
		if b.Status == models.BookingStatusCancelled || b.BookingDate.Before(from) || b.BookingDate.After(to) {
			continue
		}
		if segmentHolds(stored, b) && !segmentHolds(updated, b) {
			stranded++
		}
	}
	if stranded > 0 {
		return fmt.Errorf("%w: %d active bookings in %s would fall outside the updated segment",
			apperrors.ErrConflict, stranded, stored.CityName)
	}
	return nil
}

func segmentHolds(seg *models.TourSegment, b models.Booking) bool {
	return tour.SameCity(seg.CityName, b.CityName) &&
		!b.BookingDate.Before(seg.StartDate) && !b.BookingDate.After(seg.EndDate) &&
		slices.Contains(seg.TimeSlots, b.BookingTime)
}

func (s *TourService) checkOverlap(ctx context.Context, segment *models.TourSegment) error {
	existing, err := s.tours.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tour segments: %w", err)
	}
	if other, ok := tour.FindOverlap(existing, *segment); ok {
		return fmt.Errorf("%w: overlaps %s segment %s to %s",
			apperrors.ErrConflict, other.CityName, other.StartDate, other.EndDate)
	}
	return nil
}

func segmentFromRequest(req *models.TourSegmentRequest) (*models.TourSegment, error) {
	verr := apperrors.NewValidationError()
	segment := &models.TourSegment{
		CountryName: req.CountryName,
		CountryFlag: strings.TrimSpace(req.CountryFlag),
		CityName:    req.CityName,
		TimeSlots:   req.TimeSlots,
	}

	if d, err := models.ParseDate(req.StartDate); err != nil {
		verr.Add("startDate", "must be a date in YYYY-MM-DD format")
	} else {
		segment.StartDate = d
	}
	if d, err := models.ParseDate(req.EndDate); err != nil {
		verr.Add("endDate", "must be a date in YYYY-MM-DD format")
	} else {
		segment.EndDate = d
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if err := tour.ValidateSegment(segment); err != nil {
		return nil, err
	}
	return segment, nil
}
