package service

import (
	"context"
	"fmt"
	"time"

	"inkbook/internal/tour"
)

// DefaultGapLimit is how many gaps a report returns when no limit is given.
const DefaultGapLimit = 10

type GapService struct {
	tours    TourStore
	bookings BookingStore
	now      func() time.Time
}

func NewGapService(tours TourStore, bookings BookingStore) *GapService {
	return &GapService{tours: tours, bookings: bookings, now: time.Now}
}

// Find returns the soonest under-booked tour days.
func (s *GapService) Find(ctx context.Context, limit int) ([]tour.Gap, error) {
	if limit <= 0 {
		limit = DefaultGapLimit
	}

	segments, err := s.tours.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tour segments: %w", err)
	}

	t := today(s.now)
	last := t
	for _, seg := range segments {
		if seg.EndDate.After(last) {
			last = seg.EndDate
		}
	}

	counts := map[string]int{}
	if len(segments) > 0 {
		days, err := s.bookings.CountActiveByDay(ctx, t, last)
		if err != nil {
			return nil, fmt.Errorf("failed to count bookings: %w", err)
		}
		for _, dc := range days {
			counts[tour.CountKey(dc.CityName, dc.Date)] += dc.Count
		}
	}

	return tour.FindGaps(segments, counts, t, limit), nil
}
