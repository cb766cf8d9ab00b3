// Package tour answers availability questions over the artist's tour
// segments. Everything here is pure: callers load segments and bookings and
// pass them in.
package tour

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	apperrors "inkbook/internal/errors"
	"inkbook/internal/models"
)

var slotPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// NormalizeCity folds a city name for comparison.
func NormalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

// SameCity reports whether two city names refer to the same city.
func SameCity(a, b string) bool {
	return NormalizeCity(a) == NormalizeCity(b)
}

// Index is a read-only view over a list of segments. Segment order matters:
// when segments of one city share a date, the later one wins.
type Index struct {
	segments []models.TourSegment
}

// NewIndex builds an index over segments in the given order.
func NewIndex(segments []models.TourSegment) *Index {
	return &Index{segments: segments}
}

// Segments returns the segments of a city in index order.
func (ix *Index) Segments(city string) []models.TourSegment {
	var out []models.TourSegment
	for _, s := range ix.segments {
		if SameCity(s.CityName, city) {
			out = append(out, s)
		}
	}
	return out
}

// AvailableDates expands every segment of city into its calendar days,
// bounds inclusive, deduplicated and ascending. Past dates are included.
func (ix *Index) AvailableDates(city string) []models.Date {
	seen := map[string]struct{}{}
	dates := []models.Date{}

	for _, s := range ix.Segments(city) {
		for d := s.StartDate; !d.After(s.EndDate); d = d.AddDays(1) {
			key := d.String()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			dates = append(dates, d)
		}
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// UpcomingDates is AvailableDates without days before today.
func (ix *Index) UpcomingDates(city string, today models.Date) []models.Date {
	all := ix.AvailableDates(city)
	out := make([]models.Date, 0, len(all))
	for _, d := range all {
		if !d.Before(today) {
			out = append(out, d)
		}
	}
	return out
}

// SlotsForDate returns the start times offered in city on date. When more
// than one segment covers the date, the last one in index order wins.
func (ix *Index) SlotsForDate(city string, date models.Date) []string {
	var slots []string
	for _, s := range ix.Segments(city) {
		if s.Contains(date) {
			slots = s.TimeSlots
		}
	}
	if slots == nil {
		return []string{}
	}
	out := make([]string, len(slots))
	copy(out, slots)
	return out
}

// SegmentFor returns the segment that governs city on date, if any.
func (ix *Index) SegmentFor(city string, date models.Date) (models.TourSegment, bool) {
	var found models.TourSegment
	ok := false
	for _, s := range ix.Segments(city) {
		if s.Contains(date) {
			found, ok = s, true
		}
	}
	return found, ok
}

// IsBookable reports whether slot is offered in city on date.
func (ix *Index) IsBookable(city string, date models.Date, slot string) bool {
	for _, s := range ix.SlotsForDate(city, date) {
		if s == slot {
			return true
		}
	}
	return false
}

// Cities lists every city with at least one day from today on, ordered by
// its first upcoming day.
func (ix *Index) Cities(today models.Date) []models.CityInfo {
	byCity := map[string]*models.CityInfo{}
	var order []string

	for _, s := range ix.segments {
		if s.EndDate.Before(today) {
			continue
		}
		first := s.StartDate
		if first.Before(today) {
			first = today
		}

		key := NormalizeCity(s.CityName)
		info, ok := byCity[key]
		if !ok {
			info = &models.CityInfo{
				CityName:    strings.TrimSpace(s.CityName),
				CountryName: s.CountryName,
				CountryFlag: s.CountryFlag,
				FirstDate:   first,
				LastDate:    s.EndDate,
			}
			byCity[key] = info
			order = append(order, key)
			continue
		}
		if first.Before(info.FirstDate) {
			info.FirstDate = first
		}
		if s.EndDate.After(info.LastDate) {
			info.LastDate = s.EndDate
		}
	}

	out := make([]models.CityInfo, 0, len(order))
	for _, key := range order {
		out = append(out, *byCity[key])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FirstDate.Before(out[j].FirstDate) })
	return out
}

// NormalizeSlots validates HH:MM start times and returns them deduplicated
// and sorted.
func NormalizeSlots(slots []string) ([]string, error) {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(slots))
	for _, raw := range slots {
		slot := strings.TrimSpace(raw)
		if !slotPattern.MatchString(slot) {
			return nil, fmt.Errorf("invalid time slot %q: expected HH:MM", raw)
		}
		if _, ok := seen[slot]; ok {
			continue
		}
		seen[slot] = struct{}{}
		out = append(out, slot)
	}
	sort.Strings(out)
	return out, nil
}

// ValidSlot reports whether s is an HH:MM start time.
func ValidSlot(s string) bool {
	return slotPattern.MatchString(s)
}

// ValidateSegment checks a segment before it is written and normalizes its
// slots in place.
func ValidateSegment(s *models.TourSegment) error {
	verr := apperrors.NewValidationError()

	s.CityName = strings.TrimSpace(s.CityName)
	s.CountryName = strings.TrimSpace(s.CountryName)

	if s.CityName == "" {
		verr.Add("cityName", "is required")
	}
	if s.CountryName == "" {
		verr.Add("countryName", "is required")
	}
	if s.StartDate.IsZero() {
		verr.Add("startDate", "is required")
	}
	if s.EndDate.IsZero() {
		verr.Add("endDate", "is required")
	}
	if !s.StartDate.IsZero() && !s.EndDate.IsZero() && s.StartDate.After(s.EndDate) {
		verr.Add("endDate", "must not be before startDate")
	}

	slots, err := NormalizeSlots(s.TimeSlots)
	if err != nil {
		verr.Add("timeSlots", err.Error())
	} else {
		s.TimeSlots = slots
	}

	return verr.OrNil()
}

// FindOverlap returns the first segment of the same city whose date range
// intersects candidate. Segments with candidate's ID are ignored.
func FindOverlap(existing []models.TourSegment, candidate models.TourSegment) (models.TourSegment, bool) {
	for _, s := range existing {
		if s.ID == candidate.ID || !SameCity(s.CityName, candidate.CityName) {
			continue
		}
		if !s.StartDate.After(candidate.EndDate) && !candidate.StartDate.After(s.EndDate) {
			return s, true
		}
	}
	return models.TourSegment{}, false
}
