package tour

import (
	"sort"

	"inkbook/internal/models"
)

// Gap severities
const (
	SeverityCritical = "critical"
	SeverityMedium   = "medium"
	SeverityFine     = "fine"
)

// Gap is an under-booked tour day worth promoting.
type Gap struct {
	Date         models.Date `json:"date"`
	CityName     string      `json:"cityName"`
	CountryName  string      `json:"countryName"`
	CountryFlag  string      `json:"countryFlag"`
	BookingCount int         `json:"bookingCount"`
	OpenSlots    int         `json:"openSlots"`
	Severity     string      `json:"severity"`
}

// Classify maps a day's booking count to a severity.
func Classify(count int) string {
	switch {
	case count <= 0:
		return SeverityCritical
	case count == 1:
		return SeverityMedium
	default:
		return SeverityFine
	}
}

// CountKey builds the lookup key used by FindGaps for booking counts.
func CountKey(city string, date models.Date) string {
	return NormalizeCity(city) + "|" + date.String()
}

// FindGaps walks every day from today through the end of each segment and
// returns the limit soonest critical or medium days. counts maps
// CountKey(city, date) to the number of active bookings that day. A
// non-positive limit returns every gap.
func FindGaps(segments []models.TourSegment, counts map[string]int, today models.Date, limit int) []Gap {
	ix := NewIndex(segments)
	seen := map[string]struct{}{}
	gaps := []Gap{}

	for _, s := range segments {
		if s.EndDate.Before(today) {
			continue
		}
		start := s.StartDate
		if start.Before(today) {
			start = today
		}

		for d := start; !d.After(s.EndDate); d = d.AddDays(1) {
			key := CountKey(s.CityName, d)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			count := counts[key]
			severity := Classify(count)
			if severity == SeverityFine {
				continue
			}

			slots := len(ix.SlotsForDate(s.CityName, d))
			open := slots - count
			if open < 0 {
				open = 0
			}

			gaps = append(gaps, Gap{
				Date:         d,
				CityName:     s.CityName,
				CountryName:  s.CountryName,
				CountryFlag:  s.CountryFlag,
				BookingCount: count,
				OpenSlots:    open,
				Severity:     severity,
			})
		}
	}

	sort.SliceStable(gaps, func(i, j int) bool {
		if !gaps[i].Date.Equal(gaps[j].Date) {
			return gaps[i].Date.Before(gaps[j].Date)
		}
		return gaps[i].BookingCount < gaps[j].BookingCount
	})

	if limit > 0 && len(gaps) > limit {
		gaps = gaps[:limit]
	}
	return gaps
}
