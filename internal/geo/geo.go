package geo

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const earthRadiusMeters = 6371000.0

type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// HaversineDistanceMeters returns the great-circle distance between two
// points, assuming a spherical earth.
func HaversineDistanceMeters(p1, p2 Point) float64 {
	lat1 := p1.Lat * math.Pi / 180
	lat2 := p2.Lat * math.Pi / 180
	dLat := (p2.Lat - p1.Lat) * math.Pi / 180
	dLon := (p2.Lon - p1.Lon) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

var weekdayCodes = map[time.Weekday]string{
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
	time.Sunday:    "SU",
}

// WeekdayCode returns the two-letter code (MO..SU) for a weekday.
func WeekdayCode(d time.Weekday) string {
	return weekdayCodes[d]
}

// ValidDayCode reports whether code is one of MO..SU.
func ValidDayCode(code string) bool {
	for _, c := range weekdayCodes {
		if c == code {
			return true
		}
	}
	return false
}

// IsWithinTimeWindow reports whether localNow falls on one of the active
// days AND within the [windowStart, windowEnd] time-of-day window.
// windowStart > windowEnd denotes a window that crosses midnight.
//
// A malformed or empty window is treated as "always applies". Failing open
// keeps the safety monitoring armed instead of silently disabling it; this
// is policy, not an oversight.
func IsWithinTimeWindow(windowStart, windowEnd string, activeDays []string, localNow time.Time) bool {
	if len(activeDays) > 0 {
		today := WeekdayCode(localNow.Weekday())
		found := false
		for _, d := range activeDays {
			if d == today {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	start, okStart := parseClock(windowStart)
	end, okEnd := parseClock(windowEnd)
	if !okStart || !okEnd {
		return true
	}

	now := localNow.Hour()*60 + localNow.Minute()
	if start <= end {
		return now >= start && now <= end
	}
	// wrap-around window, e.g. 22:00 - 06:00
	return now >= start || now <= end
}

// ValidClock reports whether s is a well-formed HH:MM value.
func ValidClock(s string) bool {
	_, ok := parseClock(s)
	return ok
}

func parseClock(s string) (int, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
