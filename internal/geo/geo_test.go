package geo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHaversineZeroForIdenticalPoints(t *testing.T) {
	p := Point{Lat: 19.4326, Lon: -99.1332}
	assert.Equal(t, 0.0, HaversineDistanceMeters(p, p))
}

func TestHaversineSymmetric(t *testing.T) {
	a := Point{Lat: 19.4326, Lon: -99.1332}
	b := Point{Lat: 19.4330, Lon: -99.1340}
	assert.Equal(t, HaversineDistanceMeters(a, b), HaversineDistanceMeters(b, a))
}

func TestHaversineKnownDistance(t *testing.T) {
	// ~40m north of the center: 1 degree latitude is ~111.2km
	center := Point{Lat: 19.4326, Lon: -99.1332}
	moved := Point{Lat: 19.4326 + 40.0/111194.9, Lon: -99.1332}

	d := HaversineDistanceMeters(center, moved)
	assert.InDelta(t, 40.0, d, 0.5)
}

func TestHaversineMonotonic(t *testing.T) {
	center := Point{Lat: 19.4326, Lon: -99.1332}
	near := Point{Lat: 19.4327, Lon: -99.1332}
	far := Point{Lat: 19.4336, Lon: -99.1332}

	assert.Less(t, HaversineDistanceMeters(center, near), HaversineDistanceMeters(center, far))
}

func localTime(t *testing.T, weekday time.Weekday, hour, min int) time.Time {
	t.Helper()
	// 2023-05-01 is a Monday
	base := time.Date(2023, 5, 1, hour, min, 0, 0, time.UTC)
	for base.Weekday() != weekday {
		base = base.AddDate(0, 0, 1)
	}
	return base
}

func TestTimeWindow(t *testing.T) {
	tests := []struct {
		name     string
		start    string
		end      string
		days     []string
		now      time.Time
		expected bool
	}{
		{"inside window", "08:00", "18:00", []string{"MO"}, localTime(t, time.Monday, 12, 0), true},
		{"before window", "08:00", "18:00", []string{"MO"}, localTime(t, time.Monday, 7, 59), false},
		{"after window", "08:00", "18:00", []string{"MO"}, localTime(t, time.Monday, 18, 1), false},
		{"window boundary start", "08:00", "18:00", []string{"MO"}, localTime(t, time.Monday, 8, 0), true},
		{"window boundary end", "08:00", "18:00", []string{"MO"}, localTime(t, time.Monday, 18, 0), true},
		{"wrong day", "00:00", "23:59", []string{"SA", "SU"}, localTime(t, time.Monday, 12, 0), false},
		{"matching day in set", "00:00", "23:59", []string{"SA", "SU"}, localTime(t, time.Sunday, 12, 0), true},
		{"overnight window late evening", "22:00", "06:00", []string{"FR"}, localTime(t, time.Friday, 23, 30), true},
		{"overnight window early morning", "22:00", "06:00", []string{"FR"}, localTime(t, time.Friday, 5, 0), true},
		{"overnight window midday", "22:00", "06:00", []string{"FR"}, localTime(t, time.Friday, 12, 0), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsWithinTimeWindow(tc.start, tc.end, tc.days, tc.now))
		})
	}
}

func TestTimeWindowFailsOpen(t *testing.T) {
	// malformed or empty windows always apply, the monitoring stays armed
	now := localTime(t, time.Monday, 3, 0)

	assert.True(t, IsWithinTimeWindow("", "", []string{"MO"}, now))
	assert.True(t, IsWithinTimeWindow("8am", "6pm", []string{"MO"}, now))
	assert.True(t, IsWithinTimeWindow("25:00", "18:00", []string{"MO"}, now))

	// the day filter still applies even when the clock window is malformed
	assert.False(t, IsWithinTimeWindow("", "", []string{"SA"}, now))
}

func TestDayCodes(t *testing.T) {
	assert.Equal(t, "MO", WeekdayCode(time.Monday))
	assert.Equal(t, "SU", WeekdayCode(time.Sunday))

	assert.True(t, ValidDayCode("WE"))
	assert.False(t, ValidDayCode("XX"))
	assert.False(t, ValidDayCode("mo"))
}

func TestValidClock(t *testing.T) {
	assert.True(t, ValidClock("00:00"))
	assert.True(t, ValidClock("23:59"))
	assert.False(t, ValidClock("24:00"))
	assert.False(t, ValidClock("12:60"))
	assert.False(t, ValidClock("noon"))
	assert.False(t, ValidClock(""))
}
