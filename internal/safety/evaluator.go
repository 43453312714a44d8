package safety

import (
	"time"

	"github.com/safetrack-gps/safetrack/internal/geo"
)

type (
	// Evaluation is the verdict for one vehicle at one point in time.
	// DistanceMeters is only meaningful for inside/outside verdicts; the
	// out_of_window short-circuit never computes it.
	Evaluation struct {
		Verdict        Verdict `json:"verdict"`
		DistanceMeters float64 `json:"distanceMeters,omitempty"`
	}
)

// Evaluate computes the containment verdict for a zone, position and local
// time. Pure: same inputs always yield the same verdict, the only clock is
// the passed-in localNow. Disabled zones are the caller's concern; this
// function assumes the zone applies.
func Evaluate(zone *SafeZone, pos *Position, localNow time.Time) Evaluation {
	if !geo.IsWithinTimeWindow(zone.WindowStart, zone.WindowEnd, zone.ActiveDays, localNow) {
		return Evaluation{Verdict: VerdictOutOfWindow}
	}

	d := geo.HaversineDistanceMeters(
		geo.Point{Lat: zone.CenterLat, Lon: zone.CenterLon},
		geo.Point{Lat: pos.Lat, Lon: pos.Lon},
	)

	if d > zone.InternalRadiusMeters {
		return Evaluation{Verdict: VerdictOutside, DistanceMeters: d}
	}
	return Evaluation{Verdict: VerdictInside, DistanceMeters: d}
}
