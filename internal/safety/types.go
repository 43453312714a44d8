package safety

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates an unknown vehicle or device
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates a bad radius, day, window or outcome value
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrPreconditionFailed indicates a business rule rejected the operation,
	// e.g. an inactive vehicle or a missing device. Not retryable.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrUpstreamUnavailable indicates the position or command provider
	// failed. Retryable at the caller's discretion.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

const (
	// ClientRadiusMinMeters is the smallest safe-zone radius a client may request.
	ClientRadiusMinMeters = 20.0
	// ClientRadiusMaxMeters is the largest safe-zone radius a client may request.
	ClientRadiusMaxMeters = 40.0
	// RadiusHysteresisMeters is added to the client radius for the actual
	// containment test, to absorb GPS jitter.
	RadiusHysteresisMeters = 10.0

	// CutoffSafeSpeedKmh is the speed below which the device executes the
	// physical engine stop. Above it, the stop is deferred by the device.
	CutoffSafeSpeedKmh = 20.0
)

type GeofenceState string

const (
	GeofenceUnknown     GeofenceState = "unknown"
	GeofenceInside      GeofenceState = "inside"
	GeofenceOutside     GeofenceState = "outside"
	GeofenceOutOfWindow GeofenceState = "out_of_window"
)

type Verdict string

const (
	VerdictInside      Verdict = "inside"
	VerdictOutside     Verdict = "outside"
	VerdictOutOfWindow Verdict = "out_of_window"
)

type CutoffState string

const (
	CutoffNormal CutoffState = "normal"
	CutoffCut    CutoffState = "cut"
)

type InactivationReason string

const (
	ReasonImpago      InactivationReason = "impago"
	ReasonCancelacion InactivationReason = "cancelacion"
	ReasonLiberado    InactivationReason = "liberado"
)

type IncidentOutcome string

const (
	OutcomeRecovered    IncidentOutcome = "recovered"
	OutcomeNotRecovered IncidentOutcome = "not_recovered"
)

type (
	// SafeZone is a circular boundary plus a recurring weekly time window
	// within which the vehicle is expected to remain.
	SafeZone struct {
		Name                 string   `json:"name"`
		CenterLat            float64  `json:"centerLat"`
		CenterLon            float64  `json:"centerLon"`
		ClientRadiusMeters   float64  `json:"clientRadiusMeters"`
		InternalRadiusMeters float64  `json:"internalRadiusMeters"`
		ActiveDays           []string `json:"activeDays"`
		WindowStart          string   `json:"windowStart"`
		WindowEnd            string   `json:"windowEnd"`
		Enabled              bool     `json:"enabled"`
	}

	// IncidentRecord tracks an operator-declared emergency (siniestro).
	// At most one incident is open per vehicle.
	IncidentRecord struct {
		ID        string          `json:"id"`
		Cause     string          `json:"cause"`
		Channel   string          `json:"channel"`
		StartedAt time.Time       `json:"startedAt"`
		ClosedAt  *time.Time      `json:"closedAt,omitempty"`
		Outcome   IncidentOutcome `json:"outcome,omitempty"`
		LastLat   *float64        `json:"lastLat,omitempty"`
		LastLon   *float64        `json:"lastLon,omitempty"`
	}

	// Vehicle is the durable per-vehicle record. Vehicles are never deleted;
	// deactivation and device release are soft states.
	Vehicle struct {
		VehicleID          string             `json:"vehicleId"`
		ContractID         string             `json:"contractId"`
		UniqueID           string             `json:"uniqueId,omitempty"` // telemetry device key, empty when unassigned
		Active             bool               `json:"active"`
		InactivationReason InactivationReason `json:"inactivationReason,omitempty"`
		Cutoff             CutoffState        `json:"cutoffState"`
		Geofence           GeofenceState      `json:"geofenceState"`
		Zone               *SafeZone          `json:"safeZone,omitempty"`
		Incident           *IncidentRecord    `json:"incident,omitempty"` // open incident, if any
	}

	// Position is a last-known device position, speed already in km/h.
	Position struct {
		Lat       float64   `json:"lat"`
		Lon       float64   `json:"lon"`
		SpeedKmh  *float64  `json:"speedKmh,omitempty"`
		Timestamp time.Time `json:"timestamp"`
	}

	// BreachEvent is emitted once per confirmed inside -> outside edge.
	BreachEvent struct {
		EventID        string   `json:"eventId"`
		VehicleID      string   `json:"vehicleId"`
		ContractID     string   `json:"contractId"`
		DistanceMeters float64  `json:"distanceMeters"`
		Zone           SafeZone `json:"zone"`
		Lat            float64  `json:"lat"`
		Lon            float64  `json:"lon"`
		OccurredAt     string   `json:"occurredAt"`    // local time
		OccurredAtUTC  string   `json:"occurredAtUtc"` // RFC3339
		MapLink        string   `json:"mapLink"`
	}
)

type CommandKind string

const (
	CommandCutoff CommandKind = "cutoff"
	CommandResume CommandKind = "resume"
)

type (
	// PositionProvider supplies the last-known position for a device.
	PositionProvider interface {
		FetchLastPosition(ctx context.Context, deviceKey string) (*Position, error)
	}

	// CommandDispatcher sends cutoff/resume commands to a device and returns
	// the provider's command id.
	CommandDispatcher interface {
		SendCommand(ctx context.Context, deviceKey string, kind CommandKind) (string, error)
	}

	// BreachSink receives breach events, fire-and-forget. A delivery failure
	// is logged by the caller, never retried.
	BreachSink interface {
		PostBreachEvent(ctx context.Context, evt *BreachEvent) error
	}

	// IncidentAuditor records closed incidents for audit, best-effort.
	IncidentAuditor interface {
		RecordClosedIncident(ctx context.Context, vehicleID, contractID string, rec *IncidentRecord) error
	}
)

// Clone returns a deep copy, safe to hand out across goroutines.
func (v *Vehicle) Clone() *Vehicle {
	c := *v
	if v.Zone != nil {
		z := *v.Zone
		z.ActiveDays = append([]string(nil), v.Zone.ActiveDays...)
		c.Zone = &z
	}
	if v.Incident != nil {
		i := *v.Incident
		if v.Incident.ClosedAt != nil {
			t := *v.Incident.ClosedAt
			i.ClosedAt = &t
		}
		c.Incident = &i
	}
	return &c
}
