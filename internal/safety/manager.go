package safety

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/safetrack-gps/safetrack/internal"
	"github.com/safetrack-gps/safetrack/internal/geo"
)

type (
	// ZoneConfig is a client request to (re)configure a vehicle's safe zone.
	// The center is not part of the request; it is anchored to the vehicle's
	// live position at configuration time.
	ZoneConfig struct {
		Name               string   `json:"name"`
		ClientRadiusMeters float64  `json:"clientRadiusMeters"`
		ActiveDays         []string `json:"activeDays"`
		WindowStart        string   `json:"windowStart"`
		WindowEnd          string   `json:"windowEnd"`
	}

	// ZoneResult reports the outcome of ConfigureZone. When Conflict is set,
	// Zone holds the existing enabled zone so the caller can confirm the
	// overwrite; nothing was changed.
	ZoneResult struct {
		Zone     *SafeZone `json:"zone"`
		Conflict bool      `json:"conflict,omitempty"`
	}

	// CutoffResult reports an accepted cutoff command. MayBeDelayed warns
	// that the physical stop is deferred by the device until the vehicle
	// slows below the safety threshold; the logical state is cut regardless.
	CutoffResult struct {
		CommandID    string   `json:"commandId"`
		SpeedKmh     *float64 `json:"speedKmh,omitempty"`
		MayBeDelayed bool     `json:"mayBeDelayed"`
	}

	// CommandResult reports an accepted resume command.
	CommandResult struct {
		CommandID string `json:"commandId"`
	}
)

// Manager is the safety state machine. All transition operations are atomic
// with respect to a single vehicle; the registry serializes per-vehicle
// writes so a command can never race a scheduler tick.
type Manager struct {
	registry  Registry
	positions PositionProvider
	commands  CommandDispatcher
	auditor   IncidentAuditor

	now func() time.Time
	loc *time.Location
}

func NewManager(registry Registry, positions PositionProvider, commands CommandDispatcher, opts ...ManagerOption) *Manager {
	m := &Manager{
		registry:  registry,
		positions: positions,
		commands:  commands,
		now:       time.Now,
		loc:       time.Local,
	}
	for _, opt := range opts {
		opt.Apply(m)
	}
	return m
}

func (m *Manager) localNow() time.Time {
	return m.now().In(m.loc)
}

// RegisterVehicle creates a vehicle record for a contract. The device key
// may be empty; a device can be assigned later.
func (m *Manager) RegisterVehicle(ctx context.Context, contractID, deviceKey string) (*Vehicle, error) {
	if contractID == "" {
		return nil, fmt.Errorf("empty contract id: %w", ErrInvalidConfig)
	}

	mr, ok := m.registry.(interface{ NextVehicleID(string) string })
	vehicleID := ""
	if ok {
		vehicleID = mr.NextVehicleID(contractID)
	} else {
		vehicleID = fmt.Sprintf("%s-%s", contractID, internal.XID())
	}

	v := &Vehicle{
		VehicleID:  vehicleID,
		ContractID: contractID,
		UniqueID:   deviceKey,
		Active:     true,
		Cutoff:     CutoffNormal,
		Geofence:   GeofenceUnknown,
	}
	if err := m.registry.Create(ctx, v); err != nil {
		return nil, err
	}

	log.Info().Str("vehicle", vehicleID).Str("contract", contractID).Msg("vehicle registered")
	return v, nil
}

// DeactivateVehicle soft-disables a vehicle. An inactive vehicle accepts
// only reactivation or device release.
func (m *Manager) DeactivateVehicle(ctx context.Context, vehicleID string, reason InactivationReason) (*Vehicle, error) {
	switch reason {
	case ReasonImpago, ReasonCancelacion, ReasonLiberado:
	default:
		return nil, fmt.Errorf("inactivation reason %q: %w", reason, ErrInvalidConfig)
	}

	return m.registry.Update(ctx, vehicleID, func(v *Vehicle) error {
		v.Active = false
		v.InactivationReason = reason
		v.Geofence = GeofenceUnknown
		return nil
	})
}

// ReactivateVehicle restores an inactive vehicle.
func (m *Manager) ReactivateVehicle(ctx context.Context, vehicleID string) (*Vehicle, error) {
	return m.registry.Update(ctx, vehicleID, func(v *Vehicle) error {
		v.Active = true
		v.InactivationReason = ""
		v.Geofence = GeofenceUnknown
		return nil
	})
}

// ReleaseDevice detaches the telemetry device from a vehicle. Allowed even
// when the vehicle is inactive.
func (m *Manager) ReleaseDevice(ctx context.Context, vehicleID string) (*Vehicle, error) {
	return m.registry.Update(ctx, vehicleID, func(v *Vehicle) error {
		v.UniqueID = ""
		if v.Zone != nil {
			v.Zone.Enabled = false
		}
		v.Geofence = GeofenceUnknown
		return nil
	})
}

func validateZoneConfig(cfg *ZoneConfig) error {
	if cfg.ClientRadiusMeters < ClientRadiusMinMeters || cfg.ClientRadiusMeters > ClientRadiusMaxMeters {
		return fmt.Errorf("radius %.0fm outside [%.0f,%.0f]: %w",
			cfg.ClientRadiusMeters, ClientRadiusMinMeters, ClientRadiusMaxMeters, ErrInvalidConfig)
	}
	if len(cfg.ActiveDays) == 0 {
		return fmt.Errorf("no active days: %w", ErrInvalidConfig)
	}
	for _, d := range cfg.ActiveDays {
		if !geo.ValidDayCode(d) {
			return fmt.Errorf("day code %q: %w", d, ErrInvalidConfig)
		}
	}
	if !geo.ValidClock(cfg.WindowStart) || !geo.ValidClock(cfg.WindowEnd) {
		return fmt.Errorf("window %s-%s: %w", cfg.WindowStart, cfg.WindowEnd, ErrInvalidConfig)
	}
	return nil
}

// ConfigureZone creates or replaces a vehicle's safe zone. The center is
// fixed to the vehicle's current position, which makes the position fetch a
// required read: a provider failure aborts the configuration. Replacing an
// enabled zone needs overwrite=true, otherwise the existing zone is returned
// for confirmation and nothing changes.
func (m *Manager) ConfigureZone(ctx context.Context, vehicleID string, cfg ZoneConfig, overwrite bool) (*ZoneResult, error) {
	if err := validateZoneConfig(&cfg); err != nil {
		return nil, err
	}

	v, err := m.registry.Get(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if !v.Active {
		return nil, fmt.Errorf("vehicle %s is inactive: %w", vehicleID, ErrPreconditionFailed)
	}
	if v.UniqueID == "" {
		return nil, fmt.Errorf("vehicle %s has no device: %w", vehicleID, ErrPreconditionFailed)
	}
	if v.Zone != nil && v.Zone.Enabled && !overwrite {
		return &ZoneResult{Zone: v.Zone, Conflict: true}, nil
	}

	pos, err := m.positions.FetchLastPosition(ctx, v.UniqueID)
	if err != nil {
		return nil, fmt.Errorf("cannot anchor zone center: %w", err)
	}

	zone := &SafeZone{
		Name:                 cfg.Name,
		CenterLat:            pos.Lat,
		CenterLon:            pos.Lon,
		ClientRadiusMeters:   cfg.ClientRadiusMeters,
		InternalRadiusMeters: cfg.ClientRadiusMeters + RadiusHysteresisMeters,
		ActiveDays:           append([]string(nil), cfg.ActiveDays...),
		WindowStart:          cfg.WindowStart,
		WindowEnd:            cfg.WindowEnd,
		Enabled:              true,
	}

	updated, err := m.registry.Update(ctx, vehicleID, func(v *Vehicle) error {
		if !v.Active {
			return fmt.Errorf("vehicle %s is inactive: %w", vehicleID, ErrPreconditionFailed)
		}
		if v.Zone != nil && v.Zone.Enabled && !overwrite {
			return fmt.Errorf("zone overwrite not confirmed: %w", ErrPreconditionFailed)
		}
		v.Zone = zone
		v.Geofence = GeofenceUnknown
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("vehicle", vehicleID).Str("zone", zone.Name).Float64("radius", zone.ClientRadiusMeters).Msg("zone configured")
	return &ZoneResult{Zone: updated.Zone}, nil
}

// DeactivateZone disables the safe zone. Idempotent: disabling an already
// disabled (or absent) zone succeeds with no-op semantics.
func (m *Manager) DeactivateZone(ctx context.Context, vehicleID string) error {
	_, err := m.registry.Update(ctx, vehicleID, func(v *Vehicle) error {
		if !v.Active {
			return fmt.Errorf("vehicle %s is inactive: %w", vehicleID, ErrPreconditionFailed)
		}
		if v.Zone == nil || !v.Zone.Enabled {
			return nil
		}
		v.Zone.Enabled = false
		v.Geofence = GeofenceUnknown
		return nil
	})
	return err
}

// ActivateZone re-enables a previously configured zone.
func (m *Manager) ActivateZone(ctx context.Context, vehicleID string) error {
	_, err := m.registry.Update(ctx, vehicleID, func(v *Vehicle) error {
		if !v.Active {
			return fmt.Errorf("vehicle %s is inactive: %w", vehicleID, ErrPreconditionFailed)
		}
		if v.Zone == nil {
			return fmt.Errorf("vehicle %s has no zone: %w", vehicleID, ErrPreconditionFailed)
		}
		v.Zone.Enabled = true
		v.Geofence = GeofenceUnknown
		return nil
	})
	return err
}

// ApplyGeofenceVerdict is the only path that mutates the geofence state.
// It reports whether this transition is a breach edge; the caller owns the
// notification.
func (m *Manager) ApplyGeofenceVerdict(ctx context.Context, vehicleID string, verdict Verdict) (bool, error) {
	breach := false
	_, err := m.registry.Update(ctx, vehicleID, func(v *Vehicle) error {
		if v.Zone == nil || !v.Zone.Enabled {
			return fmt.Errorf("vehicle %s has no enabled zone: %w", vehicleID, ErrPreconditionFailed)
		}

		f := newGeofenceFSM(v.Geofence)
		next, b, err := f.Apply(ctx, verdict)
		if err != nil {
			return err
		}
		v.Geofence = next
		breach = b
		return nil
	})
	return breach, err
}

// Cutoff sends the remote engine-stop command. The speed read is
// best-effort: a failed lookup does not abort the command, the speed is just
// reported as unavailable. The logical state flips to cut as soon as the
// command is accepted; the device itself defers the physical stop above the
// safety threshold.
func (m *Manager) Cutoff(ctx context.Context, vehicleID string) (*CutoffResult, error) {
	v, err := m.registry.Get(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if !v.Active {
		return nil, fmt.Errorf("vehicle %s is inactive: %w", vehicleID, ErrPreconditionFailed)
	}
	if v.UniqueID == "" {
		return nil, fmt.Errorf("vehicle %s has no device: %w", vehicleID, ErrPreconditionFailed)
	}

	var speedKmh *float64
	if pos, err := m.positions.FetchLastPosition(ctx, v.UniqueID); err != nil {
		log.Warn().Str("vehicle", vehicleID).Err(err).Msg("speed lookup failed, proceeding with cutoff")
	} else {
		speedKmh = pos.SpeedKmh
	}

	cmdID, err := m.commands.SendCommand(ctx, v.UniqueID, CommandCutoff)
	if err != nil {
		return nil, fmt.Errorf("cutoff command: %w", err)
	}

	if _, err := m.registry.Update(ctx, vehicleID, func(v *Vehicle) error {
		v.Cutoff = CutoffCut
		return nil
	}); err != nil {
		return nil, err
	}

	res := &CutoffResult{
		CommandID:    cmdID,
		SpeedKmh:     speedKmh,
		MayBeDelayed: speedKmh != nil && *speedKmh > CutoffSafeSpeedKmh,
	}

	log.Info().Str("vehicle", vehicleID).Str("command", cmdID).Bool("mayBeDelayed", res.MayBeDelayed).Msg("cutoff accepted")
	return res, nil
}

// Resume sends the remote engine-restore command and flips the cutoff state
// back to normal.
func (m *Manager) Resume(ctx context.Context, vehicleID string) (*CommandResult, error) {
	v, err := m.registry.Get(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if !v.Active {
		return nil, fmt.Errorf("vehicle %s is inactive: %w", vehicleID, ErrPreconditionFailed)
	}
	if v.UniqueID == "" {
		return nil, fmt.Errorf("vehicle %s has no device: %w", vehicleID, ErrPreconditionFailed)
	}

	cmdID, err := m.commands.SendCommand(ctx, v.UniqueID, CommandResume)
	if err != nil {
		return nil, fmt.Errorf("resume command: %w", err)
	}

	if _, err := m.registry.Update(ctx, vehicleID, func(v *Vehicle) error {
		v.Cutoff = CutoffNormal
		return nil
	}); err != nil {
		return nil, err
	}

	log.Info().Str("vehicle", vehicleID).Str("command", cmdID).Msg("resume accepted")
	return &CommandResult{CommandID: cmdID}, nil
}

// OpenIncident declares an emergency for a vehicle. Re-opening while one is
// already open overwrites cause and channel but preserves the original
// start time.
func (m *Manager) OpenIncident(ctx context.Context, vehicleID, cause, channel string) (*IncidentRecord, error) {
	updated, err := m.registry.Update(ctx, vehicleID, func(v *Vehicle) error {
		if !v.Active {
			return fmt.Errorf("vehicle %s is inactive: %w", vehicleID, ErrPreconditionFailed)
		}
		if v.Incident != nil {
			v.Incident.Cause = cause
			v.Incident.Channel = channel
			return nil
		}
		v.Incident = &IncidentRecord{
			ID:        internal.XID(),
			Cause:     cause,
			Channel:   channel,
			StartedAt: m.now().UTC(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("vehicle", vehicleID).Str("incident", updated.Incident.ID).Str("cause", cause).Msg("incident open")
	return updated.Incident, nil
}

// CloseIncident resolves the open incident. If the vehicle is currently cut,
// a resume is attempted first; when that command fails the close is aborted
// and the incident stays open, so a vehicle is never silently left
// immobilized behind a closed incident.
func (m *Manager) CloseIncident(ctx context.Context, vehicleID string, outcome IncidentOutcome) (*IncidentRecord, error) {
	switch outcome {
	case OutcomeRecovered, OutcomeNotRecovered:
	default:
		return nil, fmt.Errorf("outcome %q: %w", outcome, ErrInvalidConfig)
	}

	v, err := m.registry.Get(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if v.Incident == nil {
		return nil, fmt.Errorf("vehicle %s has no open incident: %w", vehicleID, ErrPreconditionFailed)
	}

	if v.Cutoff == CutoffCut {
		if _, err := m.Resume(ctx, vehicleID); err != nil {
			return nil, fmt.Errorf("auto-resume before close: %w", err)
		}
	}

	// audit position, best-effort
	var lastLat, lastLon *float64
	if v.UniqueID != "" {
		if pos, err := m.positions.FetchLastPosition(ctx, v.UniqueID); err != nil {
			log.Warn().Str("vehicle", vehicleID).Err(err).Msg("position snapshot unavailable on close")
		} else {
			lastLat, lastLon = &pos.Lat, &pos.Lon
		}
	}

	var closed *IncidentRecord
	updated, err := m.registry.Update(ctx, vehicleID, func(v *Vehicle) error {
		if v.Incident == nil {
			return fmt.Errorf("vehicle %s has no open incident: %w", vehicleID, ErrPreconditionFailed)
		}
		t := m.now().UTC()
		v.Incident.ClosedAt = &t
		v.Incident.Outcome = outcome
		v.Incident.LastLat = lastLat
		v.Incident.LastLon = lastLon
		closed = v.Incident
		v.Incident = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	if m.auditor != nil {
		if err := m.auditor.RecordClosedIncident(ctx, vehicleID, updated.ContractID, closed); err != nil {
			log.Warn().Str("vehicle", vehicleID).Str("incident", closed.ID).Err(err).Msg("incident audit write failed")
		}
	}

	log.Info().Str("vehicle", vehicleID).Str("incident", closed.ID).Str("outcome", string(outcome)).Msg("incident closed")
	return closed, nil
}

// GetState returns the full safety snapshot for one vehicle.
func (m *Manager) GetState(ctx context.Context, vehicleID string) (*Vehicle, error) {
	return m.registry.Get(ctx, vehicleID)
}

// CheckZoneNow runs a one-shot evaluation of the vehicle against its zone
// without touching the persisted geofence state. Used for on-demand UI
// checks; the position fetch is required here.
func (m *Manager) CheckZoneNow(ctx context.Context, vehicleID string) (*Evaluation, error) {
	v, err := m.registry.Get(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if !v.Active {
		return nil, fmt.Errorf("vehicle %s is inactive: %w", vehicleID, ErrPreconditionFailed)
	}
	if v.UniqueID == "" {
		return nil, fmt.Errorf("vehicle %s has no device: %w", vehicleID, ErrPreconditionFailed)
	}
	if v.Zone == nil || !v.Zone.Enabled {
		return nil, fmt.Errorf("vehicle %s has no enabled zone: %w", vehicleID, ErrPreconditionFailed)
	}

	pos, err := m.positions.FetchLastPosition(ctx, v.UniqueID)
	if err != nil {
		return nil, err
	}

	eval := Evaluate(v.Zone, pos, m.localNow())
	return &eval, nil
}
