package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/safetrack-gps/safetrack/internal"
)

const DefaultSweepInterval = 60 * time.Second

var (
	sweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safety_sweeps_total",
		Help: "The number of completed evaluation sweeps",
	})
	vehiclesEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safety_vehicles_evaluated_total",
		Help: "The number of per-vehicle geofence evaluations",
	})
	breachesEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safety_breach_events_total",
		Help: "The number of breach events emitted",
	})
	sweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safety_sweep_errors_total",
		Help: "The number of per-vehicle evaluation failures",
	})
	notifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safety_notify_failures_total",
		Help: "The number of breach notifications that could not be delivered",
	})
)

// Scheduler drives periodic geofence sweeps over the registry. Per-vehicle
// evaluations run with bounded parallelism and are failure-isolated: one
// vehicle's provider error never aborts the sweep for the rest.
type Scheduler struct {
	manager   *Manager
	registry  Registry
	positions PositionProvider
	sink      BreachSink

	interval    time.Duration
	maxParallel int
	now         func() time.Time
	loc         *time.Location

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

func NewScheduler(manager *Manager, registry Registry, positions PositionProvider, sink BreachSink, interval time.Duration, maxParallel int) *Scheduler {
	if maxParallel < 1 {
		maxParallel = 4
	}
	return &Scheduler{
		manager:     manager,
		registry:    registry,
		positions:   positions,
		sink:        sink,
		interval:    interval,
		maxParallel: maxParallel,
		now:         time.Now,
		loc:         time.Local,
	}
}

// SetClock overrides the scheduler's clock and timezone, for tests and for
// fleets monitored in a timezone other than the host's.
func (s *Scheduler) SetClock(now func() time.Time, loc *time.Location) {
	s.now = now
	s.loc = loc
}

// Start spawns the sweep loop. An interval <= 0 means "monitoring off" and
// is a supported mode, not an error.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	if s.interval <= 0 {
		log.Info().Msg("geofence monitoring disabled")
		return
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		log.Info().Str("interval", s.interval.String()).Msg("geofence monitoring started")

		for {
			select {
			case <-ticker.C:
				s.Sweep(context.Background())
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the loop. A sweep already in flight finishes its per-vehicle
// evaluations rather than abandoning a half-applied transition.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	close(s.stop)
	<-s.done
	s.running = false

	log.Info().Msg("geofence monitoring stopped")
}

// Sweep evaluates every active, device-assigned, zone-enabled vehicle once.
func (s *Scheduler) Sweep(ctx context.Context) {
	vehicles, err := s.registry.Snapshot(ctx)
	if err != nil {
		log.Error().Err(err).Msg("registry snapshot failed, skipping sweep")
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(s.maxParallel)

	for _, v := range vehicles {
		if !v.Active || v.UniqueID == "" || v.Zone == nil || !v.Zone.Enabled {
			continue
		}

		vehicle := v
		g.Go(func() error {
			// failures stay per-vehicle, never fail the group
			if err := s.evaluateVehicle(ctx, vehicle); err != nil {
				sweepErrors.Inc()
				log.Warn().Str("vehicle", vehicle.VehicleID).Err(err).Msg("evaluation skipped")
			}
			return nil
		})
	}

	g.Wait()
	sweepsTotal.Inc()
}

func (s *Scheduler) evaluateVehicle(ctx context.Context, v *Vehicle) error {
	pos, err := s.positions.FetchLastPosition(ctx, v.UniqueID)
	if err != nil {
		return fmt.Errorf("position fetch: %w", err)
	}

	localNow := s.now().In(s.loc)
	eval := Evaluate(v.Zone, pos, localNow)
	vehiclesEvaluated.Inc()

	breach, err := s.manager.ApplyGeofenceVerdict(ctx, v.VehicleID, eval.Verdict)
	if err != nil {
		return fmt.Errorf("apply verdict: %w", err)
	}
	if !breach {
		return nil
	}

	breachesEmitted.Inc()
	evt := s.newBreachEvent(v, pos, eval.DistanceMeters, localNow)

	log.Info().Str("vehicle", v.VehicleID).Float64("distance", eval.DistanceMeters).Str("event", evt.EventID).Msg("geofence breach")

	// single best-effort delivery; the transition already happened and is
	// never re-fired for a failed notification
	if s.sink != nil {
		if err := s.sink.PostBreachEvent(ctx, evt); err != nil {
			notifyFailures.Inc()
			log.Error().Str("vehicle", v.VehicleID).Str("event", evt.EventID).Err(err).Msg("breach notification failed")
		}
	}
	return nil
}

func (s *Scheduler) newBreachEvent(v *Vehicle, pos *Position, distance float64, localNow time.Time) *BreachEvent {
	return &BreachEvent{
		EventID:        internal.XID(),
		VehicleID:      v.VehicleID,
		ContractID:     v.ContractID,
		DistanceMeters: distance,
		Zone:           *v.Zone,
		Lat:            pos.Lat,
		Lon:            pos.Lon,
		OccurredAt:     localNow.Format("2006-01-02 15:04:05"),
		OccurredAtUTC:  localNow.UTC().Format(time.RFC3339),
		MapLink:        fmt.Sprintf("https://maps.google.com/?q=%f,%f", pos.Lat, pos.Lon),
	}
}
