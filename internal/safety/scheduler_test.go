package safety

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeSink struct {
	mu     sync.Mutex
	events []*BreachEvent
	err    error
}

func (f *fakeSink) PostBreachEvent(ctx context.Context, evt *BreachEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func newTestScheduler(t *testing.T) (*Scheduler, *Manager, *fakeProvider, *fakeSink) {
	t.Helper()

	registry := NewMemoryRegistry()
	provider := &fakeProvider{positions: map[string]*Position{testDevice: speed(0)}}
	dispatcher := &fakeDispatcher{}

	clock := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC) // Monday noon
	m := NewManager(registry, provider, dispatcher,
		WithClock(func() time.Time { return clock }),
		WithLocation(time.UTC),
	)

	s := NewScheduler(m, registry, provider, nil, DefaultSweepInterval, 4)
	s.SetClock(func() time.Time { return clock }, time.UTC)

	sink := &fakeSink{}
	s.sink = sink

	_, err := m.RegisterVehicle(context.TODO(), testContract, testDevice)
	assert.NoError(t, err)

	cfg := validConfig()
	cfg.ActiveDays = []string{"MO", "TU", "WE", "TH", "FR", "SA", "SU"}
	cfg.WindowStart = "00:00"
	cfg.WindowEnd = "23:59"
	_, err = m.ConfigureZone(context.TODO(), "C100-01", cfg, false)
	assert.NoError(t, err)

	return s, m, provider, sink
}

func moveTo(provider *fakeProvider, meters float64) {
	provider.mu.Lock()
	defer provider.mu.Unlock()
	provider.positions[testDevice] = positionAtMeters(testZone(), meters)
}

func TestSweepEmitsOneEventPerEdge(t *testing.T) {
	s, m, provider, sink := newTestScheduler(t)

	// settle inside first
	moveTo(provider, 5)
	s.Sweep(context.TODO())
	assert.Equal(t, 0, sink.count())

	// leave the zone: exactly one event, repeated sweeps stay silent
	moveTo(provider, 40)
	s.Sweep(context.TODO())
	s.Sweep(context.TODO())
	s.Sweep(context.TODO())
	assert.Equal(t, 1, sink.count())
	assert.InDelta(t, 40.0, sink.events[0].DistanceMeters, 0.5)
	assert.Equal(t, "C100-01", sink.events[0].VehicleID)
	assert.NotEmpty(t, sink.events[0].EventID)
	assert.NotEmpty(t, sink.events[0].MapLink)

	// re-enter, then leave again: a new edge, a second event
	moveTo(provider, 5)
	s.Sweep(context.TODO())
	assert.Equal(t, 1, sink.count())

	moveTo(provider, 40)
	s.Sweep(context.TODO())
	assert.Equal(t, 2, sink.count())

	v, _ := m.GetState(context.TODO(), "C100-01")
	assert.Equal(t, GeofenceOutside, v.Geofence)
}

func TestSweepFirstOutsideFromUnknownIsSilent(t *testing.T) {
	s, _, provider, sink := newTestScheduler(t)

	// no confirmed safe baseline after (re)configuration
	moveTo(provider, 40)
	s.Sweep(context.TODO())
	assert.Equal(t, 0, sink.count())
}

func TestSweepOutOfWindowNeverEmits(t *testing.T) {
	s, m, provider, sink := newTestScheduler(t)

	cfg := validConfig()
	cfg.ActiveDays = []string{"SA", "SU"} // clock is a Monday
	_, err := m.ConfigureZone(context.TODO(), "C100-01", cfg, true)
	assert.NoError(t, err)

	moveTo(provider, 500)
	s.Sweep(context.TODO())
	s.Sweep(context.TODO())
	assert.Equal(t, 0, sink.count())

	v, _ := m.GetState(context.TODO(), "C100-01")
	assert.Equal(t, GeofenceOutOfWindow, v.Geofence)
}

func TestSweepSkipsNonEligibleVehicles(t *testing.T) {
	s, m, _, sink := newTestScheduler(t)

	// no device
	v2, err := m.RegisterVehicle(context.TODO(), "C200", "")
	assert.NoError(t, err)

	// no zone
	_, err = m.RegisterVehicle(context.TODO(), "C300", "dev-3")
	assert.NoError(t, err)

	// disabled zone
	assert.NoError(t, m.DeactivateZone(context.TODO(), "C100-01"))

	s.Sweep(context.TODO())
	assert.Equal(t, 0, sink.count())

	state, _ := m.GetState(context.TODO(), v2.VehicleID)
	assert.Equal(t, GeofenceUnknown, state.Geofence)
}

func TestSweepIsolatesPerVehicleFailures(t *testing.T) {
	s, m, provider, sink := newTestScheduler(t)

	// second vehicle whose device the provider does not know
	_, err := m.RegisterVehicle(context.TODO(), "C200", "dev-unknown")
	assert.NoError(t, err)
	cfg := validConfig()
	cfg.ActiveDays = []string{"MO"}
	cfg.WindowStart = "00:00"
	cfg.WindowEnd = "23:59"

	// anchor needs a position; give the provider one temporarily
	provider.mu.Lock()
	provider.positions["dev-unknown"] = speed(0)
	provider.mu.Unlock()
	_, err = m.ConfigureZone(context.TODO(), "C200-01", cfg, false)
	assert.NoError(t, err)
	provider.mu.Lock()
	delete(provider.positions, "dev-unknown")
	provider.mu.Unlock()

	// the failing vehicle never aborts the sweep for the healthy one
	moveTo(provider, 5)
	s.Sweep(context.TODO())
	moveTo(provider, 40)
	s.Sweep(context.TODO())

	assert.Equal(t, 1, sink.count())
	assert.Equal(t, "C100-01", sink.events[0].VehicleID)

	failed, _ := m.GetState(context.TODO(), "C200-01")
	assert.Equal(t, GeofenceUnknown, failed.Geofence)
}

func TestSweepNotifyFailureDoesNotRollBack(t *testing.T) {
	s, m, provider, sink := newTestScheduler(t)
	sink.err = fmt.Errorf("endpoint down")

	moveTo(provider, 5)
	s.Sweep(context.TODO())
	moveTo(provider, 40)
	s.Sweep(context.TODO())

	// the transition happened and will not be re-fired later
	v, _ := m.GetState(context.TODO(), "C100-01")
	assert.Equal(t, GeofenceOutside, v.Geofence)

	sink.err = nil
	s.Sweep(context.TODO())
	assert.Equal(t, 0, sink.count())
}

func TestSchedulerDisabledInterval(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)
	s.interval = 0

	// interval <= 0 is "monitoring off", not an error
	s.Start()
	assert.False(t, s.running)
	s.Stop()
}

func TestSchedulerStartStop(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)
	s.interval = time.Hour

	s.Start()
	assert.True(t, s.running)
	s.Start() // second start is a no-op

	s.Stop()
	assert.False(t, s.running)
	s.Stop() // second stop is a no-op
}
