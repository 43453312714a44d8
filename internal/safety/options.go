package safety

import "time"

type ManagerOption interface {
	Apply(m *Manager)
}

// WithClock returns a ManagerOption that overrides the manager's clock.
func WithClock(now func() time.Time) ManagerOption {
	return withClock(now)
}

type withClock func() time.Time

func (w withClock) Apply(m *Manager) {
	m.now = w
}

// WithLocation returns a ManagerOption that sets the local timezone used
// for time-window evaluation.
func WithLocation(loc *time.Location) ManagerOption {
	return withLocation{loc}
}

type withLocation struct {
	loc *time.Location
}

func (w withLocation) Apply(m *Manager) {
	m.loc = w.loc
}

// WithIncidentAuditor returns a ManagerOption that enables best-effort
// persistence of closed incidents.
func WithIncidentAuditor(a IncidentAuditor) ManagerOption {
	return withAuditor{a}
}

type withAuditor struct {
	auditor IncidentAuditor
}

func (w withAuditor) Apply(m *Manager) {
	m.auditor = w.auditor
}
