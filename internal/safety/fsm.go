package safety

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

const (
	eventInside      = "verdict_inside"
	eventOutside     = "verdict_outside"
	eventOutOfWindow = "verdict_out_of_window"
)

// geofenceFSM holds the per-vehicle geofence state transitions. A breach is
// raised only on a confirmed inside -> outside edge: entering outside from
// unknown or out_of_window has no prior "safe" baseline and stays silent,
// and holding outside never re-fires. Returning inside re-arms the edge.
type geofenceFSM struct {
	*fsm.FSM
	breach bool
}

func newGeofenceFSM(initial GeofenceState) *geofenceFSM {
	f := &geofenceFSM{}

	anyState := []string{
		string(GeofenceUnknown),
		string(GeofenceInside),
		string(GeofenceOutside),
		string(GeofenceOutOfWindow),
	}

	events := fsm.Events{
		{Name: eventInside, Src: anyState, Dst: string(GeofenceInside)},
		{Name: eventOutside, Src: anyState, Dst: string(GeofenceOutside)},
		{Name: eventOutOfWindow, Src: anyState, Dst: string(GeofenceOutOfWindow)},
	}

	callbacks := fsm.Callbacks{
		// Side-effect: flag the breach when leaving the confirmed-inside state
		"enter_" + string(GeofenceOutside): func(ctx context.Context, e *fsm.Event) {
			if e.Src == string(GeofenceInside) {
				f.breach = true
			}
		},
	}

	f.FSM = fsm.NewFSM(string(initial), events, callbacks)
	return f
}

// Apply feeds one verdict into the machine and reports the resulting state
// and whether this transition is a breach edge.
func (f *geofenceFSM) Apply(ctx context.Context, verdict Verdict) (GeofenceState, bool, error) {
	f.breach = false

	var name string
	switch verdict {
	case VerdictInside:
		name = eventInside
	case VerdictOutside:
		name = eventOutside
	case VerdictOutOfWindow:
		name = eventOutOfWindow
	default:
		return GeofenceState(f.Current()), false, fmt.Errorf("verdict %q: %w", verdict, ErrInvalidConfig)
	}

	if err := f.Event(ctx, name); err != nil {
		// holding a state (src == dst) is a no-op, not an error
		if _, ok := err.(fsm.NoTransitionError); !ok {
			return GeofenceState(f.Current()), false, err
		}
	}

	return GeofenceState(f.Current()), f.breach, nil
}
