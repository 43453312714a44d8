package safety

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeofenceTransitionTable(t *testing.T) {
	tests := []struct {
		prior   GeofenceState
		verdict Verdict
		next    GeofenceState
		breach  bool
	}{
		{GeofenceUnknown, VerdictOutOfWindow, GeofenceOutOfWindow, false},
		{GeofenceInside, VerdictOutOfWindow, GeofenceOutOfWindow, false},
		{GeofenceOutside, VerdictOutOfWindow, GeofenceOutOfWindow, false},
		{GeofenceOutOfWindow, VerdictOutOfWindow, GeofenceOutOfWindow, false},

		{GeofenceUnknown, VerdictInside, GeofenceInside, false},
		{GeofenceOutOfWindow, VerdictInside, GeofenceInside, false},

		// entering outside without a confirmed safe baseline stays silent
		{GeofenceUnknown, VerdictOutside, GeofenceOutside, false},
		{GeofenceOutOfWindow, VerdictOutside, GeofenceOutside, false},

		{GeofenceInside, VerdictInside, GeofenceInside, false},

		// the one breach edge
		{GeofenceInside, VerdictOutside, GeofenceOutside, true},

		// level-holding never re-fires
		{GeofenceOutside, VerdictOutside, GeofenceOutside, false},
		{GeofenceOutside, VerdictInside, GeofenceInside, false},
	}

	for _, tc := range tests {
		t.Run(string(tc.prior)+"_"+string(tc.verdict), func(t *testing.T) {
			f := newGeofenceFSM(tc.prior)
			next, breach, err := f.Apply(context.TODO(), tc.verdict)

			assert.NoError(t, err)
			assert.Equal(t, tc.next, next)
			assert.Equal(t, tc.breach, breach)
		})
	}
}

func TestGeofenceOneBreachPerEdge(t *testing.T) {
	// starting inside, exactly one breach per inside -> outside edge no
	// matter how many outside verdicts follow before the next inside
	verdicts := []Verdict{
		VerdictOutside, VerdictOutside, VerdictOutside, // first edge
		VerdictInside,                  // re-arm
		VerdictOutside, VerdictOutside, // second edge
	}

	state := GeofenceInside
	breaches := 0
	for _, v := range verdicts {
		f := newGeofenceFSM(state)
		next, breach, err := f.Apply(context.TODO(), v)
		assert.NoError(t, err)
		state = next
		if breach {
			breaches++
		}
	}

	assert.Equal(t, 2, breaches)
}

func TestGeofenceInvalidVerdict(t *testing.T) {
	f := newGeofenceFSM(GeofenceInside)
	_, _, err := f.Apply(context.TODO(), Verdict("bogus"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
