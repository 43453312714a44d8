package safety

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func seedVehicle(id string) *Vehicle {
	return &Vehicle{
		VehicleID:  id,
		ContractID: "C100",
		UniqueID:   testDevice,
		Active:     true,
		Cutoff:     CutoffNormal,
		Geofence:   GeofenceUnknown,
	}
}

func TestMemoryRegistryCRUD(t *testing.T) {
	r := NewMemoryRegistry()

	assert.NoError(t, r.Create(context.TODO(), seedVehicle("C100-01")))
	assert.ErrorIs(t, r.Create(context.TODO(), seedVehicle("C100-01")), ErrInvalidConfig)

	v, err := r.Get(context.TODO(), "C100-01")
	assert.NoError(t, err)
	assert.Equal(t, "C100-01", v.VehicleID)

	_, err = r.Get(context.TODO(), "C999-01")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Update(context.TODO(), "C999-01", func(v *Vehicle) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, r.Create(context.TODO(), seedVehicle("C100-02")))
	all, err := r.Snapshot(context.TODO())
	assert.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryRegistryCopiesOnReturn(t *testing.T) {
	r := NewMemoryRegistry()
	assert.NoError(t, r.Create(context.TODO(), seedVehicle("C100-01")))

	v, _ := r.Get(context.TODO(), "C100-01")
	v.Active = false // must not leak into the registry

	again, _ := r.Get(context.TODO(), "C100-01")
	assert.True(t, again.Active)
}

func TestMemoryRegistryFailedMutationChangesNothing(t *testing.T) {
	r := NewMemoryRegistry()
	assert.NoError(t, r.Create(context.TODO(), seedVehicle("C100-01")))

	_, err := r.Update(context.TODO(), "C100-01", func(v *Vehicle) error {
		v.Cutoff = CutoffCut
		return ErrPreconditionFailed
	})
	assert.ErrorIs(t, err, ErrPreconditionFailed)

	v, _ := r.Get(context.TODO(), "C100-01")
	assert.Equal(t, CutoffNormal, v.Cutoff)
}

func TestMemoryRegistrySerializesUpdates(t *testing.T) {
	r := NewMemoryRegistry()
	v := seedVehicle("C100-01")
	v.Zone = &SafeZone{} // counter lives in the radius field for this test
	assert.NoError(t, r.Create(context.TODO(), v))

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _ = r.Update(context.TODO(), "C100-01", func(v *Vehicle) error {
				v.Zone.ClientRadiusMeters++
				return nil
			})
		}()
	}
	wg.Wait()

	// read-modify-write is serialized per vehicle, no update is lost
	final, _ := r.Get(context.TODO(), "C100-01")
	assert.Equal(t, float64(n), final.Zone.ClientRadiusMeters)
}

func TestNextVehicleID(t *testing.T) {
	r := NewMemoryRegistry()

	assert.Equal(t, "C100-01", r.NextVehicleID("C100"))
	assert.NoError(t, r.Create(context.TODO(), seedVehicle("C100-01")))
	assert.Equal(t, "C100-02", r.NextVehicleID("C100"))
	assert.Equal(t, "C200-01", r.NextVehicleID("C200"))
}
