package safety

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type (
	// Registry owns the durable per-vehicle records. Implementations must
	// serialize Update calls per vehicle so an HTTP-triggered command cannot
	// race a scheduler tick into a lost update. Cross-vehicle operations
	// share no lock.
	Registry interface {
		Create(ctx context.Context, v *Vehicle) error
		Get(ctx context.Context, vehicleID string) (*Vehicle, error)
		// Snapshot returns a point-in-time copy of all vehicles.
		Snapshot(ctx context.Context) ([]*Vehicle, error)
		// Update performs an atomic read-modify-write of one vehicle and
		// returns the updated record. The mutation must not block.
		Update(ctx context.Context, vehicleID string, mutate func(v *Vehicle) error) (*Vehicle, error)
	}
)

// MemoryRegistry is the in-process Registry. It is also the building block
// the file-backed store wraps.
type MemoryRegistry struct {
	mu       sync.RWMutex
	vehicles map[string]*Vehicle
	locks    map[string]*sync.Mutex
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		vehicles: make(map[string]*Vehicle),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (r *MemoryRegistry) Create(ctx context.Context, v *Vehicle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.vehicles[v.VehicleID]; ok {
		return fmt.Errorf("vehicle %s already registered: %w", v.VehicleID, ErrInvalidConfig)
	}
	r.vehicles[v.VehicleID] = v.Clone()
	r.locks[v.VehicleID] = &sync.Mutex{}
	return nil
}

func (r *MemoryRegistry) Get(ctx context.Context, vehicleID string) (*Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.vehicles[vehicleID]
	if !ok {
		return nil, fmt.Errorf("vehicle %s: %w", vehicleID, ErrNotFound)
	}
	return v.Clone(), nil
}

func (r *MemoryRegistry) Snapshot(ctx context.Context) ([]*Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Vehicle, 0, len(r.vehicles))
	for _, v := range r.vehicles {
		all = append(all, v.Clone())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].VehicleID < all[j].VehicleID })
	return all, nil
}

func (r *MemoryRegistry) Update(ctx context.Context, vehicleID string, mutate func(v *Vehicle) error) (*Vehicle, error) {
	r.mu.RLock()
	lock, ok := r.locks[vehicleID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("vehicle %s: %w", vehicleID, ErrNotFound)
	}

	// per-vehicle single-writer discipline
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	current := r.vehicles[vehicleID].Clone()
	r.mu.RUnlock()

	if err := mutate(current); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.vehicles[vehicleID] = current
	r.mu.Unlock()

	return current.Clone(), nil
}

// NextVehicleID derives a new vehicle id from the contract id and the count
// of vehicles already registered under that contract.
func (r *MemoryRegistry) NextVehicleID(contractID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seq := 1
	for id := range r.vehicles {
		if strings.HasPrefix(id, contractID+"-") {
			seq++
		}
	}
	return fmt.Sprintf("%s-%02d", contractID, seq)
}
