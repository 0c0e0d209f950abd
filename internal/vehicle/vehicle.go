// Package vehicle is a read-only collaborator: registrations reference
// vehicles by id and only ownership is ever checked here.
package vehicle

import (
	"context"
	"sync"

	id "paddock/pkg/domain"
	"paddock/pkg/platform/sentinel"
)

// Vehicle is the slice of the garage record this service cares about.
type Vehicle struct {
	ID      id.VehicleID `json:"id"`
	OwnerID id.UserID    `json:"owner_id"`
	Name    string       `json:"name"`
	Class   string       `json:"class,omitempty"`
}

// Store resolves vehicles for ownership checks.
type Store interface {
	Get(ctx context.Context, vehicleID id.VehicleID) (*Vehicle, error)
	Owner(ctx context.Context, vehicleID id.VehicleID) (id.UserID, error)
}

// InMemory is the in-process store. The garage itself is managed
// elsewhere; entries are seeded at startup or by tests.
type InMemory struct {
	mu       sync.RWMutex
	vehicles map[id.VehicleID]*Vehicle
}

func NewInMemory() *InMemory {
	return &InMemory{vehicles: make(map[id.VehicleID]*Vehicle)}
}

func (s *InMemory) Put(_ context.Context, v *Vehicle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.vehicles[v.ID] = &cp
}

func (s *InMemory) Get(_ context.Context, vehicleID id.VehicleID) (*Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vehicles[vehicleID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *InMemory) Owner(ctx context.Context, vehicleID id.VehicleID) (id.UserID, error) {
	v, err := s.Get(ctx, vehicleID)
	if err != nil {
		return id.UserID{}, err
	}
	return v.OwnerID, nil
}
