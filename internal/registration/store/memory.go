// Package store persists registrations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"paddock/internal/registration/models"
	id "paddock/pkg/domain"
	"paddock/pkg/platform/sentinel"
)

// InMemory keeps registrations in process memory for dev mode and unit
// tests. The store mutex gives the same atomicity guarantees as the
// conditional UPDATEs in the Postgres store.
type InMemory struct {
	mu   sync.RWMutex
	regs map[id.RegistrationID]*models.Registration
}

func NewInMemory() *InMemory {
	return &InMemory{regs: make(map[id.RegistrationID]*models.Registration)}
}

// Create inserts a registration. One registration per (user, event) is
// enforced here, mirroring the unique constraint in Postgres.
func (s *InMemory) Create(_ context.Context, reg *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.regs {
		if existing.UserID == reg.UserID && existing.EventID == reg.EventID {
			return sentinel.ErrAlreadyUsed
		}
	}
	cp := copyRegistration(reg)
	s.regs[reg.ID] = cp
	return nil
}

func (s *InMemory) Get(_ context.Context, regID id.RegistrationID) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reg, ok := s.regs[regID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyRegistration(reg), nil
}

func (s *InMemory) GetByUserEvent(_ context.Context, userID id.UserID, eventID id.EventID) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, reg := range s.regs {
		if reg.UserID == userID && reg.EventID == eventID {
			return copyRegistration(reg), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) ListByUser(_ context.Context, userID id.UserID) ([]*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Registration
	for _, reg := range s.regs {
		if reg.UserID == userID {
			out = append(out, copyRegistration(reg))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// ListByEvent returns the event's registrations, optionally filtered by
// status. An empty status means all of them.
func (s *InMemory) ListByEvent(_ context.Context, eventID id.EventID, status models.Status) ([]*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Registration
	for _, reg := range s.regs {
		if reg.EventID != eventID {
			continue
		}
		if status != "" && reg.Status != status {
			continue
		}
		out = append(out, copyRegistration(reg))
	}
	sortNewestFirst(out)
	return out, nil
}

// ListPending returns every pending registration, oldest application first
// so reviewers work the queue in arrival order.
func (s *InMemory) ListPending(_ context.Context) ([]*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Registration
	for _, reg := range s.regs {
		if reg.Status == models.StatusPending {
			out = append(out, copyRegistration(reg))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppliedAt.Before(out[j].AppliedAt) })
	return out, nil
}

// UpdateStatusFromPending applies the pending-only review transition. The
// check and the write happen under one lock so two concurrent reviews of
// the same registration produce exactly one winner.
func (s *InMemory) UpdateStatusFromPending(_ context.Context, regID id.RegistrationID, to models.Status, reviewedAt time.Time, reviewedBy id.UserID, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.regs[regID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if reg.Status != models.StatusPending {
		return sentinel.ErrInvalidState
	}
	reg.Status = to
	reg.ReviewedAt = &reviewedAt
	reg.ReviewedBy = &reviewedBy
	reg.ReviewNotes = notes
	return nil
}

// DeleteActiveByUserEvent removes the caller's pending or approved
// registration for an event and returns the deleted record so the service
// can settle the capacity ledger. A rejected registration stays on file.
func (s *InMemory) DeleteActiveByUserEvent(_ context.Context, userID id.UserID, eventID id.EventID) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for regID, reg := range s.regs {
		if reg.UserID != userID || reg.EventID != eventID {
			continue
		}
		if !reg.Status.Active() {
			return nil, sentinel.ErrInvalidState
		}
		deleted := copyRegistration(reg)
		delete(s.regs, regID)
		return deleted, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) DeleteByEvent(_ context.Context, eventID id.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for regID, reg := range s.regs {
		if reg.EventID == eventID {
			delete(s.regs, regID)
		}
	}
	return nil
}

func copyRegistration(reg *models.Registration) *models.Registration {
	cp := *reg
	cp.RaceIDs = append([]id.RaceID(nil), reg.RaceIDs...)
	cp.VehicleIDs = append([]id.VehicleID(nil), reg.VehicleIDs...)
	if reg.VehiclesByRace != nil {
		cp.VehiclesByRace = make(map[id.RaceID]id.VehicleID, len(reg.VehiclesByRace))
		for raceID, vehicleID := range reg.VehiclesByRace {
			cp.VehiclesByRace[raceID] = vehicleID
		}
	}
	if reg.ReviewedAt != nil {
		at := *reg.ReviewedAt
		cp.ReviewedAt = &at
	}
	if reg.ReviewedBy != nil {
		by := *reg.ReviewedBy
		cp.ReviewedBy = &by
	}
	return &cp
}

func sortNewestFirst(regs []*models.Registration) {
	sort.Slice(regs, func(i, j int) bool { return regs[i].AppliedAt.After(regs[j].AppliedAt) })
}
