package store

import (
	"context"
	"sort"
	"sync"

	"paddock/internal/catalog/models"
	id "paddock/pkg/domain"
	"paddock/pkg/platform/sentinel"
)

// InMemory keeps the catalog in process memory. Used in dev mode and unit
// tests; behavior matches the Postgres store, including the atomicity of
// the capacity counter under the store mutex.
type InMemory struct {
	mu     sync.RWMutex
	events map[id.EventID]*models.Event
	races  map[id.RaceID]*models.Race
}

func NewInMemory() *InMemory {
	return &InMemory{
		events: make(map[id.EventID]*models.Event),
		races:  make(map[id.RaceID]*models.Race),
	}
}

func (s *InMemory) CreateEvent(_ context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[event.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	cp := *event
	s.events[event.ID] = &cp
	return nil
}

func (s *InMemory) GetEvent(_ context.Context, eventID id.EventID) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[eventID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *event
	return &cp, nil
}

func (s *InMemory) ListEvents(_ context.Context) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Event, 0, len(s.events))
	for _, event := range s.events {
		cp := *event
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *InMemory) UpdateEvent(_ context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.events[event.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	cp := *event
	// The capacity counter is owned by Reserve/Release; an update never
	// rewrites it.
	cp.Participants = existing.Participants
	s.events[event.ID] = &cp
	return nil
}

// DeleteEvent removes the event and its races. Registrations and results
// referencing it are cleaned up by the service layer.
func (s *InMemory) DeleteEvent(_ context.Context, eventID id.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[eventID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.events, eventID)
	for raceID, race := range s.races {
		if race.EventID == eventID {
			delete(s.races, raceID)
		}
	}
	return nil
}

// ReserveSlot increments the participant counter only while below the cap.
// Check and increment happen under one lock so two concurrent approvals of
// the final slot cannot both succeed.
func (s *InMemory) ReserveSlot(_ context.Context, eventID id.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if event.Participants >= event.MaxParticipants {
		return sentinel.ErrConflict
	}
	event.Participants++
	return nil
}

// ReleaseSlot decrements the participant counter, clamped at zero so a
// double release never drives it negative.
func (s *InMemory) ReleaseSlot(_ context.Context, eventID id.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if event.Participants > 0 {
		event.Participants--
	}
	return nil
}

func (s *InMemory) CreateRace(_ context.Context, race *models.Race) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.races[race.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	if _, ok := s.events[race.EventID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *race
	s.races[race.ID] = &cp
	return nil
}

func (s *InMemory) GetRace(_ context.Context, raceID id.RaceID) (*models.Race, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	race, ok := s.races[raceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *race
	return &cp, nil
}

func (s *InMemory) ListRaces(_ context.Context) ([]*models.Race, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Race, 0, len(s.races))
	for _, race := range s.races {
		cp := *race
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) ListRacesByEvent(_ context.Context, eventID id.EventID) ([]*models.Race, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Race
	for _, race := range s.races {
		if race.EventID == eventID {
			cp := *race
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) UpdateRace(_ context.Context, race *models.Race) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.races[race.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *race
	s.races[race.ID] = &cp
	return nil
}

func (s *InMemory) DeleteRace(_ context.Context, raceID id.RaceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.races[raceID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.races, raceID)
	return nil
}
