// Package store persists race results.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"paddock/internal/result/models"
	id "paddock/pkg/domain"
	"paddock/pkg/platform/sentinel"
)

type naturalKey struct {
	eventID id.EventID
	raceID  id.RaceID
	userID  id.UserID
}

// InMemory keeps results in process memory for dev mode and unit tests.
// The natural-key index mirrors the unique constraint in Postgres so
// upserts and shell creation behave identically.
type InMemory struct {
	mu      sync.RWMutex
	results map[id.ResultID]*models.Result
	byKey   map[naturalKey]id.ResultID
}

func NewInMemory() *InMemory {
	return &InMemory{
		results: make(map[id.ResultID]*models.Result),
		byKey:   make(map[naturalKey]id.ResultID),
	}
}

// Upsert writes the performance fields for the (event, race, user) row,
// inserting it if absent. Verification state on an existing row is
// preserved.
func (s *InMemory) Upsert(_ context.Context, result *models.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := naturalKey{result.EventID, result.RaceID, result.UserID}
	if existingID, ok := s.byKey[key]; ok {
		existing := s.results[existingID]
		existing.Score = result.Score
		existing.FinishingTimeMs = result.FinishingTimeMs
		existing.Position = copyInt(result.Position)
		existing.Notes = result.Notes
		existing.VehicleID = copyVehicleID(result.VehicleID)
		existing.UpdatedAt = result.UpdatedAt
		return nil
	}
	cp := copyResult(result)
	s.results[result.ID] = cp
	s.byKey[key] = result.ID
	return nil
}

// CreateIfAbsent inserts a shell unless the natural key already has a
// row. Reports whether a row was created.
func (s *InMemory) CreateIfAbsent(_ context.Context, result *models.Result) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := naturalKey{result.EventID, result.RaceID, result.UserID}
	if _, ok := s.byKey[key]; ok {
		return false, nil
	}
	cp := copyResult(result)
	s.results[result.ID] = cp
	s.byKey[key] = result.ID
	return true, nil
}

func (s *InMemory) Get(_ context.Context, resultID id.ResultID) (*models.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.results[resultID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyResult(result), nil
}

func (s *InMemory) GetByRaceUser(_ context.Context, raceID id.RaceID, userID id.UserID) (*models.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, result := range s.results {
		if result.RaceID == raceID && result.UserID == userID {
			return copyResult(result), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) ListByRace(_ context.Context, raceID id.RaceID) ([]*models.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Result
	for _, result := range s.results {
		if result.RaceID == raceID {
			out = append(out, copyResult(result))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Verify marks the (race, user) row as admin-verified with the reviewer,
// timestamp and submitted checklist.
func (s *InMemory) Verify(_ context.Context, raceID id.RaceID, userID id.UserID, at time.Time, by id.UserID, checklist []models.ChecklistItem, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, result := range s.results {
		if result.RaceID != raceID || result.UserID != userID {
			continue
		}
		result.VerifiedByAdmin = true
		result.VerifiedAt = &at
		result.VerifiedBy = &by
		result.GuidelineChecklist = append([]models.ChecklistItem(nil), checklist...)
		result.VerificationNotes = notes
		result.UpdatedAt = at
		return nil
	}
	return sentinel.ErrNotFound
}

// UpdateVerified rewrites performance fields by result id, only while the
// row is verified. Check and write share the store lock, matching the
// conditional UPDATE in the Postgres store.
func (s *InMemory) UpdateVerified(_ context.Context, resultID id.ResultID, perf models.Performance, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, ok := s.results[resultID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !result.VerifiedByAdmin {
		return sentinel.ErrInvalidState
	}
	result.Score = perf.Score
	result.FinishingTimeMs = perf.FinishingTimeMs
	result.Position = copyInt(perf.Position)
	result.Notes = perf.Notes
	if perf.VehicleID != nil {
		result.VehicleID = copyVehicleID(perf.VehicleID)
	}
	result.UpdatedAt = updatedAt
	return nil
}

func (s *InMemory) DeleteByRegistration(_ context.Context, regID id.RegistrationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for resultID, result := range s.results {
		if result.RegistrationID == regID {
			s.remove(resultID, result)
		}
	}
	return nil
}

func (s *InMemory) DeleteByEvent(_ context.Context, eventID id.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for resultID, result := range s.results {
		if result.EventID == eventID {
			s.remove(resultID, result)
		}
	}
	return nil
}

func (s *InMemory) DeleteByRace(_ context.Context, raceID id.RaceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for resultID, result := range s.results {
		if result.RaceID == raceID {
			s.remove(resultID, result)
		}
	}
	return nil
}

func (s *InMemory) remove(resultID id.ResultID, result *models.Result) {
	delete(s.results, resultID)
	delete(s.byKey, naturalKey{result.EventID, result.RaceID, result.UserID})
}

func copyResult(result *models.Result) *models.Result {
	cp := *result
	cp.Position = copyInt(result.Position)
	cp.VehicleID = copyVehicleID(result.VehicleID)
	if result.VerifiedAt != nil {
		at := *result.VerifiedAt
		cp.VerifiedAt = &at
	}
	if result.VerifiedBy != nil {
		by := *result.VerifiedBy
		cp.VerifiedBy = &by
	}
	cp.GuidelineChecklist = append([]models.ChecklistItem(nil), result.GuidelineChecklist...)
	return &cp
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func copyVehicleID(v *id.VehicleID) *id.VehicleID {
	if v == nil {
		return nil
	}
	vehicleID := *v
	return &vehicleID
}
