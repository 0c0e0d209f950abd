package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"paddock/internal/catalog/models"
	"paddock/internal/catalog/store"
	id "paddock/pkg/domain"
	"paddock/pkg/platform/sentinel"
)

type CatalogMemorySuite struct {
	suite.Suite
	ctx   context.Context
	store *store.InMemory
}

func TestCatalogMemorySuite(t *testing.T) {
	suite.Run(t, new(CatalogMemorySuite))
}

func (s *CatalogMemorySuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemory()
}

func (s *CatalogMemorySuite) newEvent(max int) *models.Event {
	now := time.Now().UTC()
	return &models.Event{
		ID:              id.NewEventID(),
		Name:            "Midnight Hillclimb",
		Date:            "2026-10-04",
		MaxParticipants: max,
		Status:          models.EventStatusUpcoming,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (s *CatalogMemorySuite) newRace(eventID id.EventID) *models.Race {
	laps := 12
	now := time.Now().UTC()
	return &models.Race{
		ID:           id.NewRaceID(),
		EventID:      eventID,
		Name:         "Qualifier",
		Type:         models.RaceTypeLap,
		NumberOfLaps: &laps,
		Status:       models.EventStatusUpcoming,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *CatalogMemorySuite) TestEventCRUD() {
	event := s.newEvent(10)
	s.Require().NoError(s.store.CreateEvent(s.ctx, event))

	got, err := s.store.GetEvent(s.ctx, event.ID)
	s.Require().NoError(err)
	s.Equal(event.Name, got.Name)
	s.Zero(got.Participants)

	got.Name = "Renamed"
	s.Require().NoError(s.store.UpdateEvent(s.ctx, got))

	updated, err := s.store.GetEvent(s.ctx, event.ID)
	s.Require().NoError(err)
	s.Equal("Renamed", updated.Name)

	s.Require().NoError(s.store.DeleteEvent(s.ctx, event.ID))
	_, err = s.store.GetEvent(s.ctx, event.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *CatalogMemorySuite) TestGetEventCopiesAreIsolated() {
	event := s.newEvent(10)
	s.Require().NoError(s.store.CreateEvent(s.ctx, event))

	got, err := s.store.GetEvent(s.ctx, event.ID)
	s.Require().NoError(err)
	got.Name = "mutated"

	again, err := s.store.GetEvent(s.ctx, event.ID)
	s.Require().NoError(err)
	s.Equal("Midnight Hillclimb", again.Name)
}

func (s *CatalogMemorySuite) TestUpdateEventPreservesParticipantCounter() {
	event := s.newEvent(10)
	s.Require().NoError(s.store.CreateEvent(s.ctx, event))
	s.Require().NoError(s.store.ReserveSlot(s.ctx, event.ID))

	update := s.newEvent(10)
	update.ID = event.ID
	update.Participants = 99
	s.Require().NoError(s.store.UpdateEvent(s.ctx, update))

	got, err := s.store.GetEvent(s.ctx, event.ID)
	s.Require().NoError(err)
	s.Equal(1, got.Participants)
}

func (s *CatalogMemorySuite) TestReserveSlotStopsAtCapacity() {
	event := s.newEvent(2)
	s.Require().NoError(s.store.CreateEvent(s.ctx, event))

	s.Require().NoError(s.store.ReserveSlot(s.ctx, event.ID))
	s.Require().NoError(s.store.ReserveSlot(s.ctx, event.ID))
	s.ErrorIs(s.store.ReserveSlot(s.ctx, event.ID), sentinel.ErrConflict)

	got, err := s.store.GetEvent(s.ctx, event.ID)
	s.Require().NoError(err)
	s.Equal(2, got.Participants)
}

func (s *CatalogMemorySuite) TestReserveSlotMissingEvent() {
	s.ErrorIs(s.store.ReserveSlot(s.ctx, id.NewEventID()), sentinel.ErrNotFound)
}

func (s *CatalogMemorySuite) TestConcurrentReserveOfLastSlot() {
	event := s.newEvent(5)
	s.Require().NoError(s.store.CreateEvent(s.ctx, event))

	const contenders = 50
	var wg sync.WaitGroup
	errs := make(chan error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.store.ReserveSlot(s.ctx, event.ID)
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
		} else {
			s.ErrorIs(err, sentinel.ErrConflict)
		}
	}
	s.Equal(5, wins)

	got, err := s.store.GetEvent(s.ctx, event.ID)
	s.Require().NoError(err)
	s.Equal(5, got.Participants)
}

func (s *CatalogMemorySuite) TestReleaseSlotClampsAtZero() {
	event := s.newEvent(3)
	s.Require().NoError(s.store.CreateEvent(s.ctx, event))
	s.Require().NoError(s.store.ReserveSlot(s.ctx, event.ID))

	s.Require().NoError(s.store.ReleaseSlot(s.ctx, event.ID))
	// Double release stays at zero.
	s.Require().NoError(s.store.ReleaseSlot(s.ctx, event.ID))

	got, err := s.store.GetEvent(s.ctx, event.ID)
	s.Require().NoError(err)
	s.Zero(got.Participants)
}

func (s *CatalogMemorySuite) TestRaceCRUD() {
	event := s.newEvent(10)
	s.Require().NoError(s.store.CreateEvent(s.ctx, event))

	race := s.newRace(event.ID)
	s.Require().NoError(s.store.CreateRace(s.ctx, race))

	got, err := s.store.GetRace(s.ctx, race.ID)
	s.Require().NoError(err)
	s.Equal(race.Name, got.Name)

	byEvent, err := s.store.ListRacesByEvent(s.ctx, event.ID)
	s.Require().NoError(err)
	s.Len(byEvent, 1)

	s.Require().NoError(s.store.DeleteRace(s.ctx, race.ID))
	_, err = s.store.GetRace(s.ctx, race.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *CatalogMemorySuite) TestCreateRaceRequiresEvent() {
	race := s.newRace(id.NewEventID())
	s.ErrorIs(s.store.CreateRace(s.ctx, race), sentinel.ErrNotFound)
}

func (s *CatalogMemorySuite) TestDeleteEventRemovesItsRaces() {
	event := s.newEvent(10)
	s.Require().NoError(s.store.CreateEvent(s.ctx, event))
	race := s.newRace(event.ID)
	s.Require().NoError(s.store.CreateRace(s.ctx, race))

	s.Require().NoError(s.store.DeleteEvent(s.ctx, event.ID))
	_, err := s.store.GetRace(s.ctx, race.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
