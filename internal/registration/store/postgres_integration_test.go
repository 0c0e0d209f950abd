//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	catalogmodels "paddock/internal/catalog/models"
	catalogstore "paddock/internal/catalog/store"
	"paddock/internal/registration/models"
	"paddock/internal/registration/store"
	id "paddock/pkg/domain"
	"paddock/pkg/platform/sentinel"
	"paddock/pkg/testutil/containers"
)

type RegistrationPostgresSuite struct {
	suite.Suite
	ctx       context.Context
	container *containers.PostgresContainer
	catalog   *catalogstore.PostgresStore
	store     *store.PostgresStore
	eventID   id.EventID
}

func TestRegistrationPostgresSuite(t *testing.T) {
	suite.Run(t, new(RegistrationPostgresSuite))
}

func (s *RegistrationPostgresSuite) SetupSuite() {
	s.ctx = context.Background()
	s.container = containers.NewPostgresContainer(s.T())
	s.catalog = catalogstore.NewPostgres(s.container.DB)
	s.store = store.NewPostgres(s.container.DB)
}

func (s *RegistrationPostgresSuite) SetupTest() {
	s.container.Truncate(s.ctx, s.T())

	now := time.Now().UTC().Truncate(time.Microsecond)
	event := &catalogmodels.Event{
		ID:              id.NewEventID(),
		Name:            "Marsh Run",
		MaxParticipants: 10,
		Status:          catalogmodels.EventStatusUpcoming,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.Require().NoError(s.catalog.CreateEvent(s.ctx, event))
	s.eventID = event.ID
}

func (s *RegistrationPostgresSuite) newRegistration(userID id.UserID) *models.Registration {
	return &models.Registration{
		ID:      id.NewRegistrationID(),
		UserID:  userID,
		EventID: s.eventID,
		RaceIDs: []id.RaceID{id.NewRaceID()},
		VehiclesByRace: map[id.RaceID]id.VehicleID{
			id.NewRaceID(): id.NewVehicleID(),
		},
		Status: models.StatusPending,
		EmergencyContact: models.EmergencyContact{
			Name:  "Pat",
			Phone: "555-0100",
		},
		AppliedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (s *RegistrationPostgresSuite) TestCreateAndRoundTrip() {
	reg := s.newRegistration(id.NewUserID())
	s.Require().NoError(s.store.Create(s.ctx, reg))

	got, err := s.store.Get(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Equal(reg.RaceIDs, got.RaceIDs)
	s.Equal(reg.VehiclesByRace, got.VehiclesByRace)
	s.Equal(reg.EmergencyContact, got.EmergencyContact)
	s.Equal(models.StatusPending, got.Status)
}

func (s *RegistrationPostgresSuite) TestUniqueUserEvent() {
	userID := id.NewUserID()
	s.Require().NoError(s.store.Create(s.ctx, s.newRegistration(userID)))
	s.ErrorIs(s.store.Create(s.ctx, s.newRegistration(userID)), sentinel.ErrAlreadyUsed)
}

func (s *RegistrationPostgresSuite) TestCreateRequiresEvent() {
	reg := s.newRegistration(id.NewUserID())
	reg.EventID = id.NewEventID()
	s.ErrorIs(s.store.Create(s.ctx, reg), sentinel.ErrNotFound)
}

func (s *RegistrationPostgresSuite) TestConditionalTransition() {
	reg := s.newRegistration(id.NewUserID())
	s.Require().NoError(s.store.Create(s.ctx, reg))

	now := time.Now().UTC().Truncate(time.Microsecond)
	admin := id.NewUserID()
	s.Require().NoError(s.store.UpdateStatusFromPending(s.ctx, reg.ID, models.StatusApproved, now, admin, "ok"))

	err := s.store.UpdateStatusFromPending(s.ctx, reg.ID, models.StatusRejected, now, admin, "")
	s.ErrorIs(err, sentinel.ErrInvalidState)

	got, err := s.store.Get(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, got.Status)
	s.Require().NotNil(got.ReviewedBy)
	s.Equal(admin, *got.ReviewedBy)
}

func (s *RegistrationPostgresSuite) TestDeleteActiveReturnsDeletedRow() {
	userID := id.NewUserID()
	reg := s.newRegistration(userID)
	s.Require().NoError(s.store.Create(s.ctx, reg))
	s.Require().NoError(s.store.UpdateStatusFromPending(s.ctx, reg.ID, models.StatusApproved, time.Now().UTC(), id.NewUserID(), ""))

	deleted, err := s.store.DeleteActiveByUserEvent(s.ctx, userID, s.eventID)
	s.Require().NoError(err)
	s.Equal(reg.ID, deleted.ID)
	s.Equal(models.StatusApproved, deleted.Status)

	_, err = s.store.Get(s.ctx, reg.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RegistrationPostgresSuite) TestDeleteActiveSkipsRejected() {
	userID := id.NewUserID()
	reg := s.newRegistration(userID)
	s.Require().NoError(s.store.Create(s.ctx, reg))
	s.Require().NoError(s.store.UpdateStatusFromPending(s.ctx, reg.ID, models.StatusRejected, time.Now().UTC(), id.NewUserID(), ""))

	_, err := s.store.DeleteActiveByUserEvent(s.ctx, userID, s.eventID)
	s.ErrorIs(err, sentinel.ErrInvalidState)
}

func (s *RegistrationPostgresSuite) TestListPendingOldestFirst() {
	older := s.newRegistration(id.NewUserID())
	older.AppliedAt = time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	newer := s.newRegistration(id.NewUserID())

	s.Require().NoError(s.store.Create(s.ctx, newer))
	s.Require().NoError(s.store.Create(s.ctx, older))

	pending, err := s.store.ListPending(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(older.ID, pending[0].ID)
}
