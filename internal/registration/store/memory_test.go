package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"paddock/internal/registration/models"
	"paddock/internal/registration/store"
	id "paddock/pkg/domain"
	"paddock/pkg/platform/sentinel"
)

type RegistrationMemorySuite struct {
	suite.Suite
	ctx   context.Context
	store *store.InMemory
}

func TestRegistrationMemorySuite(t *testing.T) {
	suite.Run(t, new(RegistrationMemorySuite))
}

func (s *RegistrationMemorySuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemory()
}

func (s *RegistrationMemorySuite) newRegistration(userID id.UserID, eventID id.EventID) *models.Registration {
	return &models.Registration{
		ID:        id.NewRegistrationID(),
		UserID:    userID,
		EventID:   eventID,
		RaceIDs:   []id.RaceID{id.NewRaceID()},
		Status:    models.StatusPending,
		AppliedAt: time.Now().UTC(),
	}
}

func (s *RegistrationMemorySuite) TestCreateEnforcesOnePerUserEvent() {
	userID, eventID := id.NewUserID(), id.NewEventID()
	s.Require().NoError(s.store.Create(s.ctx, s.newRegistration(userID, eventID)))

	err := s.store.Create(s.ctx, s.newRegistration(userID, eventID))
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	// Same user, different event is fine.
	s.NoError(s.store.Create(s.ctx, s.newRegistration(userID, id.NewEventID())))
}

func (s *RegistrationMemorySuite) TestUpdateStatusFromPending() {
	reg := s.newRegistration(id.NewUserID(), id.NewEventID())
	s.Require().NoError(s.store.Create(s.ctx, reg))

	admin := id.NewUserID()
	now := time.Now().UTC()
	s.Require().NoError(s.store.UpdateStatusFromPending(s.ctx, reg.ID, models.StatusApproved, now, admin, "looks good"))

	got, err := s.store.Get(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, got.Status)
	s.Require().NotNil(got.ReviewedBy)
	s.Equal(admin, *got.ReviewedBy)
	s.Equal("looks good", got.ReviewNotes)
}

func (s *RegistrationMemorySuite) TestUpdateStatusOnlyOnce() {
	reg := s.newRegistration(id.NewUserID(), id.NewEventID())
	s.Require().NoError(s.store.Create(s.ctx, reg))

	now := time.Now().UTC()
	admin := id.NewUserID()
	s.Require().NoError(s.store.UpdateStatusFromPending(s.ctx, reg.ID, models.StatusApproved, now, admin, ""))

	err := s.store.UpdateStatusFromPending(s.ctx, reg.ID, models.StatusRejected, now, admin, "")
	s.ErrorIs(err, sentinel.ErrInvalidState)

	got, err := s.store.Get(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, got.Status)
}

func (s *RegistrationMemorySuite) TestUpdateStatusMissingRegistration() {
	err := s.store.UpdateStatusFromPending(s.ctx, id.NewRegistrationID(), models.StatusApproved, time.Now(), id.NewUserID(), "")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RegistrationMemorySuite) TestDeleteActiveByUserEvent() {
	userID, eventID := id.NewUserID(), id.NewEventID()
	reg := s.newRegistration(userID, eventID)
	s.Require().NoError(s.store.Create(s.ctx, reg))

	deleted, err := s.store.DeleteActiveByUserEvent(s.ctx, userID, eventID)
	s.Require().NoError(err)
	s.Equal(reg.ID, deleted.ID)
	s.Equal(models.StatusPending, deleted.Status)

	_, err = s.store.Get(s.ctx, reg.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RegistrationMemorySuite) TestDeleteActiveReturnsApprovedStatus() {
	userID, eventID := id.NewUserID(), id.NewEventID()
	reg := s.newRegistration(userID, eventID)
	s.Require().NoError(s.store.Create(s.ctx, reg))
	s.Require().NoError(s.store.UpdateStatusFromPending(s.ctx, reg.ID, models.StatusApproved, time.Now(), id.NewUserID(), ""))

	deleted, err := s.store.DeleteActiveByUserEvent(s.ctx, userID, eventID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, deleted.Status)
}

func (s *RegistrationMemorySuite) TestDeleteActiveSkipsRejected() {
	userID, eventID := id.NewUserID(), id.NewEventID()
	reg := s.newRegistration(userID, eventID)
	s.Require().NoError(s.store.Create(s.ctx, reg))
	s.Require().NoError(s.store.UpdateStatusFromPending(s.ctx, reg.ID, models.StatusRejected, time.Now(), id.NewUserID(), ""))

	_, err := s.store.DeleteActiveByUserEvent(s.ctx, userID, eventID)
	s.ErrorIs(err, sentinel.ErrInvalidState)

	// The rejected record stays on file.
	got, err := s.store.Get(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, got.Status)
}

func (s *RegistrationMemorySuite) TestDeleteActiveMissing() {
	_, err := s.store.DeleteActiveByUserEvent(s.ctx, id.NewUserID(), id.NewEventID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RegistrationMemorySuite) TestListPendingOldestFirst() {
	eventID := id.NewEventID()
	older := s.newRegistration(id.NewUserID(), eventID)
	older.AppliedAt = time.Now().Add(-time.Hour)
	newer := s.newRegistration(id.NewUserID(), eventID)

	s.Require().NoError(s.store.Create(s.ctx, newer))
	s.Require().NoError(s.store.Create(s.ctx, older))

	pending, err := s.store.ListPending(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(older.ID, pending[0].ID)
}

func (s *RegistrationMemorySuite) TestListByEventStatusFilter() {
	eventID := id.NewEventID()
	approved := s.newRegistration(id.NewUserID(), eventID)
	pending := s.newRegistration(id.NewUserID(), eventID)
	s.Require().NoError(s.store.Create(s.ctx, approved))
	s.Require().NoError(s.store.Create(s.ctx, pending))
	s.Require().NoError(s.store.UpdateStatusFromPending(s.ctx, approved.ID, models.StatusApproved, time.Now(), id.NewUserID(), ""))

	all, err := s.store.ListByEvent(s.ctx, eventID, "")
	s.Require().NoError(err)
	s.Len(all, 2)

	onlyApproved, err := s.store.ListByEvent(s.ctx, eventID, models.StatusApproved)
	s.Require().NoError(err)
	s.Require().Len(onlyApproved, 1)
	s.Equal(approved.ID, onlyApproved[0].ID)
}

func (s *RegistrationMemorySuite) TestDeleteByEvent() {
	eventID := id.NewEventID()
	s.Require().NoError(s.store.Create(s.ctx, s.newRegistration(id.NewUserID(), eventID)))
	s.Require().NoError(s.store.Create(s.ctx, s.newRegistration(id.NewUserID(), eventID)))
	keeper := s.newRegistration(id.NewUserID(), id.NewEventID())
	s.Require().NoError(s.store.Create(s.ctx, keeper))

	s.Require().NoError(s.store.DeleteByEvent(s.ctx, eventID))

	left, err := s.store.ListByEvent(s.ctx, eventID, "")
	s.Require().NoError(err)
	s.Empty(left)
	_, err = s.store.Get(s.ctx, keeper.ID)
	s.NoError(err)
}
