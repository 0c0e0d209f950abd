package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalogmodels "paddock/internal/catalog/models"
	catalogstore "paddock/internal/catalog/store"
	"paddock/internal/platform/metrics"
	"paddock/internal/registration/models"
	"paddock/internal/registration/service"
	"paddock/internal/registration/store"
	"paddock/internal/vehicle"
	id "paddock/pkg/domain"
	dErrors "paddock/pkg/domain-errors"
	"paddock/pkg/requestcontext"
)

type resultWriterStub struct {
	shellsFor  []id.RegistrationID
	deletedFor []id.RegistrationID
}

func (r *resultWriterStub) EnsureShells(_ context.Context, reg *models.Registration) (int, error) {
	r.shellsFor = append(r.shellsFor, reg.ID)
	return len(reg.RaceIDs), nil
}

func (r *resultWriterStub) DeleteByRegistration(_ context.Context, regID id.RegistrationID) error {
	r.deletedFor = append(r.deletedFor, regID)
	return nil
}

type fixture struct {
	svc     *service.Service
	catalog *catalogstore.InMemory
	store   *store.InMemory
	results *resultWriterStub
	garage  *vehicle.InMemory
	event   *catalogmodels.Event
	race    *catalogmodels.Race
}

func newFixture(t *testing.T, maxParticipants int) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalog := catalogstore.NewInMemory()
	regStore := store.NewInMemory()
	results := &resultWriterStub{}
	garage := vehicle.NewInMemory()

	svc, err := service.New(regStore, catalog, results,
		metrics.NewWith(prometheus.NewRegistry()), logger,
		service.WithVehicleReader(garage))
	require.NoError(t, err)

	now := time.Now().UTC()
	event := &catalogmodels.Event{
		ID:              id.NewEventID(),
		Name:            "Coastal Endurance Cup",
		MaxParticipants: maxParticipants,
		Status:          catalogmodels.EventStatusUpcoming,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, catalog.CreateEvent(context.Background(), event))

	laps := 8
	race := &catalogmodels.Race{
		ID:           id.NewRaceID(),
		EventID:      event.ID,
		Name:         "Sprint",
		Type:         catalogmodels.RaceTypeLap,
		NumberOfLaps: &laps,
		Status:       catalogmodels.EventStatusUpcoming,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, catalog.CreateRace(context.Background(), race))

	return &fixture{svc: svc, catalog: catalog, store: regStore, results: results, garage: garage, event: event, race: race}
}

func userCtx(userID id.UserID) context.Context {
	ctx := requestcontext.WithUserID(context.Background(), userID)
	return requestcontext.WithRole(ctx, requestcontext.RoleUser)
}

func adminCtx(userID id.UserID) context.Context {
	ctx := requestcontext.WithUserID(context.Background(), userID)
	return requestcontext.WithRole(ctx, requestcontext.RoleAdmin)
}

func (f *fixture) register(t *testing.T, userID id.UserID) *models.Registration {
	t.Helper()
	reg, err := f.svc.Register(userCtx(userID), service.RegisterInput{
		EventID: f.event.ID,
		RaceIDs: []id.RaceID{f.race.ID},
	})
	require.NoError(t, err)
	return reg
}

func TestRegisterCreatesPendingRegistration(t *testing.T) {
	f := newFixture(t, 10)
	userID := id.NewUserID()

	reg := f.register(t, userID)
	assert.Equal(t, models.StatusPending, reg.Status)
	assert.Equal(t, userID, reg.UserID)
	assert.Equal(t, "beginner", reg.ExperienceLevel)

	// A pending application holds no capacity.
	event, err := f.catalog.GetEvent(context.Background(), f.event.ID)
	require.NoError(t, err)
	assert.Zero(t, event.Participants)
}

func TestRegisterDeduplicatesRaceIDs(t *testing.T) {
	f := newFixture(t, 10)
	reg, err := f.svc.Register(userCtx(id.NewUserID()), service.RegisterInput{
		EventID: f.event.ID,
		RaceIDs: []id.RaceID{f.race.ID, f.race.ID},
	})
	require.NoError(t, err)
	assert.Len(t, reg.RaceIDs, 1)
}

func TestRegisterRejectsSecondApplication(t *testing.T) {
	f := newFixture(t, 10)
	userID := id.NewUserID()
	f.register(t, userID)

	_, err := f.svc.Register(userCtx(userID), service.RegisterInput{
		EventID: f.event.ID,
		RaceIDs: []id.RaceID{f.race.ID},
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestRegisterRejectsForeignRace(t *testing.T) {
	f := newFixture(t, 10)
	_, err := f.svc.Register(userCtx(id.NewUserID()), service.RegisterInput{
		EventID: f.event.ID,
		RaceIDs: []id.RaceID{id.NewRaceID()},
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestRegisterClosedEvent(t *testing.T) {
	f := newFixture(t, 10)
	f.event.Status = catalogmodels.EventStatusOngoing
	require.NoError(t, f.catalog.UpdateEvent(context.Background(), f.event))

	_, err := f.svc.Register(userCtx(id.NewUserID()), service.RegisterInput{
		EventID: f.event.ID,
		RaceIDs: []id.RaceID{f.race.ID},
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestRegisterChecksVehicleOwnership(t *testing.T) {
	f := newFixture(t, 10)
	owner, stranger := id.NewUserID(), id.NewUserID()
	vehicleID := id.NewVehicleID()
	f.garage.Put(context.Background(), &vehicle.Vehicle{ID: vehicleID, OwnerID: owner, Name: "GT-3"})

	_, err := f.svc.Register(userCtx(stranger), service.RegisterInput{
		EventID:    f.event.ID,
		RaceIDs:    []id.RaceID{f.race.ID},
		VehicleIDs: []id.VehicleID{vehicleID},
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	reg, err := f.svc.Register(userCtx(owner), service.RegisterInput{
		EventID:    f.event.ID,
		RaceIDs:    []id.RaceID{f.race.ID},
		VehicleIDs: []id.VehicleID{vehicleID},
	})
	require.NoError(t, err)
	assert.Equal(t, []id.VehicleID{vehicleID}, reg.VehicleIDs)
}

func TestApproveReservesSlotAndCreatesShells(t *testing.T) {
	f := newFixture(t, 10)
	reg := f.register(t, id.NewUserID())
	admin := id.NewUserID()

	approved, err := f.svc.Approve(adminCtx(admin), reg.ID, "welcome")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, admin, *approved.ReviewedBy)

	event, err := f.catalog.GetEvent(context.Background(), f.event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, event.Participants)

	assert.Equal(t, []id.RegistrationID{reg.ID}, f.results.shellsFor)
}

func TestApproveTwiceConflicts(t *testing.T) {
	f := newFixture(t, 10)
	reg := f.register(t, id.NewUserID())
	admin := adminCtx(id.NewUserID())

	_, err := f.svc.Approve(admin, reg.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Approve(admin, reg.ID, "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	// The losing approval must not leak a slot.
	event, err := f.catalog.GetEvent(context.Background(), f.event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, event.Participants)
}

func TestApproveFullEvent(t *testing.T) {
	f := newFixture(t, 1)
	first := f.register(t, id.NewUserID())
	second := f.register(t, id.NewUserID())
	admin := adminCtx(id.NewUserID())

	_, err := f.svc.Approve(admin, first.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Approve(admin, second.ID, "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	// The refused registration stays pending for a later slot.
	got, err := f.store.Get(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestRejectLeavesCapacityUntouched(t *testing.T) {
	f := newFixture(t, 10)
	reg := f.register(t, id.NewUserID())

	rejected, err := f.svc.Reject(adminCtx(id.NewUserID()), reg.ID, "incomplete paperwork")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.Equal(t, "incomplete paperwork", rejected.ReviewNotes)

	event, err := f.catalog.GetEvent(context.Background(), f.event.ID)
	require.NoError(t, err)
	assert.Zero(t, event.Participants)
	assert.Equal(t, []id.RegistrationID{reg.ID}, f.results.deletedFor)
}

func TestCancelPendingDeletesWithoutRelease(t *testing.T) {
	f := newFixture(t, 10)
	userID := id.NewUserID()
	reg := f.register(t, userID)

	require.NoError(t, f.svc.Cancel(userCtx(userID), f.event.ID))

	_, err := f.store.Get(context.Background(), reg.ID)
	require.Error(t, err)

	event, err := f.catalog.GetEvent(context.Background(), f.event.ID)
	require.NoError(t, err)
	assert.Zero(t, event.Participants)
}

func TestCancelApprovedReleasesSlot(t *testing.T) {
	f := newFixture(t, 10)
	userID := id.NewUserID()
	reg := f.register(t, userID)
	_, err := f.svc.Approve(adminCtx(id.NewUserID()), reg.ID, "")
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(userCtx(userID), f.event.ID))

	event, err := f.catalog.GetEvent(context.Background(), f.event.ID)
	require.NoError(t, err)
	assert.Zero(t, event.Participants)
	assert.Contains(t, f.results.deletedFor, reg.ID)

	// The slot is free for someone else.
	again := f.register(t, userID)
	assert.Equal(t, models.StatusPending, again.Status)
}

func TestCancelRejectedConflicts(t *testing.T) {
	f := newFixture(t, 10)
	userID := id.NewUserID()
	reg := f.register(t, userID)
	_, err := f.svc.Reject(adminCtx(id.NewUserID()), reg.ID, "")
	require.NoError(t, err)

	err = f.svc.Cancel(userCtx(userID), f.event.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestGetHidesOthersRegistrations(t *testing.T) {
	f := newFixture(t, 10)
	owner := id.NewUserID()
	reg := f.register(t, owner)

	_, err := f.svc.Get(userCtx(id.NewUserID()), reg.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	got, err := f.svc.Get(userCtx(owner), reg.ID)
	require.NoError(t, err)
	assert.Equal(t, reg.ID, got.ID)

	got, err = f.svc.Get(adminCtx(id.NewUserID()), reg.ID)
	require.NoError(t, err)
	assert.Equal(t, reg.ID, got.ID)
}

func TestListParticipantsOnlyApproved(t *testing.T) {
	f := newFixture(t, 10)
	approvedUser := id.NewUserID()
	reg := f.register(t, approvedUser)
	f.register(t, id.NewUserID())
	_, err := f.svc.Approve(adminCtx(id.NewUserID()), reg.ID, "")
	require.NoError(t, err)

	participants, err := f.svc.ListParticipants(userCtx(id.NewUserID()), f.event.ID)
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.Equal(t, approvedUser, participants[0].UserID)
}
