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
	"go.uber.org/mock/gomock"

	catalogmodels "paddock/internal/catalog/models"
	catalogstore "paddock/internal/catalog/store"
	"paddock/internal/platform/metrics"
	regmodels "paddock/internal/registration/models"
	regstore "paddock/internal/registration/store"
	"paddock/internal/result/models"
	"paddock/internal/result/service"
	"paddock/internal/result/store"
	"paddock/internal/stream"
	mockstream "paddock/mocks/stream"
	id "paddock/pkg/domain"
	dErrors "paddock/pkg/domain-errors"
)

type fixture struct {
	svc     *service.Service
	catalog *catalogstore.InMemory
	regs    *regstore.InMemory
	store   *store.InMemory
	event   *catalogmodels.Event
	race    *catalogmodels.Race
}

func newFixture(t *testing.T, guidelines []catalogmodels.GuidelineItem, opts ...service.Option) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalog := catalogstore.NewInMemory()
	regs := regstore.NewInMemory()
	results := store.NewInMemory()

	svc, err := service.New(results, catalog, regs,
		metrics.NewWith(prometheus.NewRegistry()), logger, opts...)
	require.NoError(t, err)

	now := time.Now().UTC()
	event := &catalogmodels.Event{
		ID:              id.NewEventID(),
		Name:            "Forest Rally Weekend",
		MaxParticipants: 20,
		Status:          catalogmodels.EventStatusOngoing,
		Guidelines:      guidelines,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, catalog.CreateEvent(context.Background(), event))

	laps := 5
	race := &catalogmodels.Race{
		ID:           id.NewRaceID(),
		EventID:      event.ID,
		Name:         "Heat 1",
		Type:         catalogmodels.RaceTypeLap,
		NumberOfLaps: &laps,
		Status:       catalogmodels.EventStatusOngoing,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, catalog.CreateRace(context.Background(), race))

	return &fixture{svc: svc, catalog: catalog, regs: regs, store: results, event: event, race: race}
}

func (f *fixture) addRegistration(t *testing.T, status regmodels.Status, raceIDs ...id.RaceID) *regmodels.Registration {
	t.Helper()
	reg := &regmodels.Registration{
		ID:        id.NewRegistrationID(),
		UserID:    id.NewUserID(),
		EventID:   f.event.ID,
		RaceIDs:   raceIDs,
		Status:    status,
		AppliedAt: time.Now().UTC(),
	}
	require.NoError(t, f.regs.Create(context.Background(), reg))
	return reg
}

func TestListRaceResultsReconcilesShells(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	entered := f.addRegistration(t, regmodels.StatusApproved, f.race.ID)
	f.addRegistration(t, regmodels.StatusApproved, f.race.ID)
	f.addRegistration(t, regmodels.StatusApproved, id.NewRaceID()) // other race
	f.addRegistration(t, regmodels.StatusPending, f.race.ID)      // not approved

	list, err := f.svc.ListRaceResults(ctx, f.race.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, result := range list {
		assert.False(t, result.VerifiedByAdmin)
		assert.Zero(t, result.Score)
	}

	// Idempotent: a second read creates nothing new.
	again, err := f.svc.ListRaceResults(ctx, f.race.ID)
	require.NoError(t, err)
	assert.Len(t, again, 2)

	got, err := f.store.GetByRaceUser(ctx, f.race.ID, entered.UserID)
	require.NoError(t, err)
	assert.Equal(t, entered.ID, got.RegistrationID)
}

func TestShellVehiclePrecedence(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	designated := id.NewVehicleID()
	fallback := id.NewVehicleID()
	withDesignation := f.addRegistration(t, regmodels.StatusApproved, f.race.ID)
	withDesignation.VehicleIDs = []id.VehicleID{fallback}
	withDesignation.VehiclesByRace = map[id.RaceID]id.VehicleID{f.race.ID: designated}

	// Recreate with the vehicle fields set.
	_, err := f.regs.DeleteActiveByUserEvent(ctx, withDesignation.UserID, f.event.ID)
	require.NoError(t, err)
	require.NoError(t, f.regs.Create(ctx, withDesignation))

	list, err := f.svc.ListRaceResults(ctx, f.race.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].VehicleID)
	assert.Equal(t, designated, *list[0].VehicleID)
}

func TestVerifyParticipantEnforcesChecklist(t *testing.T) {
	f := newFixture(t, []catalogmodels.GuidelineItem{
		{Label: "helmet approved", Required: true},
		{Label: "spare tyres loaded", Required: false},
	})
	ctx := context.Background()
	reg := f.addRegistration(t, regmodels.StatusApproved, f.race.ID)

	_, err := f.svc.VerifyParticipant(ctx, f.race.ID, service.VerifyInput{UserID: reg.UserID})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	// An unchecked required item is as bad as a missing one.
	_, err = f.svc.VerifyParticipant(ctx, f.race.ID, service.VerifyInput{
		UserID:    reg.UserID,
		Checklist: []models.ChecklistItem{{Label: "helmet approved", Checked: false}},
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	verified, err := f.svc.VerifyParticipant(ctx, f.race.ID, service.VerifyInput{
		UserID:    reg.UserID,
		Checklist: []models.ChecklistItem{{Label: "helmet approved", Checked: true}},
		Notes:     "scrutineering passed",
	})
	require.NoError(t, err)
	assert.True(t, verified.VerifiedByAdmin)
	assert.Equal(t, "scrutineering passed", verified.VerificationNotes)
}

func TestVerifyParticipantWithoutGuidelines(t *testing.T) {
	f := newFixture(t, nil)
	reg := f.addRegistration(t, regmodels.StatusApproved, f.race.ID)

	verified, err := f.svc.VerifyParticipant(context.Background(), f.race.ID, service.VerifyInput{UserID: reg.UserID})
	require.NoError(t, err)
	assert.True(t, verified.VerifiedByAdmin)
}

func TestRecordResultRequiresApprovedEntry(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.RecordResult(ctx, f.race.ID, id.NewUserID(), models.Performance{Score: 1})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	pending := f.addRegistration(t, regmodels.StatusPending, f.race.ID)
	_, err = f.svc.RecordResult(ctx, f.race.ID, pending.UserID, models.Performance{Score: 1})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	elsewhere := f.addRegistration(t, regmodels.StatusApproved, id.NewRaceID())
	_, err = f.svc.RecordResult(ctx, f.race.ID, elsewhere.UserID, models.Performance{Score: 1})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestRecordResultBroadcasts(t *testing.T) {
	ctrl := gomock.NewController(t)
	broadcaster := mockstream.NewMockBroadcaster(ctrl)

	f := newFixture(t, nil, service.WithBroadcaster(broadcaster))
	reg := f.addRegistration(t, regmodels.StatusApproved, f.race.ID)

	var published stream.Event
	broadcaster.EXPECT().Publish(gomock.Any()).Do(func(event stream.Event) {
		published = event
	})

	position := 3
	saved, err := f.svc.RecordResult(context.Background(), f.race.ID, reg.UserID, models.Performance{
		Score:           87,
		FinishingTimeMs: 421_337,
		Position:        &position,
	})
	require.NoError(t, err)
	assert.Equal(t, 87, saved.Score)
	require.NotNil(t, saved.Position)
	assert.Equal(t, 3, *saved.Position)

	assert.Equal(t, stream.EventResultSaved, published.Type)
	result, ok := published.Data.(*models.Result)
	require.True(t, ok)
	assert.Equal(t, saved.ID, result.ID)
}

func TestRecordResultOverwritesEarlierRun(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	reg := f.addRegistration(t, regmodels.StatusApproved, f.race.ID)

	first, err := f.svc.RecordResult(ctx, f.race.ID, reg.UserID, models.Performance{Score: 10})
	require.NoError(t, err)

	second, err := f.svc.RecordResult(ctx, f.race.ID, reg.UserID, models.Performance{Score: 25})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 25, second.Score)
}

func TestUpdateVerifiedResultGate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	reg := f.addRegistration(t, regmodels.StatusApproved, f.race.ID)

	recorded, err := f.svc.RecordResult(ctx, f.race.ID, reg.UserID, models.Performance{Score: 5})
	require.NoError(t, err)

	_, err = f.svc.UpdateVerifiedResult(ctx, recorded.ID, models.Performance{Score: 50})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodePreconditionFailed))

	_, err = f.svc.VerifyParticipant(ctx, f.race.ID, service.VerifyInput{UserID: reg.UserID})
	require.NoError(t, err)

	updated, err := f.svc.UpdateVerifiedResult(ctx, recorded.ID, models.Performance{Score: 50})
	require.NoError(t, err)
	assert.Equal(t, 50, updated.Score)
	assert.True(t, updated.VerifiedByAdmin)

	_, err = f.svc.UpdateVerifiedResult(ctx, id.NewResultID(), models.Performance{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
