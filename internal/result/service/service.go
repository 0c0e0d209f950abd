// Package service implements result recording, verification and the lazy
// reconciliation of result shells for approved participants.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	catalog "paddock/internal/catalog/models"
	"paddock/internal/platform/events"
	"paddock/internal/platform/metrics"
	regmodels "paddock/internal/registration/models"
	"paddock/internal/result/models"
	"paddock/internal/stream"
	id "paddock/pkg/domain"
	dErrors "paddock/pkg/domain-errors"
	"paddock/pkg/platform/sentinel"
	"paddock/pkg/requestcontext"
)

// Store is the result persistence contract.
type Store interface {
	Upsert(ctx context.Context, result *models.Result) error
	CreateIfAbsent(ctx context.Context, result *models.Result) (bool, error)
	Get(ctx context.Context, resultID id.ResultID) (*models.Result, error)
	GetByRaceUser(ctx context.Context, raceID id.RaceID, userID id.UserID) (*models.Result, error)
	ListByRace(ctx context.Context, raceID id.RaceID) ([]*models.Result, error)
	Verify(ctx context.Context, raceID id.RaceID, userID id.UserID, at time.Time, by id.UserID, checklist []models.ChecklistItem, notes string) error
	UpdateVerified(ctx context.Context, resultID id.ResultID, perf models.Performance, updatedAt time.Time) error
	DeleteByRegistration(ctx context.Context, regID id.RegistrationID) error
	DeleteByEvent(ctx context.Context, eventID id.EventID) error
	DeleteByRace(ctx context.Context, raceID id.RaceID) error
}

// Catalog resolves races and the guideline configuration of their events.
type Catalog interface {
	GetEvent(ctx context.Context, eventID id.EventID) (*catalog.Event, error)
	GetRace(ctx context.Context, raceID id.RaceID) (*catalog.Race, error)
}

// Registrations resolves the approved participants a result must be
// anchored to.
type Registrations interface {
	GetByUserEvent(ctx context.Context, userID id.UserID, eventID id.EventID) (*regmodels.Registration, error)
	ListByEvent(ctx context.Context, eventID id.EventID, status regmodels.Status) ([]*regmodels.Registration, error)
}

// Broadcaster fans result updates out to live observers. Failures never
// propagate to the write path.
type Broadcaster interface {
	Publish(event stream.Event)
}

type Service struct {
	store       Store
	catalog     Catalog
	regs        Registrations
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	audit       events.Publisher
	logger      *slog.Logger
	tracer      trace.Tracer
}

type Option func(*Service)

func WithAuditPublisher(publisher events.Publisher) Option {
	return func(s *Service) { s.audit = publisher }
}

func WithBroadcaster(broadcaster Broadcaster) Option {
	return func(s *Service) { s.broadcaster = broadcaster }
}

func New(store Store, cat Catalog, regs Registrations, m *metrics.Metrics, logger *slog.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("result store is required")
	}
	if cat == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if regs == nil {
		return nil, fmt.Errorf("registrations are required")
	}
	svc := &Service{
		store:   store,
		catalog: cat,
		regs:    regs,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("paddock/result"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// ListRaceResults returns the race's results after reconciling shells:
// every approved registration covering the race gets a row, so the
// scoreboard always shows the full field. Shell creation is idempotent;
// concurrent reconciliations of the same race cannot duplicate rows.
func (s *Service) ListRaceResults(ctx context.Context, raceID id.RaceID) ([]*models.Result, error) {
	ctx, span := s.tracer.Start(ctx, "result.ListRaceResults",
		trace.WithAttributes(attribute.String("race_id", raceID.String())))
	defer span.End()

	race, err := s.getRace(ctx, raceID)
	if err != nil {
		return nil, err
	}
	participants, err := s.regs.ListByEvent(ctx, race.EventID, regmodels.StatusApproved)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list participants")
	}

	existing, err := s.store.ListByRace(ctx, raceID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list results")
	}
	covered := make(map[id.UserID]struct{}, len(existing))
	for _, result := range existing {
		covered[result.UserID] = struct{}{}
	}

	now := requestcontext.Now(ctx)
	created := 0
	for _, reg := range participants {
		if !reg.CoversRace(raceID) {
			continue
		}
		if _, ok := covered[reg.UserID]; ok {
			continue
		}
		ok, err := s.store.CreateIfAbsent(ctx, shellFor(reg, race, now))
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create result shell")
		}
		if ok {
			created++
		}
	}
	if created > 0 && s.metrics != nil {
		s.metrics.ResultShellsCreated.Add(float64(created))
	}

	list, err := s.store.ListByRace(ctx, raceID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list results")
	}
	return list, nil
}

// EnsureShells materializes one shell per race the registration covers.
// Called best-effort on approval; the read path catches anything missed.
func (s *Service) EnsureShells(ctx context.Context, reg *regmodels.Registration) (int, error) {
	now := requestcontext.Now(ctx)
	created := 0
	for _, raceID := range reg.RaceIDs {
		race, err := s.catalog.GetRace(ctx, raceID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return created, fmt.Errorf("load race %s: %w", raceID, err)
		}
		ok, err := s.store.CreateIfAbsent(ctx, shellFor(reg, race, now))
		if err != nil {
			return created, fmt.Errorf("create shell for race %s: %w", raceID, err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// VerifyInput is the admin's verification submission for one participant.
type VerifyInput struct {
	UserID    id.UserID
	Checklist []models.ChecklistItem
	Notes     string
}

// VerifyParticipant marks a participant's result row as admin-verified,
// opening the gated update path. When the event defines required
// guideline items, each must be present and checked in the submission.
func (s *Service) VerifyParticipant(ctx context.Context, raceID id.RaceID, input VerifyInput) (*models.Result, error) {
	race, err := s.getRace(ctx, raceID)
	if err != nil {
		return nil, err
	}
	event, err := s.catalog.GetEvent(ctx, race.EventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "event not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load event")
	}
	reg, err := s.approvedRegistration(ctx, input.UserID, race)
	if err != nil {
		return nil, err
	}
	if err := checkRequiredGuidelines(event.Guidelines, input.Checklist); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	if _, err := s.store.CreateIfAbsent(ctx, shellFor(reg, race, now)); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create result shell")
	}

	adminID := requestcontext.UserID(ctx)
	if err := s.store.Verify(ctx, raceID, input.UserID, now, adminID, input.Checklist, input.Notes); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "result not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify participant")
	}

	if s.metrics != nil {
		s.metrics.ParticipantsVerified.Inc()
	}
	events.Log(ctx, s.logger, s.audit, "participant_verified", "race", raceID.String(),
		slog.String("user_id", input.UserID.String()))
	return s.getByRaceUser(ctx, raceID, input.UserID)
}

// RecordResult is the unconditional write path: an upsert keyed by
// (event, race, user) that needs no prior verification. The participant
// must still hold an approved registration covering the race, so a
// result can never outlive its registration.
func (s *Service) RecordResult(ctx context.Context, raceID id.RaceID, userID id.UserID, perf models.Performance) (*models.Result, error) {
	ctx, span := s.tracer.Start(ctx, "result.RecordResult",
		trace.WithAttributes(attribute.String("race_id", raceID.String())))
	defer span.End()

	race, err := s.getRace(ctx, raceID)
	if err != nil {
		return nil, err
	}
	reg, err := s.approvedRegistration(ctx, userID, race)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	result := shellFor(reg, race, now)
	result.Score = perf.Score
	result.FinishingTimeMs = perf.FinishingTimeMs
	result.Position = perf.Position
	result.Notes = perf.Notes
	if perf.VehicleID != nil {
		result.VehicleID = perf.VehicleID
	}

	if err := s.store.Upsert(ctx, result); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record result")
	}

	saved, err := s.getByRaceUser(ctx, raceID, userID)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, saved)
	if s.metrics != nil {
		s.metrics.ResultsRecorded.Inc()
	}
	events.Log(ctx, s.logger, s.audit, "result_recorded", "result", saved.ID.String(),
		slog.String("race_id", raceID.String()))
	return saved, nil
}

// UpdateVerifiedResult is the gated write path: performance fields are
// rewritten by result id, but only after an admin verified the
// participant. An unverified row fails with PreconditionFailed.
func (s *Service) UpdateVerifiedResult(ctx context.Context, resultID id.ResultID, perf models.Performance) (*models.Result, error) {
	now := requestcontext.Now(ctx)
	if err := s.store.UpdateVerified(ctx, resultID, perf, now); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "result not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.New(dErrors.CodePreconditionFailed, "participant is not verified")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update result")
		}
	}

	saved, err := s.store.Get(ctx, resultID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load result")
	}
	s.announce(ctx, saved)
	if s.metrics != nil {
		s.metrics.ResultsRecorded.Inc()
	}
	events.Log(ctx, s.logger, s.audit, "result_updated", "result", resultID.String())
	return saved, nil
}

// DeleteByRegistration removes the results of a cancelled or rejected
// registration.
func (s *Service) DeleteByRegistration(ctx context.Context, regID id.RegistrationID) error {
	return s.store.DeleteByRegistration(ctx, regID)
}

// DeleteByEvent removes an event's results; used by the catalog cascade.
func (s *Service) DeleteByEvent(ctx context.Context, eventID id.EventID) error {
	return s.store.DeleteByEvent(ctx, eventID)
}

// DeleteByRace removes a race's results; used by the catalog cascade.
func (s *Service) DeleteByRace(ctx context.Context, raceID id.RaceID) error {
	return s.store.DeleteByRace(ctx, raceID)
}

func (s *Service) announce(ctx context.Context, result *models.Result) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Publish(stream.Event{Type: stream.EventResultSaved, Data: result})
}

func (s *Service) getRace(ctx context.Context, raceID id.RaceID) (*catalog.Race, error) {
	race, err := s.catalog.GetRace(ctx, raceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "race not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load race")
	}
	return race, nil
}

func (s *Service) getByRaceUser(ctx context.Context, raceID id.RaceID, userID id.UserID) (*models.Result, error) {
	result, err := s.store.GetByRaceUser(ctx, raceID, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "result not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load result")
	}
	return result, nil
}

// approvedRegistration anchors a result write to an approved registration
// that covers the race.
func (s *Service) approvedRegistration(ctx context.Context, userID id.UserID, race *catalog.Race) (*regmodels.Registration, error) {
	reg, err := s.regs.GetByUserEvent(ctx, userID, race.EventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no registration for this participant")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}
	if reg.Status != regmodels.StatusApproved {
		return nil, dErrors.New(dErrors.CodeConflict, "registration is not approved")
	}
	if !reg.CoversRace(race.ID) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "participant is not entered in this race")
	}
	return reg, nil
}

// shellFor builds an empty result row for a participant in a race. The
// vehicle follows the registration's designation for the race, then the
// first registered vehicle.
func shellFor(reg *regmodels.Registration, race *catalog.Race, now time.Time) *models.Result {
	result := &models.Result{
		ID:             id.NewResultID(),
		EventID:        race.EventID,
		RaceID:         race.ID,
		RegistrationID: reg.ID,
		UserID:         reg.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if vehicleID, ok := reg.VehicleForRace(race.ID); ok {
		result.VehicleID = &vehicleID
	}
	return result
}

// checkRequiredGuidelines enforces the event's verification checklist:
// every required item must appear checked in the submission. Events
// without guidelines verify unconditionally.
func checkRequiredGuidelines(guidelines []catalog.GuidelineItem, checklist []models.ChecklistItem) error {
	checked := make(map[string]bool, len(checklist))
	for _, item := range checklist {
		checked[item.Label] = item.Checked
	}
	for _, guideline := range guidelines {
		if !guideline.Required {
			continue
		}
		if !checked[guideline.Label] {
			return dErrors.New(dErrors.CodeForbidden, "required guideline item not confirmed: "+guideline.Label)
		}
	}
	return nil
}
