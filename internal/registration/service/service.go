// Package service orchestrates the registration workflow: application,
// review, cancellation and the capacity ledger settlement around them.
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
	"paddock/internal/registration/models"
	id "paddock/pkg/domain"
	dErrors "paddock/pkg/domain-errors"
	"paddock/pkg/platform/sentinel"
	"paddock/pkg/requestcontext"
)

// Store is the registration persistence contract.
type Store interface {
	Create(ctx context.Context, reg *models.Registration) error
	Get(ctx context.Context, regID id.RegistrationID) (*models.Registration, error)
	GetByUserEvent(ctx context.Context, userID id.UserID, eventID id.EventID) (*models.Registration, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Registration, error)
	ListByEvent(ctx context.Context, eventID id.EventID, status models.Status) ([]*models.Registration, error)
	ListPending(ctx context.Context) ([]*models.Registration, error)
	UpdateStatusFromPending(ctx context.Context, regID id.RegistrationID, to models.Status, reviewedAt time.Time, reviewedBy id.UserID, notes string) error
	DeleteActiveByUserEvent(ctx context.Context, userID id.UserID, eventID id.EventID) (*models.Registration, error)
	DeleteByEvent(ctx context.Context, eventID id.EventID) error
}

// Catalog is the slice of the catalog store the orchestrator needs: event
// lookup, race membership and the capacity ledger.
type Catalog interface {
	GetEvent(ctx context.Context, eventID id.EventID) (*catalog.Event, error)
	ListRacesByEvent(ctx context.Context, eventID id.EventID) ([]*catalog.Race, error)
	ReserveSlot(ctx context.Context, eventID id.EventID) error
	ReleaseSlot(ctx context.Context, eventID id.EventID) error
}

// ResultWriter lets the orchestrator materialize result shells on approval
// and clean up dependent results on rejection and cancellation.
type ResultWriter interface {
	EnsureShells(ctx context.Context, reg *models.Registration) (int, error)
	DeleteByRegistration(ctx context.Context, regID id.RegistrationID) error
}

// VehicleReader resolves vehicle ownership. Nil-safe: without a wired
// store, vehicle ids are accepted as opaque references.
type VehicleReader interface {
	Owner(ctx context.Context, vehicleID id.VehicleID) (id.UserID, error)
}

type Service struct {
	store    Store
	catalog  Catalog
	results  ResultWriter
	vehicles VehicleReader
	metrics  *metrics.Metrics
	audit    events.Publisher
	logger   *slog.Logger
	tracer   trace.Tracer
}

type Option func(*Service)

func WithAuditPublisher(publisher events.Publisher) Option {
	return func(s *Service) { s.audit = publisher }
}

func WithVehicleReader(vehicles VehicleReader) Option {
	return func(s *Service) { s.vehicles = vehicles }
}

func New(store Store, cat Catalog, results ResultWriter, m *metrics.Metrics, logger *slog.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("registration store is required")
	}
	if cat == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	svc := &Service{
		store:   store,
		catalog: cat,
		results: results,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("paddock/registration"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RegisterInput is the application payload. The user comes from the
// request context, never the body.
type RegisterInput struct {
	EventID           id.EventID
	RaceIDs           []id.RaceID
	VehicleIDs        []id.VehicleID
	VehiclesByRace    map[id.RaceID]id.VehicleID
	EmergencyContact  models.EmergencyContact
	MedicalConditions string
	ExperienceLevel   string
	AdditionalNotes   string
}

// Register files a pending application for the calling user. The event
// must still be upcoming and every entered race must belong to it. One
// registration per (user, event) is enforced by the store.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*models.Registration, error) {
	ctx, span := s.tracer.Start(ctx, "registration.Register",
		trace.WithAttributes(attribute.String("event_id", input.EventID.String())))
	defer span.End()

	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if len(input.RaceIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "at least one race is required")
	}

	event, err := s.catalog.GetEvent(ctx, input.EventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "event not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load event")
	}
	if event.Status != catalog.EventStatusUpcoming {
		return nil, dErrors.New(dErrors.CodeConflict, "registration is closed for this event")
	}

	if err := s.checkRaceMembership(ctx, input); err != nil {
		return nil, err
	}
	if err := s.checkVehicleOwnership(ctx, userID, input); err != nil {
		return nil, err
	}

	reg := &models.Registration{
		ID:                id.NewRegistrationID(),
		UserID:            userID,
		EventID:           input.EventID,
		RaceIDs:           dedupeRaceIDs(input.RaceIDs),
		VehicleIDs:        input.VehicleIDs,
		VehiclesByRace:    input.VehiclesByRace,
		Status:            models.StatusPending,
		AppliedAt:         requestcontext.Now(ctx),
		EmergencyContact:  input.EmergencyContact,
		MedicalConditions: input.MedicalConditions,
		ExperienceLevel:   input.ExperienceLevel,
		AdditionalNotes:   input.AdditionalNotes,
	}
	if reg.ExperienceLevel == "" {
		reg.ExperienceLevel = "beginner"
	}

	if err := s.store.Create(ctx, reg); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "already registered for this event")
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "event not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create registration")
	}

	if s.metrics != nil {
		s.metrics.RegistrationsCreated.Inc()
	}
	events.Log(ctx, s.logger, s.audit, "registration_created", "registration", reg.ID.String(),
		slog.String("event_id", reg.EventID.String()))
	return reg, nil
}

// Approve moves a pending registration to approved. The capacity slot is
// reserved before the status flips and released again if the flip loses,
// so the participant counter never exceeds the cap and never leaks.
func (s *Service) Approve(ctx context.Context, regID id.RegistrationID, notes string) (*models.Registration, error) {
	ctx, span := s.tracer.Start(ctx, "registration.Approve",
		trace.WithAttributes(attribute.String("registration_id", regID.String())))
	defer span.End()

	reg, err := s.store.Get(ctx, regID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}

	if err := s.catalog.ReserveSlot(ctx, reg.EventID); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			if s.metrics != nil {
				s.metrics.ApprovalsRejectedFull.Inc()
			}
			return nil, dErrors.New(dErrors.CodeConflict, "event is at capacity")
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "event not found")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reserve capacity slot")
		}
	}

	now := requestcontext.Now(ctx)
	adminID := requestcontext.UserID(ctx)
	if err := s.store.UpdateStatusFromPending(ctx, regID, models.StatusApproved, now, adminID, notes); err != nil {
		// The slot was claimed for a transition that did not happen.
		if releaseErr := s.catalog.ReleaseSlot(ctx, reg.EventID); releaseErr != nil {
			s.logger.ErrorContext(ctx, "failed to release slot after losing approval",
				"event_id", reg.EventID, "registration_id", regID, "error", releaseErr)
		}
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.New(dErrors.CodeConflict, "registration already reviewed")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to approve registration")
		}
	}

	reg.Status = models.StatusApproved
	reg.ReviewedAt = &now
	reg.ReviewedBy = &adminID
	reg.ReviewNotes = notes

	// Best effort; the read path reconciles whatever is missed here.
	if s.results != nil {
		created, err := s.results.EnsureShells(ctx, reg)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to create result shells on approval",
				"registration_id", regID, "error", err)
		} else if s.metrics != nil {
			s.metrics.ResultShellsCreated.Add(float64(created))
		}
	}

	if s.metrics != nil {
		s.metrics.RegistrationsApproved.Inc()
	}
	events.Log(ctx, s.logger, s.audit, "registration_approved", "registration", regID.String(),
		slog.String("event_id", reg.EventID.String()))
	return reg, nil
}

// Reject moves a pending registration to rejected. No capacity is
// involved; dependent results are cleaned up defensively.
func (s *Service) Reject(ctx context.Context, regID id.RegistrationID, notes string) (*models.Registration, error) {
	now := requestcontext.Now(ctx)
	adminID := requestcontext.UserID(ctx)
	if err := s.store.UpdateStatusFromPending(ctx, regID, models.StatusRejected, now, adminID, notes); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.New(dErrors.CodeConflict, "registration already reviewed")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reject registration")
		}
	}

	if s.results != nil {
		if err := s.results.DeleteByRegistration(ctx, regID); err != nil {
			s.logger.WarnContext(ctx, "failed to delete results for rejected registration",
				"registration_id", regID, "error", err)
		}
	}

	if s.metrics != nil {
		s.metrics.RegistrationsRejected.Inc()
	}
	events.Log(ctx, s.logger, s.audit, "registration_rejected", "registration", regID.String())
	return s.mustGet(ctx, regID)
}

// Cancel deletes the caller's active registration for an event. The
// delete-if-active runs first so the slot settlement and result cleanup
// only happen for a registration this call actually removed.
func (s *Service) Cancel(ctx context.Context, eventID id.EventID) error {
	ctx, span := s.tracer.Start(ctx, "registration.Cancel",
		trace.WithAttributes(attribute.String("event_id", eventID.String())))
	defer span.End()

	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	deleted, err := s.store.DeleteActiveByUserEvent(ctx, userID, eventID)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "no registration for this event")
		case errors.Is(err, sentinel.ErrInvalidState):
			return dErrors.New(dErrors.CodeConflict, "registration can no longer be cancelled")
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to cancel registration")
		}
	}

	if deleted.Status == models.StatusApproved {
		if err := s.catalog.ReleaseSlot(ctx, eventID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.ErrorContext(ctx, "failed to release slot on cancellation",
				"event_id", eventID, "registration_id", deleted.ID, "error", err)
		}
	}
	if s.results != nil {
		if err := s.results.DeleteByRegistration(ctx, deleted.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to delete results for cancelled registration",
				"registration_id", deleted.ID, "error", err)
		}
	}

	if s.metrics != nil {
		s.metrics.RegistrationsCancelled.Inc()
	}
	events.Log(ctx, s.logger, s.audit, "registration_cancelled", "registration", deleted.ID.String(),
		slog.String("event_id", eventID.String()))
	return nil
}

// Get returns one registration. Owners see their own; admins see all.
func (s *Service) Get(ctx context.Context, regID id.RegistrationID) (*models.Registration, error) {
	reg, err := s.mustGet(ctx, regID)
	if err != nil {
		return nil, err
	}
	if reg.UserID != requestcontext.UserID(ctx) && !requestcontext.IsAdmin(ctx) {
		return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
	}
	return reg, nil
}

// ListMine returns the caller's registrations, newest first.
func (s *Service) ListMine(ctx context.Context) ([]*models.Registration, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	list, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list registrations")
	}
	return list, nil
}

// ListByEvent returns an event's registrations with an optional status
// filter.
func (s *Service) ListByEvent(ctx context.Context, eventID id.EventID, status models.Status) ([]*models.Registration, error) {
	if status != "" && !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid status filter")
	}
	list, err := s.store.ListByEvent(ctx, eventID, status)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list registrations")
	}
	return list, nil
}

// ListPending returns the review queue across all events.
func (s *Service) ListPending(ctx context.Context) ([]*models.Registration, error) {
	list, err := s.store.ListPending(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending registrations")
	}
	return list, nil
}

// ListParticipants returns the approved registrations of an event.
func (s *Service) ListParticipants(ctx context.Context, eventID id.EventID) ([]*models.Registration, error) {
	if _, err := s.catalog.GetEvent(ctx, eventID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "event not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load event")
	}
	list, err := s.store.ListByEvent(ctx, eventID, models.StatusApproved)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list participants")
	}
	return list, nil
}

// DeleteByEvent removes all registrations of a deleted event. Used by the
// catalog's cascade cleanup.
func (s *Service) DeleteByEvent(ctx context.Context, eventID id.EventID) error {
	return s.store.DeleteByEvent(ctx, eventID)
}

func (s *Service) checkRaceMembership(ctx context.Context, input RegisterInput) error {
	races, err := s.catalog.ListRacesByEvent(ctx, input.EventID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load event races")
	}
	owned := make(map[id.RaceID]struct{}, len(races))
	for _, race := range races {
		owned[race.ID] = struct{}{}
	}
	for _, raceID := range input.RaceIDs {
		if _, ok := owned[raceID]; !ok {
			return dErrors.New(dErrors.CodeInvalidInput, "race does not belong to this event")
		}
	}
	entered := make(map[id.RaceID]struct{}, len(input.RaceIDs))
	for _, raceID := range input.RaceIDs {
		entered[raceID] = struct{}{}
	}
	for raceID := range input.VehiclesByRace {
		if _, ok := entered[raceID]; !ok {
			return dErrors.New(dErrors.CodeInvalidInput, "vehicle designated for a race not entered")
		}
	}
	return nil
}

func (s *Service) checkVehicleOwnership(ctx context.Context, userID id.UserID, input RegisterInput) error {
	if s.vehicles == nil {
		return nil
	}
	seen := make(map[id.VehicleID]struct{})
	check := func(vehicleID id.VehicleID) error {
		if vehicleID.IsNil() {
			return dErrors.New(dErrors.CodeInvalidInput, "vehicle_id must not be nil")
		}
		if _, ok := seen[vehicleID]; ok {
			return nil
		}
		seen[vehicleID] = struct{}{}
		owner, err := s.vehicles.Owner(ctx, vehicleID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeInvalidInput, "vehicle not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve vehicle")
		}
		if owner != userID {
			return dErrors.New(dErrors.CodeInvalidInput, "vehicle does not belong to the registrant")
		}
		return nil
	}
	for _, vehicleID := range input.VehicleIDs {
		if err := check(vehicleID); err != nil {
			return err
		}
	}
	for _, vehicleID := range input.VehiclesByRace {
		if err := check(vehicleID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) mustGet(ctx context.Context, regID id.RegistrationID) (*models.Registration, error) {
	reg, err := s.store.Get(ctx, regID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}
	return reg, nil
}

func dedupeRaceIDs(raceIDs []id.RaceID) []id.RaceID {
	seen := make(map[id.RaceID]struct{}, len(raceIDs))
	out := make([]id.RaceID, 0, len(raceIDs))
	for _, raceID := range raceIDs {
		if _, ok := seen[raceID]; ok {
			continue
		}
		seen[raceID] = struct{}{}
		out = append(out, raceID)
	}
	return out
}
