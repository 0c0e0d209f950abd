// Package service implements the event/race catalog operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"paddock/internal/catalog/models"
	"paddock/internal/platform/events"
	id "paddock/pkg/domain"
	dErrors "paddock/pkg/domain-errors"
	"paddock/pkg/platform/sentinel"
	"paddock/pkg/requestcontext"
)

// Store is the catalog persistence contract.
type Store interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, eventID id.EventID) (*models.Event, error)
	ListEvents(ctx context.Context) ([]*models.Event, error)
	UpdateEvent(ctx context.Context, event *models.Event) error
	DeleteEvent(ctx context.Context, eventID id.EventID) error

	CreateRace(ctx context.Context, race *models.Race) error
	GetRace(ctx context.Context, raceID id.RaceID) (*models.Race, error)
	ListRaces(ctx context.Context) ([]*models.Race, error)
	ListRacesByEvent(ctx context.Context, eventID id.EventID) ([]*models.Race, error)
	UpdateRace(ctx context.Context, race *models.Race) error
	DeleteRace(ctx context.Context, raceID id.RaceID) error
}

// RegistrationCleaner deletes registrations owned by a removed event.
type RegistrationCleaner interface {
	DeleteByEvent(ctx context.Context, eventID id.EventID) error
}

// ResultCleaner deletes results owned by a removed event or race.
type ResultCleaner interface {
	DeleteByEvent(ctx context.Context, eventID id.EventID) error
	DeleteByRace(ctx context.Context, raceID id.RaceID) error
}

type Service struct {
	store         Store
	registrations RegistrationCleaner
	results       ResultCleaner
	audit         events.Publisher
	logger        *slog.Logger
}

type Option func(*Service)

func WithAuditPublisher(publisher events.Publisher) Option {
	return func(s *Service) { s.audit = publisher }
}

func New(store Store, registrations RegistrationCleaner, results ResultCleaner, logger *slog.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("catalog store is required")
	}
	svc := &Service{store: store, registrations: registrations, results: results, logger: logger}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateEvent registers a new event in the catalog. The participant counter
// always starts at zero regardless of input.
func (s *Service) CreateEvent(ctx context.Context, event *models.Event) (*models.Event, error) {
	if event.Name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "event name is required")
	}
	if event.MaxParticipants < 1 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "max_participants must be at least 1")
	}
	if event.Status == "" {
		event.Status = models.EventStatusUpcoming
	}
	if !event.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid event status")
	}

	now := requestcontext.Now(ctx)
	event.ID = id.NewEventID()
	event.Participants = 0
	event.CreatedAt = now
	event.UpdatedAt = now

	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create event")
	}
	events.Log(ctx, s.logger, s.audit, "event_created", "event", event.ID.String())
	return event, nil
}

func (s *Service) GetEvent(ctx context.Context, eventID id.EventID) (*models.Event, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "event not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to get event")
	}
	return event, nil
}

func (s *Service) ListEvents(ctx context.Context) ([]*models.Event, error) {
	list, err := s.store.ListEvents(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events")
	}
	return list, nil
}

// UpdateEvent rewrites descriptive fields. The participant counter is owned
// by the capacity ledger and never touched here.
func (s *Service) UpdateEvent(ctx context.Context, event *models.Event) (*models.Event, error) {
	if event.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "event_id is required")
	}
	if event.MaxParticipants < 1 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "max_participants must be at least 1")
	}
	if !event.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid event status")
	}

	event.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.UpdateEvent(ctx, event); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "event not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update event")
	}
	events.Log(ctx, s.logger, s.audit, "event_updated", "event", event.ID.String())
	return s.GetEvent(ctx, event.ID)
}

// DeleteEvent removes the event and everything downstream of it: races,
// registrations and results.
func (s *Service) DeleteEvent(ctx context.Context, eventID id.EventID) error {
	if err := s.store.DeleteEvent(ctx, eventID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "event not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete event")
	}
	if s.results != nil {
		if err := s.results.DeleteByEvent(ctx, eventID); err != nil {
			s.logger.WarnContext(ctx, "failed to delete results for event", "event_id", eventID, "error", err)
		}
	}
	if s.registrations != nil {
		if err := s.registrations.DeleteByEvent(ctx, eventID); err != nil {
			s.logger.WarnContext(ctx, "failed to delete registrations for event", "event_id", eventID, "error", err)
		}
	}
	events.Log(ctx, s.logger, s.audit, "event_deleted", "event", eventID.String())
	return nil
}

// CreateRace adds a race to an existing event. Type-specific attributes are
// validated for presence only; their contents stay opaque to the core.
func (s *Service) CreateRace(ctx context.Context, race *models.Race) (*models.Race, error) {
	if race.Name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "race name is required")
	}
	if !race.Type.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid race type")
	}
	if race.Type == models.RaceTypeLap && (race.NumberOfLaps == nil || *race.NumberOfLaps < 1) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "lap races require number_of_laps")
	}
	if race.Type == models.RaceTypeRally && len(race.Stages) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "rally races require stages")
	}

	if _, err := s.GetEvent(ctx, race.EventID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	race.ID = id.NewRaceID()
	if race.Status == "" {
		race.Status = models.EventStatusUpcoming
	}
	race.CreatedAt = now
	race.UpdatedAt = now

	if err := s.store.CreateRace(ctx, race); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "event not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create race")
	}
	events.Log(ctx, s.logger, s.audit, "race_created", "race", race.ID.String())
	return race, nil
}

func (s *Service) GetRace(ctx context.Context, raceID id.RaceID) (*models.Race, error) {
	race, err := s.store.GetRace(ctx, raceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "race not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to get race")
	}
	return race, nil
}

func (s *Service) ListRaces(ctx context.Context) ([]*models.Race, error) {
	list, err := s.store.ListRaces(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list races")
	}
	return list, nil
}

func (s *Service) ListRacesByEvent(ctx context.Context, eventID id.EventID) ([]*models.Race, error) {
	list, err := s.store.ListRacesByEvent(ctx, eventID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list races")
	}
	return list, nil
}

func (s *Service) UpdateRace(ctx context.Context, race *models.Race) (*models.Race, error) {
	if race.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "race_id is required")
	}
	existing, err := s.GetRace(ctx, race.ID)
	if err != nil {
		return nil, err
	}
	// Races never move between events.
	race.EventID = existing.EventID
	if !race.Type.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid race type")
	}

	race.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.UpdateRace(ctx, race); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "race not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update race")
	}
	events.Log(ctx, s.logger, s.audit, "race_updated", "race", race.ID.String())
	return s.GetRace(ctx, race.ID)
}

// DeleteRace removes a race and the results recorded for it.
func (s *Service) DeleteRace(ctx context.Context, raceID id.RaceID) error {
	if err := s.store.DeleteRace(ctx, raceID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "race not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete race")
	}
	if s.results != nil {
		if err := s.results.DeleteByRace(ctx, raceID); err != nil {
			s.logger.WarnContext(ctx, "failed to delete results for race", "race_id", raceID, "error", err)
		}
	}
	events.Log(ctx, s.logger, s.audit, "race_deleted", "race", raceID.String())
	return nil
}
