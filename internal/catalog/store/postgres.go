package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"paddock/internal/catalog/models"
	id "paddock/pkg/domain"
	"paddock/pkg/platform/sentinel"
)

// PostgresStore persists the catalog in PostgreSQL. The store is pure I/O;
// validation and cross-entity cleanup belong to the service.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const eventColumns = `id, name, date, time, location, difficulty, duration, description,
	max_participants, participants, status, guidelines, created_at, updated_at`

func (s *PostgresStore) CreateEvent(ctx context.Context, event *models.Event) error {
	guidelines, err := json.Marshal(event.Guidelines)
	if err != nil {
		return fmt.Errorf("marshal guidelines: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		uuid.UUID(event.ID), event.Name, event.Date, event.Time, event.Location,
		event.Difficulty, event.Duration, event.Description,
		event.MaxParticipants, event.Participants, event.Status, guidelines,
		event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, eventID id.EventID) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, uuid.UUID(eventID))
	event, err := scanEvent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY date ASC`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// UpdateEvent rewrites the descriptive fields. The participants counter is
// deliberately excluded: only ReserveSlot/ReleaseSlot touch it.
func (s *PostgresStore) UpdateEvent(ctx context.Context, event *models.Event) error {
	guidelines, err := json.Marshal(event.Guidelines)
	if err != nil {
		return fmt.Errorf("marshal guidelines: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE events SET
			name = $2, date = $3, time = $4, location = $5, difficulty = $6,
			duration = $7, description = $8, max_participants = $9,
			status = $10, guidelines = $11, updated_at = $12
		WHERE id = $1
	`,
		uuid.UUID(event.ID), event.Name, event.Date, event.Time, event.Location,
		event.Difficulty, event.Duration, event.Description, event.MaxParticipants,
		event.Status, guidelines, event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) DeleteEvent(ctx context.Context, eventID id.EventID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, uuid.UUID(eventID))
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return requireRow(result)
}

// ReserveSlot atomically claims one capacity slot. The condition and the
// increment run in a single UPDATE so concurrent approvals of the last
// slot produce exactly one winner.
func (s *PostgresStore) ReserveSlot(ctx context.Context, eventID id.EventID) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE events
		SET participants = participants + 1
		WHERE id = $1
		  AND participants < max_participants
	`, uuid.UUID(eventID))
	if err != nil {
		return fmt.Errorf("reserve slot: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve slot rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// Lost the conditional update: either the event is full or missing.
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, uuid.UUID(eventID)).Scan(&exists); err != nil {
		return fmt.Errorf("reserve slot existence check: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

// ReleaseSlot atomically returns one capacity slot, clamped at zero.
func (s *PostgresStore) ReleaseSlot(ctx context.Context, eventID id.EventID) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE events
		SET participants = participants - 1
		WHERE id = $1
		  AND participants > 0
	`, uuid.UUID(eventID))
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("release slot rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, uuid.UUID(eventID)).Scan(&exists); err != nil {
		return fmt.Errorf("release slot existence check: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	// Counter already at zero; double release is a no-op.
	return nil
}

const raceColumns = `id, event_id, name, type, number_of_laps, stages, date, start_time,
	estimated_duration, status, created_at, updated_at`

func (s *PostgresStore) CreateRace(ctx context.Context, race *models.Race) error {
	stages, err := json.Marshal(race.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO races (`+raceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		uuid.UUID(race.ID), uuid.UUID(race.EventID), race.Name, race.Type,
		race.NumberOfLaps, stages, race.Date, race.StartTime,
		race.EstimatedDuration, race.Status, race.CreatedAt, race.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		if isForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("create race: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRace(ctx context.Context, raceID id.RaceID) (*models.Race, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+raceColumns+` FROM races WHERE id = $1`, uuid.UUID(raceID))
	race, err := scanRace(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get race: %w", err)
	}
	return race, nil
}

func (s *PostgresStore) ListRaces(ctx context.Context) ([]*models.Race, error) {
	return s.queryRaces(ctx, `SELECT `+raceColumns+` FROM races ORDER BY created_at DESC`)
}

func (s *PostgresStore) ListRacesByEvent(ctx context.Context, eventID id.EventID) ([]*models.Race, error) {
	return s.queryRaces(ctx, `SELECT `+raceColumns+` FROM races WHERE event_id = $1 ORDER BY created_at DESC`, uuid.UUID(eventID))
}

func (s *PostgresStore) queryRaces(ctx context.Context, query string, args ...any) ([]*models.Race, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query races: %w", err)
	}
	defer rows.Close()

	var out []*models.Race
	for rows.Next() {
		race, err := scanRace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan race: %w", err)
		}
		out = append(out, race)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateRace(ctx context.Context, race *models.Race) error {
	stages, err := json.Marshal(race.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE races SET
			name = $2, type = $3, number_of_laps = $4, stages = $5, date = $6,
			start_time = $7, estimated_duration = $8, status = $9, updated_at = $10
		WHERE id = $1
	`,
		uuid.UUID(race.ID), race.Name, race.Type, race.NumberOfLaps, stages,
		race.Date, race.StartTime, race.EstimatedDuration, race.Status, race.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update race: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) DeleteRace(ctx context.Context, raceID id.RaceID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM races WHERE id = $1`, uuid.UUID(raceID))
	if err != nil {
		return fmt.Errorf("delete race: %w", err)
	}
	return requireRow(result)
}

type row interface {
	Scan(dest ...any) error
}

func scanEvent(r row) (*models.Event, error) {
	var event models.Event
	var eventID uuid.UUID
	var guidelines []byte
	if err := r.Scan(
		&eventID, &event.Name, &event.Date, &event.Time, &event.Location,
		&event.Difficulty, &event.Duration, &event.Description,
		&event.MaxParticipants, &event.Participants, &event.Status, &guidelines,
		&event.CreatedAt, &event.UpdatedAt,
	); err != nil {
		return nil, err
	}
	event.ID = id.EventID(eventID)
	if err := json.Unmarshal(guidelines, &event.Guidelines); err != nil {
		return nil, fmt.Errorf("unmarshal guidelines: %w", err)
	}
	return &event, nil
}

func scanRace(r row) (*models.Race, error) {
	var race models.Race
	var raceID, eventID uuid.UUID
	var laps sql.NullInt64
	var stages []byte
	if err := r.Scan(
		&raceID, &eventID, &race.Name, &race.Type, &laps, &stages, &race.Date,
		&race.StartTime, &race.EstimatedDuration, &race.Status,
		&race.CreatedAt, &race.UpdatedAt,
	); err != nil {
		return nil, err
	}
	race.ID = id.RaceID(raceID)
	race.EventID = id.EventID(eventID)
	if laps.Valid {
		n := int(laps.Int64)
		race.NumberOfLaps = &n
	}
	if err := json.Unmarshal(stages, &race.Stages); err != nil {
		return nil, fmt.Errorf("unmarshal stages: %w", err)
	}
	return &race, nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
