package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"paddock/internal/registration/models"
	id "paddock/pkg/domain"
	"paddock/pkg/platform/sentinel"
)

// PostgresStore persists registrations in PostgreSQL. Review transitions
// and cancellation run as single conditional statements so concurrent
// admins and owners cannot race each other into inconsistent states.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const registrationColumns = `id, user_id, event_id, race_ids, vehicle_ids, vehicles_by_race,
	status, applied_at, reviewed_at, reviewed_by, review_notes,
	emergency_contact, medical_conditions, experience_level, additional_notes`

func (s *PostgresStore) Create(ctx context.Context, reg *models.Registration) error {
	raceIDs, vehicleIDs, byRace, contact, err := marshalDetails(reg)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO registrations (`+registrationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		uuid.UUID(reg.ID), uuid.UUID(reg.UserID), uuid.UUID(reg.EventID),
		raceIDs, vehicleIDs, byRace,
		reg.Status, reg.AppliedAt, nullTime(reg.ReviewedAt), nullUserID(reg.ReviewedBy), reg.ReviewNotes,
		contact, reg.MedicalConditions, reg.ExperienceLevel, reg.AdditionalNotes,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		if isForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, regID id.RegistrationID) (*models.Registration, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, uuid.UUID(regID))
	reg, err := scanRegistration(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

func (s *PostgresStore) GetByUserEvent(ctx context.Context, userID id.UserID, eventID id.EventID) (*models.Registration, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+registrationColumns+` FROM registrations WHERE user_id = $1 AND event_id = $2
	`, uuid.UUID(userID), uuid.UUID(eventID))
	reg, err := scanRegistration(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get registration by user and event: %w", err)
	}
	return reg, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Registration, error) {
	return s.queryRegistrations(ctx, `
		SELECT `+registrationColumns+` FROM registrations
		WHERE user_id = $1 ORDER BY applied_at DESC
	`, uuid.UUID(userID))
}

func (s *PostgresStore) ListByEvent(ctx context.Context, eventID id.EventID, status models.Status) ([]*models.Registration, error) {
	if status == "" {
		return s.queryRegistrations(ctx, `
			SELECT `+registrationColumns+` FROM registrations
			WHERE event_id = $1 ORDER BY applied_at DESC
		`, uuid.UUID(eventID))
	}
	return s.queryRegistrations(ctx, `
		SELECT `+registrationColumns+` FROM registrations
		WHERE event_id = $1 AND status = $2 ORDER BY applied_at DESC
	`, uuid.UUID(eventID), status)
}

// ListPending returns the review queue in arrival order.
func (s *PostgresStore) ListPending(ctx context.Context) ([]*models.Registration, error) {
	return s.queryRegistrations(ctx, `
		SELECT `+registrationColumns+` FROM registrations
		WHERE status = 'pending' ORDER BY applied_at ASC
	`)
}

// UpdateStatusFromPending applies the pending-only review transition as a
// single conditional UPDATE; concurrent reviews of the same registration
// produce exactly one winner.
func (s *PostgresStore) UpdateStatusFromPending(ctx context.Context, regID id.RegistrationID, to models.Status, reviewedAt time.Time, reviewedBy id.UserID, notes string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE registrations
		SET status = $2, reviewed_at = $3, reviewed_by = $4, review_notes = $5
		WHERE id = $1
		  AND status = 'pending'
	`, uuid.UUID(regID), to, reviewedAt, uuid.UUID(reviewedBy), notes)
	if err != nil {
		return fmt.Errorf("update registration status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update registration status rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// Lost the conditional update: already reviewed or missing.
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM registrations WHERE id = $1)`, uuid.UUID(regID)).Scan(&exists); err != nil {
		return fmt.Errorf("registration existence check: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

// DeleteActiveByUserEvent removes the caller's pending or approved
// registration for an event in one statement and returns the deleted row
// so the service can settle the capacity ledger.
func (s *PostgresStore) DeleteActiveByUserEvent(ctx context.Context, userID id.UserID, eventID id.EventID) (*models.Registration, error) {
	row := s.db.QueryRowContext(ctx, `
		DELETE FROM registrations
		WHERE user_id = $1
		  AND event_id = $2
		  AND status IN ('pending', 'approved')
		RETURNING `+registrationColumns+`
	`, uuid.UUID(userID), uuid.UUID(eventID))
	reg, err := scanRegistration(row)
	if err == nil {
		return reg, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("delete active registration: %w", err)
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM registrations WHERE user_id = $1 AND event_id = $2)
	`, uuid.UUID(userID), uuid.UUID(eventID)).Scan(&exists); err != nil {
		return nil, fmt.Errorf("registration existence check: %w", err)
	}
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	// A rejected registration stays on file.
	return nil, sentinel.ErrInvalidState
}

func (s *PostgresStore) DeleteByEvent(ctx context.Context, eventID id.EventID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM registrations WHERE event_id = $1`, uuid.UUID(eventID)); err != nil {
		return fmt.Errorf("delete registrations by event: %w", err)
	}
	return nil
}

func (s *PostgresStore) queryRegistrations(ctx context.Context, query string, args ...any) ([]*models.Registration, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query registrations: %w", err)
	}
	defer rows.Close()

	var out []*models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

type row interface {
	Scan(dest ...any) error
}

func scanRegistration(r row) (*models.Registration, error) {
	var reg models.Registration
	var regID, userID, eventID uuid.UUID
	var raceIDs, vehicleIDs, byRace, contact []byte
	var reviewedAt sql.NullTime
	var reviewedBy uuid.NullUUID
	if err := r.Scan(
		&regID, &userID, &eventID, &raceIDs, &vehicleIDs, &byRace,
		&reg.Status, &reg.AppliedAt, &reviewedAt, &reviewedBy, &reg.ReviewNotes,
		&contact, &reg.MedicalConditions, &reg.ExperienceLevel, &reg.AdditionalNotes,
	); err != nil {
		return nil, err
	}
	reg.ID = id.RegistrationID(regID)
	reg.UserID = id.UserID(userID)
	reg.EventID = id.EventID(eventID)
	if reviewedAt.Valid {
		at := reviewedAt.Time
		reg.ReviewedAt = &at
	}
	if reviewedBy.Valid {
		by := id.UserID(reviewedBy.UUID)
		reg.ReviewedBy = &by
	}
	if err := json.Unmarshal(raceIDs, &reg.RaceIDs); err != nil {
		return nil, fmt.Errorf("unmarshal race_ids: %w", err)
	}
	if err := json.Unmarshal(vehicleIDs, &reg.VehicleIDs); err != nil {
		return nil, fmt.Errorf("unmarshal vehicle_ids: %w", err)
	}
	if err := json.Unmarshal(byRace, &reg.VehiclesByRace); err != nil {
		return nil, fmt.Errorf("unmarshal vehicles_by_race: %w", err)
	}
	if err := json.Unmarshal(contact, &reg.EmergencyContact); err != nil {
		return nil, fmt.Errorf("unmarshal emergency_contact: %w", err)
	}
	return &reg, nil
}

func marshalDetails(reg *models.Registration) (raceIDs, vehicleIDs, byRace, contact []byte, err error) {
	if raceIDs, err = json.Marshal(reg.RaceIDs); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal race_ids: %w", err)
	}
	if vehicleIDs, err = json.Marshal(reg.VehicleIDs); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal vehicle_ids: %w", err)
	}
	if reg.VehiclesByRace == nil {
		byRace = []byte("{}")
	} else if byRace, err = json.Marshal(reg.VehiclesByRace); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal vehicles_by_race: %w", err)
	}
	if contact, err = json.Marshal(reg.EmergencyContact); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal emergency_contact: %w", err)
	}
	return raceIDs, vehicleIDs, byRace, contact, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullUserID(userID *id.UserID) uuid.NullUUID {
	if userID == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*userID), Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
