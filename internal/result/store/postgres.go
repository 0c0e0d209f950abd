package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"paddock/internal/result/models"
	id "paddock/pkg/domain"
	"paddock/pkg/platform/sentinel"
)

// PostgresStore persists results in PostgreSQL. The unique constraint on
// (event_id, race_id, user_id) backs both write paths: ON CONFLICT DO
// UPDATE for the unconditional upsert and ON CONFLICT DO NOTHING for
// reconciliation shells.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const resultColumns = `id, event_id, race_id, registration_id, user_id, vehicle_id,
	score, finishing_time_ms, position, notes,
	verified_by_admin, verified_at, verified_by, guideline_checklist, verification_notes,
	created_at, updated_at`

// Upsert writes the performance fields for the natural key, inserting the
// row if absent. Verification state of an existing row is untouched.
func (s *PostgresStore) Upsert(ctx context.Context, result *models.Result) error {
	checklist, err := json.Marshal(orEmptyChecklist(result.GuidelineChecklist))
	if err != nil {
		return fmt.Errorf("marshal checklist: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results (`+resultColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (event_id, race_id, user_id) DO UPDATE SET
			score = EXCLUDED.score,
			finishing_time_ms = EXCLUDED.finishing_time_ms,
			position = EXCLUDED.position,
			notes = EXCLUDED.notes,
			vehicle_id = EXCLUDED.vehicle_id,
			updated_at = EXCLUDED.updated_at
	`,
		uuid.UUID(result.ID), uuid.UUID(result.EventID), uuid.UUID(result.RaceID),
		uuid.UUID(result.RegistrationID), uuid.UUID(result.UserID), nullVehicleID(result.VehicleID),
		result.Score, result.FinishingTimeMs, nullInt(result.Position), result.Notes,
		result.VerifiedByAdmin, nullTime(result.VerifiedAt), nullUserID(result.VerifiedBy),
		checklist, result.VerificationNotes,
		result.CreatedAt, result.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	return nil
}

// CreateIfAbsent inserts a shell unless the natural key already has a
// row. Reports whether a row was created, so concurrent reconciliations
// stay idempotent.
func (s *PostgresStore) CreateIfAbsent(ctx context.Context, result *models.Result) (bool, error) {
	checklist, err := json.Marshal(orEmptyChecklist(result.GuidelineChecklist))
	if err != nil {
		return false, fmt.Errorf("marshal checklist: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO results (`+resultColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (event_id, race_id, user_id) DO NOTHING
	`,
		uuid.UUID(result.ID), uuid.UUID(result.EventID), uuid.UUID(result.RaceID),
		uuid.UUID(result.RegistrationID), uuid.UUID(result.UserID), nullVehicleID(result.VehicleID),
		result.Score, result.FinishingTimeMs, nullInt(result.Position), result.Notes,
		result.VerifiedByAdmin, nullTime(result.VerifiedAt), nullUserID(result.VerifiedBy),
		checklist, result.VerificationNotes,
		result.CreatedAt, result.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("create result shell: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create result shell rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *PostgresStore) Get(ctx context.Context, resultID id.ResultID) (*models.Result, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM results WHERE id = $1`, uuid.UUID(resultID))
	result, err := scanResult(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get result: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) GetByRaceUser(ctx context.Context, raceID id.RaceID, userID id.UserID) (*models.Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+resultColumns+` FROM results WHERE race_id = $1 AND user_id = $2
	`, uuid.UUID(raceID), uuid.UUID(userID))
	result, err := scanResult(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get result by race and user: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) ListByRace(ctx context.Context, raceID id.RaceID) ([]*models.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+resultColumns+` FROM results WHERE race_id = $1 ORDER BY created_at ASC
	`, uuid.UUID(raceID))
	if err != nil {
		return nil, fmt.Errorf("list results by race: %w", err)
	}
	defer rows.Close()

	var out []*models.Result
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, result)
	}
	return out, rows.Err()
}

// Verify marks the (race, user) row as admin-verified.
func (s *PostgresStore) Verify(ctx context.Context, raceID id.RaceID, userID id.UserID, at time.Time, by id.UserID, checklist []models.ChecklistItem, notes string) error {
	encoded, err := json.Marshal(orEmptyChecklist(checklist))
	if err != nil {
		return fmt.Errorf("marshal checklist: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE results
		SET verified_by_admin = TRUE, verified_at = $3, verified_by = $4,
			guideline_checklist = $5, verification_notes = $6, updated_at = $3
		WHERE race_id = $1
		  AND user_id = $2
	`, uuid.UUID(raceID), uuid.UUID(userID), at, uuid.UUID(by), encoded, notes)
	if err != nil {
		return fmt.Errorf("verify result: %w", err)
	}
	return requireRow(result)
}

// UpdateVerified rewrites performance fields by result id, only while the
// row is verified. Condition and write run in one statement so a
// concurrent un-verify cannot slip through.
func (s *PostgresStore) UpdateVerified(ctx context.Context, resultID id.ResultID, perf models.Performance, updatedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE results
		SET score = $2, finishing_time_ms = $3, position = $4, notes = $5,
			vehicle_id = COALESCE($6, vehicle_id), updated_at = $7
		WHERE id = $1
		  AND verified_by_admin = TRUE
	`, uuid.UUID(resultID), perf.Score, perf.FinishingTimeMs, nullInt(perf.Position),
		perf.Notes, nullVehicleID(perf.VehicleID), updatedAt)
	if err != nil {
		return fmt.Errorf("update verified result: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update verified result rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM results WHERE id = $1)`, uuid.UUID(resultID)).Scan(&exists); err != nil {
		return fmt.Errorf("result existence check: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

func (s *PostgresStore) DeleteByRegistration(ctx context.Context, regID id.RegistrationID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE registration_id = $1`, uuid.UUID(regID)); err != nil {
		return fmt.Errorf("delete results by registration: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteByEvent(ctx context.Context, eventID id.EventID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE event_id = $1`, uuid.UUID(eventID)); err != nil {
		return fmt.Errorf("delete results by event: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteByRace(ctx context.Context, raceID id.RaceID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE race_id = $1`, uuid.UUID(raceID)); err != nil {
		return fmt.Errorf("delete results by race: %w", err)
	}
	return nil
}

type row interface {
	Scan(dest ...any) error
}

func scanResult(r row) (*models.Result, error) {
	var result models.Result
	var resultID, eventID, raceID, regID, userID uuid.UUID
	var vehicleID, verifiedBy uuid.NullUUID
	var position sql.NullInt64
	var verifiedAt sql.NullTime
	var checklist []byte
	if err := r.Scan(
		&resultID, &eventID, &raceID, &regID, &userID, &vehicleID,
		&result.Score, &result.FinishingTimeMs, &position, &result.Notes,
		&result.VerifiedByAdmin, &verifiedAt, &verifiedBy, &checklist, &result.VerificationNotes,
		&result.CreatedAt, &result.UpdatedAt,
	); err != nil {
		return nil, err
	}
	result.ID = id.ResultID(resultID)
	result.EventID = id.EventID(eventID)
	result.RaceID = id.RaceID(raceID)
	result.RegistrationID = id.RegistrationID(regID)
	result.UserID = id.UserID(userID)
	if vehicleID.Valid {
		v := id.VehicleID(vehicleID.UUID)
		result.VehicleID = &v
	}
	if position.Valid {
		p := int(position.Int64)
		result.Position = &p
	}
	if verifiedAt.Valid {
		at := verifiedAt.Time
		result.VerifiedAt = &at
	}
	if verifiedBy.Valid {
		by := id.UserID(verifiedBy.UUID)
		result.VerifiedBy = &by
	}
	if err := json.Unmarshal(checklist, &result.GuidelineChecklist); err != nil {
		return nil, fmt.Errorf("unmarshal checklist: %w", err)
	}
	return &result, nil
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

func orEmptyChecklist(items []models.ChecklistItem) []models.ChecklistItem {
	if items == nil {
		return []models.ChecklistItem{}
	}
	return items
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
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

func nullVehicleID(vehicleID *id.VehicleID) uuid.NullUUID {
	if vehicleID == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*vehicleID), Valid: true}
}
