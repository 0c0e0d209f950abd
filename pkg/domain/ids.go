// Package domain holds the typed identifiers shared across features.
// Wrapping uuid.UUID in distinct named types keeps an EventID from ever
// being passed where a RaceID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "paddock/pkg/domain-errors"
)

type (
	UserID         uuid.UUID
	EventID        uuid.UUID
	RaceID         uuid.UUID
	RegistrationID uuid.UUID
	ResultID       uuid.UUID
	VehicleID      uuid.UUID
)

func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id EventID) String() string        { return uuid.UUID(id).String() }
func (id RaceID) String() string         { return uuid.UUID(id).String() }
func (id RegistrationID) String() string { return uuid.UUID(id).String() }
func (id ResultID) String() string       { return uuid.UUID(id).String() }
func (id VehicleID) String() string      { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id RaceID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id RegistrationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ResultID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id VehicleID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

// NewUserID and friends mint fresh random identifiers.
func NewUserID() UserID                 { return UserID(uuid.New()) }
func NewEventID() EventID               { return EventID(uuid.New()) }
func NewRaceID() RaceID                 { return RaceID(uuid.New()) }
func NewRegistrationID() RegistrationID { return RegistrationID(uuid.New()) }
func NewResultID() ResultID             { return ResultID(uuid.New()) }
func NewVehicleID() VehicleID           { return VehicleID(uuid.New()) }

// MarshalText renders ids as canonical UUID strings in JSON, including as
// map keys.
func (id UserID) MarshalText() ([]byte, error)         { return []byte(uuid.UUID(id).String()), nil }
func (id EventID) MarshalText() ([]byte, error)        { return []byte(uuid.UUID(id).String()), nil }
func (id RaceID) MarshalText() ([]byte, error)         { return []byte(uuid.UUID(id).String()), nil }
func (id RegistrationID) MarshalText() ([]byte, error) { return []byte(uuid.UUID(id).String()), nil }
func (id ResultID) MarshalText() ([]byte, error)       { return []byte(uuid.UUID(id).String()), nil }
func (id VehicleID) MarshalText() ([]byte, error)      { return []byte(uuid.UUID(id).String()), nil }

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = UserID(parsed)
	return nil
}

func (id *EventID) UnmarshalText(b []byte) error {
	parsed, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = EventID(parsed)
	return nil
}

func (id *RaceID) UnmarshalText(b []byte) error {
	parsed, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = RaceID(parsed)
	return nil
}

func (id *RegistrationID) UnmarshalText(b []byte) error {
	parsed, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = RegistrationID(parsed)
	return nil
}

func (id *ResultID) UnmarshalText(b []byte) error {
	parsed, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = ResultID(parsed)
	return nil
}

func (id *VehicleID) UnmarshalText(b []byte) error {
	parsed, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = VehicleID(parsed)
	return nil
}

// parseUUID enforces the shared invariant: ids must be valid, non-empty,
// non-nil UUIDs. Violations are invalid input at a trust boundary.
func parseUUID(raw, kind string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be the nil UUID")
	}
	return parsed, nil
}

func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID(raw, "user_id")
	return UserID(parsed), err
}

func ParseEventID(raw string) (EventID, error) {
	parsed, err := parseUUID(raw, "event_id")
	return EventID(parsed), err
}

func ParseRaceID(raw string) (RaceID, error) {
	parsed, err := parseUUID(raw, "race_id")
	return RaceID(parsed), err
}

func ParseRegistrationID(raw string) (RegistrationID, error) {
	parsed, err := parseUUID(raw, "registration_id")
	return RegistrationID(parsed), err
}

func ParseResultID(raw string) (ResultID, error) {
	parsed, err := parseUUID(raw, "result_id")
	return ResultID(parsed), err
}

func ParseVehicleID(raw string) (VehicleID, error) {
	parsed, err := parseUUID(raw, "vehicle_id")
	return VehicleID(parsed), err
}
