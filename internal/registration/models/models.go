// Package models defines the registration entity and its state machine.
package models

import (
	"time"

	id "paddock/pkg/domain"
)

// Status is the review state of a registration. Registrations are born
// pending; an admin moves them to approved or rejected exactly once.
// Cancellation deletes the record instead of adding a state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Active reports whether the registration still occupies the (user, event)
// slot for cancellation purposes.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusApproved
}

// EmergencyContact is who to call when something goes wrong on track.
type EmergencyContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship,omitempty"`
}

// Registration is one user's application to compete in an event. RaceIDs
// lists the races entered; VehiclesByRace maps a race id to the vehicle
// designated for it, falling back to the first of VehicleIDs when a race
// has no designation.
type Registration struct {
	ID                id.RegistrationID           `json:"id"`
	UserID            id.UserID                   `json:"user_id"`
	EventID           id.EventID                  `json:"event_id"`
	RaceIDs           []id.RaceID                 `json:"race_ids"`
	VehicleIDs        []id.VehicleID              `json:"vehicle_ids,omitempty"`
	VehiclesByRace    map[id.RaceID]id.VehicleID  `json:"vehicles_by_race,omitempty"`
	Status            Status                      `json:"status"`
	AppliedAt         time.Time                   `json:"applied_at"`
	ReviewedAt        *time.Time                  `json:"reviewed_at,omitempty"`
	ReviewedBy        *id.UserID                  `json:"reviewed_by,omitempty"`
	ReviewNotes       string                      `json:"review_notes,omitempty"`
	EmergencyContact  EmergencyContact            `json:"emergency_contact"`
	MedicalConditions string                      `json:"medical_conditions,omitempty"`
	ExperienceLevel   string                      `json:"experience_level,omitempty"`
	AdditionalNotes   string                      `json:"additional_notes,omitempty"`
}

// VehicleForRace resolves the vehicle for a race: the per-race designation
// wins, then the first registered vehicle, then none.
func (r *Registration) VehicleForRace(raceID id.RaceID) (id.VehicleID, bool) {
	if vehicleID, ok := r.VehiclesByRace[raceID]; ok && !vehicleID.IsNil() {
		return vehicleID, true
	}
	if len(r.VehicleIDs) > 0 && !r.VehicleIDs[0].IsNil() {
		return r.VehicleIDs[0], true
	}
	return id.VehicleID{}, false
}

// CoversRace reports whether the registration entered the given race.
func (r *Registration) CoversRace(raceID id.RaceID) bool {
	for _, entered := range r.RaceIDs {
		if entered == raceID {
			return true
		}
	}
	return false
}
