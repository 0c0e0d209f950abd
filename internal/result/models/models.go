// Package models defines race results and their verification state.
package models

import (
	"time"

	id "paddock/pkg/domain"
)

// ChecklistItem is one entry of the verification checklist an admin
// submits when verifying a participant against the event guidelines.
type ChecklistItem struct {
	Label   string `json:"label"`
	Checked bool   `json:"checked"`
}

// Result is one participant's outcome in one race. A row exists per
// (event, race, user); reconciliation materializes empty shells for
// approved participants who have no recorded outcome yet.
//
// VerifiedByAdmin gates the by-id update path: performance fields can
// only be rewritten through it once an admin has verified the
// participant.
type Result struct {
	ID                 id.ResultID       `json:"id"`
	EventID            id.EventID        `json:"event_id"`
	RaceID             id.RaceID         `json:"race_id"`
	RegistrationID     id.RegistrationID `json:"registration_id"`
	UserID             id.UserID         `json:"user_id"`
	VehicleID          *id.VehicleID     `json:"vehicle_id,omitempty"`
	Score              int               `json:"score"`
	FinishingTimeMs    int64             `json:"finishing_time_ms"`
	Position           *int              `json:"position,omitempty"`
	Notes              string            `json:"notes,omitempty"`
	VerifiedByAdmin    bool              `json:"verified_by_admin"`
	VerifiedAt         *time.Time        `json:"verified_at,omitempty"`
	VerifiedBy         *id.UserID        `json:"verified_by,omitempty"`
	GuidelineChecklist []ChecklistItem   `json:"guideline_checklist,omitempty"`
	VerificationNotes  string            `json:"verification_notes,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Performance is the mutable outcome portion of a result, shared by both
// write paths.
type Performance struct {
	Score           int           `json:"score"`
	FinishingTimeMs int64         `json:"finishing_time_ms"`
	Position        *int          `json:"position,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	VehicleID       *id.VehicleID `json:"vehicle_id,omitempty"`
}
