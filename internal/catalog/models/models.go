// Package models defines the event and race catalog entities.
package models

import (
	"time"

	id "paddock/pkg/domain"
)

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventStatusUpcoming  EventStatus = "upcoming"
	EventStatusOngoing   EventStatus = "ongoing"
	EventStatusCompleted EventStatus = "completed"
	EventStatusCancelled EventStatus = "cancelled"
)

func (s EventStatus) IsValid() bool {
	switch s {
	case EventStatusUpcoming, EventStatusOngoing, EventStatusCompleted, EventStatusCancelled:
		return true
	}
	return false
}

// GuidelineItem is one entry of an event's verification checklist
// configuration. Required items must be checked before a participant can
// be verified.
type GuidelineItem struct {
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

// Event is a scheduled multi-race competition with a participant cap.
// Participants counts approved registrations; the store's reserve/release
// operations are the only writers of that counter.
type Event struct {
	ID              id.EventID      `json:"id"`
	Name            string          `json:"name"`
	Date            string          `json:"date"`
	Time            string          `json:"time"`
	Location        string          `json:"location"`
	Difficulty      string          `json:"difficulty"`
	Duration        string          `json:"duration"`
	Description     string          `json:"description"`
	MaxParticipants int             `json:"max_participants"`
	Participants    int             `json:"participants"`
	Status          EventStatus     `json:"status"`
	Guidelines      []GuidelineItem `json:"guidelines,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// RaceType distinguishes scoring formats. Type-specific attributes are
// opaque to registration and results handling.
type RaceType string

const (
	RaceTypeLap       RaceType = "lap"
	RaceTypeRally     RaceType = "rally"
	RaceTypeTimeTrial RaceType = "time_trial"
)

func (t RaceType) IsValid() bool {
	switch t {
	case RaceTypeLap, RaceTypeRally, RaceTypeTimeTrial:
		return true
	}
	return false
}

// Coordinates locates a rally checkpoint.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Checkpoint is a point a rally stage passes through.
type Checkpoint struct {
	Name        string      `json:"name"`
	Coordinates Coordinates `json:"coordinates"`
}

// Stage is one leg of a rally race.
type Stage struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Checkpoints []Checkpoint `json:"checkpoints,omitempty"`
}

// Race is a single timed/scored competition within an event.
type Race struct {
	ID                id.RaceID   `json:"id"`
	EventID           id.EventID  `json:"event_id"`
	Name              string      `json:"name"`
	Type              RaceType    `json:"type"`
	NumberOfLaps      *int        `json:"number_of_laps,omitempty"`
	Stages            []Stage     `json:"stages,omitempty"`
	Date              string      `json:"date"`
	StartTime         string      `json:"start_time"`
	EstimatedDuration string      `json:"estimated_duration"`
	Status            EventStatus `json:"status"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}
