// Package handler exposes the event/race catalog over HTTP.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"paddock/internal/catalog/models"
	"paddock/internal/catalog/service"
	id "paddock/pkg/domain"
	dErrors "paddock/pkg/domain-errors"
	"paddock/pkg/platform/httputil"
)

type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the public, read-only catalog routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/events", h.listEvents)
	r.Get("/events/{eventID}", h.getEvent)
	r.Get("/events/{eventID}/races", h.listEventRaces)
	r.Get("/races", h.listRaces)
	r.Get("/races/{raceID}", h.getRace)
}

// RegisterAdmin mounts the catalog mutation routes; the caller wraps them
// in the admin middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/events", h.createEvent)
	r.Put("/events/{eventID}", h.updateEvent)
	r.Delete("/events/{eventID}", h.deleteEvent)
	r.Post("/races", h.createRace)
	r.Put("/races/{raceID}", h.updateRace)
	r.Delete("/races/{raceID}", h.deleteRace)
}

type eventRequest struct {
	Name            string                 `json:"name"`
	Date            string                 `json:"date"`
	Time            string                 `json:"time"`
	Location        string                 `json:"location"`
	Difficulty      string                 `json:"difficulty"`
	Duration        string                 `json:"duration"`
	Description     string                 `json:"description"`
	MaxParticipants int                    `json:"max_participants"`
	Status          models.EventStatus     `json:"status"`
	Guidelines      []models.GuidelineItem `json:"guidelines"`
}

func (req *eventRequest) toModel() *models.Event {
	return &models.Event{
		Name:            req.Name,
		Date:            req.Date,
		Time:            req.Time,
		Location:        req.Location,
		Difficulty:      req.Difficulty,
		Duration:        req.Duration,
		Description:     req.Description,
		MaxParticipants: req.MaxParticipants,
		Status:          req.Status,
		Guidelines:      req.Guidelines,
	}
}

type raceRequest struct {
	EventID           string             `json:"event_id"`
	Name              string             `json:"name"`
	Type              models.RaceType    `json:"type"`
	NumberOfLaps      *int               `json:"number_of_laps"`
	Stages            []models.Stage     `json:"stages"`
	Date              string             `json:"date"`
	StartTime         string             `json:"start_time"`
	EstimatedDuration string             `json:"estimated_duration"`
	Status            models.EventStatus `json:"status"`
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListEvents(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": list, "count": len(list)})
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	event, err := h.svc.GetEvent(r.Context(), eventID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"event": event})
}

func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}
	event, err := h.svc.CreateEvent(r.Context(), req.toModel())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"event": event})
}

func (h *Handler) updateEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}
	event := req.toModel()
	event.ID = eventID
	updated, err := h.svc.UpdateEvent(r.Context(), event)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"event": updated})
}

func (h *Handler) deleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.svc.DeleteEvent(r.Context(), eventID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "event deleted"})
}

func (h *Handler) listRaces(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListRaces(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"races": list, "count": len(list)})
}

func (h *Handler) listEventRaces(w http.ResponseWriter, r *http.Request) {
	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.svc.ListRacesByEvent(r.Context(), eventID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"races": list, "count": len(list)})
}

func (h *Handler) getRace(w http.ResponseWriter, r *http.Request) {
	raceID, err := id.ParseRaceID(chi.URLParam(r, "raceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	race, err := h.svc.GetRace(r.Context(), raceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"race": race})
}

func (h *Handler) createRace(w http.ResponseWriter, r *http.Request) {
	var req raceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}
	eventID, err := id.ParseEventID(req.EventID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	race := &models.Race{
		EventID:           eventID,
		Name:              req.Name,
		Type:              req.Type,
		NumberOfLaps:      req.NumberOfLaps,
		Stages:            req.Stages,
		Date:              req.Date,
		StartTime:         req.StartTime,
		EstimatedDuration: req.EstimatedDuration,
		Status:            req.Status,
	}
	created, err := h.svc.CreateRace(r.Context(), race)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"race": created})
}

func (h *Handler) updateRace(w http.ResponseWriter, r *http.Request) {
	raceID, err := id.ParseRaceID(chi.URLParam(r, "raceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req raceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}
	race := &models.Race{
		ID:                raceID,
		Name:              req.Name,
		Type:              req.Type,
		NumberOfLaps:      req.NumberOfLaps,
		Stages:            req.Stages,
		Date:              req.Date,
		StartTime:         req.StartTime,
		EstimatedDuration: req.EstimatedDuration,
		Status:            req.Status,
	}
	updated, err := h.svc.UpdateRace(r.Context(), race)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"race": updated})
}

func (h *Handler) deleteRace(w http.ResponseWriter, r *http.Request) {
	raceID, err := id.ParseRaceID(chi.URLParam(r, "raceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.svc.DeleteRace(r.Context(), raceID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "race deleted"})
}
