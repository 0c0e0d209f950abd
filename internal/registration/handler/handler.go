// Package handler exposes the registration workflow over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"paddock/internal/registration/models"
	"paddock/internal/registration/service"
	id "paddock/pkg/domain"
	dErrors "paddock/pkg/domain-errors"
	"paddock/pkg/platform/httputil"
	pstrings "paddock/pkg/platform/strings"
)

type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the authenticated participant routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/events/{eventID}/register", h.register)
	r.Post("/events/{eventID}/cancel-registration", h.cancel)
	r.Get("/user/registrations", h.listMine)
	r.Get("/events/{eventID}/participants", h.listParticipants)
}

// RegisterAdmin mounts the review routes; the caller wraps them in the
// admin middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/events/{eventID}/registrations", h.listByEvent)
	r.Get("/registrations/pending", h.listPending)
	r.Get("/registrations/{registrationID}", h.get)
	r.Post("/registrations/{registrationID}/approve", h.approve)
	r.Post("/registrations/{registrationID}/reject", h.reject)
}

type registerRequest struct {
	RaceIDs           []string                `json:"race_ids"`
	VehicleIDs        []string                `json:"vehicle_ids"`
	VehiclesByRace    map[string]string       `json:"vehicles_by_race"`
	EmergencyContact  models.EmergencyContact `json:"emergency_contact"`
	MedicalConditions string                  `json:"medical_conditions"`
	ExperienceLevel   string                  `json:"experience_level"`
	AdditionalNotes   string                  `json:"additional_notes"`
}

type reviewRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}

	input := service.RegisterInput{
		EventID:           eventID,
		EmergencyContact:  req.EmergencyContact,
		MedicalConditions: req.MedicalConditions,
		ExperienceLevel:   req.ExperienceLevel,
		AdditionalNotes:   req.AdditionalNotes,
	}
	for _, raw := range pstrings.DedupeAndTrim(req.RaceIDs) {
		raceID, err := id.ParseRaceID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		input.RaceIDs = append(input.RaceIDs, raceID)
	}
	for _, raw := range pstrings.DedupeAndTrim(req.VehicleIDs) {
		vehicleID, err := id.ParseVehicleID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		input.VehicleIDs = append(input.VehicleIDs, vehicleID)
	}
	if len(req.VehiclesByRace) > 0 {
		input.VehiclesByRace = make(map[id.RaceID]id.VehicleID, len(req.VehiclesByRace))
		for rawRace, rawVehicle := range req.VehiclesByRace {
			raceID, err := id.ParseRaceID(rawRace)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			vehicleID, err := id.ParseVehicleID(rawVehicle)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			input.VehiclesByRace[raceID] = vehicleID
		}
	}

	reg, err := h.svc.Register(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"registration": reg})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.svc.Cancel(r.Context(), eventID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "registration cancelled"})
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListMine(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"registrations": list, "count": len(list)})
}

func (h *Handler) listParticipants(w http.ResponseWriter, r *http.Request) {
	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.svc.ListParticipants(r.Context(), eventID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"participants": list, "count": len(list)})
}

func (h *Handler) listByEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status := models.Status(r.URL.Query().Get("status"))
	list, err := h.svc.ListByEvent(r.Context(), eventID, status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"registrations": list, "count": len(list)})
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListPending(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"registrations": list, "count": len(list)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	regID, err := id.ParseRegistrationID(chi.URLParam(r, "registrationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reg, err := h.svc.Get(r.Context(), regID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"registration": reg})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.svc.Approve)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.svc.Reject)
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, regID id.RegistrationID, notes string) (*models.Registration, error)) {
	regID, err := id.ParseRegistrationID(chi.URLParam(r, "registrationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req reviewRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body"))
			return
		}
	}
	reg, err := apply(r.Context(), regID, req.Notes)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"registration": reg})
}
