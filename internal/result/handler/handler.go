// Package handler exposes result recording and verification over HTTP.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"paddock/internal/result/models"
	"paddock/internal/result/service"
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

// RegisterAdmin mounts the result routes; all of them are admin-only.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/races/{raceID}/results", h.listRaceResults)
	r.Post("/races/{raceID}/verify-participant", h.verifyParticipant)
	r.Post("/races/{raceID}/add-result", h.addResult)
	r.Post("/races/{raceID}/record-result", h.recordResult)
}

type performanceRequest struct {
	Score           int    `json:"score"`
	FinishingTimeMs int64  `json:"finishing_time_ms"`
	Position        *int   `json:"position"`
	Notes           string `json:"notes"`
	VehicleID       string `json:"vehicle_id"`
}

func (req *performanceRequest) toModel() (models.Performance, error) {
	perf := models.Performance{
		Score:           req.Score,
		FinishingTimeMs: req.FinishingTimeMs,
		Position:        req.Position,
		Notes:           req.Notes,
	}
	if req.VehicleID != "" {
		vehicleID, err := id.ParseVehicleID(req.VehicleID)
		if err != nil {
			return models.Performance{}, err
		}
		perf.VehicleID = &vehicleID
	}
	return perf, nil
}

type verifyRequest struct {
	UserID    string                 `json:"user_id"`
	Checklist []models.ChecklistItem `json:"checklist"`
	Notes     string                 `json:"notes"`
}

type addResultRequest struct {
	ResultID string `json:"result_id"`
	performanceRequest
}

type recordResultRequest struct {
	UserID string `json:"user_id"`
	performanceRequest
}

func (h *Handler) listRaceResults(w http.ResponseWriter, r *http.Request) {
	raceID, err := id.ParseRaceID(chi.URLParam(r, "raceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.svc.ListRaceResults(r.Context(), raceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"results": list, "count": len(list)})
}

func (h *Handler) verifyParticipant(w http.ResponseWriter, r *http.Request) {
	raceID, err := id.ParseRaceID(chi.URLParam(r, "raceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.svc.VerifyParticipant(r.Context(), raceID, service.VerifyInput{
		UserID:    userID,
		Checklist: req.Checklist,
		Notes:     req.Notes,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"result": result})
}

// addResult is the gated path: it addresses an existing result by id and
// requires the participant to be verified.
func (h *Handler) addResult(w http.ResponseWriter, r *http.Request) {
	if _, err := id.ParseRaceID(chi.URLParam(r, "raceID")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req addResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}
	resultID, err := id.ParseResultID(req.ResultID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	perf, err := req.toModel()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.svc.UpdateVerifiedResult(r.Context(), resultID, perf)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"result": result})
}

// recordResult is the unconditional path: an upsert keyed by the
// participant, no verification required.
func (h *Handler) recordResult(w http.ResponseWriter, r *http.Request) {
	raceID, err := id.ParseRaceID(chi.URLParam(r, "raceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req recordResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	perf, err := req.toModel()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.svc.RecordResult(r.Context(), raceID, userID, perf)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"result": result})
}
