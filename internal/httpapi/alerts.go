package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"farm-price-alerts/internal/market"
	"farm-price-alerts/internal/storage"
)

type alertView struct {
	ID              uuid.UUID `json:"id"`
	CropType        string    `json:"cropType"`
	Location        string    `json:"location"`
	Quality         string    `json:"quality,omitempty"`
	AlertType       string    `json:"alertType"`
	Frequency       string    `json:"frequency"`
	Threshold       string    `json:"threshold"`
	IsActive        bool      `json:"isActive"`
	LastTriggeredAt *string   `json:"lastTriggeredAt,omitempty"`
	CreatedAt       string    `json:"createdAt"`
}

func toAlertView(a market.Alert) alertView {
	view := alertView{
		ID:        a.ID,
		CropType:  a.CropType,
		Location:  a.Location,
		Quality:   string(a.Quality),
		AlertType: string(a.Type),
		Frequency: string(a.Frequency),
		Threshold: a.Threshold.String(),
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.LastTriggeredAt != nil {
		formatted := a.LastTriggeredAt.UTC().Format(time.RFC3339)
		view.LastTriggeredAt = &formatted
	}
	return view
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.alerts.ListAlertsByOwner(r.Context(), userID(r))
	if err != nil {
		s.logger.Error().Err(err).Msg("list alerts failed")
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	views := make([]alertView, 0, len(alerts))
	for _, a := range alerts {
		views = append(views, toAlertView(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": views})
}

type createAlertRequest struct {
	CropType  string  `json:"cropType"`
	Location  string  `json:"location"`
	Quality   string  `json:"quality"`
	AlertType string  `json:"alertType"`
	Frequency string  `json:"frequency"`
	Threshold float64 `json:"threshold"`
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	alertType, err := market.ParseAlertType(req.AlertType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	frequency, err := market.ParseFrequency(req.Frequency)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	quality, err := market.ParseQuality(req.Quality)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	alert := market.Alert{
		OwnerID:   userID(r),
		CropType:  req.CropType,
		Location:  req.Location,
		Quality:   quality,
		Type:      alertType,
		Frequency: frequency,
		Threshold: decimal.NewFromFloat(req.Threshold),
		IsActive:  true,
	}
	if err := alert.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.alerts.CreateAlert(r.Context(), alert)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateAlert) {
			writeError(w, http.StatusConflict, "an identical alert subscription already exists")
			return
		}
		s.logger.Error().Err(err).Msg("create alert failed")
		writeError(w, http.StatusInternalServerError, "failed to create alert")
		return
	}

	writeJSON(w, http.StatusCreated, toAlertView(created))
}

type toggleAlertRequest struct {
	IsActive bool `json:"isActive"`
}

func (s *Server) handleToggleAlert(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	var req toggleAlertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.alerts.SetAlertActive(r.Context(), userID(r), id, req.IsActive); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		s.logger.Error().Err(err).Msg("toggle alert failed")
		writeError(w, http.StatusInternalServerError, "failed to update alert")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"isActive": req.IsActive})
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	if err := s.alerts.DeleteAlert(r.Context(), userID(r), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		s.logger.Error().Err(err).Msg("delete alert failed")
		writeError(w, http.StatusInternalServerError, "failed to delete alert")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckNow(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeError(w, http.StatusServiceUnavailable, "evaluation service not available")
		return
	}

	fired, err := s.checker.CheckNow(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("manual check failed")
		writeError(w, http.StatusInternalServerError, "manual check failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"fired": fired})
}
