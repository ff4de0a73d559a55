package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"farm-price-alerts/internal/market"
	"farm-price-alerts/internal/storage"
)

type observationView struct {
	ID            uuid.UUID `json:"id"`
	CropType      string    `json:"cropType"`
	PricePerUnit  string    `json:"pricePerUnit"`
	Unit          string    `json:"unit"`
	Quality       string    `json:"quality"`
	Location      string    `json:"location"`
	Source        string    `json:"source,omitempty"`
	EffectiveDate string    `json:"effectiveDate"`
}

func (s *Server) handleListPrices(w http.ResponseWriter, r *http.Request) {
	quality, err := market.ParseQuality(r.URL.Query().Get("quality"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := queryInt(r, "limit", defaultPageSize)
	if limit > maxPageSize {
		limit = maxPageSize
	}

	observations, err := s.observations.ListRecentApproved(r.Context(), storage.ObservationFilter{
		CropType: r.URL.Query().Get("crop"),
		Location: r.URL.Query().Get("location"),
		Quality:  quality,
		Limit:    limit,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("list market prices failed")
		writeError(w, http.StatusInternalServerError, "failed to list market prices")
		return
	}

	views := make([]observationView, 0, len(observations))
	for _, obs := range observations {
		views = append(views, observationView{
			ID:            obs.ID,
			CropType:      obs.CropType,
			PricePerUnit:  obs.PricePerUnit.String(),
			Unit:          obs.Unit,
			Quality:       string(obs.Quality),
			Location:      obs.Location,
			Source:        obs.Source,
			EffectiveDate: obs.EffectiveDate.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": views})
}
