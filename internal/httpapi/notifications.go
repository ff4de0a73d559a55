package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"farm-price-alerts/internal/market"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type notificationView struct {
	ID             uuid.UUID `json:"id"`
	AlertID        uuid.UUID `json:"alertId"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	AlertType      string    `json:"alertType"`
	CropType       string    `json:"cropType"`
	Location       string    `json:"location"`
	OldPrice       string    `json:"oldPrice"`
	NewPrice       string    `json:"newPrice"`
	PriceChangePct string    `json:"priceChangePercent"`
	Unit           string    `json:"unit"`
	ObservedAt     string    `json:"observedAt"`
	Status         string    `json:"status"`
	CreatedAt      string    `json:"createdAt"`
}

func toNotificationView(n market.Notification) notificationView {
	return notificationView{
		ID:             n.ID,
		AlertID:        n.AlertID,
		Title:          n.Title,
		Message:        n.Message,
		AlertType:      string(n.AlertType),
		CropType:       n.CropType,
		Location:       n.Location,
		OldPrice:       n.OldPrice.String(),
		NewPrice:       n.NewPrice.String(),
		PriceChangePct: n.PriceChangePct.StringFixed(1),
		Unit:           n.Unit,
		ObservedAt:     n.ObservedAt.UTC().Format(time.RFC3339),
		Status:         string(n.Status),
		CreatedAt:      n.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	owner := userID(r)

	var status market.NotificationStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := market.ParseNotificationStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		status = parsed
	}

	limit := queryInt(r, "limit", defaultPageSize)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := queryInt(r, "offset", 0)

	notifications, err := s.notifications.ListNotifications(r.Context(), owner, status, limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Msg("list notifications failed")
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}

	views := make([]notificationView, 0, len(notifications))
	for _, n := range notifications {
		views = append(views, toNotificationView(n))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": views,
		"limit":         limit,
		"offset":        offset,
	})
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

// parse keeps only well-formed UUIDs; malformed entries cannot match any
// owned notification so they are dropped the same way non-owned ids are.
func (req idsRequest) parse() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		if id, err := uuid.Parse(raw); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	s.updateNotificationBatch(w, r, s.notifications.MarkNotificationsRead)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s.updateNotificationBatch(w, r, s.notifications.DismissNotifications)
}

// updateNotificationBatch applies a status mutation to the owned subset
// of the requested ids. Non-owned ids are silently filtered rather than
// rejected so the response never leaks the existence of other users'
// notifications.
func (s *Server) updateNotificationBatch(w http.ResponseWriter, r *http.Request, update func(ctx context.Context, owner string, ids []uuid.UUID) (int64, error)) {
	var req idsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := update(r.Context(), userID(r), req.parse())
	if err != nil {
		s.logger.Error().Err(err).Msg("notification batch update failed")
		writeError(w, http.StatusInternalServerError, "failed to update notifications")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
