package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"farm-price-alerts/internal/realtime"
	"farm-price-alerts/internal/storage"
)

// Checker runs one out-of-band evaluation pass for the check-now
// endpoint.
type Checker interface {
	CheckNow(ctx context.Context) (int, error)
}

// Server exposes the notifications/alerts/prices API and the realtime
// websocket endpoint.
type Server struct {
	alerts        storage.AlertStore
	observations  storage.ObservationStore
	notifications storage.NotificationStore
	hub           *realtime.Hub
	checker       Checker
	pingInterval  time.Duration
	logger        zerolog.Logger
}

// New constructs the API server.
func New(alerts storage.AlertStore, observations storage.ObservationStore, notifications storage.NotificationStore, hub *realtime.Hub, checker Checker, pingInterval time.Duration, logger zerolog.Logger) *Server {
	return &Server{
		alerts:        alerts,
		observations:  observations,
		notifications: notifications,
		hub:           hub,
		checker:       checker,
		pingInterval:  pingInterval,
		logger:        logger.With().Str("component", "httpapi").Logger(),
	}
}

// Router assembles the chi routing tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if s.hub != nil {
		r.Get("/ws", realtime.Handler(s.hub, s.pingInterval, s.logger))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireUser)

		r.Get("/notifications", s.handleListNotifications)
		r.Post("/notifications/read", s.handleMarkRead)
		r.Post("/notifications/dismiss", s.handleDismiss)

		r.Get("/alerts", s.handleListAlerts)
		r.Post("/alerts", s.handleCreateAlert)
		r.Post("/alerts/check", s.handleCheckNow)
		r.Patch("/alerts/{id}", s.handleToggleAlert)
		r.Delete("/alerts/{id}", s.handleDeleteAlert)

		r.Get("/market-prices", s.handleListPrices)
	})

	return r
}

type contextKey string

const userIDKey contextKey = "userID"

// requireUser extracts the opaque session identity. Authentication
// itself happens upstream in the marketplace; this service only needs
// the resulting user id.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "user identity required")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}
