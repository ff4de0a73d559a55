package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"farm-price-alerts/internal/config"
	"farm-price-alerts/internal/market"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrDuplicateAlert indicates an identical subscription already exists
	// for the same owner, crop, location, quality, and alert type.
	ErrDuplicateAlert = errors.New("storage: duplicate alert subscription")
	// ErrAlreadyDispatched indicates a notification for the same alert and
	// observation timestamp was already persisted by an earlier pass.
	ErrAlreadyDispatched = errors.New("storage: notification already dispatched")
	// ErrNotFound indicates the referenced row does not exist or is not
	// owned by the caller.
	ErrNotFound = errors.New("storage: not found")
)

// ObservationFilter narrows observation queries to one alert's scope.
// Empty fields match everything; Quality empty means any quality.
type ObservationFilter struct {
	CropType string
	Location string
	Quality  market.Quality
	Limit    int
}

// ObservationStore defines read/write access to moderated price data.
type ObservationStore interface {
	InsertObservation(ctx context.Context, obs market.Observation) (market.Observation, error)
	ListRecentApproved(ctx context.Context, filter ObservationFilter) ([]market.Observation, error)
	ListApprovedBetween(ctx context.Context, cropType, location string, from, to time.Time) ([]market.Observation, error)
	CountObservations(ctx context.Context) (int64, error)
}

// AlertStore defines persistence for alert subscriptions.
type AlertStore interface {
	CreateAlert(ctx context.Context, alert market.Alert) (market.Alert, error)
	ListActiveAlerts(ctx context.Context) ([]market.Alert, error)
	ListAlertsByOwner(ctx context.Context, ownerID string) ([]market.Alert, error)
	SetAlertActive(ctx context.Context, ownerID string, id uuid.UUID, active bool) error
	DeleteAlert(ctx context.Context, ownerID string, id uuid.UUID) error
	ClaimAlertTrigger(ctx context.Context, id uuid.UUID, prevTriggeredAt *time.Time, now time.Time) (bool, error)
}

// NotificationStore defines persistence for durable notifications.
type NotificationStore interface {
	InsertNotification(ctx context.Context, n market.Notification) (market.Notification, error)
	ListNotifications(ctx context.Context, ownerID string, status market.NotificationStatus, limit, offset int) ([]market.Notification, error)
	MarkNotificationsRead(ctx context.Context, ownerID string, ids []uuid.UUID) (int64, error)
	DismissNotifications(ctx context.Context, ownerID string, ids []uuid.UUID) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// Store aggregates access to observations, alerts, and notifications.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

const (
	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

var (
	_ ObservationStore  = (*Store)(nil)
	_ AlertStore        = (*Store)(nil)
	_ NotificationStore = (*Store)(nil)
	_ AdvisoryLocker    = (*Store)(nil)
)
