package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"farm-price-alerts/internal/market"
)

const (
	createAlertSQL = `INSERT INTO price_alerts (
        id,
        owner_id,
        crop_type,
        location,
        quality,
        alert_type,
        frequency,
        threshold,
        is_active
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    RETURNING created_at;`

	listActiveAlertsSQL = `SELECT
        id,
        owner_id,
        crop_type,
        location,
        quality,
        alert_type,
        frequency,
        threshold,
        is_active,
        last_triggered_at,
        created_at
    FROM price_alerts
    WHERE is_active
    ORDER BY created_at;`

	listAlertsByOwnerSQL = `SELECT
        id,
        owner_id,
        crop_type,
        location,
        quality,
        alert_type,
        frequency,
        threshold,
        is_active,
        last_triggered_at,
        created_at
    FROM price_alerts
    WHERE owner_id = $1
    ORDER BY created_at DESC;`

	setAlertActiveSQL = `UPDATE price_alerts
    SET is_active = $3
    WHERE id = $2 AND owner_id = $1;`

	deleteAlertSQL = `DELETE FROM price_alerts
    WHERE id = $2 AND owner_id = $1;`

	claimAlertTriggerSQL = `UPDATE price_alerts
    SET last_triggered_at = $3
    WHERE id = $1
      AND is_active
      AND last_triggered_at IS NOT DISTINCT FROM $2;`

	uniqueViolationCode = "23505"
)

// CreateAlert persists a new subscription. A second subscription with the
// same owner, crop, location, quality, and alert type hits the unique
// constraint and surfaces as ErrDuplicateAlert.
func (s *Store) CreateAlert(ctx context.Context, alert market.Alert) (market.Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return market.Alert{}, err
	}

	if err := alert.Validate(); err != nil {
		return market.Alert{}, err
	}
	if alert.ID == uuid.Nil {
		alert.ID = uuid.Must(uuid.NewV7())
	}

	row := pool.QueryRow(ctx, createAlertSQL,
		alert.ID,
		alert.OwnerID,
		alert.CropType,
		alert.Location,
		string(alert.Quality),
		string(alert.Type),
		string(alert.Frequency),
		alert.Threshold.String(),
		alert.IsActive,
	)
	if err := row.Scan(&alert.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return market.Alert{}, ErrDuplicateAlert
		}
		return market.Alert{}, fmt.Errorf("create alert: %w", err)
	}
	return alert, nil
}

// ListActiveAlerts lists every active subscription for an evaluation pass.
func (s *Store) ListActiveAlerts(ctx context.Context) ([]market.Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveAlertsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// ListAlertsByOwner lists one user's subscriptions, newest first.
func (s *Store) ListAlertsByOwner(ctx context.Context, ownerID string) ([]market.Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertsByOwnerSQL, ownerID)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts by owner: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// SetAlertActive toggles a subscription, scoped to its owner.
func (s *Store) SetAlertActive(ctx context.Context, ownerID string, id uuid.UUID, active bool) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, setAlertActiveSQL, ownerID, id, active)
	if execErr != nil {
		return fmt.Errorf("set alert active: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAlert removes a subscription, scoped to its owner.
func (s *Store) DeleteAlert(ctx context.Context, ownerID string, id uuid.UUID) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, deleteAlertSQL, ownerID, id)
	if execErr != nil {
		return fmt.Errorf("delete alert: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimAlertTrigger advances last_triggered_at only if it still holds the
// value the evaluation pass read. A false return means a concurrent pass
// already claimed this fire and the caller must skip dispatch.
func (s *Store) ClaimAlertTrigger(ctx context.Context, id uuid.UUID, prevTriggeredAt *time.Time, now time.Time) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	tag, execErr := pool.Exec(ctx, claimAlertTriggerSQL, id, prevTriggeredAt, now)
	if execErr != nil {
		return false, fmt.Errorf("claim alert trigger: %w", execErr)
	}
	return tag.RowsAffected() > 0, nil
}

func collectAlerts(rows pgx.Rows) ([]market.Alert, error) {
	alerts := make([]market.Alert, 0)
	for rows.Next() {
		alert, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, alert)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func scanAlert(rows pgx.Rows) (market.Alert, error) {
	var (
		alert        market.Alert
		quality      string
		alertType    string
		frequency    string
		thresholdStr string
		triggeredAt  *time.Time
	)

	if err := rows.Scan(
		&alert.ID,
		&alert.OwnerID,
		&alert.CropType,
		&alert.Location,
		&quality,
		&alertType,
		&frequency,
		&thresholdStr,
		&alert.IsActive,
		&triggeredAt,
		&alert.CreatedAt,
	); err != nil {
		return market.Alert{}, err
	}

	threshold, err := decimal.NewFromString(thresholdStr)
	if err != nil {
		return market.Alert{}, fmt.Errorf("parse threshold: %w", err)
	}
	alert.Quality = market.Quality(quality)
	alert.Type = market.AlertType(alertType)
	alert.Frequency = market.Frequency(frequency)
	alert.Threshold = threshold
	alert.LastTriggeredAt = triggeredAt
	return alert, nil
}
