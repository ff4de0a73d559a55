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
	insertNotificationSQL = `INSERT INTO alert_notifications (
        id,
        alert_id,
        owner_id,
        title,
        message,
        alert_type,
        crop_type,
        location,
        old_price,
        new_price,
        price_change_pct,
        unit,
        observed_at,
        status
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
    )
    RETURNING created_at;`

	listNotificationsSQL = `SELECT
        id,
        alert_id,
        owner_id,
        title,
        message,
        alert_type,
        crop_type,
        location,
        old_price,
        new_price,
        price_change_pct,
        unit,
        observed_at,
        status,
        created_at,
        read_at,
        dismissed_at
    FROM alert_notifications
    WHERE owner_id = $1
      AND ($2 = '' OR status = $2)
    ORDER BY created_at DESC
    LIMIT $3 OFFSET $4;`

	markNotificationsReadSQL = `UPDATE alert_notifications
    SET status = 'READ', read_at = now()
    WHERE owner_id = $1
      AND id = ANY($2)
      AND status = 'PENDING';`

	dismissNotificationsSQL = `UPDATE alert_notifications
    SET status = 'DISMISSED', dismissed_at = now()
    WHERE owner_id = $1
      AND id = ANY($2)
      AND status <> 'DISMISSED';`
)

// InsertNotification persists a durable notification. The unique key on
// (alert_id, observed_at) makes the insert idempotent across overlapping
// evaluation passes: a second attempt for the same price event surfaces
// as ErrAlreadyDispatched.
func (s *Store) InsertNotification(ctx context.Context, n market.Notification) (market.Notification, error) {
	pool, err := s.getPool()
	if err != nil {
		return market.Notification{}, err
	}

	if n.ID == uuid.Nil {
		n.ID = uuid.Must(uuid.NewV7())
	}
	if n.Status == "" {
		n.Status = market.NotificationPending
	}

	row := pool.QueryRow(ctx, insertNotificationSQL,
		n.ID,
		n.AlertID,
		n.OwnerID,
		n.Title,
		n.Message,
		string(n.AlertType),
		n.CropType,
		n.Location,
		n.OldPrice.String(),
		n.NewPrice.String(),
		n.PriceChangePct.String(),
		n.Unit,
		n.ObservedAt,
		string(n.Status),
	)
	if err := row.Scan(&n.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return market.Notification{}, ErrAlreadyDispatched
		}
		return market.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

// ListNotifications lists one user's notifications, newest first, with an
// optional status filter.
func (s *Store) ListNotifications(ctx context.Context, ownerID string, status market.NotificationStatus, limit, offset int) ([]market.Notification, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, queryErr := pool.Query(ctx, listNotificationsSQL, ownerID, string(status), limit, offset)
	if queryErr != nil {
		return nil, fmt.Errorf("list notifications: %w", queryErr)
	}
	defer rows.Close()

	notifications := make([]market.Notification, 0, limit)
	for rows.Next() {
		n, scanErr := scanNotification(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		notifications = append(notifications, n)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return notifications, nil
}

// MarkNotificationsRead marks the owned subset of ids as read and returns
// how many rows changed. Ids owned by other users simply fall out of the
// owner predicate; they are never reported as an error. Only PENDING rows
// transition, so an already-READ or DISMISSED id also counts as not
// updated; the count is not a pure ownership-filter result.
func (s *Store) MarkNotificationsRead(ctx context.Context, ownerID string, ids []uuid.UUID) (int64, error) {
	return s.updateNotificationStatus(ctx, markNotificationsReadSQL, ownerID, ids)
}

// DismissNotifications dismisses the owned subset of ids, same contract
// as MarkNotificationsRead.
func (s *Store) DismissNotifications(ctx context.Context, ownerID string, ids []uuid.UUID) (int64, error) {
	return s.updateNotificationStatus(ctx, dismissNotificationsSQL, ownerID, ids)
}

func (s *Store) updateNotificationStatus(ctx context.Context, query, ownerID string, ids []uuid.UUID) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	tag, execErr := pool.Exec(ctx, query, ownerID, ids)
	if execErr != nil {
		return 0, fmt.Errorf("update notification status: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

func scanNotification(rows pgx.Rows) (market.Notification, error) {
	var (
		n           market.Notification
		alertType   string
		oldPriceStr string
		newPriceStr string
		changeStr   string
		status      string
		readAt      *time.Time
		dismissedAt *time.Time
	)

	if err := rows.Scan(
		&n.ID,
		&n.AlertID,
		&n.OwnerID,
		&n.Title,
		&n.Message,
		&alertType,
		&n.CropType,
		&n.Location,
		&oldPriceStr,
		&newPriceStr,
		&changeStr,
		&n.Unit,
		&n.ObservedAt,
		&status,
		&n.CreatedAt,
		&readAt,
		&dismissedAt,
	); err != nil {
		return market.Notification{}, err
	}

	oldPrice, err := decimal.NewFromString(oldPriceStr)
	if err != nil {
		return market.Notification{}, fmt.Errorf("parse old price: %w", err)
	}
	newPrice, err := decimal.NewFromString(newPriceStr)
	if err != nil {
		return market.Notification{}, fmt.Errorf("parse new price: %w", err)
	}
	change, err := decimal.NewFromString(changeStr)
	if err != nil {
		return market.Notification{}, fmt.Errorf("parse price change pct: %w", err)
	}

	n.AlertType = market.AlertType(alertType)
	n.OldPrice = oldPrice
	n.NewPrice = newPrice
	n.PriceChangePct = change
	n.Status = market.NotificationStatus(status)
	n.ReadAt = readAt
	n.DismissedAt = dismissedAt
	return n, nil
}
