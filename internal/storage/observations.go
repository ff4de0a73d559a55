package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"farm-price-alerts/internal/market"
)

const (
	insertObservationSQL = `INSERT INTO market_observations (
        id,
        crop_type,
        price_per_unit,
        unit,
        quality,
        location,
        source,
        effective_date,
        status
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    RETURNING created_at;`

	listRecentApprovedSQL = `SELECT
        id,
        crop_type,
        price_per_unit,
        unit,
        quality,
        location,
        source,
        effective_date,
        status,
        created_at
    FROM market_observations
    WHERE status = 'APPROVED'
      AND ($1 = '' OR lower(crop_type) = lower($1))
      AND ($2 = '' OR location = $2)
      AND ($3 = '' OR quality = $3)
    ORDER BY effective_date DESC, id DESC
    LIMIT $4;`

	listApprovedBetweenSQL = `SELECT
        id,
        crop_type,
        price_per_unit,
        unit,
        quality,
        location,
        source,
        effective_date,
        status,
        created_at
    FROM market_observations
    WHERE status = 'APPROVED'
      AND ($1 = '' OR lower(crop_type) = lower($1))
      AND ($2 = '' OR location = $2)
      AND effective_date >= $3
      AND effective_date < $4
    ORDER BY effective_date;`

	countObservationsSQL = `SELECT COUNT(*) FROM market_observations;`
)

// InsertObservation persists one price observation.
func (s *Store) InsertObservation(ctx context.Context, obs market.Observation) (market.Observation, error) {
	pool, err := s.getPool()
	if err != nil {
		return market.Observation{}, err
	}

	if err := obs.Validate(); err != nil {
		return market.Observation{}, err
	}
	if obs.ID == uuid.Nil {
		obs.ID = uuid.Must(uuid.NewV7())
	}
	if obs.Status == "" {
		obs.Status = market.ObservationPending
	}

	row := pool.QueryRow(ctx, insertObservationSQL,
		obs.ID,
		obs.CropType,
		obs.PricePerUnit.String(),
		obs.Unit,
		string(obs.Quality),
		obs.Location,
		obs.Source,
		obs.EffectiveDate,
		string(obs.Status),
	)
	if err := row.Scan(&obs.CreatedAt); err != nil {
		return market.Observation{}, fmt.Errorf("insert observation: %w", err)
	}
	return obs, nil
}

// ListRecentApproved lists approved observations matching the filter,
// newest first. Ties on effective_date break on id so repeated reads see
// the same order.
func (s *Store) ListRecentApproved(ctx context.Context, filter ObservationFilter) ([]market.Observation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	rows, queryErr := pool.Query(ctx, listRecentApprovedSQL,
		filter.CropType,
		filter.Location,
		string(filter.Quality),
		limit,
	)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent approved: %w", queryErr)
	}
	defer rows.Close()

	return collectObservations(rows, limit)
}

// ListApprovedBetween lists approved observations within a time window,
// oldest first, for exports and charting.
func (s *Store) ListApprovedBetween(ctx context.Context, cropType, location string, from, to time.Time) ([]market.Observation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listApprovedBetweenSQL, cropType, location, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list approved between: %w", queryErr)
	}
	defer rows.Close()

	return collectObservations(rows, 0)
}

// CountObservations counts stored observations.
func (s *Store) CountObservations(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countObservationsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count observations: %w", scanErr)
	}
	return count, nil
}

func collectObservations(rows pgx.Rows, sizeHint int) ([]market.Observation, error) {
	observations := make([]market.Observation, 0, sizeHint)
	for rows.Next() {
		obs, scanErr := scanObservation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		observations = append(observations, obs)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return observations, nil
}

func scanObservation(rows pgx.Rows) (market.Observation, error) {
	var (
		obs      market.Observation
		priceStr string
		quality  string
		status   string
	)

	if err := rows.Scan(
		&obs.ID,
		&obs.CropType,
		&priceStr,
		&obs.Unit,
		&quality,
		&obs.Location,
		&obs.Source,
		&obs.EffectiveDate,
		&status,
		&obs.CreatedAt,
	); err != nil {
		return market.Observation{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return market.Observation{}, fmt.Errorf("parse price per unit: %w", err)
	}
	obs.PricePerUnit = price
	obs.Quality = market.Quality(quality)
	obs.Status = market.ObservationStatus(status)
	return obs, nil
}
