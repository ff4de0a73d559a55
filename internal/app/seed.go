package app

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"farm-price-alerts/internal/market"
)

// Seed inserts one synthetic approved observation per day for the given
// crop and location, random-walking around the base price. Useful for
// exercising alerts against an empty database.
func (a *App) Seed(ctx context.Context, opts SeedOptions) error {
	if opts.Crop == "" || opts.Location == "" {
		return errors.New("--crop and --location are required")
	}
	if opts.BasePrice <= 0 {
		return errors.New("--price must be positive")
	}
	if opts.Days <= 0 {
		opts.Days = 30
	}
	if opts.Unit == "" {
		opts.Unit = "kg"
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot seed")
	}
	defer closeStore()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	price := opts.BasePrice
	start := time.Now().UTC().AddDate(0, 0, -opts.Days).Truncate(24 * time.Hour)

	inserted := 0
	for day := 0; day < opts.Days; day++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Daily drift within ±5%.
		price *= 1 + (rng.Float64()-0.5)/10
		if price < 1 {
			price = 1
		}

		obs := market.Observation{
			CropType:      opts.Crop,
			PricePerUnit:  decimal.NewFromFloat(price).Round(2),
			Unit:          opts.Unit,
			Quality:       market.QualityStandard,
			Location:      opts.Location,
			Source:        "seed",
			EffectiveDate: start.AddDate(0, 0, day),
			Status:        market.ObservationApproved,
		}
		if _, err := store.InsertObservation(ctx, obs); err != nil {
			return err
		}
		inserted++
	}

	a.Logger.Info().
		Int("inserted", inserted).
		Str("crop", opts.Crop).
		Str("location", opts.Location).
		Msg("seed complete")
	return nil
}
