package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"farm-price-alerts/internal/storage"
)

// Show prints recent approved observations.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show prices")
	}
	defer closeStore()

	observations, err := store.ListRecentApproved(ctx, storage.ObservationFilter{
		CropType: opts.Crop,
		Location: opts.Location,
		Limit:    opts.Limit,
	})
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		fmt.Fprintln(os.Stdout, "no observations found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Effective (UTC)\tCrop\tLocation\tQuality\tPrice\tUnit\tSource")

	for _, obs := range observations {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			obs.EffectiveDate.UTC().Format(time.RFC3339),
			obs.CropType,
			obs.Location,
			obs.Quality,
			obs.PricePerUnit.StringFixed(2),
			obs.Unit,
			obs.Source,
		)
	}

	writer.Flush()
	return nil
}
