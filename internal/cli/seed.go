package cli

import (
	"github.com/spf13/cobra"

	"farm-price-alerts/internal/app"
)

var (
	seedCrop     string
	seedLocation string
	seedUnit     string
	seedPrice    float64
	seedDays     int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert synthetic price observations for testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SeedOptions{
			Crop:      seedCrop,
			Location:  seedLocation,
			Unit:      seedUnit,
			BasePrice: seedPrice,
			Days:      seedDays,
		}
		return getApp().Seed(cmd.Context(), opts)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedCrop, "crop", "", "Crop type to seed")
	seedCmd.Flags().StringVar(&seedLocation, "location", "", "Location to seed")
	seedCmd.Flags().StringVar(&seedUnit, "unit", "kg", "Price unit")
	seedCmd.Flags().Float64Var(&seedPrice, "price", 0, "Base price to random-walk around")
	seedCmd.Flags().IntVar(&seedDays, "days", 30, "Number of daily observations to insert")
}
