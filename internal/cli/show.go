package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"farm-price-alerts/internal/app"
)

var (
	showCrop     string
	showLocation string
	showLimit    int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent approved price observations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Crop:     showCrop,
			Location: showLocation,
			Limit:    showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showCrop, "crop", "", "Filter by crop type")
	showCmd.Flags().StringVar(&showLocation, "location", "", "Filter by location")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of observations to display")
}
