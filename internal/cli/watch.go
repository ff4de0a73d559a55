package cli

import (
	"github.com/spf13/cobra"

	"farm-price-alerts/internal/app"
)

var (
	watchUser     string
	watchCheckNow bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream alert notifications for a user to the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Watch(cmd.Context(), app.WatchOptions{
			UserID:   watchUser,
			CheckNow: watchCheckNow,
		})
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchUser, "user", "", "User id to watch notifications for")
	watchCmd.Flags().BoolVar(&watchCheckNow, "check-now", false, "Run one evaluation pass, print results, and exit")
	_ = watchCmd.MarkFlagRequired("user")
}
