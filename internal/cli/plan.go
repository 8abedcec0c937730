package cli

import (
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the daily posting schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Plan()
	},
}
