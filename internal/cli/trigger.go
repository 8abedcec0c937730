package cli

import (
	"github.com/spf13/cobra"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger <source>",
	Short: "手动触发一次指定数据源的发布流程",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Trigger(cmd.Context(), args[0])
	},
}
