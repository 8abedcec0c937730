package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	previewPayload string
)

var previewCmd = &cobra.Command{
	Use:   "preview <source>",
	Short: "用本地 JSON 数据预览一个数据源的发布文案",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if previewPayload == "" {
			return errors.New("--payload 必须提供")
		}

		return getApp().Preview(args[0], previewPayload)
	},
}

func init() {
	previewCmd.Flags().StringVar(&previewPayload, "payload", "", "数据源 data 字段的 JSON 文件路径")
}
