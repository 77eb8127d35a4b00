package cmd

import (
	"musicbox/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 musicbox 服务器",
	Long:  `启动 HTTP 服务器，提供上传、曲目列表 API 以及静态页面和音频文件`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Start(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
