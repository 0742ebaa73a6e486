package cmd

import (
	"PadDeck/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动PadDeck服务器",
	Long:  `启动PadDeck音板系统的HTTP服务器，提供垫位触发、预热和进度推送API`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
