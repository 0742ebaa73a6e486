package cmd

import (
	"fmt"
	"log"
	"os"

	"PadDeck/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "paddeck_server",
	Short: "PadDeck is a soundboard playback service.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting PadDeck server...")
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
