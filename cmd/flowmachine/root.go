package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flowmachine",
	Short: "Flowmachine is a session-aware flow execution engine",
	Long: `Flowmachine routes inbound chat messages through user-authored automation
flows, keeping one persisted session per conversation that suspends on user
input and resumes where it stopped.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "flowmachine.yaml", "Path to the configuration file")
}
