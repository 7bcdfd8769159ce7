package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	flowmachine "github.com/avdept/flowmachine"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of flowmachine",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("flowmachine version %s\n", strings.TrimSpace(flowmachine.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
