package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show SOCLens version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("SOCLens %s\n", Version)
	},
}
