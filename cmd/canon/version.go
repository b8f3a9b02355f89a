package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ternarybob/canon/internal/common"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if !quietFlag {
			common.PrintBanner()
		}
		fmt.Printf("canon version %s\n", common.GetFullVersion())
	},
}
