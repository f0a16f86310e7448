package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mcbridge-core/internal/version"
)

// versionCmd 显示版本信息
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Show detailed version information including build time and git commit.

Example:
  mcbridge version`,
	Run: runVersion,
}

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Println()
	fmt.Printf("mcbridge %s\n", version.GetVersion())
	fmt.Println()
	fmt.Println("Bridge core connecting Minecraft servers to external chat platforms")
	fmt.Println("over WebSocket and REST.")
	fmt.Println()
}
