package main

import (
	"os"

	"github.com/Tsahi-Elkayam/orbyte/cmd/orbyte"
	"github.com/Tsahi-Elkayam/orbyte/pkg/utils"
)

func main() {
	// Initialize logger
	logger := utils.NewLogger()

	// Create and execute root command
	rootCmd := orbyte.NewRootCommand(logger)

	if err := rootCmd.Execute(); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
