package main

import (
	"os"

	"github.com/pysugar/roleplay-nexus/internal/logging"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logging.Logger().Error("command failed", "error", err)
		os.Exit(1)
	}
}
