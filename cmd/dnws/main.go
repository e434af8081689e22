package main

import (
	"os"

	"github.com/dnws-project/dnws-go/pkg/logger"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Errorf("command execution failed: %v", err)
		os.Exit(1)
	}
}
