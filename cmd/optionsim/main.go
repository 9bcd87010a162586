package main

import (
	"fmt"
	"os"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/cli"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/config"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/logging"
)

func main() {
	configDir := os.Getenv("OPTIONSIM_CONFIG_DIR")
	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLoggerWithConfig(cfg.Logging.LogConfig())

	if err := cli.NewRootCmd(cfg, configDir, logger).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
