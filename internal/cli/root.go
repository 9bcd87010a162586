package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/config"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/logging"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-01-01"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Store     store.DataStore
	ConfigDir string
}

// openStore opens the quote database on first use.
func (a *App) openStore() (store.DataStore, error) {
	if a.Store != nil {
		return a.Store, nil
	}
	s, err := store.NewSQLiteStore(a.Config.Backtest.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", a.Config.Backtest.DBPath, err)
	}
	a.Logger.Debug().Str("path", a.Config.Backtest.DBPath).Msg("SQLite store initialized")
	a.Store = s
	return s, nil
}

// Close releases the store if it was opened.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	err := a.Store.Close()
	a.Store = nil
	return err
}

// NewRootCmd creates the root command for the CLI. configDir is the directory
// cfg was loaded from, empty for the default.
func NewRootCmd(cfg *config.Config, configDir string, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config:    cfg,
		Logger:    logger,
		ConfigDir: configDir,
	}
	return newRootCmd(app)
}

func newRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "optionsim",
		Short: "Options strategy backtester",
		Long: `optionsim replays historical option quotes through a position-accounting
engine and reports how a strategy would have performed.

Import quotes with 'optionsim import', then run a strategy with 'optionsim run'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dir, _ := cmd.Flags().GetString("config"); dir != "" && dir != app.ConfigDir {
				cfg, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = cfg
				app.ConfigDir = dir
				app.Logger = logging.NewLoggerWithConfig(cfg.Logging.LogConfig())
			}

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/optionsim)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addDataCommands(rootCmd, app)
	addBacktestCommands(rootCmd, app)

	return rootCmd
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("optionsim v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the engine, backtest and strategy configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			path := config.Path(app.ConfigDir)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": path})
			} else {
				output.Println(path)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Engine")
	output.Printf("  Fees Enabled:     %v\n", cfg.Engine.FeesEnabled)
	output.Printf("  Fee/Contract:     %s\n", cfg.Engine.FeePerContract)
	output.Printf("  Slippage:         %s (entry %v, exit %v)\n", cfg.Engine.Slippage, cfg.Engine.SlippageOnEntry, cfg.Engine.SlippageOnExit)
	output.Printf("  Market Close:     %s ET\n", cfg.Engine.MarketClose)
	output.Println()

	output.Bold("Backtest")
	output.Printf("  Symbol:           %s\n", cfg.Backtest.Symbol)
	output.Printf("  Range:            %s to %s\n", orDash(cfg.Backtest.Start), orDash(cfg.Backtest.End))
	output.Printf("  Initial Cash:     %s\n", cfg.Backtest.InitialCash)
	output.Printf("  Strategy:         %s\n", cfg.Backtest.Strategy)
	output.Printf("  Quantity:         %d\n", cfg.Backtest.Quantity)
	output.Printf("  Database:         %s\n", cfg.Backtest.DBPath)
	output.Println()

	output.Bold("Strategy")
	output.Printf("  Target DTE:       %d\n", cfg.Strategy.DTE)
	output.Printf("  Put/Call Delta:   %.2f / %.2f\n", cfg.Strategy.PutDelta, cfg.Strategy.CallDelta)
	output.Printf("  Wing Width:       %.0f\n", cfg.Strategy.WingWidth)
	output.Printf("  Profit Target:    %.0f%% of credit\n", cfg.Strategy.ProfitTarget*100)
	output.Printf("  Stop Loss:        %.1fx credit\n", cfg.Strategy.StopLoss)
	output.Printf("  Exit DTE:         %d\n", cfg.Strategy.ExitDTE)
	output.Printf("  Max Positions:    %d\n", cfg.Strategy.MaxPositions)
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:            %s\n", cfg.Logging.Level)
	output.Printf("  File:             %s\n", orDash(cfg.Logging.File))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
