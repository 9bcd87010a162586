// Package config provides configuration management for the backtesting engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/errors"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/logging"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/option"
	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

// ConfigName is the base name of the configuration file.
const ConfigName = "config"

// Config holds all application configuration.
type Config struct {
	Engine   EngineConfig   `mapstructure:"engine"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// EngineConfig holds the switches every option in a run is built with.
type EngineConfig struct {
	FeesEnabled     bool   `mapstructure:"fees_enabled"`
	FeePerContract  string `mapstructure:"fee_per_contract"`
	SlippageOnEntry bool   `mapstructure:"slippage_on_entry"`
	SlippageOnExit  bool   `mapstructure:"slippage_on_exit"`
	Slippage        string `mapstructure:"slippage"`
	MarketClose     string `mapstructure:"market_close"` // HH:MM US/Eastern
}

// BacktestConfig describes one backtest run.
type BacktestConfig struct {
	Symbol      string `mapstructure:"symbol"`
	Start       string `mapstructure:"start"` // 2006-01-02
	End         string `mapstructure:"end"`
	InitialCash string `mapstructure:"initial_cash"`
	Strategy    string `mapstructure:"strategy"` // short_strangle, iron_condor
	Quantity    int    `mapstructure:"quantity"`
	DBPath      string `mapstructure:"db_path"`
}

// StrategyConfig holds the numeric parameters of the built-in strategies.
type StrategyConfig struct {
	DTE          int     `mapstructure:"dte"`
	PutDelta     float64 `mapstructure:"put_delta"`
	CallDelta    float64 `mapstructure:"call_delta"`
	WingWidth    float64 `mapstructure:"wing_width"`
	ProfitTarget float64 `mapstructure:"profit_target"` // fraction of the opening credit
	StopLoss     float64 `mapstructure:"stop_loss"`     // multiple of the opening credit
	ExitDTE      int     `mapstructure:"exit_dte"`
	MaxPositions int     `mapstructure:"max_positions"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    string `mapstructure:"file"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/optionsim"
	}
	return filepath.Join(home, ".config", "optionsim")
}

// Path returns the path of the configuration file in configDir.
func Path(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, ConfigName+".toml")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing file is
// replaced by the template and the defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}
	if err := loadConfigFile(configDir, ConfigName, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}
	if cfg.Backtest.DBPath == "" {
		cfg.Backtest.DBPath = filepath.Join(configDir, "quotes.db")
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	cfg := &Config{}
	v := viper.New()
	setDefaults(v)
	// Defaults are plain values and always decode.
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.fees_enabled", true)
	v.SetDefault("engine.fee_per_contract", "0.65")
	v.SetDefault("engine.slippage_on_entry", false)
	v.SetDefault("engine.slippage_on_exit", false)
	v.SetDefault("engine.slippage", "0")
	v.SetDefault("engine.market_close", utils.DefaultMarketClose.String())

	v.SetDefault("backtest.symbol", "SPX")
	v.SetDefault("backtest.initial_cash", "100000")
	v.SetDefault("backtest.strategy", "short_strangle")
	v.SetDefault("backtest.quantity", 1)
	v.SetDefault("backtest.db_path", "")

	v.SetDefault("strategy.dte", 45)
	v.SetDefault("strategy.put_delta", -0.16)
	v.SetDefault("strategy.call_delta", 0.16)
	v.SetDefault("strategy.wing_width", 50.0)
	v.SetDefault("strategy.profit_target", 0.5)
	v.SetDefault("strategy.stop_loss", 2.0)
	v.SetDefault("strategy.exit_dte", 21)
	v.SetDefault("strategy.max_positions", 1)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", "")
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		if err := createTemplateConfig(configDir, name); err != nil {
			return err
		}
	}

	return v.Unmarshal(target)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPTIONSIM_DB"); v != "" {
		cfg.Backtest.DBPath = v
	}
	if v := os.Getenv("OPTIONSIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := c.Engine.OptionConfig(); err != nil {
		return err
	}

	if strings.TrimSpace(c.Backtest.Symbol) == "" {
		return invalid("backtest.symbol must be set")
	}
	cash, err := c.Backtest.Cash()
	if err != nil {
		return err
	}
	if !cash.IsPositive() {
		return invalid("backtest.initial_cash must be positive")
	}
	if c.Backtest.Quantity < 1 {
		return invalid("backtest.quantity must be at least 1")
	}
	if _, _, err := c.Backtest.Range(); err != nil {
		return err
	}

	s := c.Strategy
	if s.DTE < 0 || s.ExitDTE < 0 {
		return invalid("strategy.dte and strategy.exit_dte must be non-negative")
	}
	if s.PutDelta < -1 || s.PutDelta > 0 {
		return invalid("strategy.put_delta must be between -1 and 0")
	}
	if s.CallDelta < 0 || s.CallDelta > 1 {
		return invalid("strategy.call_delta must be between 0 and 1")
	}
	if s.WingWidth < 0 {
		return invalid("strategy.wing_width must be non-negative")
	}
	if s.ProfitTarget < 0 || s.ProfitTarget > 1 {
		return invalid("strategy.profit_target must be between 0 and 1")
	}
	if s.StopLoss < 0 {
		return invalid("strategy.stop_loss must be non-negative")
	}
	if s.MaxPositions < 1 {
		return invalid("strategy.max_positions must be at least 1")
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return invalid(fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}

	return nil
}

// OptionConfig converts the engine section into the option package's configuration.
func (e EngineConfig) OptionConfig() (option.Config, error) {
	cfg := option.DefaultConfig()
	cfg.FeesEnabled = e.FeesEnabled
	cfg.SlippageOnEntry = e.SlippageOnEntry
	cfg.SlippageOnExit = e.SlippageOnExit

	if e.FeePerContract != "" {
		fee, err := decimal.NewFromString(e.FeePerContract)
		if err != nil || fee.IsNegative() {
			return cfg, invalid(fmt.Sprintf("engine.fee_per_contract %q must be a non-negative amount", e.FeePerContract))
		}
		cfg.FeePerContract = fee
	}
	if e.Slippage != "" {
		slip, err := decimal.NewFromString(e.Slippage)
		if err != nil {
			return cfg, invalid(fmt.Sprintf("engine.slippage %q is not a number", e.Slippage))
		}
		cfg.Slippage = slip
	}
	if e.MarketClose != "" {
		mc, err := utils.ParseMarketClose(e.MarketClose)
		if err != nil {
			return cfg, errors.Wrap(errors.ErrConfigInvalid, err.Error())
		}
		cfg.MarketClose = mc
	}

	return cfg, nil
}

// Cash returns the initial cash as a decimal.
func (b BacktestConfig) Cash() (decimal.Decimal, error) {
	cash, err := decimal.NewFromString(b.InitialCash)
	if err != nil {
		return decimal.Zero, invalid(fmt.Sprintf("backtest.initial_cash %q is not a number", b.InitialCash))
	}
	return cash, nil
}

// Range returns the run's first and last instant in US/Eastern. A blank start
// or end is returned as the zero time, meaning unbounded.
func (b BacktestConfig) Range() (time.Time, time.Time, error) {
	var from, to time.Time
	if b.Start != "" {
		t, err := time.ParseInLocation("2006-01-02", b.Start, utils.EasternLocation)
		if err != nil {
			return from, to, invalid(fmt.Sprintf("backtest.start %q must be YYYY-MM-DD", b.Start))
		}
		from = t
	}
	if b.End != "" {
		t, err := time.ParseInLocation("2006-01-02", b.End, utils.EasternLocation)
		if err != nil {
			return from, to, invalid(fmt.Sprintf("backtest.end %q must be YYYY-MM-DD", b.End))
		}
		to = t.Add(24*time.Hour - time.Second)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, invalid("backtest.end is before backtest.start")
	}
	return from, to, nil
}

// LogConfig converts the logging section into a logger configuration.
func (l LoggingConfig) LogConfig() logging.LogConfig {
	cfg := logging.DefaultLogConfig()
	cfg.Level = l.Level
	cfg.Console = l.Console
	cfg.File = l.File != ""
	if l.File != "" {
		cfg.FilePath = l.File
	}
	return cfg
}

func invalid(msg string) error {
	return errors.Wrap(errors.ErrConfigInvalid, msg)
}
