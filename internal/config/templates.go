package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Options Backtester Configuration

[engine]
# Charge a per-contract fee on every open and close
fees_enabled = true
# Fee per contract in USD
fee_per_contract = "0.65"
# Apply slippage to opening and closing fills
slippage_on_entry = false
slippage_on_exit = false
# Slippage per contract price in USD; negative is a worse fill than the quote
slippage = "0"
# Options expiring today are expired at or after this US/Eastern time
market_close = "16:15"

[backtest]
# Underlying to replay
symbol = "SPX"
# Inclusive date range (YYYY-MM-DD); blank replays every stored quote
start = ""
end = ""
# Starting cash in USD
initial_cash = "100000"
# Strategy: short_strangle, iron_condor
strategy = "short_strangle"
# Units per position
quantity = 1
# Quote database (override with OPTIONSIM_DB)
db_path = ""

[strategy]
# Target days to expiration for new positions
dte = 45
# Short strike deltas
put_delta = -0.16
call_delta = 0.16
# Distance of iron condor wings from the short strikes
wing_width = 50.0
# Close when this fraction of the opening credit is captured
profit_target = 0.5
# Close when the loss reaches this multiple of the opening credit
stop_loss = 2.0
# Close when days to expiration fall to this value
exit_dte = 21
# Maximum concurrent positions
max_positions = 1

[logging]
# debug, info, warn, error (override with OPTIONSIM_LOG_LEVEL)
level = "info"
console = true
# Rotating log file; blank disables
file = ""
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
