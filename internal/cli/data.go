package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/chain"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

// addDataCommands adds quote data commands.
func addDataCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newImportCmd(app))
	rootCmd.AddCommand(newSymbolsCmd(app))
	rootCmd.AddCommand(newChainCmd(app))
}

func newImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>...",
		Short: "Import option quotes from CSV files",
		Long: `Import historical option quotes into the local database.

Each file needs a header row with at least symbol, expiration, strike, type,
quote_datetime, spot, bid and ask. Re-importing a quote replaces it.`,
		Example: `  optionsim import spx_2024_01.csv
  optionsim import data/*.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			s, err := app.openStore()
			if err != nil {
				output.Error("%v", err)
				return err
			}

			counts := make(map[string]int, len(args))
			total := 0
			for i, path := range args {
				n, err := importFile(ctx, app, path)
				if err != nil {
					output.Error("Import of %s failed: %v", path, err)
					return err
				}
				counts[filepath.Base(path)] = n
				total += n
				if !output.IsJSON() && len(args) > 1 {
					output.Progress(i+1, len(args), "Importing")
				}
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"files": counts, "records": total})
			}

			output.Success("✓ Imported %d quotes from %d file(s)", total, len(args))
			symbols, err := s.Symbols(ctx)
			if err == nil {
				for _, sym := range symbols {
					output.Dim("  %s last quote %s", sym, FormatDateTime(s.GetLastImport(sym)))
				}
			}
			return nil
		},
	}
}

func importFile(ctx context.Context, app *App, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	start := time.Now()
	n, err := app.Store.ImportCSV(ctx, f)
	if err != nil {
		return 0, err
	}
	app.Logger.Info().
		Str("file", path).
		Int("records", n).
		Dur("elapsed", time.Since(start)).
		Msg("Imported quotes")
	return n, nil
}

func newSymbolsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "symbols",
		Short: "List symbols with stored quotes",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := context.Background()

			s, err := app.openStore()
			if err != nil {
				output.Error("%v", err)
				return err
			}
			symbols, err := s.Symbols(ctx)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(symbols)
			}
			if len(symbols) == 0 {
				output.Warning("No quotes imported yet. Run 'optionsim import <file.csv>'.")
				return nil
			}

			table := NewTable(output, "Symbol", "Last Import")
			for _, sym := range symbols {
				table.AddRow(sym, FormatDateTime(s.GetLastImport(sym)))
			}
			table.Render()
			return nil
		},
	}
}

func newChainCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain <symbol>",
		Short: "Show the stored option chain",
		Long: `Show the option chain at the latest stored quote time on or before --at,
for the expiration nearest --dte days out.`,
		Example: `  optionsim chain SPX --at "2024-01-02 10:00"
  optionsim chain SPX --at 2024-01-02 --dte 30`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := context.Background()
			symbol := strings.ToUpper(args[0])
			atFlag, _ := cmd.Flags().GetString("at")
			dte, _ := cmd.Flags().GetInt("dte")

			at, err := parseWhen(atFlag)
			if err != nil {
				return err
			}

			s, err := app.openStore()
			if err != nil {
				output.Error("%v", err)
				return err
			}

			times, err := s.QuoteTimes(ctx, symbol, time.Time{}, at)
			if err != nil {
				return err
			}
			if len(times) == 0 {
				output.Warning("No %s quotes on or before %s", symbol, FormatDateTime(at))
				return nil
			}
			quoteTime := times[len(times)-1]

			records, err := s.Snapshot(ctx, symbol, quoteTime)
			if err != nil {
				return err
			}
			optCfg, err := app.Config.Engine.OptionConfig()
			if err != nil {
				return err
			}
			ch, err := chain.FromRecords(optCfg, symbol, quoteTime, records)
			if err != nil {
				return err
			}
			expiration, err := ch.ExpirationNearestDTE(dte)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				rows := make([]models.OptionRecord, 0)
				for _, o := range ch.Options() {
					if o.Expiration().Equal(expiration) {
						rows = append(rows, models.OptionRecord{
							Contract: o.Contract(),
							Quote:    o.Quote(),
							Greeks:   o.Greeks(),
							Extended: o.Extended(),
						})
					}
				}
				return output.JSON(rows)
			}

			displayChain(output, ch, expiration)
			return nil
		},
	}

	cmd.Flags().String("at", "", "quote time, YYYY-MM-DD or YYYY-MM-DD HH:MM in US/Eastern (default: latest)")
	cmd.Flags().Int("dte", 45, "target days to expiration")

	return cmd
}

func displayChain(output *Output, ch *chain.Chain, expiration time.Time) {
	output.Bold("%s  spot %s  %s", ch.Symbol(), ch.SpotPrice().StringFixed(2), FormatDateTime(ch.QuoteTime()))
	output.Dim("Expiration %s (%d DTE)", FormatDate(expiration), utils.DaysBetween(ch.QuoteTime(), expiration))
	output.Println()

	calls := make(map[string]string)
	callDeltas := make(map[string]string)
	for _, o := range ch.OptionsFor(expiration, models.Call) {
		key := o.Strike().String()
		calls[key] = o.Price().StringFixed(2)
		callDeltas[key] = formatDelta(o.Greeks().Delta)
	}
	puts := make(map[string]string)
	putDeltas := make(map[string]string)
	for _, o := range ch.OptionsFor(expiration, models.Put) {
		key := o.Strike().String()
		puts[key] = o.Price().StringFixed(2)
		putDeltas[key] = formatDelta(o.Greeks().Delta)
	}

	table := NewTable(output, "Call Δ", "Call", "Strike", "Put", "Put Δ")
	for _, strike := range ch.Strikes(expiration) {
		key := strike.String()
		table.AddRow(orDash(callDeltas[key]), orDash(calls[key]), output.BoldText(key), orDash(puts[key]), orDash(putDeltas[key]))
	}
	table.Render()
}

func formatDelta(d *float64) string {
	if d == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *d)
}

// parseWhen parses a date or datetime flag in US/Eastern. A blank value is
// the zero time.
func parseWhen(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", raw, utils.EasternLocation); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, utils.EasternLocation)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use YYYY-MM-DD or YYYY-MM-DD HH:MM", raw)
	}
	return t.Add(24*time.Hour - time.Second), nil
}
