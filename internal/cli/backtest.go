package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/config"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/logging"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/store"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/trading"
)

// addBacktestCommands adds the run and results commands.
func addBacktestCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newRunsCmd(app))
}

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Backtest a strategy over stored quotes",
		Long: `Replay stored quotes through a strategy and report the result.

Flags override the [backtest] section of the configuration. Available
strategies: ` + strings.Join(trading.StrategyNames(), ", ") + `.`,
		Example: `  optionsim run
  optionsim run --strategy iron_condor --from 2024-01-01 --to 2024-06-30
  optionsim run --symbol SPX --cash 50000 --no-save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			bt := app.Config.Backtest
			if v, _ := cmd.Flags().GetString("strategy"); v != "" {
				bt.Strategy = v
			}
			if v, _ := cmd.Flags().GetString("symbol"); v != "" {
				bt.Symbol = strings.ToUpper(v)
			}
			if v, _ := cmd.Flags().GetString("from"); v != "" {
				bt.Start = v
			}
			if v, _ := cmd.Flags().GetString("to"); v != "" {
				bt.End = v
			}
			if v, _ := cmd.Flags().GetString("cash"); v != "" {
				bt.InitialCash = v
			}
			if v, _ := cmd.Flags().GetInt("quantity"); v > 0 {
				bt.Quantity = v
			}
			noSave, _ := cmd.Flags().GetBool("no-save")
			chart, _ := cmd.Flags().GetBool("chart")

			runCfg, err := runConfigFrom(bt)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			strategy, err := trading.NewStrategy(bt.Strategy, strategyParams(app.Config.Strategy, runCfg.Quantity))
			if err != nil {
				output.Error("%v", err)
				return err
			}
			optCfg, err := app.Config.Engine.OptionConfig()
			if err != nil {
				output.Error("%v", err)
				return err
			}

			s, err := app.openStore()
			if err != nil {
				output.Error("%v", err)
				return err
			}
			var results store.ResultStore = s
			if noSave {
				results = nil
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			logger := logging.WithOperation(app.Logger, "backtest")
			engine := trading.NewBacktestEngine(s, results, optCfg, logger)

			start := time.Now()
			result, err := engine.Run(ctx, runCfg, strategy)
			if err != nil {
				output.Error("Backtest failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}

			displayResult(output, result)
			if len(result.Trades) > 0 {
				output.Println()
				displayTrades(output, result.Trades)
			}
			if chart {
				output.Println()
				output.Println(trading.EquityCurveASCII(result, 60, 12))
			}
			output.Println()
			output.Dim("Completed %d steps in %s", result.Steps, FormatDuration(time.Since(start)))
			if !noSave {
				output.Dim("Saved as run %s", result.RunID)
			}
			return nil
		},
	}

	cmd.Flags().StringP("strategy", "s", "", "strategy name (default from config)")
	cmd.Flags().String("symbol", "", "underlying symbol")
	cmd.Flags().String("from", "", "first date, YYYY-MM-DD")
	cmd.Flags().String("to", "", "last date, YYYY-MM-DD")
	cmd.Flags().String("cash", "", "initial cash")
	cmd.Flags().IntP("quantity", "q", 0, "units per position")
	cmd.Flags().Bool("no-save", false, "do not store the run")
	cmd.Flags().Bool("chart", false, "draw the equity curve")

	return cmd
}

// runConfigFrom resolves the backtest section into a run configuration.
func runConfigFrom(bt config.BacktestConfig) (trading.RunConfig, error) {
	cash, err := bt.Cash()
	if err != nil {
		return trading.RunConfig{}, err
	}
	from, to, err := bt.Range()
	if err != nil {
		return trading.RunConfig{}, err
	}
	return trading.RunConfig{
		Symbol:      strings.ToUpper(bt.Symbol),
		From:        from,
		To:          to,
		InitialCash: cash,
		Quantity:    bt.Quantity,
	}, nil
}

func strategyParams(sc config.StrategyConfig, quantity int) trading.StrategyParams {
	return trading.StrategyParams{
		DTE:          sc.DTE,
		PutDelta:     sc.PutDelta,
		CallDelta:    sc.CallDelta,
		WingWidth:    sc.WingWidth,
		ProfitTarget: sc.ProfitTarget,
		StopLoss:     sc.StopLoss,
		ExitDTE:      sc.ExitDTE,
		MaxPositions: sc.MaxPositions,
		Quantity:     quantity,
	}
}

func displayResult(output *Output, r *trading.Result) {
	pnl := r.FinalValue.Sub(r.InitialCash)
	output.Box(fmt.Sprintf("%s on %s", r.Strategy, r.Symbol), []string{
		fmt.Sprintf("Period:        %s to %s", FormatDate(r.Start), FormatDate(r.End)),
		fmt.Sprintf("Initial Cash:  %s", FormatMoney(r.InitialCash)),
		fmt.Sprintf("Final Value:   %s", FormatMoney(r.FinalValue)),
		fmt.Sprintf("P&L:           %s (%s)", output.FormatPnL(pnl), output.FormatPercent(r.TotalReturn)),
		fmt.Sprintf("Max Drawdown:  %.2f%%", r.MaxDrawdown),
		fmt.Sprintf("Sharpe Ratio:  %s", FormatRatio(r.SharpeRatio)),
		fmt.Sprintf("Trades:        %d (%d won, %d lost)", r.TotalTrades, r.WinningTrades, r.LosingTrades),
		fmt.Sprintf("Win Rate:      %.1f%%", r.WinRate),
		fmt.Sprintf("Avg Win/Loss:  %s / %s", FormatMoney(r.AvgWin), FormatMoney(r.AvgLoss)),
		fmt.Sprintf("Profit Factor: %s", FormatRatio(r.ProfitFactor)),
	})
	if r.ClampedTrades > 0 {
		output.Warning("%d trade(s) had their P&L clamped to the position's max profit or loss", r.ClampedTrades)
	}
}

func displayTrades(output *Output, trades []models.Trade) {
	table := NewTable(output, "#", "Position", "Qty", "Opened", "Closed", "Reason", "P&L", "Fees")
	for _, t := range trades {
		table.AddRow(
			fmt.Sprintf("%d", t.PositionID),
			t.Combination,
			fmt.Sprintf("%d", t.Quantity),
			FormatDate(t.OpenTime),
			FormatDate(t.CloseTime),
			orDash(t.Reason),
			output.FormatPnL(t.ProfitLoss),
			FormatMoney(t.Fees),
		)
	}
	table.Render()
}

func newRunsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Stored backtest runs",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol, _ := cmd.Flags().GetString("symbol")
			strategy, _ := cmd.Flags().GetString("strategy")
			limit, _ := cmd.Flags().GetInt("limit")

			s, err := app.openStore()
			if err != nil {
				output.Error("%v", err)
				return err
			}
			runs, err := s.GetRuns(context.Background(), store.RunFilter{
				Symbol:   strings.ToUpper(symbol),
				Strategy: strategy,
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(runs)
			}
			if len(runs) == 0 {
				output.Warning("No stored runs")
				return nil
			}

			table := NewTable(output, "Run", "Strategy", "Symbol", "Period", "Return", "Max DD", "Trades", "Win Rate")
			for _, r := range runs {
				table.AddRow(
					shortID(r.RunID),
					r.Strategy,
					r.Symbol,
					FormatDate(r.StartDate)+" - "+FormatDate(r.EndDate),
					output.FormatPercent(r.TotalReturn),
					fmt.Sprintf("%.2f%%", r.MaxDrawdown),
					fmt.Sprintf("%d", r.TotalTrades),
					fmt.Sprintf("%.1f%%", r.WinRate),
				)
			}
			table.Render()
			return nil
		},
	}
	list.Flags().String("symbol", "", "filter by symbol")
	list.Flags().String("strategy", "", "filter by strategy")
	list.Flags().IntP("limit", "n", 20, "maximum runs to show")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a stored run and its trades",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := context.Background()

			s, err := app.openStore()
			if err != nil {
				output.Error("%v", err)
				return err
			}
			run, err := findRun(ctx, s, args[0])
			if err != nil {
				output.Error("%v", err)
				return err
			}
			trades, err := s.GetTrades(ctx, run.RunID)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"run": run, "trades": trades})
			}

			output.Box(fmt.Sprintf("%s on %s", run.Strategy, run.Symbol), []string{
				fmt.Sprintf("Run:           %s", run.RunID),
				fmt.Sprintf("Created:       %s", FormatDateTime(run.CreatedAt)),
				fmt.Sprintf("Period:        %s to %s", FormatDate(run.StartDate), FormatDate(run.EndDate)),
				fmt.Sprintf("Initial Cash:  %s", FormatMoney(run.InitialCash)),
				fmt.Sprintf("Final Value:   %s", FormatMoney(run.FinalValue)),
				fmt.Sprintf("Return:        %s", output.FormatPercent(run.TotalReturn)),
				fmt.Sprintf("Max Drawdown:  %.2f%%", run.MaxDrawdown),
				fmt.Sprintf("Sharpe Ratio:  %s", FormatRatio(run.SharpeRatio)),
				fmt.Sprintf("Win Rate:      %.1f%% of %d", run.WinRate, run.TotalTrades),
			})
			if len(trades) > 0 {
				output.Println()
				displayTrades(output, trades)
			}
			return nil
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

// findRun resolves a full run ID or a unique prefix of one.
func findRun(ctx context.Context, s store.ResultStore, id string) (*models.RunSummary, error) {
	runs, err := s.GetRuns(ctx, store.RunFilter{})
	if err != nil {
		return nil, err
	}
	var match *models.RunSummary
	for i := range runs {
		if runs[i].RunID == id {
			return &runs[i], nil
		}
		if strings.HasPrefix(runs[i].RunID, id) {
			if match != nil {
				return nil, fmt.Errorf("run id %q is ambiguous", id)
			}
			match = &runs[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("run %q not found", id)
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
