package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/chain"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/combo"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/errors"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/logging"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/option"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/performance"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/portfolio"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/store"
	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

// farFuture bounds a run with no end date.
var farFuture = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// BacktestEngine replays stored quotes through a strategy.
type BacktestEngine struct {
	source  store.QuoteSource
	results store.ResultStore
	cfg     option.Config
	logger  zerolog.Logger
}

// NewBacktestEngine creates a new backtest engine. results may be nil, in
// which case runs are not persisted.
func NewBacktestEngine(source store.QuoteSource, results store.ResultStore, cfg option.Config, logger zerolog.Logger) *BacktestEngine {
	return &BacktestEngine{
		source:  source,
		results: results,
		cfg:     cfg,
		logger:  logger.With().Str("component", "backtest").Logger(),
	}
}

// run is the state of one backtest in progress. It implements Broker.
type run struct {
	ctx        context.Context
	engine     *BacktestEngine
	config     RunConfig
	portfolio  *portfolio.Portfolio
	logger     zerolog.Logger
	now        time.Time
	until      time.Time
	noTradeDay time.Time
	reasons    map[int64]ExitReason
	trades     []models.Trade
	clamped    int
}

// Run executes a backtest with the given configuration.
func (be *BacktestEngine) Run(ctx context.Context, config RunConfig, strategy Strategy) (*Result, error) {
	if err := be.validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	to := config.To
	if to.IsZero() {
		to = farFuture
	}
	times, err := be.source.QuoteTimes(ctx, config.Symbol, config.From, to)
	if err != nil {
		return nil, fmt.Errorf("fetching quote times: %w", err)
	}
	if len(times) == 0 {
		return nil, errors.NewDataError("quotes", config.Symbol, "no quotes in range", errors.ErrDataNotFound)
	}

	runID := uuid.New().String()
	logger := logging.WithRunID(be.logger, runID)
	logger = logging.WithSymbol(logger, config.Symbol)

	r := &run{
		ctx:       ctx,
		engine:    be,
		config:    config,
		portfolio: portfolio.New(config.InitialCash, logger),
		logger:    logger,
		until:     config.To,
		reasons:   make(map[int64]ExitReason),
	}
	sub := r.portfolio.PositionClosed().Connect(r.onClosed)
	defer r.portfolio.PositionClosed().Disconnect(sub)

	logger.Info().
		Str("strategy", strategy.Name()).
		Int("steps", len(times)).
		Time("from", times[0]).
		Time("to", times[len(times)-1]).
		Msg("Backtest started")

	for _, t := range times {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.step(t, strategy); err != nil {
			return nil, fmt.Errorf("step %s: %w", t.Format(time.RFC3339), err)
		}
	}

	// Close any open positions at the end
	for _, c := range r.portfolio.OpenPositions() {
		if err := r.Close(c.ID(), ExitReasonEndOfRun); err != nil {
			return nil, fmt.Errorf("closing position %d at end of run: %w", c.ID(), err)
		}
	}

	result := &Result{
		RunID:       runID,
		Strategy:    strategy.Name(),
		Symbol:      config.Symbol,
		Start:       times[0],
		End:         times[len(times)-1],
		Steps:       len(times),
		InitialCash: utils.Decimal2(config.InitialCash),
		FinalValue:  r.portfolio.Value(),
		Trades:      r.trades,
	}
	for _, s := range r.portfolio.Samples() {
		result.EquityCurve = append(result.EquityCurve, EquityPoint{Timestamp: s.Time, Equity: s.Value.InexactFloat64()})
	}
	result.ClampedTrades = r.clamped
	calculateMetrics(result)

	mem := performance.MemoryStats()
	logger.Info().
		Int("trades", result.TotalTrades).
		Str("final_value", utils.FormatUSD(result.FinalValue)).
		Float64("total_return", result.TotalReturn).
		Float64("max_drawdown", result.MaxDrawdown).
		Str("heap", performance.FormatBytes(mem.HeapAlloc)).
		Msg("Backtest finished")

	if be.results != nil {
		if err := be.results.SaveRun(ctx, result.Summary(time.Now().UTC()), result.Trades); err != nil {
			return result, fmt.Errorf("saving run: %w", err)
		}
	}
	return result, nil
}

// validateConfig validates the backtest configuration.
func (be *BacktestEngine) validateConfig(config RunConfig) error {
	if config.Symbol == "" {
		return errors.NewValidationError("symbol", config.Symbol, "symbol is required")
	}
	if !config.From.IsZero() && !config.To.IsZero() && config.To.Before(config.From) {
		return errors.NewValidationError("end", config.To, "end date must be after start date")
	}
	if !config.InitialCash.IsPositive() {
		return errors.NewValidationError("initial_cash", config.InitialCash, "initial cash must be positive")
	}
	if config.Quantity < 1 {
		return errors.NewValidationError("quantity", config.Quantity, "quantity must be at least 1")
	}
	return nil
}

// step advances the run to quote time t.
func (r *run) step(t time.Time, strategy Strategy) error {
	r.now = t

	records, err := r.engine.source.Snapshot(r.ctx, r.config.Symbol, t)
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}
	ch, err := chain.FromRecords(r.engine.cfg, r.config.Symbol, t, records)
	if err != nil {
		return fmt.Errorf("building chain: %w", err)
	}
	r.portfolio.SetChain(ch)

	if err := r.portfolio.Next(t); err != nil {
		return err
	}

	return strategy.OnStep(&Step{
		Time:      t,
		Chain:     ch,
		Portfolio: r.portfolio,
		Broker:    r,
		CanOpen:   !utils.DateOf(t).Equal(r.noTradeDay),
		Logger:    r.logger,
	})
}

// Open implements Broker.
func (r *run) Open(c combo.Combination, quantity int) error {
	err := r.portfolio.OpenPosition(c, quantity, models.UserDefined{"opened_by": models.String("backtest")})
	if err != nil {
		if errors.Is(err, errors.ErrInsufficientMargin) {
			r.noTradeDay = utils.DateOf(r.now)
			r.logger.Info().
				Str("position", c.String()).
				Err(err).
				Msg("Position refused, no more entries today")
		}
		return err
	}

	for _, o := range c.Options() {
		updates, err := r.engine.source.Updates(r.ctx, o.ID(), r.now, r.until)
		if err != nil {
			return fmt.Errorf("loading updates for %s: %w", o.ID(), err)
		}
		o.SetUpdates(updates)
	}
	return nil
}

// Close implements Broker.
func (r *run) Close(id int64, reason ExitReason) error {
	r.reasons[id] = reason
	if err := r.portfolio.ClosePosition(id, nil); err != nil {
		delete(r.reasons, id)
		return err
	}
	return nil
}

func (r *run) onClosed(rec portfolio.ClosedPosition) {
	c := rec.Position
	reason := r.reasons[c.ID()]
	delete(r.reasons, c.ID())
	if rec.Expired {
		reason = ExitReasonExpired
	}
	if rec.Clamped {
		r.clamped++
	}

	opened, _ := c.OpenTime()
	r.trades = append(r.trades, models.Trade{
		ID:           uuid.New().String(),
		PositionID:   c.ID(),
		Combination:  string(c.Type()),
		Symbol:       c.Symbol(),
		PositionType: c.PositionType(),
		Quantity:     c.Quantity(),
		OpenTime:     opened,
		CloseTime:    rec.ClosedAt,
		ProfitLoss:   rec.ProfitLoss,
		Fees:         c.Fees(),
		Reason:       string(reason),
	})
}
