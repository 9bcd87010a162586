package trading

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/chain"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/combo"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/errors"
	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

// Strategy names accepted by NewStrategy.
const (
	StrategyShortStrangle = "short_strangle"
	StrategyIronCondor    = "iron_condor"
)

// StrategyParams holds the parameters shared by the premium-selling strategies.
type StrategyParams struct {
	DTE          int
	PutDelta     float64
	CallDelta    float64
	WingWidth    float64
	ProfitTarget float64 // fraction of the opening credit
	StopLoss     float64 // multiple of the opening credit
	ExitDTE      int
	MaxPositions int
	Quantity     int
}

// StrategyNames lists the built-in strategies.
func StrategyNames() []string {
	return []string{StrategyShortStrangle, StrategyIronCondor}
}

// NewStrategy returns the built-in strategy called name.
func NewStrategy(name string, params StrategyParams) (Strategy, error) {
	if params.Quantity < 1 {
		params.Quantity = 1
	}
	if params.MaxPositions < 1 {
		params.MaxPositions = 1
	}

	switch strings.ToLower(name) {
	case StrategyShortStrangle:
		return &premiumSeller{
			name:   StrategyShortStrangle,
			params: params,
			build: func(ch *chain.Chain, expiration time.Time) (combo.Combination, error) {
				return combo.GetStrangleByDelta(ch, expiration, params.PutDelta, params.CallDelta, -1)
			},
		}, nil
	case StrategyIronCondor:
		if params.WingWidth <= 0 {
			return nil, errors.NewValidationError("wing_width", params.WingWidth, "iron condor needs a positive wing width")
		}
		width := decimal.NewFromFloat(params.WingWidth)
		return &premiumSeller{
			name:   StrategyIronCondor,
			params: params,
			build: func(ch *chain.Chain, expiration time.Time) (combo.Combination, error) {
				return combo.GetIronCondorByDelta(ch, expiration, params.PutDelta, params.CallDelta, width, 1)
			},
		}, nil
	}
	return nil, errors.NewValidationError("strategy", name,
		fmt.Sprintf("unknown strategy (available: %s)", strings.Join(StrategyNames(), ", ")))
}

// premiumSeller opens one short-premium position a day, up to MaxPositions,
// at the expiration nearest the target DTE, and closes it at a profit
// target, a stop loss or an exit DTE.
type premiumSeller struct {
	name      string
	params    StrategyParams
	build     func(ch *chain.Chain, expiration time.Time) (combo.Combination, error)
	lastEntry time.Time
}

func (s *premiumSeller) Name() string { return s.name }

func (s *premiumSeller) OnStep(step *Step) error {
	for _, c := range step.Portfolio.OpenPositions() {
		reason, ok := s.exitReason(c)
		if !ok {
			continue
		}
		if err := step.Broker.Close(c.ID(), reason); err != nil {
			return err
		}
	}

	if !step.CanOpen || len(step.Portfolio.OpenPositions()) >= s.params.MaxPositions {
		return nil
	}
	if !s.lastEntry.IsZero() && utils.DateOf(s.lastEntry).Equal(utils.DateOf(step.Time)) {
		return nil
	}

	expiration, err := step.Chain.ExpirationNearestDTE(s.params.DTE)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil
		}
		return err
	}
	if utils.DaysBetween(step.Time, expiration) <= s.params.ExitDTE {
		return nil
	}

	c, err := s.build(step.Chain, expiration)
	if err != nil {
		if skippable(err) {
			step.Logger.Debug().Err(err).Time("expiration", expiration).Msg("No position for this step")
			return nil
		}
		return err
	}
	if err := step.Broker.Open(c, s.params.Quantity); err != nil {
		if errors.Is(err, errors.ErrInsufficientMargin) {
			return nil
		}
		return err
	}
	s.lastEntry = step.Time
	return nil
}

// exitReason applies the exit rules to an open position.
func (s *premiumSeller) exitReason(c combo.Combination) (ExitReason, bool) {
	if !c.IsOpen() {
		return "", false
	}

	credit := c.TradeValue().Neg()
	if credit.IsPositive() {
		if pnl, err := c.UnrealizedProfitLoss(); err == nil {
			if s.params.ProfitTarget > 0 && pnl.GreaterThanOrEqual(credit.Mul(decimal.NewFromFloat(s.params.ProfitTarget))) {
				return ExitReasonTarget, true
			}
			if s.params.StopLoss > 0 && pnl.LessThanOrEqual(credit.Mul(decimal.NewFromFloat(s.params.StopLoss)).Neg()) {
				return ExitReasonStopLoss, true
			}
		}
	}

	if c.DTE() <= s.params.ExitDTE {
		return ExitReasonTimeLimit, true
	}
	return "", false
}

// skippable reports whether a construction failure only means the chain has
// no suitable strikes at this step.
func skippable(err error) bool {
	return errors.Is(err, errors.ErrNotFound) ||
		errors.Is(err, errors.ErrAmbiguous) ||
		errors.Is(err, errors.ErrInvalidCombination)
}
