package option

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/errors"
	"github.com/options-testing-org/options-backtesting-framework-sub000/internal/models"
	"github.com/options-testing-org/options-backtesting-framework-sub000/pkg/utils"
)

// Open opens a trade of quantity contracts at the current quoted price.
// A positive quantity is a long position and a negative one is short.
func (o *Option) Open(quantity int, bag models.UserDefined) (TradeOpenInfo, error) {
	if o.openInfo != nil {
		return TradeOpenInfo{}, errors.NewOptionError(o.contract.OptionID, "open", "", errors.ErrTradeAlreadyOpen)
	}
	if quantity == 0 {
		return TradeOpenInfo{}, errors.NewOptionError(o.contract.OptionID, "open", "quantity must be non-zero", errors.ErrInvalidQuantity)
	}
	if o.status.Has(Expired) {
		return TradeOpenInfo{}, errors.NewOptionError(o.contract.OptionID, "open", "", errors.ErrOptionExpired)
	}

	price := o.quote.Price
	if o.cfg.SlippageOnEntry {
		if quantity > 0 {
			price = price.Sub(o.cfg.Slippage)
		} else {
			price = price.Add(o.cfg.Slippage)
		}
		price = floorZero(price)
	}

	fees := o.feeFor(quantity)
	info := TradeOpenInfo{
		Date:      o.quote.Time,
		Quantity:  quantity,
		Price:     price,
		Premium:   utils.Premium(price, quantity),
		Fees:      fees,
		SpotPrice: o.quote.SpotPrice,
	}

	o.openInfo = &info
	o.quantity = quantity
	o.positionType = models.PositionTypeOf(quantity)
	o.status = o.status.With(TradeIsOpen)
	o.userDefined = o.userDefined.Merge(bag)

	o.chargeFees(fees)
	o.opened.Emit(OpenedEvent{Option: o, Info: info})
	return info, nil
}

// Close closes quantity contracts of the open trade; nil closes everything
// remaining. quantity counts contracts, so it is always positive regardless of
// the position direction.
func (o *Option) Close(quantity *int, bag models.UserDefined) (TradeCloseInfo, error) {
	if o.openInfo == nil || !o.status.Has(TradeIsOpen) {
		return TradeCloseInfo{}, errors.NewOptionError(o.contract.OptionID, "close", "", errors.ErrNoTradeOpen)
	}

	remaining := utils.AbsInt(o.quantity)
	n := remaining
	if quantity != nil {
		n = *quantity
	}
	if n <= 0 {
		return TradeCloseInfo{}, errors.NewOptionError(o.contract.OptionID, "close",
			fmt.Sprintf("close quantity %d must be positive", n), errors.ErrInvalidQuantity)
	}
	if n > remaining {
		return TradeCloseInfo{}, errors.NewOptionError(o.contract.OptionID, "close",
			fmt.Sprintf("close quantity %d exceeds open quantity %d", n, remaining), errors.ErrInvalidQuantity)
	}

	price, err := o.ClosingPrice()
	if err != nil {
		return TradeCloseInfo{}, err
	}
	if o.cfg.SlippageOnExit && !o.status.Has(Expired) {
		if o.positionType == models.Long {
			price = price.Add(o.cfg.Slippage)
		} else {
			price = price.Sub(o.cfg.Slippage)
		}
		price = floorZero(price)
	}

	signed := -utils.Sign(o.quantity) * n
	pnl := utils.Decimal2(o.openInfo.Price.Sub(price).Mul(utils.Multiplier()).Mul(decimal.NewFromInt(int64(signed))))
	fees := o.feeFor(n)
	info := TradeCloseInfo{
		Date:              o.quote.Time,
		Quantity:          signed,
		Price:             price,
		Premium:           utils.Premium(price, signed),
		Fees:              fees,
		ProfitLoss:        pnl,
		ProfitLossPercent: percentOf(pnl, o.openInfo.Price, signed),
		SpotPrice:         o.quote.SpotPrice,
	}

	o.closeInfos = append(o.closeInfos, info)
	o.quantity += signed
	if o.quantity == 0 {
		o.status = o.status.Without(TradeIsOpen | TradePartiallyClosed).With(TradeIsClosed)
	} else {
		o.status = o.status.With(TradePartiallyClosed)
	}
	o.aggregateCloses()
	o.userDefined = o.userDefined.Merge(bag)

	o.chargeFees(fees)
	o.closed.Emit(ClosedEvent{Option: o, Info: info})
	return info, nil
}

// ClosingPrice returns the per-share price a close would fill at now.
//
// An expired option settles at intrinsic value whatever its last quote. A
// zero bid means nobody is buying: a long is worthless and a short must pay
// the ask. Otherwise the quoted price is used as supplied.
func (o *Option) ClosingPrice() (decimal.Decimal, error) {
	if o.openInfo == nil {
		return decimal.Zero, errors.NewOptionError(o.contract.OptionID, "closing price", "", errors.ErrNoTrade)
	}
	if o.status.Has(Expired) {
		return o.IntrinsicValue(), nil
	}
	if o.quote.Bid.IsZero() {
		if o.positionType == models.Long {
			return decimal.Zero, nil
		}
		return o.quote.Ask, nil
	}
	return o.quote.Price, nil
}

// CurrentValue is the signed market value of the contracts still open.
func (o *Option) CurrentValue() decimal.Decimal {
	return utils.Premium(o.quote.Price, o.quantity)
}

// TradeValue is the opening premium, or zero before the trade opens.
func (o *Option) TradeValue() decimal.Decimal {
	if o.openInfo == nil {
		return decimal.Zero
	}
	return o.openInfo.Premium
}

// ClosedValue is the summed premium of all close transactions.
func (o *Option) ClosedValue() decimal.Decimal {
	if o.aggregate == nil {
		return decimal.Zero
	}
	return o.aggregate.Premium
}

// UnrealizedProfitLoss is (price − open price) × 100 × open quantity.
func (o *Option) UnrealizedProfitLoss() (decimal.Decimal, error) {
	if o.openInfo == nil {
		return decimal.Zero, errors.NewOptionError(o.contract.OptionID, "unrealized profit/loss", "", errors.ErrNoTrade)
	}
	return utils.Decimal2(o.quote.Price.Sub(o.openInfo.Price).Mul(utils.Multiplier()).Mul(decimal.NewFromInt(int64(o.quantity)))), nil
}

// RealizedProfitLoss sums the profit/loss of every close transaction.
func (o *Option) RealizedProfitLoss() decimal.Decimal {
	total := decimal.Zero
	for _, c := range o.closeInfos {
		total = total.Add(c.ProfitLoss)
	}
	return total
}

// ProfitLoss is unrealized plus realized profit/loss.
func (o *Option) ProfitLoss() (decimal.Decimal, error) {
	unrealized, err := o.UnrealizedProfitLoss()
	if err != nil {
		return decimal.Zero, err
	}
	return unrealized.Add(o.RealizedProfitLoss()), nil
}

// ProfitLossPercent is ProfitLoss relative to the opening premium. It is zero
// once the trade is fully closed.
func (o *Option) ProfitLossPercent() (decimal.Decimal, error) {
	pnl, err := o.ProfitLoss()
	if err != nil {
		return decimal.Zero, err
	}
	if o.status.Has(TradeIsClosed) {
		return decimal.Zero, nil
	}
	basis := o.openInfo.Premium.Abs()
	if basis.IsZero() {
		return decimal.Zero, nil
	}
	return utils.Decimal4(pnl.Div(basis)), nil
}

// UnrealizedProfitLossPercent is UnrealizedProfitLoss relative to the opening
// cost of the contracts still open. It is zero once the trade is fully closed.
func (o *Option) UnrealizedProfitLossPercent() (decimal.Decimal, error) {
	pnl, err := o.UnrealizedProfitLoss()
	if err != nil {
		return decimal.Zero, err
	}
	if o.status.Has(TradeIsClosed) {
		return decimal.Zero, nil
	}
	return percentOf(pnl, o.openInfo.Price, o.quantity), nil
}

func (o *Option) feeFor(quantity int) decimal.Decimal {
	if !o.cfg.FeesEnabled {
		return decimal.Zero
	}
	return utils.Decimal2(o.fee.Mul(decimal.NewFromInt(int64(utils.AbsInt(quantity)))))
}

func (o *Option) chargeFees(amount decimal.Decimal) {
	if amount.IsZero() {
		return
	}
	o.totalFees = o.totalFees.Add(amount)
	o.fees.Emit(FeesEvent{Option: o, Amount: amount})
}

// aggregateCloses rebuilds the weighted close record from every transaction.
func (o *Option) aggregateCloses() {
	agg := TradeCloseInfo{Premium: decimal.Zero, Fees: decimal.Zero}
	weighted := decimal.Zero
	var contracts int64
	for _, c := range o.closeInfos {
		abs := int64(utils.AbsInt(c.Quantity))
		weighted = weighted.Add(c.Price.Mul(decimal.NewFromInt(abs)))
		contracts += abs
		agg.Quantity += c.Quantity
		agg.Premium = agg.Premium.Add(c.Premium)
		agg.Fees = agg.Fees.Add(c.Fees)
		if !c.Date.Before(agg.Date) {
			agg.Date = c.Date
			agg.SpotPrice = c.SpotPrice
		}
	}
	if contracts == 0 {
		o.aggregate = nil
		return
	}

	avg := weighted.Div(decimal.NewFromInt(contracts))
	agg.Price = utils.Decimal4(avg)
	agg.ProfitLoss = utils.Decimal2(o.openInfo.Price.Sub(avg).Mul(utils.Multiplier()).Mul(decimal.NewFromInt(int64(agg.Quantity))))
	agg.ProfitLossPercent = percentOf(agg.ProfitLoss, o.openInfo.Price, agg.Quantity)
	o.aggregate = &agg
}

// percentOf returns pnl relative to |price × 100 × quantity| at four places.
func percentOf(pnl, price decimal.Decimal, quantity int) decimal.Decimal {
	basis := price.Mul(utils.Multiplier()).Mul(decimal.NewFromInt(int64(quantity))).Abs()
	if basis.IsZero() {
		return decimal.Zero
	}
	return utils.Decimal4(pnl.Div(basis))
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
