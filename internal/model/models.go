package model

import "time"

// Pair identifies the two listings of the same company.
type Pair struct {
	DomesticTicker   string `mapstructure:"domestic_ticker"`
	ForeignTicker    string `mapstructure:"foreign_ticker"`
	DomesticCurrency string `mapstructure:"domestic_currency"`
	ForeignCurrency  string `mapstructure:"foreign_currency"`
}

func (p Pair) String() string {
	return p.DomesticTicker + "/" + p.ForeignTicker
}

// DailyObservation is one aligned row of the input table.
type DailyObservation struct {
	Date                 time.Time
	DomesticPrice        Domestic
	ForeignPrice         Foreign
	FXRate               FXRate
	ImpliedDomesticPrice Domestic
}

// NewDailyObservation builds an observation and derives the FX-implied
// domestic price. The implied price is zero when the rate is not positive.
func NewDailyObservation(date time.Time, domestic, foreign, fx float64) DailyObservation {
	rate := FXRate(fx)
	obs := DailyObservation{
		Date:          date,
		DomesticPrice: Domestic(domestic),
		ForeignPrice:  Foreign(foreign),
		FXRate:        rate,
	}
	if rate.Tradeable() {
		obs.ImpliedDomesticPrice = rate.Implied(obs.ForeignPrice)
	}
	return obs
}

// Reason describes why a date did or did not trade.
type Reason string

const (
	ReasonExecuted       Reason = "executed"
	ReasonFXNotPositive  Reason = "fx_not_positive"
	ReasonDegeneratePx   Reason = "degenerate_price"
	ReasonBelowMinSpread Reason = "below_min_spread"
	ReasonUnaffordable   Reason = "unaffordable"
	ReasonUnprofitable   Reason = "unprofitable"
)

// EquityRecord is the engine output for a single date.
type EquityRecord struct {
	Date          time.Time `db:"date"`
	Equity        Domestic  `db:"equity"`
	TradeExecuted bool      `db:"trade_executed"`
	Profit        Domestic  `db:"profit"`

	// Fill details, zero unless TradeExecuted.
	Shares    int64    `db:"shares"`
	GrossEdge Domestic `db:"gross_edge"`
	TotalFees Domestic `db:"total_fees"`

	Reason Reason `db:"reason"`
}

// BacktestRun is the header persisted alongside an equity curve.
type BacktestRun struct {
	ID                int64     `db:"id"`
	CreatedAt         time.Time `db:"created_at"`
	Pair              Pair
	InitialCapital    float64 `db:"initial_capital"`
	FixedDomesticFee  float64 `db:"fixed_domestic_fee"`
	ForeignFeeRate    float64 `db:"foreign_fee_rate"`
	MinRelativeSpread float64 `db:"min_relative_spread"`
	FinalEquity       float64 `db:"final_equity"`
	TotalProfit       float64 `db:"total_profit"`
	TradesExecuted    int     `db:"trades_executed"`
}
