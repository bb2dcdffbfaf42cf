package arbitrage

import (
	"time"

	"crossarb/internal/model"
)

// Summary holds the totals reported at the end of a backtest.
type Summary struct {
	Start          time.Time
	End            time.Time
	Days           int
	FinalEquity    model.Domestic
	TotalProfit    model.Domestic
	TotalFees      model.Domestic
	TradesExecuted int
	// Return is TotalProfit relative to the initial capital.
	Return float64
}

// Summarize reads the totals off an equity curve.
func Summarize(records []model.EquityRecord, initialCapital float64) Summary {
	if len(records) == 0 {
		return Summary{FinalEquity: model.Domestic(initialCapital)}
	}

	last := records[len(records)-1]
	s := Summary{
		Start:       records[0].Date,
		End:         last.Date,
		Days:        len(records),
		FinalEquity: last.Equity,
		TotalProfit: last.Profit,
	}
	for _, r := range records {
		if r.TradeExecuted {
			s.TradesExecuted++
			s.TotalFees += r.TotalFees
		}
	}
	if initialCapital > 0 {
		s.Return = float64(s.TotalProfit) / initialCapital
	}
	return s
}
