package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"crossarb/internal/config"
	"crossarb/internal/model"
)

var (
	ErrInvalidConfig         = errors.New("invalid simulation config")
	ErrEmptyInput            = errors.New("no observations")
	ErrUnorderedObservations = errors.New("observations not strictly ascending by date")
	ErrMalformedObservation  = errors.New("malformed observation")
)

// EngineState is the accumulator threaded through the run.
type EngineState struct {
	Capital model.Domestic
}

// Engine replays an aligned daily series and decides, date by date, whether a
// cross-listing round trip is worth executing.
type Engine struct {
	logger *slog.Logger
	cfg    config.SimulationConfig
}

// NewEngine creates a new Engine. The config is rejected if the initial
// capital is not positive or any fee or threshold is negative.
func NewEngine(logger *slog.Logger, cfg config.SimulationConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{logger: logger, cfg: cfg}, nil
}

// NewState returns the state a run starts from.
func (e *Engine) NewState() *EngineState {
	return &EngineState{Capital: model.Domestic(e.cfg.InitialCapital)}
}

// Run folds the observations into an equity curve with one record per date,
// in input order. Input is checked up front, so a malformed table yields no
// records. If ctx is cancelled between dates the records computed so far are
// returned along with ctx.Err().
func (e *Engine) Run(ctx context.Context, observations []model.DailyObservation) ([]model.EquityRecord, error) {
	if err := checkObservations(observations); err != nil {
		return nil, err
	}

	state := e.NewState()
	records := make([]model.EquityRecord, 0, len(observations))
	trades := 0

	for _, obs := range observations {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		rec := e.Step(state, obs)
		if rec.TradeExecuted {
			trades++
		}
		records = append(records, rec)
	}

	last := records[len(records)-1]
	e.logger.Info("Backtest finished",
		"days", len(records),
		"trades", trades,
		"finalEquity", float64(last.Equity),
		"profit", float64(last.Profit),
	)
	return records, nil
}

// Step applies one date's decision to state and returns that date's record.
func (e *Engine) Step(state *EngineState, obs model.DailyObservation) model.EquityRecord {
	rec := model.EquityRecord{Date: obs.Date}
	rec.Reason = e.decide(state, obs, &rec)

	rec.Equity = state.Capital
	rec.Profit = state.Capital - model.Domestic(e.cfg.InitialCapital)
	return rec
}

// decide runs the gates in order and, when the round trip clears fees, books
// the net edge into capital.
func (e *Engine) decide(state *EngineState, obs model.DailyObservation, rec *model.EquityRecord) model.Reason {
	if !obs.FXRate.Tradeable() {
		return model.ReasonFXNotPositive
	}

	actual := obs.DomesticPrice
	implied := obs.ImpliedDomesticPrice
	spread := model.Domestic(math.Abs(float64(actual - implied)))
	lower := min(actual, implied)

	if lower <= 0 {
		return model.ReasonDegeneratePx
	}
	if float64(spread/lower) < e.cfg.MinRelativeSpread {
		return model.ReasonBelowMinSpread
	}

	// Size against the cheaper quote so either leg is affordable. The count
	// stays in float64 so tiny quotes cannot overflow the sizing math.
	shares := math.Floor(float64(state.Capital / lower))
	if shares <= 0 {
		return model.ReasonUnaffordable
	}

	foreignNotional := model.Foreign(shares * float64(obs.ForeignPrice))
	foreignFee := obs.FXRate.ToDomestic(foreignNotional * model.Foreign(e.cfg.ForeignFeeRate))
	totalFees := model.Domestic(e.cfg.FixedDomesticFee) + foreignFee

	grossEdge := spread * model.Domestic(shares)
	if grossEdge <= totalFees {
		return model.ReasonUnprofitable
	}

	state.Capital += grossEdge - totalFees

	rec.TradeExecuted = true
	rec.Shares = shareCount(shares)
	rec.GrossEdge = grossEdge
	rec.TotalFees = totalFees

	e.logger.Debug("Round trip executed",
		"date", obs.Date.Format("2006-01-02"),
		"domestic", float64(actual),
		"implied", float64(implied),
		"shares", shares,
		"grossEdge", float64(grossEdge),
		"fees", float64(totalFees),
		"capital", float64(state.Capital),
	)
	return model.ReasonExecuted
}

func checkObservations(observations []model.DailyObservation) error {
	if len(observations) == 0 {
		return ErrEmptyInput
	}
	for i, obs := range observations {
		if !finite(float64(obs.DomesticPrice)) || !finite(float64(obs.ForeignPrice)) ||
			!finite(float64(obs.FXRate)) || !finite(float64(obs.ImpliedDomesticPrice)) {
			return fmt.Errorf("%w: non-finite field on %s", ErrMalformedObservation, obs.Date.Format("2006-01-02"))
		}
		if i > 0 && !obs.Date.After(observations[i-1].Date) {
			return fmt.Errorf("%w: %s follows %s", ErrUnorderedObservations,
				obs.Date.Format("2006-01-02"), observations[i-1].Date.Format("2006-01-02"))
		}
	}
	return nil
}

// shareCount converts a floored share count for reporting, saturating at
// MaxInt64.
func shareCount(shares float64) int64 {
	if shares >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(shares)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
