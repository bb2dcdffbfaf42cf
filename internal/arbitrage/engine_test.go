package arbitrage

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"testing"
	"time"

	"crossarb/internal/config"
	"crossarb/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var referenceCfg = config.SimulationConfig{
	InitialCapital:    10000,
	FixedDomesticFee:  30,
	ForeignFeeRate:    0.0003,
	MinRelativeSpread: 0.001,
}

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func newTestEngine(t *testing.T, cfg config.SimulationConfig) *Engine {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	engine, err := NewEngine(logger, cfg)
	require.NoError(t, err)
	return engine
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	for _, capital := range []float64{0, -100} {
		cfg := referenceCfg
		cfg.InitialCapital = capital
		_, err := NewEngine(nil, cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	}

	cfg := referenceCfg
	cfg.ForeignFeeRate = -0.1
	_, err := NewEngine(nil, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEngine_Run_ReferenceScenario(t *testing.T) {
	engine := newTestEngine(t, referenceCfg)
	obs := []model.DailyObservation{
		model.NewDailyObservation(day(0), 100, 74, 0.74),
		model.NewDailyObservation(day(1), 100, 76, 0.74),
	}

	records, err := engine.Run(context.Background(), obs)
	require.NoError(t, err)
	require.Len(t, records, 2)

	t.Run("no spread", func(t *testing.T) {
		assert.False(t, records[0].TradeExecuted)
		assert.Equal(t, model.ReasonBelowMinSpread, records[0].Reason)
		assert.Equal(t, model.Domestic(10000), records[0].Equity)
		assert.Equal(t, model.Domestic(0), records[0].Profit)
	})

	t.Run("profitable round trip", func(t *testing.T) {
		implied := 76 / 0.74
		spread := implied - 100
		fees := 30 + 7600*0.0003*(1/0.74)
		want := 10000 + (spread*100 - fees)

		rec := records[1]
		assert.True(t, rec.TradeExecuted)
		assert.Equal(t, model.ReasonExecuted, rec.Reason)
		assert.Equal(t, int64(100), rec.Shares)
		assert.InDelta(t, 270.27, float64(rec.GrossEdge), 0.01)
		assert.InDelta(t, 33.08, float64(rec.TotalFees), 0.01)
		assert.InDelta(t, want, float64(rec.Equity), 1e-9)
		assert.InDelta(t, 10237.19, float64(rec.Equity), 0.01)
		assert.Equal(t, rec.Equity-10000, rec.Profit)
	})
}

func TestEngine_Run_WideThreshold(t *testing.T) {
	cfg := referenceCfg
	cfg.MinRelativeSpread = 0.05
	engine := newTestEngine(t, cfg)

	records, err := engine.Run(context.Background(), []model.DailyObservation{
		model.NewDailyObservation(day(0), 100, 74, 0.74),
		model.NewDailyObservation(day(1), 100, 76, 0.74),
	})
	require.NoError(t, err)

	assert.False(t, records[1].TradeExecuted)
	assert.Equal(t, model.ReasonBelowMinSpread, records[1].Reason)
	assert.Equal(t, model.Domestic(10000), records[1].Equity)
}

func TestEngine_Step_Gates(t *testing.T) {
	tests := []struct {
		name    string
		capital model.Domestic
		obs     model.DailyObservation
		want    model.Reason
	}{
		{
			name:    "zero fx rate",
			capital: 10000,
			obs:     model.NewDailyObservation(day(0), 100, 76, 0),
			want:    model.ReasonFXNotPositive,
		},
		{
			name:    "negative fx rate",
			capital: 10000,
			obs:     model.DailyObservation{Date: day(0), DomesticPrice: 100, ForeignPrice: 76, FXRate: -0.74, ImpliedDomesticPrice: -102.7},
			want:    model.ReasonFXNotPositive,
		},
		{
			name:    "zero domestic price",
			capital: 10000,
			obs:     model.NewDailyObservation(day(0), 0, 76, 0.74),
			want:    model.ReasonDegeneratePx,
		},
		{
			name:    "capital below one share",
			capital: 50,
			obs:     model.NewDailyObservation(day(0), 100, 150, 0.74),
			want:    model.ReasonUnaffordable,
		},
		{
			name:    "edge does not cover fees",
			capital: 1000,
			obs:     model.NewDailyObservation(day(0), 100, 76, 0.74),
			want:    model.ReasonUnprofitable,
		},
		{
			name:    "implied below domestic",
			capital: 10000,
			obs:     model.NewDailyObservation(day(0), 105, 74, 0.74),
			want:    model.ReasonExecuted,
		},
	}

	engine := newTestEngine(t, referenceCfg)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &EngineState{Capital: tt.capital}
			rec := engine.Step(state, tt.obs)

			assert.Equal(t, tt.want, rec.Reason)
			assert.Equal(t, tt.want == model.ReasonExecuted, rec.TradeExecuted)
			if !rec.TradeExecuted {
				assert.Equal(t, tt.capital, state.Capital)
				assert.Zero(t, rec.Shares)
				assert.Zero(t, rec.TotalFees)
			} else {
				assert.Greater(t, state.Capital, tt.capital)
			}
			assert.Equal(t, state.Capital, rec.Equity)
		})
	}
}

func TestEngine_Step_SizesAtLowerPrice(t *testing.T) {
	engine := newTestEngine(t, config.SimulationConfig{InitialCapital: 1000})

	// implied 100, domestic 110: lower is the implied price
	state := &EngineState{Capital: 1050}
	rec := engine.Step(state, model.NewDailyObservation(day(0), 110, 50, 0.5))

	require.True(t, rec.TradeExecuted)
	assert.Equal(t, int64(10), rec.Shares)
	assert.InDelta(t, 100.0, float64(rec.GrossEdge), 1e-9)
	assert.InDelta(t, 1150.0, float64(state.Capital), 1e-9)
}

func TestEngine_Run_Compounds(t *testing.T) {
	engine := newTestEngine(t, config.SimulationConfig{InitialCapital: 1000})
	obs := []model.DailyObservation{
		model.NewDailyObservation(day(0), 110, 50, 0.5),
		model.NewDailyObservation(day(1), 110, 50, 0.5),
	}

	records, err := engine.Run(context.Background(), obs)
	require.NoError(t, err)

	// day 0: 10 shares, +100; day 1: 11 shares, +110
	assert.Equal(t, int64(10), records[0].Shares)
	assert.Equal(t, int64(11), records[1].Shares)
	assert.InDelta(t, 1210.0, float64(records[1].Equity), 1e-9)
}

func TestEngine_Run_InputChecks(t *testing.T) {
	engine := newTestEngine(t, referenceCfg)
	ctx := context.Background()

	_, err := engine.Run(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = engine.Run(ctx, []model.DailyObservation{
		model.NewDailyObservation(day(1), 100, 74, 0.74),
		model.NewDailyObservation(day(1), 100, 76, 0.74),
	})
	assert.ErrorIs(t, err, ErrUnorderedObservations)

	_, err = engine.Run(ctx, []model.DailyObservation{
		model.NewDailyObservation(day(2), 100, 74, 0.74),
		model.NewDailyObservation(day(1), 100, 76, 0.74),
	})
	assert.ErrorIs(t, err, ErrUnorderedObservations)

	records, err := engine.Run(ctx, []model.DailyObservation{
		model.NewDailyObservation(day(0), math.NaN(), 74, 0.74),
	})
	assert.ErrorIs(t, err, ErrMalformedObservation)
	assert.Nil(t, records)
}

func TestEngine_Run_Cancelled(t *testing.T) {
	engine := newTestEngine(t, referenceCfg)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records, err := engine.Run(ctx, []model.DailyObservation{
		model.NewDailyObservation(day(0), 100, 74, 0.74),
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, records)
}

func randomSeries(r *rand.Rand, n int) []model.DailyObservation {
	obs := make([]model.DailyObservation, n)
	domestic := 100.0
	for i := range obs {
		domestic *= 1 + (r.Float64()-0.5)*0.04
		fx := 0.70 + r.Float64()*0.08
		foreign := domestic * fx * (1 + (r.Float64()-0.5)*0.03)
		if r.Intn(20) == 0 {
			fx = 0
		}
		obs[i] = model.NewDailyObservation(day(i), domestic, foreign, fx)
	}
	return obs
}

func TestEngine_Run_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		cfg := config.SimulationConfig{
			InitialCapital:    100 + r.Float64()*20000,
			FixedDomesticFee:  r.Float64() * 50,
			ForeignFeeRate:    r.Float64() * 0.002,
			MinRelativeSpread: r.Float64() * 0.01,
		}
		engine := newTestEngine(t, cfg)
		obs := randomSeries(r, 250)

		records, err := engine.Run(context.Background(), obs)
		require.NoError(t, err)
		require.Len(t, records, len(obs))

		prev := model.Domestic(cfg.InitialCapital)
		for i, rec := range records {
			assert.Equal(t, obs[i].Date, rec.Date)
			assert.Equal(t, rec.Equity-model.Domestic(cfg.InitialCapital), rec.Profit)
			assert.GreaterOrEqual(t, rec.Equity, prev)
			if !rec.TradeExecuted {
				assert.Equal(t, prev, rec.Equity)
			}
			if !obs[i].FXRate.Tradeable() {
				assert.False(t, rec.TradeExecuted)
			}
			lower := min(obs[i].DomesticPrice, obs[i].ImpliedDomesticPrice)
			spread := math.Abs(float64(obs[i].DomesticPrice - obs[i].ImpliedDomesticPrice))
			if obs[i].FXRate.Tradeable() && spread/float64(lower) < cfg.MinRelativeSpread {
				assert.False(t, rec.TradeExecuted)
			}
			prev = rec.Equity
		}
	}
}

func TestEngine_Run_CapitalTooSmall(t *testing.T) {
	engine := newTestEngine(t, config.SimulationConfig{InitialCapital: 50})
	r := rand.New(rand.NewSource(7))
	obs := randomSeries(r, 100)

	records, err := engine.Run(context.Background(), obs)
	require.NoError(t, err)
	for _, rec := range records {
		assert.False(t, rec.TradeExecuted)
		assert.Equal(t, model.Domestic(50), rec.Equity)
	}
}

func TestSummarize(t *testing.T) {
	engine := newTestEngine(t, referenceCfg)
	records, err := engine.Run(context.Background(), []model.DailyObservation{
		model.NewDailyObservation(day(0), 100, 74, 0.74),
		model.NewDailyObservation(day(1), 100, 76, 0.74),
		model.NewDailyObservation(day(2), 100, 74, 0),
	})
	require.NoError(t, err)

	s := Summarize(records, referenceCfg.InitialCapital)
	assert.Equal(t, day(0), s.Start)
	assert.Equal(t, day(2), s.End)
	assert.Equal(t, 3, s.Days)
	assert.Equal(t, 1, s.TradesExecuted)
	assert.Equal(t, records[2].Equity, s.FinalEquity)
	assert.Equal(t, records[2].Profit, s.TotalProfit)
	assert.InDelta(t, 33.08, float64(s.TotalFees), 0.01)
	assert.InDelta(t, float64(s.TotalProfit)/10000, s.Return, 1e-12)

	empty := Summarize(nil, 10000)
	assert.Equal(t, model.Domestic(10000), empty.FinalEquity)
	assert.Zero(t, empty.TradesExecuted)
}

func TestEngine_Step_TinyQuotesDoNotOverflow(t *testing.T) {
	engine := newTestEngine(t, referenceCfg)

	// capital/lower is 1e19 shares, beyond int64
	state := &EngineState{Capital: 10000}
	rec := engine.Step(state, model.NewDailyObservation(day(0), 1e-15, 2e-15*0.74, 0.74))

	require.True(t, rec.TradeExecuted)
	assert.Equal(t, model.ReasonExecuted, rec.Reason)
	assert.Equal(t, int64(math.MaxInt64), rec.Shares)
	assert.InDelta(t, 10000.0, float64(rec.GrossEdge), 1e-6)
	assert.InDelta(t, 36.0, float64(rec.TotalFees), 1e-6)
	assert.InDelta(t, 19964.0, float64(state.Capital), 1e-6)
}

func TestEngine_Step_GateBoundaries(t *testing.T) {
	// domestic 100, implied exactly 101: relative spread 0.01, one share edge 1
	obs := model.NewDailyObservation(day(0), 100, 50.5, 0.5)

	tests := []struct {
		name string
		cfg  config.SimulationConfig
		want model.Reason
	}{
		{
			name: "spread equal to threshold trades",
			cfg:  config.SimulationConfig{InitialCapital: 1000, MinRelativeSpread: 0.01},
			want: model.ReasonExecuted,
		},
		{
			name: "spread just under threshold",
			cfg:  config.SimulationConfig{InitialCapital: 1000, MinRelativeSpread: 0.0100001},
			want: model.ReasonBelowMinSpread,
		},
		{
			name: "edge equal to fees does not trade",
			cfg:  config.SimulationConfig{InitialCapital: 1000, FixedDomesticFee: 10},
			want: model.ReasonUnprofitable,
		},
		{
			name: "edge just above fees trades",
			cfg:  config.SimulationConfig{InitialCapital: 1000, FixedDomesticFee: 9.99},
			want: model.ReasonExecuted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(t, tt.cfg)
			state := engine.NewState()
			rec := engine.Step(state, obs)

			assert.Equal(t, tt.want, rec.Reason)
			if tt.want == model.ReasonExecuted {
				assert.Equal(t, int64(10), rec.Shares)
				assert.InDelta(t, 1000+10-tt.cfg.FixedDomesticFee, float64(rec.Equity), 1e-9)
			} else {
				assert.Equal(t, model.Domestic(1000), rec.Equity)
			}
		})
	}
}
