// Package runner wires the configured observation source, the backtest
// engine and the result sinks together for one run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"crossarb/internal/arbitrage"
	"crossarb/internal/config"
	"crossarb/internal/database"
	"crossarb/internal/model"
	"crossarb/internal/series"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	ErrNoRepository = errors.New("postgres repository required but not configured")
	ErrRunNotFound  = errors.New("no equity records")
)

// Runner executes a single backtest.
type Runner struct {
	logger *slog.Logger
	cfg    config.Config
	repo   database.Repository
}

// New creates a Runner. repo may be nil when neither the input nor the output
// uses postgres.
func New(logger *slog.Logger, cfg config.Config, repo database.Repository) *Runner {
	return &Runner{logger: logger, cfg: cfg, repo: repo}
}

// NeedsDatabase reports whether cfg reads from or writes to postgres.
func NeedsDatabase(cfg config.Config) bool {
	return cfg.Input.Source == "postgres" || cfg.Output.Persist
}

// Result is what a run produced.
type Result struct {
	Records []model.EquityRecord
	Summary arbitrage.Summary
	RunID   int64
}

// Run loads observations, runs the engine and writes the configured outputs.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	engine, err := arbitrage.NewEngine(r.logger, r.cfg.Simulation)
	if err != nil {
		return nil, err
	}

	obs, err := r.loadObservations(ctx)
	if err != nil {
		return nil, err
	}
	r.logger.Info("Observations loaded", "source", r.cfg.Input.Source, "rows", len(obs))

	records, err := engine.Run(ctx, obs)
	if err != nil {
		return nil, fmt.Errorf("run backtest: %w", err)
	}

	res := &Result{
		Records: records,
		Summary: arbitrage.Summarize(records, r.cfg.Simulation.InitialCapital),
	}

	if path := r.cfg.Output.ParquetPath; path != "" {
		if err := series.WriteEquityCurve(path, records); err != nil {
			return nil, err
		}
		r.logger.Info("Equity curve written", "path", path)
	}

	if r.cfg.Output.Persist {
		if r.repo == nil {
			return nil, ErrNoRepository
		}
		id, err := r.repo.SaveRun(ctx, r.backtestRun(res.Summary), records)
		if err != nil {
			return nil, fmt.Errorf("persist run: %w", err)
		}
		res.RunID = id
	}

	return res, nil
}

func (r *Runner) loadObservations(ctx context.Context) ([]model.DailyObservation, error) {
	switch r.cfg.Input.Source {
	case "parquet":
		return series.ReadObservations(r.cfg.Input.Path)
	case "postgres":
		if r.repo == nil {
			return nil, ErrNoRepository
		}
		if err := r.seed(ctx); err != nil {
			return nil, err
		}
		start, end, err := parseWindow(r.cfg.Input)
		if err != nil {
			return nil, err
		}
		return r.repo.LoadObservations(ctx, r.cfg.Pair, start, end)
	default:
		return nil, fmt.Errorf("unknown input source %q", r.cfg.Input.Source)
	}
}

// seed upserts the configured parquet artifact into postgres.
func (r *Runner) seed(ctx context.Context) error {
	path := r.cfg.Input.SeedPath
	if path == "" {
		return nil
	}
	obs, err := series.ReadObservations(path)
	if err != nil {
		return err
	}
	if err := r.repo.SaveObservations(ctx, r.cfg.Pair, obs); err != nil {
		return fmt.Errorf("seed observations: %w", err)
	}
	r.logger.Info("Observations seeded", "path", path, "rows", len(obs))
	return nil
}

// ReportRun summarizes a run previously persisted with output.persist.
func (r *Runner) ReportRun(ctx context.Context, runID int64) (arbitrage.Summary, error) {
	if r.repo == nil {
		return arbitrage.Summary{}, ErrNoRepository
	}
	records, err := r.repo.LoadEquityCurve(ctx, runID)
	if err != nil {
		return arbitrage.Summary{}, err
	}
	if len(records) == 0 {
		return arbitrage.Summary{}, fmt.Errorf("run %d: %w", runID, ErrRunNotFound)
	}
	return summarizeStored(records), nil
}

// ReportFile summarizes an equity curve written to output.parquet_path.
func ReportFile(path string) (arbitrage.Summary, error) {
	records, err := series.ReadEquityCurve(path)
	if err != nil {
		return arbitrage.Summary{}, err
	}
	if len(records) == 0 {
		return arbitrage.Summary{}, fmt.Errorf("%s: %w", path, ErrRunNotFound)
	}
	return summarizeStored(records), nil
}

// summarizeStored recovers the initial capital from the first record, since
// profit is equity minus initial capital on every record.
func summarizeStored(records []model.EquityRecord) arbitrage.Summary {
	initial := float64(records[0].Equity - records[0].Profit)
	return arbitrage.Summarize(records, initial)
}

func parseWindow(in config.InputConfig) (start, end time.Time, err error) {
	if in.Start != "" {
		if start, err = time.Parse(time.DateOnly, in.Start); err != nil {
			return start, end, fmt.Errorf("parse input.start: %w", err)
		}
	}
	if in.End != "" {
		if end, err = time.Parse(time.DateOnly, in.End); err != nil {
			return start, end, fmt.Errorf("parse input.end: %w", err)
		}
	}
	return start, end, nil
}

func (r *Runner) backtestRun(s arbitrage.Summary) model.BacktestRun {
	sim := r.cfg.Simulation
	return model.BacktestRun{
		Pair:              r.cfg.Pair,
		InitialCapital:    sim.InitialCapital,
		FixedDomesticFee:  sim.FixedDomesticFee,
		ForeignFeeRate:    sim.ForeignFeeRate,
		MinRelativeSpread: sim.MinRelativeSpread,
		FinalEquity:       float64(s.FinalEquity),
		TotalProfit:       float64(s.TotalProfit),
		TradesExecuted:    s.TradesExecuted,
	}
}

// PrintSummary writes the human-readable report. Amounts use thousands
// grouping, e.g. $10,237.19.
func PrintSummary(w io.Writer, pair model.Pair, s arbitrage.Summary) {
	p := message.NewPrinter(language.English)
	ccy := pair.DomesticCurrency
	p.Fprintf(w, "Pair: %s\n", pair.String())
	p.Fprintf(w, "Backtest window: %s → %s (%d days)\n", s.Start.Format(time.DateOnly), s.End.Format(time.DateOnly), s.Days)
	p.Fprintf(w, "Final Equity (%s): $%.2f\n", ccy, float64(s.FinalEquity))
	p.Fprintf(w, "Total Profit (%s): $%.2f\n", ccy, float64(s.TotalProfit))
	p.Fprintf(w, "Total Fees (%s): $%.2f\n", ccy, float64(s.TotalFees))
	p.Fprintf(w, "Return: %.2f%%\n", s.Return*100)
	p.Fprintf(w, "Trades executed: %d\n", s.TradesExecuted)
}
