package database

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crossarb/internal/model"
)

var _ Repository = (*PostgresRepository)(nil)

// PostgresRepository implements Repository on a pgx connection pool.
type PostgresRepository struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresRepository connects to dsn and verifies the connection.
func NewPostgresRepository(ctx context.Context, logger *slog.Logger, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresRepository{Pool: pool, logger: logger}, nil
}

func (r *PostgresRepository) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r.logger
}

// Close releases the pool.
func (r *PostgresRepository) Close() {
	r.Pool.Close()
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS daily_observations (
		domestic_ticker VARCHAR(20) NOT NULL,
		foreign_ticker VARCHAR(20) NOT NULL,
		date DATE NOT NULL,
		domestic_price DOUBLE PRECISION NOT NULL,
		foreign_price DOUBLE PRECISION NOT NULL,
		fx_rate DOUBLE PRECISION NOT NULL,
		implied_domestic_price DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (domestic_ticker, foreign_ticker, date)
	)`,
	`CREATE TABLE IF NOT EXISTS backtest_runs (
		id BIGSERIAL PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		domestic_ticker VARCHAR(20) NOT NULL,
		foreign_ticker VARCHAR(20) NOT NULL,
		initial_capital DOUBLE PRECISION NOT NULL,
		fixed_domestic_fee DOUBLE PRECISION NOT NULL,
		foreign_fee_rate DOUBLE PRECISION NOT NULL,
		min_relative_spread DOUBLE PRECISION NOT NULL,
		final_equity DOUBLE PRECISION NOT NULL,
		total_profit DOUBLE PRECISION NOT NULL,
		trades_executed INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS equity_records (
		run_id BIGINT NOT NULL REFERENCES backtest_runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		date DATE NOT NULL,
		equity DOUBLE PRECISION NOT NULL,
		profit DOUBLE PRECISION NOT NULL,
		trade_executed BOOLEAN NOT NULL,
		shares BIGINT NOT NULL,
		gross_edge DOUBLE PRECISION NOT NULL,
		total_fees DOUBLE PRECISION NOT NULL,
		reason VARCHAR(32) NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
}

// Migrate creates the tables if they do not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := r.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// LoadObservations reads the aligned table for a pair.
func (r *PostgresRepository) LoadObservations(ctx context.Context, pair model.Pair, start, end time.Time) ([]model.DailyObservation, error) {
	query := `SELECT date, domestic_price, foreign_price, fx_rate, implied_domestic_price
		FROM daily_observations
		WHERE domestic_ticker = $1 AND foreign_ticker = $2`
	args := []any{pair.DomesticTicker, pair.ForeignTicker}
	if !start.IsZero() {
		args = append(args, start)
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if !end.IsZero() {
		args = append(args, end)
		query += fmt.Sprintf(" AND date <= $%d", len(args))
	}
	query += " ORDER BY date"

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	obs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.DailyObservation, error) {
		var o model.DailyObservation
		var domestic, foreign, fx, implied float64
		if err := row.Scan(&o.Date, &domestic, &foreign, &fx, &implied); err != nil {
			return o, err
		}
		o.DomesticPrice = model.Domestic(domestic)
		o.ForeignPrice = model.Foreign(foreign)
		o.FXRate = model.FXRate(fx)
		o.ImpliedDomesticPrice = model.Domestic(implied)
		return o, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan observations: %w", err)
	}

	r.log().Debug("Loaded observations", "pair", pair.String(), "rows", len(obs))
	return obs, nil
}

// SaveObservations upserts aligned rows for a pair. The runner calls it to
// seed the table from a parquet artifact before a postgres-sourced run.
func (r *PostgresRepository) SaveObservations(ctx context.Context, pair model.Pair, obs []model.DailyObservation) error {
	batch := &pgx.Batch{}
	for _, o := range obs {
		batch.Queue(`INSERT INTO daily_observations
			(domestic_ticker, foreign_ticker, date, domestic_price, foreign_price, fx_rate, implied_domestic_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (domestic_ticker, foreign_ticker, date) DO UPDATE SET
				domestic_price = EXCLUDED.domestic_price,
				foreign_price = EXCLUDED.foreign_price,
				fx_rate = EXCLUDED.fx_rate,
				implied_domestic_price = EXCLUDED.implied_domestic_price`,
			pair.DomesticTicker, pair.ForeignTicker, o.Date,
			float64(o.DomesticPrice), float64(o.ForeignPrice), float64(o.FXRate), float64(o.ImpliedDomesticPrice),
		)
	}
	if err := r.Pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save observations: %w", err)
	}
	return nil
}

// SaveRun writes the run header and its equity curve in one transaction.
func (r *PostgresRepository) SaveRun(ctx context.Context, run model.BacktestRun, records []model.EquityRecord) (int64, error) {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `INSERT INTO backtest_runs
		(domestic_ticker, foreign_ticker, initial_capital, fixed_domestic_fee, foreign_fee_rate,
		 min_relative_spread, final_equity, total_profit, trades_executed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		run.Pair.DomesticTicker, run.Pair.ForeignTicker, run.InitialCapital, run.FixedDomesticFee,
		run.ForeignFeeRate, run.MinRelativeSpread, run.FinalEquity, run.TotalProfit, run.TradesExecuted,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"equity_records"},
		[]string{"run_id", "seq", "date", "equity", "profit", "trade_executed", "shares", "gross_edge", "total_fees", "reason"},
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			rec := records[i]
			return []any{
				id, int32(i), rec.Date, float64(rec.Equity), float64(rec.Profit), rec.TradeExecuted,
				rec.Shares, float64(rec.GrossEdge), float64(rec.TotalFees), string(rec.Reason),
			}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copy equity records: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	r.log().Info("Backtest run saved", "runID", id, "records", len(records))
	return id, nil
}

// LoadEquityCurve returns the records of a run in their original order.
func (r *PostgresRepository) LoadEquityCurve(ctx context.Context, runID int64) ([]model.EquityRecord, error) {
	rows, err := r.Pool.Query(ctx, `SELECT date, equity, profit, trade_executed, shares, gross_edge, total_fees, reason
		FROM equity_records WHERE run_id = $1 ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query equity curve: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.EquityRecord, error) {
		var (
			rec                                 model.EquityRecord
			equity, profit, grossEdge, totalFee float64
			reason                              string
		)
		err := row.Scan(&rec.Date, &equity, &profit, &rec.TradeExecuted, &rec.Shares, &grossEdge, &totalFee, &reason)
		rec.Equity = model.Domestic(equity)
		rec.Profit = model.Domestic(profit)
		rec.GrossEdge = model.Domestic(grossEdge)
		rec.TotalFees = model.Domestic(totalFee)
		rec.Reason = model.Reason(reason)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan equity curve: %w", err)
	}
	return records, nil
}
