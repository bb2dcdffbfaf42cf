package database

import (
	"context"
	"time"

	"crossarb/internal/model"
)

// Repository defines the standard interface for database operations.
type Repository interface {
	Migrate(ctx context.Context) error
	// LoadObservations returns the aligned rows for pair within [start, end],
	// ordered by date. A zero start or end leaves that side open.
	LoadObservations(ctx context.Context, pair model.Pair, start, end time.Time) ([]model.DailyObservation, error)
	// SaveObservations upserts aligned rows for pair, keyed by date.
	SaveObservations(ctx context.Context, pair model.Pair, obs []model.DailyObservation) error
	// SaveRun stores the run header and every equity record, returning the run ID.
	SaveRun(ctx context.Context, run model.BacktestRun, records []model.EquityRecord) (int64, error)
	// LoadEquityCurve reads back a stored run for reporting.
	LoadEquityCurve(ctx context.Context, runID int64) ([]model.EquityRecord, error)
}
