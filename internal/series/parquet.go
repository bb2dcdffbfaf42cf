// Package series reads and writes the parquet artifacts exchanged with the
// series aligner (aligned observations) and the reporting side (equity curve).
package series

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"crossarb/internal/model"
)

// ObservationRecord is the on-disk schema of the aligned daily table.
type ObservationRecord struct {
	Date                 int64   `parquet:"date,timestamp(millisecond)"` // Unix ms, UTC midnight
	DomesticPrice        float64 `parquet:"domestic_price"`
	ForeignPrice         float64 `parquet:"foreign_price"`
	FXRate               float64 `parquet:"fx_rate"`
	ImpliedDomesticPrice float64 `parquet:"implied_domestic_price"`
}

// EquityRecord is the on-disk schema of the equity curve.
type EquityRecord struct {
	Date          int64   `parquet:"date,timestamp(millisecond)"`
	Equity        float64 `parquet:"equity"`
	Profit        float64 `parquet:"profit"`
	TradeExecuted bool    `parquet:"trade_executed"`
	Shares        int64   `parquet:"shares"`
	GrossEdge     float64 `parquet:"gross_edge"`
	TotalFees     float64 `parquet:"total_fees"`
	Reason        string  `parquet:"reason"`
}

// ReadObservations loads the aligned table in file order. Rows are not sorted
// or deduplicated; ordering is the aligner's responsibility.
func ReadObservations(path string) ([]model.DailyObservation, error) {
	rows, err := readParquetFile[ObservationRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading observations from %s: %w", path, err)
	}

	obs := make([]model.DailyObservation, 0, len(rows))
	for _, r := range rows {
		obs = append(obs, model.DailyObservation{
			Date:                 time.UnixMilli(r.Date).UTC(),
			DomesticPrice:        model.Domestic(r.DomesticPrice),
			ForeignPrice:         model.Foreign(r.ForeignPrice),
			FXRate:               model.FXRate(r.FXRate),
			ImpliedDomesticPrice: model.Domestic(r.ImpliedDomesticPrice),
		})
	}
	return obs, nil
}

// WriteObservations writes an aligned table, replacing any existing file.
func WriteObservations(path string, obs []model.DailyObservation) error {
	rows := make([]ObservationRecord, 0, len(obs))
	for _, o := range obs {
		rows = append(rows, ObservationRecord{
			Date:                 o.Date.UnixMilli(),
			DomesticPrice:        float64(o.DomesticPrice),
			ForeignPrice:         float64(o.ForeignPrice),
			FXRate:               float64(o.FXRate),
			ImpliedDomesticPrice: float64(o.ImpliedDomesticPrice),
		})
	}
	if err := writeParquetFile(path, rows); err != nil {
		return fmt.Errorf("writing observations to %s: %w", path, err)
	}
	return nil
}

// WriteEquityCurve writes one row per engine record, in order.
func WriteEquityCurve(path string, records []model.EquityRecord) error {
	rows := make([]EquityRecord, 0, len(records))
	for _, r := range records {
		rows = append(rows, EquityRecord{
			Date:          r.Date.UnixMilli(),
			Equity:        float64(r.Equity),
			Profit:        float64(r.Profit),
			TradeExecuted: r.TradeExecuted,
			Shares:        r.Shares,
			GrossEdge:     float64(r.GrossEdge),
			TotalFees:     float64(r.TotalFees),
			Reason:        string(r.Reason),
		})
	}
	if err := writeParquetFile(path, rows); err != nil {
		return fmt.Errorf("writing equity curve to %s: %w", path, err)
	}
	return nil
}

// ReadEquityCurve loads an equity curve written by WriteEquityCurve. The CLI
// uses it to re-print the summary of an earlier run.
func ReadEquityCurve(path string) ([]model.EquityRecord, error) {
	rows, err := readParquetFile[EquityRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading equity curve from %s: %w", path, err)
	}

	records := make([]model.EquityRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, model.EquityRecord{
			Date:          time.UnixMilli(r.Date).UTC(),
			Equity:        model.Domestic(r.Equity),
			Profit:        model.Domestic(r.Profit),
			TradeExecuted: r.TradeExecuted,
			Shares:        r.Shares,
			GrossEdge:     model.Domestic(r.GrossEdge),
			TotalFees:     model.Domestic(r.TotalFees),
			Reason:        model.Reason(r.Reason),
		})
	}
	return records, nil
}

func writeParquetFile[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, rows)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}
