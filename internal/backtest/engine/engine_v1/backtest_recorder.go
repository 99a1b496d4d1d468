package engine

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/backcast-lab/backcast/internal/logger"
	"github.com/backcast-lab/backcast/internal/types"
	"github.com/backcast-lab/backcast/pkg/errors"
)

// BacktestRecorder persists a finished run's ledgers into an embedded
// database and exports them as Parquet files. The engine's float semantics
// are untouched: monetary values are rounded with decimal arithmetic at this
// export boundary only.
type BacktestRecorder struct {
	db  *sql.DB
	log *logger.Logger
	sq  squirrel.StatementBuilderType
}

func NewBacktestRecorder(log *logger.Logger) (*BacktestRecorder, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to open database", err)
	}

	recorder := &BacktestRecorder{
		db:  db,
		log: log,
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}

	if err := recorder.initialize(); err != nil {
		db.Close()

		return nil, err
	}

	return recorder, nil
}

func (r *BacktestRecorder) initialize() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			code TEXT,
			size DOUBLE,
			kind TEXT,
			intent TEXT,
			limit_price DOUBLE,
			stop_price DOUBLE,
			stop_loss DOUBLE,
			take_profit DOUBLE,
			tag TEXT,
			status TEXT,
			placed_at TIMESTAMP,
			placed_at_index INTEGER,
			fill_price DOUBLE,
			filled_at TIMESTAMP
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to create orders table", err)
	}

	_, err = r.db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			code TEXT,
			size DOUBLE,
			initial_size DOUBLE,
			entry_price DOUBLE,
			entry_time TIMESTAMP,
			entry_index INTEGER,
			exit_price DOUBLE,
			exit_time TIMESTAMP,
			exit_index INTEGER,
			pl DOUBLE,
			pl_pct DOUBLE,
			tag TEXT,
			closed BOOLEAN
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to create trades table", err)
	}

	_, err = r.db.Exec(`
		CREATE TABLE IF NOT EXISTS equity (
			time TIMESTAMP,
			equity DOUBLE,
			drawdown_pct DOUBLE
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to create equity table", err)
	}

	return nil
}

// RecordOrders inserts the full submission ledger, pending and settled alike.
func (r *BacktestRecorder) RecordOrders(orders []*types.Order) error {
	tx, err := r.db.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to begin transaction", err)
	}

	for _, order := range orders {
		insertQuery := r.sq.
			Insert("orders").
			Columns(
				"id", "code", "size", "kind", "intent", "limit_price", "stop_price",
				"stop_loss", "take_profit", "tag", "status", "placed_at",
				"placed_at_index", "fill_price", "filled_at",
			).
			Values(
				order.ID, order.Code, exportFloat(order.Size), string(order.Kind),
				string(order.Intent), nullableFloat(order.Limit), nullableFloat(order.Stop),
				nullableFloat(order.StopLoss), nullableFloat(order.TakeProfit), order.Tag,
				string(order.Status), order.PlacedAt, order.PlacedAtIndex,
				nullableFloat(order.FillPrice), nullableTime(order.FilledAt),
			).
			RunWith(tx)

		if _, err := insertQuery.Exec(); err != nil {
			tx.Rollback()

			return errors.Wrap(errors.ErrCodeStorageFailed, "failed to insert order", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to commit orders", err)
	}

	return nil
}

// RecordTrades inserts trades from both ledgers; the closed flag separates
// the closed ledger from trades still open at run end.
func (r *BacktestRecorder) RecordTrades(trades []*types.Trade) error {
	tx, err := r.db.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to begin transaction", err)
	}

	for _, trade := range trades {
		insertQuery := r.sq.
			Insert("trades").
			Columns(
				"id", "code", "size", "initial_size", "entry_price", "entry_time",
				"entry_index", "exit_price", "exit_time", "exit_index", "pl",
				"pl_pct", "tag", "closed",
			).
			Values(
				trade.ID, trade.Code, exportFloat(trade.Size), exportFloat(trade.InitialSize),
				exportFloat(trade.EntryPrice), trade.EntryTime, trade.EntryIndex,
				nullableFloat(trade.ExitPrice), nullableTime(trade.ExitTime),
				nullableInt(trade.ExitIndex), exportFloat(trade.PL), exportFloat(trade.PLPct),
				trade.Tag, trade.IsClosed(),
			).
			RunWith(tx)

		if _, err := insertQuery.Exec(); err != nil {
			tx.Rollback()

			return errors.Wrap(errors.ErrCodeStorageFailed, "failed to insert trade", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to commit trades", err)
	}

	return nil
}

// RecordEquity inserts the retained per-bar equity curve.
func (r *BacktestRecorder) RecordEquity(curve []types.EquityPoint) error {
	tx, err := r.db.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to begin transaction", err)
	}

	for _, point := range curve {
		insertQuery := r.sq.
			Insert("equity").
			Columns("time", "equity", "drawdown_pct").
			Values(point.Time, exportFloat(point.Equity), exportFloat(point.DrawdownPct)).
			RunWith(tx)

		if _, err := insertQuery.Exec(); err != nil {
			tx.Rollback()

			return errors.Wrap(errors.ErrCodeStorageFailed, "failed to insert equity point", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to commit equity curve", err)
	}

	return nil
}

// Write exports the recorded tables to Parquet files in the given directory.
func (r *BacktestRecorder) Write(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to create directory", err)
	}

	// Raw SQL for the exports, Squirrel has no COPY syntax
	for _, table := range []string{"orders", "trades", "equity"} {
		target := filepath.Join(path, table+".parquet")

		if _, err := r.db.Exec(fmt.Sprintf(`COPY %s TO '%s' (FORMAT PARQUET)`, table, target)); err != nil {
			return errors.Wrapf(errors.ErrCodeExportFailed, err, "failed to export %s to Parquet", table)
		}
	}

	r.log.Info("Exported backtest results to Parquet files",
		zap.String("path", path),
	)

	return nil
}

func (r *BacktestRecorder) Close() error {
	return r.db.Close()
}

// exportFloat rounds a value for storage. NaN and infinities pass through,
// DOUBLE columns represent them natively.
func exportFloat(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return value
	}

	rounded, _ := decimal.NewFromFloat(value).Round(8).Float64()

	return rounded
}

func nullableFloat(opt optional.Option[float64]) any {
	if opt.IsNone() {
		return nil
	}

	return exportFloat(opt.Unwrap())
}

func nullableTime(opt optional.Option[time.Time]) any {
	if opt.IsNone() {
		return nil
	}

	return opt.Unwrap()
}

func nullableInt(opt optional.Option[int]) any {
	if opt.IsNone() {
		return nil
	}

	return opt.Unwrap()
}

// writeResults persists the run's ledgers and summary into the results
// folder: Parquet exports plus the stats.yaml scalar summary.
func (b *BacktestEngineV1) writeResults(report types.StatsReport) error {
	recorder, err := NewBacktestRecorder(b.log)
	if err != nil {
		return err
	}
	defer recorder.Close()

	if err := recorder.RecordOrders(b.broker.allOrders); err != nil {
		return err
	}

	trades := make([]*types.Trade, 0, len(b.broker.closed)+len(b.broker.open))
	trades = append(trades, b.broker.closed...)
	trades = append(trades, b.broker.open...)

	if err := recorder.RecordTrades(trades); err != nil {
		return err
	}

	if err := recorder.RecordEquity(report.EquityCurve); err != nil {
		return err
	}

	if err := recorder.Write(b.resultsFolder); err != nil {
		return err
	}

	if err := types.WriteStatsReport(filepath.Join(b.resultsFolder, "stats.yaml"), report); err != nil {
		return errors.Wrap(errors.ErrCodeStatsWriteFailed, "failed to write stats report", err)
	}

	return nil
}
