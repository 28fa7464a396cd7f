package engine

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/openquant-lab/breakwater/internal/logger"
	"github.com/openquant-lab/breakwater/internal/types"
	"github.com/openquant-lab/breakwater/pkg/errors"
	"go.uber.org/zap"
)

// Ledger is the append-only record of executed trades and per-step
// portfolio snapshots, backed by an in-memory DuckDB database. Records are
// inserted once and never updated or deleted; there is deliberately no
// mutation API on this type.
type Ledger struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType

	// seq preserves emission order across same-date records.
	tradeSeq    int64
	snapshotSeq int64
}

// SnapshotRow is the persisted form of one portfolio snapshot: open
// positions are flattened into a display string for the CSV artifact.
type SnapshotRow struct {
	Date        time.Time
	TotalValue  float64
	Cash        float64
	Positions   string
	DailyReturn float64
}

// NewLedger opens the backing database.
func NewLedger(log *logger.Logger) (*Ledger, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeLedgerAppendFailed, "failed to open ledger database", err)
	}

	return &Ledger{
		db:          db,
		logger:      log,
		sq:          squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		tradeSeq:    0,
		snapshotSeq: 0,
	}, nil
}

// Initialize creates the trades and snapshots tables.
func (l *Ledger) Initialize() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			seq BIGINT,
			id TEXT,
			date TIMESTAMP,
			asset_id TEXT,
			action TEXT,
			price DOUBLE,
			quantity DOUBLE,
			value DOUBLE,
			stop_loss_price DOUBLE,
			take_profit_price DOUBLE,
			signal_score DOUBLE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create trades table: %w", err)
	}

	_, err = l.db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			seq BIGINT,
			date TIMESTAMP,
			total_value DOUBLE,
			cash DOUBLE,
			positions TEXT,
			daily_return DOUBLE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create snapshots table: %w", err)
	}

	return nil
}

// AppendTrade appends one immutable trade record.
func (l *Ledger) AppendTrade(record types.TradeRecord) error {
	var score any
	if record.SignalScore.IsSome() {
		score = record.SignalScore.Unwrap()
	}

	l.tradeSeq++

	query := l.sq.
		Insert("trades").
		Columns(
			"seq", "id", "date", "asset_id", "action", "price", "quantity",
			"value", "stop_loss_price", "take_profit_price", "signal_score",
		).
		Values(
			l.tradeSeq, record.ID, record.Date, record.AssetID, string(record.Action),
			record.Price, record.Quantity, record.Value,
			record.StopLossPrice, record.TakeProfitPrice, score,
		).
		RunWith(l.db)

	if _, err := query.Exec(); err != nil {
		return errors.Wrap(errors.ErrCodeLedgerAppendFailed, "failed to append trade", err)
	}

	return nil
}

// AppendSnapshot appends one portfolio snapshot.
func (l *Ledger) AppendSnapshot(snapshot types.PortfolioSnapshot, dailyReturn float64) error {
	l.snapshotSeq++

	query := l.sq.
		Insert("snapshots").
		Columns("seq", "date", "total_value", "cash", "positions", "daily_return").
		Values(
			l.snapshotSeq, snapshot.Date, snapshot.TotalValue, snapshot.Cash,
			formatPositions(snapshot.Positions), dailyReturn,
		).
		RunWith(l.db)

	if _, err := query.Exec(); err != nil {
		return errors.Wrap(errors.ErrCodeLedgerAppendFailed, "failed to append snapshot", err)
	}

	return nil
}

// Trades returns every trade record in emission order.
func (l *Ledger) Trades() ([]types.TradeRecord, error) {
	return l.queryTrades(l.selectTrades())
}

// TradesForAsset returns one asset's trade records in emission order.
func (l *Ledger) TradesForAsset(assetID string) ([]types.TradeRecord, error) {
	return l.queryTrades(l.selectTrades().Where(squirrel.Eq{"asset_id": assetID}))
}

func (l *Ledger) selectTrades() squirrel.SelectBuilder {
	return l.sq.
		Select(
			"id", "date", "asset_id", "action", "price", "quantity",
			"value", "stop_loss_price", "take_profit_price", "signal_score",
		).
		From("trades").
		OrderBy("seq")
}

func (l *Ledger) queryTrades(query squirrel.SelectBuilder) ([]types.TradeRecord, error) {
	rows, err := query.RunWith(l.db).Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeLedgerQueryFailed, "failed to query trades", err)
	}
	defer rows.Close()

	var records []types.TradeRecord

	for rows.Next() {
		var record types.TradeRecord

		var action string

		var score sql.NullFloat64

		if err := rows.Scan(
			&record.ID, &record.Date, &record.AssetID, &action,
			&record.Price, &record.Quantity, &record.Value,
			&record.StopLossPrice, &record.TakeProfitPrice, &score,
		); err != nil {
			return nil, errors.Wrap(errors.ErrCodeLedgerQueryFailed, "failed to scan trade", err)
		}

		record.Action = types.TradeAction(action)

		if score.Valid {
			record.SignalScore = optional.Some(score.Float64)
		} else {
			record.SignalScore = optional.None[float64]()
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

// Snapshots returns every snapshot row in date order.
func (l *Ledger) Snapshots() ([]SnapshotRow, error) {
	rows, err := l.sq.
		Select("date", "total_value", "cash", "positions", "daily_return").
		From("snapshots").
		OrderBy("seq").
		RunWith(l.db).
		Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeLedgerQueryFailed, "failed to query snapshots", err)
	}
	defer rows.Close()

	var snapshots []SnapshotRow

	for rows.Next() {
		var row SnapshotRow

		if err := rows.Scan(&row.Date, &row.TotalValue, &row.Cash, &row.Positions, &row.DailyReturn); err != nil {
			return nil, errors.Wrap(errors.ErrCodeLedgerQueryFailed, "failed to scan snapshot", err)
		}

		snapshots = append(snapshots, row)
	}

	return snapshots, rows.Err()
}

// ExportCSV writes the trades and snapshots row sets as CSV files into the
// given directory.
func (l *Ledger) ExportCSV(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeLedgerExportFailed, "failed to create results directory", err)
	}

	tradesPath := filepath.Join(dir, "trades.csv")
	// COPY is raw SQL - Squirrel has no syntax for it
	_, err := l.db.Exec(fmt.Sprintf(
		`COPY (SELECT id, date, asset_id, action, price, quantity, value,
			stop_loss_price, take_profit_price, signal_score
		FROM trades ORDER BY seq) TO '%s' (HEADER, DELIMITER ',')`, tradesPath))
	if err != nil {
		return errors.Wrap(errors.ErrCodeLedgerExportFailed, "failed to export trades", err)
	}

	portfolioPath := filepath.Join(dir, "portfolio.csv")

	_, err = l.db.Exec(fmt.Sprintf(
		`COPY (SELECT date, total_value, cash, positions, daily_return
		FROM snapshots ORDER BY seq) TO '%s' (HEADER, DELIMITER ',')`, portfolioPath))
	if err != nil {
		return errors.Wrap(errors.ErrCodeLedgerExportFailed, "failed to export snapshots", err)
	}

	l.logger.Info("Exported ledger artifacts",
		zap.String("trades", tradesPath),
		zap.String("portfolio", portfolioPath),
	)

	return nil
}

// WriteMetricsCSV writes the metric/value summary rows as a CSV file.
func (l *Ledger) WriteMetricsCSV(path string, metrics types.PerformanceMetrics) error {
	_, err := l.db.Exec(`
		CREATE OR REPLACE TABLE metrics (
			metric TEXT,
			value DOUBLE
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeLedgerExportFailed, "failed to create metrics table", err)
	}

	values := map[string]float64{
		"total_trades":         float64(metrics.TotalTrades),
		"winning_trades":       float64(metrics.WinningTrades),
		"losing_trades":        float64(metrics.LosingTrades),
		"win_rate":             metrics.WinRate,
		"average_win":          metrics.AverageWin,
		"average_loss":         metrics.AverageLoss,
		"profit_factor":        metrics.ProfitFactor,
		"average_holding_days": metrics.AverageHoldingDays,
		"max_drawdown":         metrics.MaxDrawdown,
		"sharpe_ratio":         metrics.SharpeRatio,
		"total_return":         metrics.TotalReturn,
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}

	sort.Strings(names)

	insert := l.sq.Insert("metrics").Columns("metric", "value")
	for _, name := range names {
		insert = insert.Values(name, values[name])
	}

	if _, err := insert.RunWith(l.db).Exec(); err != nil {
		return errors.Wrap(errors.ErrCodeLedgerExportFailed, "failed to insert metrics", err)
	}

	_, err = l.db.Exec(fmt.Sprintf(`COPY metrics TO '%s' (HEADER, DELIMITER ',')`, path))
	if err != nil {
		return errors.Wrap(errors.ErrCodeLedgerExportFailed, "failed to export metrics", err)
	}

	return nil
}

// Write saves the ledger database file into the specified directory.
func (l *Ledger) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(errors.ErrCodeLedgerExportFailed, "failed to create directory", err)
	}

	// ATTACH/COPY is raw SQL - Squirrel has no syntax for it
	_, err := l.db.Exec(fmt.Sprintf(`
		ATTACH '%s' AS results;
		COPY FROM DATABASE memory TO results;
		DETACH results;
	`, path))
	if err != nil {
		return errors.Wrap(errors.ErrCodeLedgerExportFailed, "failed to write ledger database", err)
	}

	return nil
}

// Cleanup drops all tables and reinitializes the ledger for a fresh run.
func (l *Ledger) Cleanup() error {
	_, err := l.db.Exec(`
		DROP TABLE IF EXISTS trades;
		DROP TABLE IF EXISTS snapshots;
		DROP TABLE IF EXISTS metrics;
	`)
	if err != nil {
		return fmt.Errorf("failed to cleanup tables: %w", err)
	}

	l.tradeSeq = 0
	l.snapshotSeq = 0

	return l.Initialize()
}

// Close releases the backing database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// formatPositions flattens a position map into a stable display string:
// "ASSET: quantity@price" pairs joined by "; ", sorted by asset id.
func formatPositions(positions map[string]types.Position) string {
	if len(positions) == 0 {
		return ""
	}

	ids := make([]string, 0, len(positions))
	for id := range positions {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		p := positions[id]
		parts = append(parts, fmt.Sprintf("%s: %.4f@%.4f", id, p.Quantity, p.CurrentPrice))
	}

	return strings.Join(parts, "; ")
}
