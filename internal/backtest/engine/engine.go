package engine

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/openquant-lab/breakwater/internal/backtest/engine/engine_v1/datasource"
	"github.com/openquant-lab/breakwater/internal/types"
)

// OnStepCallback is called after each simulation step with the number of
// processed steps and the total. Used to drive progress reporting.
type OnStepCallback func(current int, total int)

// RunResult is everything a completed simulation produces: the snapshot
// history, the trade ledger contents, and the aggregate metrics.
type RunResult struct {
	Snapshots []types.PortfolioSnapshot
	Trades    []types.TradeRecord
	Metrics   types.PerformanceMetrics
}

// Engine executes a rule-based strategy over historical daily observations.
type Engine interface {
	// Initialize parses and validates the YAML configuration. Invalid
	// configuration is the only fatal error class and aborts before the
	// simulation begins.
	Initialize(config string) error
	// SetDataSource sets the historical data provider. All data must be
	// fully loaded before Run; no I/O happens inside the loop.
	SetDataSource(dataSource datasource.DataSource) error
	// Run executes the full simulation and returns the snapshot history,
	// trade ledger, and performance metrics.
	Run(onStep optional.Option[OnStepCallback]) (*RunResult, error)
	// GenerateSignals computes the current signal score map as of the given
	// date without mutating run state. Usable by reporting layers
	// independent of a historical run.
	GenerateSignals(asOf time.Time) (map[string]types.SignalScore, error)
	// WriteResults persists the run artifacts (CSV row sets, metrics
	// summary, ledger database) into the given folder.
	WriteResults(result *RunResult, folder string) error
	// GetConfigSchema returns the JSON schema of the engine configuration.
	GetConfigSchema() (string, error)
}
