package engine

import (
	"path/filepath"
	"runtime"
	"time"

	"github.com/moznion/go-optional"
	"github.com/openquant-lab/breakwater/internal/backtest/engine"
	"github.com/openquant-lab/breakwater/internal/backtest/engine/engine_v1/datasource"
	"github.com/openquant-lab/breakwater/internal/indicator"
	"github.com/openquant-lab/breakwater/internal/logger"
	"github.com/openquant-lab/breakwater/internal/types"
	"github.com/openquant-lab/breakwater/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// BacktestEngineV1 runs a rule-based long-only strategy over daily
// observations. Each step scores the universe, closes positions that hit
// their exit bounds, opens positions for the best candidates, then records
// a portfolio snapshot.
type BacktestEngineV1 struct {
	config     *BacktestConfig
	dataSource datasource.DataSource
	logger     *logger.Logger
}

var _ engine.Engine = (*BacktestEngineV1)(nil)

// NewBacktestEngineV1 creates an uninitialized engine.
func NewBacktestEngineV1() (*BacktestEngineV1, error) {
	log, err := logger.NewLogger()
	if err != nil {
		return nil, err
	}

	return &BacktestEngineV1{
		config:     nil,
		dataSource: nil,
		logger:     log,
	}, nil
}

// Initialize parses and validates the YAML configuration.
func (e *BacktestEngineV1) Initialize(config string) error {
	var cfg BacktestConfig
	if err := yaml.Unmarshal([]byte(config), &cfg); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse configuration", err)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	e.config = &cfg
	e.logger.Info("Initialized backtest engine",
		zap.Float64("initial_capital", cfg.InitialCapital),
		zap.Float64("entry_threshold", cfg.EntryThreshold),
		zap.Int("max_positions", cfg.MaxPositions),
	)

	return nil
}

// SetDataSource sets the historical data provider.
func (e *BacktestEngineV1) SetDataSource(dataSource datasource.DataSource) error {
	if dataSource == nil {
		return errors.New(errors.ErrCodeNoDataSource, "data source is nil")
	}

	e.dataSource = dataSource

	return nil
}

func (e *BacktestEngineV1) preRunCheck() error {
	if e.config == nil {
		return errors.New(errors.ErrCodeNotInitialized, "engine is not initialized")
	}

	if e.dataSource == nil {
		return errors.New(errors.ErrCodeNoDataSource, "data source is not set")
	}

	if len(e.dataSource.Universe()) == 0 {
		return errors.New(errors.ErrCodeEmptyUniverse, "data source has no assets")
	}

	return nil
}

func (e *BacktestEngineV1) parallelism() int {
	if e.config.Parallelism > 0 {
		return e.config.Parallelism
	}

	return runtime.NumCPU()
}

// runDates returns the simulated date range: the sorted union of all asset
// dates, clipped to the configured bounds.
func (e *BacktestEngineV1) runDates() []time.Time {
	all := e.dataSource.AllDates()
	dates := make([]time.Time, 0, len(all))

	for _, date := range all {
		if e.config.StartTime.IsSome() && date.Before(e.config.StartTime.Unwrap()) {
			continue
		}

		if e.config.EndTime.IsSome() && date.After(e.config.EndTime.Unwrap()) {
			continue
		}

		dates = append(dates, date)
	}

	return dates
}

// stepPrices returns each asset's price at the given date. Assets without
// an observation at this exact date are absent from the map.
func (e *BacktestEngineV1) stepPrices(date time.Time) map[string]float64 {
	prices := make(map[string]float64)

	for _, assetID := range e.dataSource.Universe() {
		series, err := e.dataSource.Series(assetID)
		if err != nil {
			continue
		}

		price, err := series.PriceAt(date)
		if err != nil {
			continue
		}

		prices[assetID] = price
	}

	return prices
}

// Run executes the full simulation.
func (e *BacktestEngineV1) Run(onStep optional.Option[engine.OnStepCallback]) (*engine.RunResult, error) {
	if err := e.preRunCheck(); err != nil {
		return nil, err
	}

	dates := e.runDates()
	if len(dates) == 0 {
		return nil, errors.New(errors.ErrCodeRunFailed, "no dates in the configured range")
	}

	ledger, err := NewLedger(e.logger)
	if err != nil {
		return nil, err
	}
	defer ledger.Close()

	if err := ledger.Initialize(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeRunFailed, "failed to initialize ledger", err)
	}

	pf := newPortfolio(e.config.InitialCapital)
	manager := newPositionManager(e.config, pf, ledger, e.logger)
	generator := newSignalGenerator(
		indicator.NewEngine(e.config.Indicator), e.dataSource, e.logger,
		e.config.LookbackDays, e.parallelism(),
	)
	val := newValuation(pf, ledger)

	e.logger.Info("Starting backtest",
		zap.Time("start", dates[0]),
		zap.Time("end", dates[len(dates)-1]),
		zap.Int("steps", len(dates)),
		zap.Int("universe", len(e.dataSource.Universe())),
	)

	for i, date := range dates {
		scores, err := generator.generate(date)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeRunFailed, "signal generation failed", err)
		}

		prices := e.stepPrices(date)

		if err := manager.updatePositions(date, prices); err != nil {
			return nil, errors.Wrap(errors.ErrCodeRunFailed, "position update failed", err)
		}

		if err := manager.executeEntries(date, scores, prices); err != nil {
			return nil, errors.Wrap(errors.ErrCodeRunFailed, "trade execution failed", err)
		}

		if _, err := val.snapshot(date, prices); err != nil {
			return nil, errors.Wrap(errors.ErrCodeRunFailed, "snapshot failed", err)
		}

		if onStep.IsSome() {
			onStep.Unwrap()(i+1, len(dates))
		}
	}

	trades, err := ledger.Trades()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRunFailed, "failed to read trade records", err)
	}

	metrics := newAnalyzer(e.config.RiskFreeRate, e.config.InitialCapital).analyze(trades, val.history())

	e.logger.Info("Backtest complete",
		zap.Int("trades", metrics.TotalTrades),
		zap.Float64("total_return", metrics.TotalReturn),
		zap.Float64("max_drawdown", metrics.MaxDrawdown),
		zap.Float64("sharpe_ratio", metrics.SharpeRatio),
	)

	return &engine.RunResult{
		Snapshots: val.history(),
		Trades:    trades,
		Metrics:   metrics,
	}, nil
}

// GenerateSignals scores the universe as of the given date without running
// a simulation.
func (e *BacktestEngineV1) GenerateSignals(asOf time.Time) (map[string]types.SignalScore, error) {
	if err := e.preRunCheck(); err != nil {
		return nil, err
	}

	generator := newSignalGenerator(
		indicator.NewEngine(e.config.Indicator), e.dataSource, e.logger,
		e.config.LookbackDays, e.parallelism(),
	)

	return generator.generate(asOf)
}

// WriteResults persists the run artifacts into the given folder:
// trades.csv, portfolio.csv, metrics.csv, metrics.yaml and the ledger
// database file.
func (e *BacktestEngineV1) WriteResults(result *engine.RunResult, folder string) error {
	ledger, err := NewLedger(e.logger)
	if err != nil {
		return err
	}
	defer ledger.Close()

	if err := ledger.Initialize(); err != nil {
		return errors.Wrap(errors.ErrCodeLedgerExportFailed, "failed to initialize ledger", err)
	}

	for _, trade := range result.Trades {
		if err := ledger.AppendTrade(trade); err != nil {
			return err
		}
	}

	prevValue := 0.0

	for i, snap := range result.Snapshots {
		dailyReturn := 0.0
		if i > 0 && prevValue != 0 {
			dailyReturn = (snap.TotalValue - prevValue) / prevValue
		}

		prevValue = snap.TotalValue

		if err := ledger.AppendSnapshot(snap, dailyReturn); err != nil {
			return err
		}
	}

	if err := ledger.ExportCSV(folder); err != nil {
		return err
	}

	if err := ledger.WriteMetricsCSV(filepath.Join(folder, "metrics.csv"), result.Metrics); err != nil {
		return err
	}

	if err := types.WritePerformanceMetrics(filepath.Join(folder, "metrics.yaml"), result.Metrics); err != nil {
		return errors.Wrap(errors.ErrCodeLedgerExportFailed, "failed to write metrics", err)
	}

	if err := ledger.Write(filepath.Join(folder, "state.db")); err != nil {
		return err
	}

	e.logger.Info("Wrote run artifacts", zap.String("folder", folder))

	return nil
}

// GetConfigSchema returns the JSON schema of the engine configuration.
func (e *BacktestEngineV1) GetConfigSchema() (string, error) {
	var cfg BacktestConfig

	return cfg.GenerateSchemaJSON()
}
