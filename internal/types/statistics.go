package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PerformanceMetrics is the aggregate summary computed once at run end from
// the trade ledger and snapshot history.
type PerformanceMetrics struct {
	// ID is the unique identifier for this backtest run.
	ID string `yaml:"id"`
	// Timestamp is when this backtest run was executed.
	Timestamp time.Time `yaml:"timestamp"`
	// Count of completed (paired buy/sell) trades.
	TotalTrades int `yaml:"total_trades"`
	// Count of completed trades with positive profit.
	WinningTrades int `yaml:"winning_trades"`
	// Count of completed trades without positive profit; break-even round
	// trips count here.
	LosingTrades int `yaml:"losing_trades"`
	// WinRate is winning trades over total trades.
	WinRate float64 `yaml:"win_rate"`
	// AverageWin is the mean fractional return of winning trades.
	AverageWin float64 `yaml:"average_win"`
	// AverageLoss is the mean fractional return of strictly negative
	// trades.
	AverageLoss float64 `yaml:"average_loss"`
	// ProfitFactor is the sum of winning returns over the magnitude of the
	// sum of losing returns; +Inf when there are no losing trades.
	ProfitFactor float64 `yaml:"profit_factor"`
	// AverageHoldingDays is the mean calendar days from entry to exit.
	AverageHoldingDays float64 `yaml:"average_holding_days"`
	// MaxDrawdown is the largest peak-to-trough decline of the portfolio
	// value series, as a fraction of the peak.
	MaxDrawdown float64 `yaml:"max_drawdown"`
	// SharpeRatio is the annualized mean daily excess return over its
	// standard deviation.
	SharpeRatio float64 `yaml:"sharpe_ratio"`
	// TotalReturn is (final value - initial capital) / initial capital.
	TotalReturn float64 `yaml:"total_return"`
	// FinalValue is the portfolio value at the last snapshot.
	FinalValue float64 `yaml:"final_value"`
	// InitialCapital is the starting capital of the run.
	InitialCapital float64 `yaml:"initial_capital"`
}

// WritePerformanceMetrics marshals the metrics to YAML at the given path.
func WritePerformanceMetrics(path string, metrics PerformanceMetrics) error {
	data, err := yaml.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal performance metrics to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write performance metrics to file: %w", err)
	}

	return nil
}
