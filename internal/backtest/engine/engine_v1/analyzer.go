package engine

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/openquant-lab/breakwater/internal/types"
	"github.com/shopspring/decimal"
)

const (
	tradingDaysPerYear = 252
	hoursPerDay        = 24
)

// closedTrade is one realized round trip produced by FIFO pairing. Profit
// is the fractional return (sell - buy) / buy.
type closedTrade struct {
	profit      decimal.Decimal
	holdingDays float64
}

// analyzer derives performance metrics from the ledger's trade records and
// the portfolio snapshot series.
type analyzer struct {
	riskFreeRate   float64
	initialCapital float64
}

func newAnalyzer(riskFreeRate, initialCapital float64) *analyzer {
	return &analyzer{
		riskFreeRate:   riskFreeRate,
		initialCapital: initialCapital,
	}
}

// analyze computes the full metric set. An empty trade list yields zeroed
// trade statistics but still reports drawdown, Sharpe and total return from
// the snapshot series.
func (a *analyzer) analyze(trades []types.TradeRecord, snapshots []types.PortfolioSnapshot) types.PerformanceMetrics {
	closed := pairTrades(trades)

	metrics := types.PerformanceMetrics{
		ID:             uuid.New().String(),
		Timestamp:      time.Now(),
		TotalTrades:    len(closed),
		InitialCapital: a.initialCapital,
	}

	sumWins := decimal.Zero
	sumLosses := decimal.Zero
	totalHolding := 0.0
	lossSamples := 0

	// Break-even round trips count against the win rate as losing trades
	// but carry no loss, so they stay out of the average-loss mean.
	for _, trade := range closed {
		totalHolding += trade.holdingDays

		if trade.profit.IsPositive() {
			metrics.WinningTrades++
			sumWins = sumWins.Add(trade.profit)

			continue
		}

		metrics.LosingTrades++

		if trade.profit.IsNegative() {
			lossSamples++
			sumLosses = sumLosses.Add(trade.profit)
		}
	}

	if len(closed) > 0 {
		metrics.WinRate = float64(metrics.WinningTrades) / float64(len(closed))
		metrics.AverageHoldingDays = totalHolding / float64(len(closed))
	}

	if metrics.WinningTrades > 0 {
		metrics.AverageWin = sumWins.Div(decimal.NewFromInt(int64(metrics.WinningTrades))).InexactFloat64()
	}

	if lossSamples > 0 {
		metrics.AverageLoss = sumLosses.Div(decimal.NewFromInt(int64(lossSamples))).InexactFloat64()
	}

	metrics.ProfitFactor = profitFactor(sumWins, sumLosses)
	metrics.MaxDrawdown = maxDrawdown(snapshots)
	metrics.SharpeRatio = a.sharpeRatio(snapshots)

	if len(snapshots) > 0 {
		metrics.FinalValue = snapshots[len(snapshots)-1].TotalValue

		if a.initialCapital > 0 {
			metrics.TotalReturn = (metrics.FinalValue - a.initialCapital) / a.initialCapital
		}
	}

	return metrics
}

// pairTrades matches each sell against the earliest unmatched buy of the
// same asset, in emission order. Buys that were never sold remain open and
// contribute no closed trade.
func pairTrades(trades []types.TradeRecord) []closedTrade {
	type entry struct {
		price decimal.Decimal
		date  time.Time
	}

	open := make(map[string][]entry)

	var closed []closedTrade

	for _, trade := range trades {
		switch trade.Action {
		case types.TradeActionBuy:
			open[trade.AssetID] = append(open[trade.AssetID], entry{
				price: decimal.NewFromFloat(trade.Price),
				date:  trade.Date,
			})
		case types.TradeActionSell:
			entries := open[trade.AssetID]
			if len(entries) == 0 {
				continue
			}

			buy := entries[0]
			open[trade.AssetID] = entries[1:]

			if buy.price.IsZero() {
				continue
			}

			sellPrice := decimal.NewFromFloat(trade.Price)

			closed = append(closed, closedTrade{
				profit:      sellPrice.Sub(buy.price).Div(buy.price),
				holdingDays: trade.Date.Sub(buy.date).Hours() / hoursPerDay,
			})
		}
	}

	return closed
}

// profitFactor is the sum of winning returns over the magnitude of the sum
// of losing returns. With wins and no losses it is +Inf; with no wins
// either it is 0.
func profitFactor(sumWins, sumLosses decimal.Decimal) float64 {
	if sumLosses.IsZero() {
		if sumWins.IsPositive() {
			return math.Inf(1)
		}

		return 0
	}

	return sumWins.Div(sumLosses.Abs()).InexactFloat64()
}

// maxDrawdown is the largest peak-to-trough decline of the portfolio value
// series, as a positive fraction of the peak.
func maxDrawdown(snapshots []types.PortfolioSnapshot) float64 {
	maxDD := 0.0
	peak := math.Inf(-1)

	for _, snap := range snapshots {
		if snap.TotalValue > peak {
			peak = snap.TotalValue
		}

		if peak > 0 {
			dd := (peak - snap.TotalValue) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}

	return maxDD
}

// sharpeRatio annualizes the mean daily excess return over the sample
// standard deviation of daily returns. Fewer than two returns, or a flat
// series, yields 0.
func (a *analyzer) sharpeRatio(snapshots []types.PortfolioSnapshot) float64 {
	returns := dailyReturns(snapshots)
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}

	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}

	variance /= float64(len(returns) - 1)

	stdev := math.Sqrt(variance)
	if stdev == 0 {
		return 0
	}

	dailyRiskFree := a.riskFreeRate / tradingDaysPerYear

	return (mean - dailyRiskFree) / stdev * math.Sqrt(tradingDaysPerYear)
}

func dailyReturns(snapshots []types.PortfolioSnapshot) []float64 {
	if len(snapshots) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(snapshots)-1)

	for i := 1; i < len(snapshots); i++ {
		prev := snapshots[i-1].TotalValue
		if prev == 0 {
			continue
		}

		returns = append(returns, (snapshots[i].TotalValue-prev)/prev)
	}

	return returns
}
