package engine

import (
	"math"
	"testing"
	"time"

	"github.com/openquant-lab/breakwater/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type AnalyzerTestSuite struct {
	suite.Suite
	analyzer *analyzer
}

func TestAnalyzerSuite(t *testing.T) {
	suite.Run(t, new(AnalyzerTestSuite))
}

func (s *AnalyzerTestSuite) SetupTest() {
	s.analyzer = newAnalyzer(0.02, 10000)
}

func tradeAt(d int, assetID string, action types.TradeAction, price, quantity float64) types.TradeRecord {
	return types.TradeRecord{
		ID:       assetID,
		Date:     time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC),
		AssetID:  assetID,
		Action:   action,
		Price:    price,
		Quantity: quantity,
		Value:    price * quantity,
	}
}

func snapshotsOf(values ...float64) []types.PortfolioSnapshot {
	snaps := make([]types.PortfolioSnapshot, len(values))
	for i, v := range values {
		snaps[i] = types.PortfolioSnapshot{
			Date:       time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			TotalValue: v,
			Cash:       v,
			Positions:  map[string]types.Position{},
		}
	}

	return snaps
}

func (s *AnalyzerTestSuite) TestTradeStatistics() {
	trades := []types.TradeRecord{
		tradeAt(1, "BTC", types.TradeActionBuy, 100, 10),
		tradeAt(5, "BTC", types.TradeActionSell, 120, 10), // +20%, 4 days
		tradeAt(6, "ETH", types.TradeActionBuy, 50, 20),
		tradeAt(8, "ETH", types.TradeActionSell, 45, 20), // -10%, 2 days
	}

	metrics := s.analyzer.analyze(trades, snapshotsOf(10000, 10100))

	s.Equal(2, metrics.TotalTrades)
	s.Equal(1, metrics.WinningTrades)
	s.Equal(1, metrics.LosingTrades)
	s.InDelta(0.5, metrics.WinRate, 1e-9)
	s.InDelta(0.2, metrics.AverageWin, 1e-9)
	s.InDelta(-0.1, metrics.AverageLoss, 1e-9)
	s.InDelta(2.0, metrics.ProfitFactor, 1e-9)
	s.InDelta(3.0, metrics.AverageHoldingDays, 1e-9)
	s.InDelta(0.01, metrics.TotalReturn, 1e-9)
	s.InDelta(10100, metrics.FinalValue, 1e-9)
}

func (s *AnalyzerTestSuite) TestStopLossRealizedReturn() {
	trades := []types.TradeRecord{
		tradeAt(1, "BTC", types.TradeActionBuy, 100, 10),
		tradeAt(2, "BTC", types.TradeActionSell, 89, 10),
	}

	metrics := s.analyzer.analyze(trades, snapshotsOf(10000, 9890))
	s.InDelta(-0.11, metrics.AverageLoss, 1e-9)

	trades = []types.TradeRecord{
		tradeAt(1, "BTC", types.TradeActionBuy, 100, 10),
		tradeAt(2, "BTC", types.TradeActionSell, 121, 10),
	}

	metrics = s.analyzer.analyze(trades, snapshotsOf(10000, 10210))
	s.InDelta(0.21, metrics.AverageWin, 1e-9)
}

func (s *AnalyzerTestSuite) TestAllWinsProfitFactorInfinite() {
	trades := []types.TradeRecord{
		tradeAt(1, "BTC", types.TradeActionBuy, 100, 1),
		tradeAt(2, "BTC", types.TradeActionSell, 110, 1),
	}

	metrics := s.analyzer.analyze(trades, snapshotsOf(10000, 10010))
	s.True(math.IsInf(metrics.ProfitFactor, 1))
	s.Equal(1.0, metrics.WinRate)
}

func (s *AnalyzerTestSuite) TestBreakEvenCountsAsLoss() {
	trades := []types.TradeRecord{
		tradeAt(1, "BTC", types.TradeActionBuy, 100, 1),
		tradeAt(2, "BTC", types.TradeActionSell, 100, 1),
	}

	metrics := s.analyzer.analyze(trades, snapshotsOf(10000, 10000))

	s.Equal(1, metrics.TotalTrades)
	s.Equal(0, metrics.WinningTrades)
	s.Equal(1, metrics.LosingTrades)
	s.Equal(0.0, metrics.WinRate)
	// No strictly negative trade, so the loss mean stays zero.
	s.Equal(0.0, metrics.AverageLoss)
	s.Equal(0.0, metrics.ProfitFactor)
}

func (s *AnalyzerTestSuite) TestNoTrades() {
	metrics := s.analyzer.analyze(nil, snapshotsOf(10000, 10000))

	s.Equal(0, metrics.TotalTrades)
	s.Equal(0.0, metrics.WinRate)
	s.Equal(0.0, metrics.ProfitFactor)
	s.Equal(0.0, metrics.TotalReturn)
}

func (s *AnalyzerTestSuite) TestOpenPositionNotCounted() {
	trades := []types.TradeRecord{
		tradeAt(1, "BTC", types.TradeActionBuy, 100, 1),
		tradeAt(2, "ETH", types.TradeActionBuy, 50, 1),
		tradeAt(3, "BTC", types.TradeActionSell, 90, 1),
	}

	metrics := s.analyzer.analyze(trades, snapshotsOf(10000, 9990))
	s.Equal(1, metrics.TotalTrades)
	s.Equal(1, metrics.LosingTrades)
}

func (s *AnalyzerTestSuite) TestMaxDrawdown() {
	metrics := s.analyzer.analyze(nil, snapshotsOf(10000, 12000, 9000, 11000))
	s.InDelta(0.25, metrics.MaxDrawdown, 1e-9)
}

func (s *AnalyzerTestSuite) TestMaxDrawdownMonotonic() {
	metrics := s.analyzer.analyze(nil, snapshotsOf(10000, 10500, 11000, 12000))
	s.Equal(0.0, metrics.MaxDrawdown)
}

func (s *AnalyzerTestSuite) TestSharpeRatio() {
	// Daily returns: 0.01, -0.0049505..., 0.01
	snaps := snapshotsOf(10000, 10100, 10050, 10150.5)
	metrics := s.analyzer.analyze(nil, snaps)

	returns := []float64{0.01, (10050 - 10100) / 10100.0, (10150.5 - 10050) / 10050.0}

	mean := (returns[0] + returns[1] + returns[2]) / 3

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}

	stdev := math.Sqrt(variance / 2)
	expected := (mean - 0.02/252) / stdev * math.Sqrt(252)

	s.InDelta(expected, metrics.SharpeRatio, 1e-9)
}

func (s *AnalyzerTestSuite) TestSharpeFlatSeriesZero() {
	metrics := s.analyzer.analyze(nil, snapshotsOf(10000, 10000, 10000))
	s.Equal(0.0, metrics.SharpeRatio)
}

func TestPairTradesFIFO(t *testing.T) {
	trades := []types.TradeRecord{
		tradeAt(1, "BTC", types.TradeActionBuy, 100, 5),
		tradeAt(2, "BTC", types.TradeActionBuy, 110, 5),
		tradeAt(3, "BTC", types.TradeActionSell, 120, 5),
	}

	closed := pairTrades(trades)
	assert.Len(t, closed, 1)

	// The sell pairs with the earliest buy; the later buy stays open.
	profit, _ := closed[0].profit.Float64()
	assert.InDelta(t, 0.2, profit, 1e-9)
	assert.InDelta(t, 2, closed[0].holdingDays, 1e-9)
}

func TestPairTradesSellWithoutBuyIgnored(t *testing.T) {
	trades := []types.TradeRecord{
		tradeAt(1, "BTC", types.TradeActionSell, 120, 5),
	}

	assert.Empty(t, pairTrades(trades))
}
