package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/openquant-lab/breakwater/internal/logger"
	"github.com/openquant-lab/breakwater/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type LedgerTestSuite struct {
	suite.Suite
	ledger *Ledger
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerTestSuite))
}

func (s *LedgerTestSuite) SetupSuite() {
	ledger, err := NewLedger(logger.NewNopLogger())
	s.Require().NoError(err)
	s.Require().NoError(ledger.Initialize())

	s.ledger = ledger
}

func (s *LedgerTestSuite) TearDownSuite() {
	s.Require().NoError(s.ledger.Close())
}

func (s *LedgerTestSuite) SetupTest() {
	s.Require().NoError(s.ledger.Cleanup())
}

func ledgerTrade(d int, assetID string, action types.TradeAction, score optional.Option[float64]) types.TradeRecord {
	return types.TradeRecord{
		ID:              assetID + "-" + string(action),
		Date:            time.Date(2024, 8, d, 0, 0, 0, 0, time.UTC),
		AssetID:         assetID,
		Action:          action,
		Price:           100,
		Quantity:        1,
		Value:           100,
		StopLossPrice:   90,
		TakeProfitPrice: 120,
		SignalScore:     score,
	}
}

func (s *LedgerTestSuite) TestAppendAndReadBack() {
	buy := ledgerTrade(1, "BTC", types.TradeActionBuy, optional.Some(8.5))
	sell := ledgerTrade(5, "BTC", types.TradeActionSell, optional.None[float64]())

	s.Require().NoError(s.ledger.AppendTrade(buy))
	s.Require().NoError(s.ledger.AppendTrade(sell))

	trades, err := s.ledger.Trades()
	s.Require().NoError(err)
	s.Require().Len(trades, 2)

	s.Equal(buy.ID, trades[0].ID)
	s.Equal(types.TradeActionBuy, trades[0].Action)
	s.Require().True(trades[0].SignalScore.IsSome())
	s.InDelta(8.5, trades[0].SignalScore.Unwrap(), 1e-9)

	s.Equal(sell.ID, trades[1].ID)
	s.True(trades[1].SignalScore.IsNone())
}

func (s *LedgerTestSuite) TestEmissionOrderPreserved() {
	// Same date for all records: ordering must come from insertion, not
	// the timestamp.
	for _, assetID := range []string{"ZEC", "ADA", "BTC"} {
		s.Require().NoError(s.ledger.AppendTrade(
			ledgerTrade(1, assetID, types.TradeActionBuy, optional.None[float64]())))
	}

	trades, err := s.ledger.Trades()
	s.Require().NoError(err)
	s.Require().Len(trades, 3)
	s.Equal("ZEC", trades[0].AssetID)
	s.Equal("ADA", trades[1].AssetID)
	s.Equal("BTC", trades[2].AssetID)
}

func (s *LedgerTestSuite) TestTradesForAsset() {
	s.Require().NoError(s.ledger.AppendTrade(ledgerTrade(1, "BTC", types.TradeActionBuy, optional.None[float64]())))
	s.Require().NoError(s.ledger.AppendTrade(ledgerTrade(2, "ETH", types.TradeActionBuy, optional.None[float64]())))
	s.Require().NoError(s.ledger.AppendTrade(ledgerTrade(3, "BTC", types.TradeActionSell, optional.None[float64]())))

	trades, err := s.ledger.TradesForAsset("BTC")
	s.Require().NoError(err)
	s.Require().Len(trades, 2)
	s.Equal(types.TradeActionBuy, trades[0].Action)
	s.Equal(types.TradeActionSell, trades[1].Action)
}

func (s *LedgerTestSuite) TestSnapshots() {
	snap := types.PortfolioSnapshot{
		Date:       time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
		TotalValue: 10100,
		Cash:       9100,
		Positions: map[string]types.Position{
			"BTC": {AssetID: "BTC", Quantity: 10, EntryPrice: 100, CurrentPrice: 100},
		},
	}

	s.Require().NoError(s.ledger.AppendSnapshot(snap, 0.01))

	rows, err := s.ledger.Snapshots()
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.InDelta(10100, rows[0].TotalValue, 1e-9)
	s.InDelta(0.01, rows[0].DailyReturn, 1e-9)
	s.Contains(rows[0].Positions, "BTC")
}

func (s *LedgerTestSuite) TestExportCSV() {
	s.Require().NoError(s.ledger.AppendTrade(ledgerTrade(1, "BTC", types.TradeActionBuy, optional.Some(8.0))))
	s.Require().NoError(s.ledger.AppendSnapshot(types.PortfolioSnapshot{
		Date:       time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
		TotalValue: 10000,
		Cash:       9000,
		Positions:  map[string]types.Position{},
	}, 0))

	dir := s.T().TempDir()
	s.Require().NoError(s.ledger.ExportCSV(dir))

	tradesData, err := os.ReadFile(filepath.Join(dir, "trades.csv"))
	s.Require().NoError(err)
	s.True(strings.HasPrefix(string(tradesData), "id,date,asset_id,action"))
	s.Contains(string(tradesData), "BTC")

	portfolioData, err := os.ReadFile(filepath.Join(dir, "portfolio.csv"))
	s.Require().NoError(err)
	s.True(strings.HasPrefix(string(portfolioData), "date,total_value,cash"))
}

func (s *LedgerTestSuite) TestWriteMetricsCSV() {
	path := filepath.Join(s.T().TempDir(), "metrics.csv")
	metrics := types.PerformanceMetrics{
		TotalTrades:   3,
		WinningTrades: 2,
		LosingTrades:  1,
		WinRate:       2.0 / 3,
		MaxDrawdown:   0.25,
	}

	s.Require().NoError(s.ledger.WriteMetricsCSV(path, metrics))

	data, err := os.ReadFile(path)
	s.Require().NoError(err)
	s.Contains(string(data), "max_drawdown,0.25")
	s.Contains(string(data), "total_trades,3.0")
}

func (s *LedgerTestSuite) TestCleanupResets() {
	s.Require().NoError(s.ledger.AppendTrade(ledgerTrade(1, "BTC", types.TradeActionBuy, optional.None[float64]())))
	s.Require().NoError(s.ledger.Cleanup())

	trades, err := s.ledger.Trades()
	s.Require().NoError(err)
	s.Empty(trades)
}

func TestFormatPositions(t *testing.T) {
	assert.Equal(t, "", formatPositions(nil))

	got := formatPositions(map[string]types.Position{
		"ETH": {AssetID: "ETH", Quantity: 2, CurrentPrice: 50},
		"BTC": {AssetID: "BTC", Quantity: 10, CurrentPrice: 100},
	})
	assert.Equal(t, "BTC: 10.0000@100.0000; ETH: 2.0000@50.0000", got)
}
