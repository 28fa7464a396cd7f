package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/openquant-lab/breakwater/internal/backtest/engine"
	"github.com/openquant-lab/breakwater/internal/backtest/engine/engine_v1/datasource"
	"github.com/openquant-lab/breakwater/internal/logger"
	"github.com/openquant-lab/breakwater/internal/types"
	"github.com/openquant-lab/breakwater/pkg/errors"
	"github.com/stretchr/testify/suite"
)

const testConfigYAML = `
initial_capital: 10000
stop_loss: 0.1
take_profit: 0.2
max_position_size: 0.1
min_trade_amount: 100
max_positions: 5
lookback_days: 90
entry_threshold: 7.0
risk_free_rate: 0.02
parallelism: 1
`

type BacktestEngineTestSuite struct {
	suite.Suite
	engine *BacktestEngineV1
}

func TestBacktestEngineSuite(t *testing.T) {
	suite.Run(t, new(BacktestEngineTestSuite))
}

func (s *BacktestEngineTestSuite) SetupTest() {
	s.engine = &BacktestEngineV1{
		config:     nil,
		dataSource: nil,
		logger:     logger.NewNopLogger(),
	}
}

// flatSeries returns n days of constant price and volume.
func flatSeries(assetID string, n int, price float64) *types.AssetSeries {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	observations := make([]types.Observation, n)

	for i := range observations {
		observations[i] = types.Observation{
			Date:      start.AddDate(0, 0, i),
			Price:     price,
			Volume:    1000,
			MarketCap: 50_000_000,
		}
	}

	return types.NewAssetSeries(assetID, observations)
}

// breakoutSeries returns a long consolidation followed by a price and
// volume surge over the final days.
func breakoutSeries(assetID string, flatDays, surgeDays int) *types.AssetSeries {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	observations := make([]types.Observation, 0, flatDays+surgeDays)

	for i := 0; i < flatDays; i++ {
		observations = append(observations, types.Observation{
			Date:      start.AddDate(0, 0, i),
			Price:     100,
			Volume:    1000,
			MarketCap: 1_000_000,
		})
	}

	for i := 0; i < surgeDays; i++ {
		observations = append(observations, types.Observation{
			Date:      start.AddDate(0, 0, flatDays+i),
			Price:     120,
			Volume:    2000,
			MarketCap: 1_200_000,
		})
	}

	return types.NewAssetSeries(assetID, observations)
}

func (s *BacktestEngineTestSuite) initialize(series ...*types.AssetSeries) {
	s.Require().NoError(s.engine.Initialize(testConfigYAML))
	s.Require().NoError(s.engine.SetDataSource(datasource.NewMemoryDataSource(series)))
}

func (s *BacktestEngineTestSuite) TestInitializeInvalidConfig() {
	err := s.engine.Initialize("initial_capital: -5")
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (s *BacktestEngineTestSuite) TestInitializeRejectsBadIndicatorConfig() {
	err := s.engine.Initialize(testConfigYAML + `
indicator:
  base_lookback: 90
  recent_window: 14
  rsi_period: 14
  short_ma_period: 20
  long_ma_period: 60
  min_observations: 5
  consolidation_range_scale: 0.5
  breakout_price_scale: 0.2
  breakout_volume_scale: 1.0
  rsi_trend_scale: 30
  ma_cross_scale: 0.1
  market_cap_log_ceiling: 11
  market_cap_log_scale: 2
  weights:
    consolidation: 0.2
    volume_stability: 0.1
    breakout: 0.2
    breakout_volume: 0.15
    rsi_trend: 0.15
    ma_cross: 0.1
    market_cap: 0.1
`)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (s *BacktestEngineTestSuite) TestInitializeMalformedYAML() {
	err := s.engine.Initialize("{not yaml")
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (s *BacktestEngineTestSuite) TestRunRequiresInitialization() {
	_, err := s.engine.Run(optional.None[engine.OnStepCallback]())
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeNotInitialized))
}

func (s *BacktestEngineTestSuite) TestRunRequiresDataSource() {
	s.Require().NoError(s.engine.Initialize(testConfigYAML))

	_, err := s.engine.Run(optional.None[engine.OnStepCallback]())
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeNoDataSource))
}

func (s *BacktestEngineTestSuite) TestFlatMarketProducesNoTrades() {
	s.initialize(flatSeries("BTC", 120, 100))

	result, err := s.engine.Run(optional.None[engine.OnStepCallback]())
	s.Require().NoError(err)

	s.Empty(result.Trades)
	s.Len(result.Snapshots, 120)
	s.InDelta(10000, result.Snapshots[119].TotalValue, 1e-9)
	s.Equal(0, result.Metrics.TotalTrades)
	s.InDelta(0, result.Metrics.TotalReturn, 1e-9)
}

func (s *BacktestEngineTestSuite) TestBreakoutTriggersEntry() {
	s.initialize(breakoutSeries("BTC", 106, 14))

	result, err := s.engine.Run(optional.None[engine.OnStepCallback]())
	s.Require().NoError(err)

	s.Require().NotEmpty(result.Trades)
	s.Equal(types.TradeActionBuy, result.Trades[0].Action)
	s.Equal("BTC", result.Trades[0].AssetID)
	s.Require().True(result.Trades[0].SignalScore.IsSome())
	s.Greater(result.Trades[0].SignalScore.Unwrap(), 7.0)
}

func (s *BacktestEngineTestSuite) TestSnapshotInvariants() {
	s.initialize(
		breakoutSeries("BTC", 106, 14),
		flatSeries("ETH", 120, 50),
	)

	result, err := s.engine.Run(optional.None[engine.OnStepCallback]())
	s.Require().NoError(err)

	for _, snap := range result.Snapshots {
		s.LessOrEqual(len(snap.Positions), 5)

		sum := snap.Cash
		for _, position := range snap.Positions {
			sum += position.Value()
		}

		s.InDelta(snap.TotalValue, sum, 1e-6)
	}
}

func (s *BacktestEngineTestSuite) TestProgressCallback() {
	s.initialize(flatSeries("BTC", 40, 100))

	var calls, lastCurrent, lastTotal int

	callback := engine.OnStepCallback(func(current, total int) {
		calls++
		lastCurrent = current
		lastTotal = total
	})

	_, err := s.engine.Run(optional.Some(callback))
	s.Require().NoError(err)

	s.Equal(40, calls)
	s.Equal(40, lastCurrent)
	s.Equal(40, lastTotal)
}

func (s *BacktestEngineTestSuite) TestTimeBounds() {
	s.Require().NoError(s.engine.Initialize(testConfigYAML + `
start_time: 2024-02-01T00:00:00Z
end_time: 2024-02-10T00:00:00Z
`))
	s.Require().NoError(s.engine.SetDataSource(
		datasource.NewMemoryDataSource([]*types.AssetSeries{flatSeries("BTC", 120, 100)})))

	result, err := s.engine.Run(optional.None[engine.OnStepCallback]())
	s.Require().NoError(err)

	s.Len(result.Snapshots, 10)
	s.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), result.Snapshots[0].Date)
}

func (s *BacktestEngineTestSuite) TestGenerateSignalsDeterministic() {
	s.initialize(
		breakoutSeries("BTC", 106, 14),
		flatSeries("ETH", 120, 50),
		breakoutSeries("ADA", 100, 20),
	)

	asOf := time.Date(2024, 4, 29, 0, 0, 0, 0, time.UTC)

	sequential, err := s.engine.GenerateSignals(asOf)
	s.Require().NoError(err)
	s.Require().NotEmpty(sequential)

	s.engine.config.Parallelism = 8

	parallel, err := s.engine.GenerateSignals(asOf)
	s.Require().NoError(err)

	s.Equal(sequential, parallel)
}

func (s *BacktestEngineTestSuite) TestGenerateSignalsSkipsShortHistory() {
	s.initialize(
		flatSeries("BTC", 120, 100),
		flatSeries("NEW", 10, 100), // below the minimum observation count
		flatSeries("MID", 45, 100), // enough for the indicator, short of the lookback
	)

	scores, err := s.engine.GenerateSignals(time.Date(2024, 4, 29, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(err)

	s.Contains(scores, "BTC")
	s.NotContains(scores, "NEW")
	s.NotContains(scores, "MID")
}

func (s *BacktestEngineTestSuite) TestWriteResults() {
	s.initialize(breakoutSeries("BTC", 106, 14))

	result, err := s.engine.Run(optional.None[engine.OnStepCallback]())
	s.Require().NoError(err)

	dir := s.T().TempDir()
	s.Require().NoError(s.engine.WriteResults(result, dir))

	for _, name := range []string{"trades.csv", "portfolio.csv", "metrics.csv", "metrics.yaml", "state.db"} {
		_, err := os.Stat(filepath.Join(dir, name))
		s.Require().NoError(err, name)
	}
}

func (s *BacktestEngineTestSuite) TestGetConfigSchema() {
	schema, err := s.engine.GetConfigSchema()
	s.Require().NoError(err)
	s.Contains(schema, "initial_capital")
}
