package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/openquant-lab/breakwater/internal/backtest/engine/engine_v1/datasource"
	"github.com/openquant-lab/breakwater/internal/indicator"
	"github.com/openquant-lab/breakwater/internal/logger"
	"github.com/openquant-lab/breakwater/internal/types"
	"github.com/openquant-lab/breakwater/pkg/errors"
	"go.uber.org/zap"
)

// signalGenerator scores every asset in the universe at a given date. A
// failure to score one asset never aborts the sweep: that asset is skipped
// for the step and the failure is logged.
type signalGenerator struct {
	indicator    *indicator.Engine
	dataSource   datasource.DataSource
	logger       *logger.Logger
	lookbackDays int
	parallelism  int
}

func newSignalGenerator(ind *indicator.Engine, ds datasource.DataSource, log *logger.Logger, lookbackDays, parallelism int) *signalGenerator {
	return &signalGenerator{
		indicator:    ind,
		dataSource:   ds,
		logger:       log,
		lookbackDays: lookbackDays,
		parallelism:  parallelism,
	}
}

// generate scores the whole universe as of the given date. Assets whose
// at-or-before history is shorter than the lookback are skipped with a
// debug log; other per-asset failures are logged at warn level. The result
// map is keyed by asset id and is independent of worker scheduling.
func (g *signalGenerator) generate(asOf time.Time) (map[string]types.SignalScore, error) {
	universe := g.dataSource.Universe()
	if len(universe) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyUniverse, "data source has no assets")
	}

	workers := g.parallelism
	if workers <= 0 {
		workers = 1
	}

	if workers > len(universe) {
		workers = len(universe)
	}

	// One slot per asset keeps the merge deterministic regardless of
	// which worker finishes first.
	results := make([]*types.SignalScore, len(universe))
	jobs := make(chan int)

	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for idx := range jobs {
				results[idx] = g.scoreAsset(universe[idx], asOf)
			}
		}()
	}

	for idx := range universe {
		jobs <- idx
	}

	close(jobs)
	wg.Wait()

	scores := make(map[string]types.SignalScore, len(universe))

	for _, score := range results {
		if score != nil {
			scores[score.AssetID] = *score
		}
	}

	return scores, nil
}

// scoreAsset computes one asset's signal score, returning nil when the asset
// cannot be scored at this date.
func (g *signalGenerator) scoreAsset(assetID string, asOf time.Time) *types.SignalScore {
	series, err := g.dataSource.Series(assetID)
	if err != nil {
		g.logger.Warn("Failed to load asset series",
			zap.String("asset", assetID),
			zap.Error(err),
		)

		return nil
	}

	window := series.Window(asOf, g.lookbackDays)
	if len(window) < g.lookbackDays {
		g.logger.Debug("Skipping asset with insufficient history",
			zap.String("asset", assetID),
			zap.Time("date", asOf),
			zap.Int("observations", len(window)),
		)

		return nil
	}

	score, err := g.indicator.Compute(assetID, window)
	if err != nil {
		if errors.IsInsufficientDataError(err) {
			g.logger.Debug("Skipping asset with insufficient history",
				zap.String("asset", assetID),
				zap.Time("date", asOf),
				zap.Error(err),
			)
		} else {
			g.logger.Warn("Failed to compute signal score",
				zap.String("asset", assetID),
				zap.Time("date", asOf),
				zap.Error(err),
			)
		}

		return nil
	}

	score.Date = asOf

	return &score
}

// RankScores orders scores best first, breaking score ties by asset id so
// the ranking is stable across runs.
func RankScores(scores map[string]types.SignalScore) []types.SignalScore {
	ranked := make([]types.SignalScore, 0, len(scores))
	for _, score := range scores {
		ranked = append(ranked, score)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].TotalScore != ranked[j].TotalScore {
			return ranked[i].TotalScore > ranked[j].TotalScore
		}

		return ranked[i].AssetID < ranked[j].AssetID
	})

	return ranked
}
