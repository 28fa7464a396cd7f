// Package datasource provides the historical data backing a backtest run:
// per asset, an ordered, deduplicated, timezone-normalized series of daily
// observations. All data is fully loaded before the simulation starts; no
// I/O happens inside the run loop.
package datasource

import (
	"time"

	"github.com/openquant-lab/breakwater/internal/types"
)

// DataSource exposes the loaded universe to the engine.
type DataSource interface {
	// Universe returns all asset ids, sorted ascending.
	Universe() []string
	// Series returns the observation series for one asset.
	Series(assetID string) (*types.AssetSeries, error)
	// AllDates returns the sorted union of every asset's observation dates.
	AllDates() []time.Time
	// Close releases any resources held by the data source.
	Close() error
}
