package datasource

import (
	"sort"
	"time"

	"github.com/openquant-lab/breakwater/internal/types"
	"github.com/openquant-lab/breakwater/pkg/errors"
)

// MemoryDataSource holds fully loaded series in memory. It is the canonical
// DataSource for tests and for embedding callers that build series
// themselves.
type MemoryDataSource struct {
	series   map[string]*types.AssetSeries
	universe []string
	allDates []time.Time
}

// NewMemoryDataSource builds a data source from already-constructed series.
func NewMemoryDataSource(series []*types.AssetSeries) *MemoryDataSource {
	byID := make(map[string]*types.AssetSeries, len(series))
	universe := make([]string, 0, len(series))

	for _, s := range series {
		if _, ok := byID[s.AssetID]; !ok {
			universe = append(universe, s.AssetID)
		}

		byID[s.AssetID] = s
	}

	sort.Strings(universe)

	dateSet := make(map[int64]time.Time)

	for _, s := range byID {
		for _, obs := range s.Observations() {
			dateSet[obs.Date.Unix()] = obs.Date
		}
	}

	allDates := make([]time.Time, 0, len(dateSet))
	for _, d := range dateSet {
		allDates = append(allDates, d)
	}

	sort.Slice(allDates, func(i, j int) bool {
		return allDates[i].Before(allDates[j])
	})

	return &MemoryDataSource{
		series:   byID,
		universe: universe,
		allDates: allDates,
	}
}

// Universe implements DataSource.
func (m *MemoryDataSource) Universe() []string {
	return m.universe
}

// Series implements DataSource.
func (m *MemoryDataSource) Series(assetID string) (*types.AssetSeries, error) {
	s, ok := m.series[assetID]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeAssetNotFound, "no series for asset %s", assetID)
	}

	return s, nil
}

// AllDates implements DataSource.
func (m *MemoryDataSource) AllDates() []time.Time {
	return m.allDates
}

// Close implements DataSource.
func (m *MemoryDataSource) Close() error {
	return nil
}
