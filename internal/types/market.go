package types

import (
	"sort"
	"time"

	"github.com/openquant-lab/breakwater/pkg/errors"
)

// Observation is a single daily data point for one asset.
type Observation struct {
	Date      time.Time `csv:"date"`
	Price     float64   `csv:"price"`
	Volume    float64   `csv:"volume"`
	MarketCap float64   `csv:"market_cap"`
}

// AssetSeries is an ordered, date-indexed sequence of observations for one
// asset: one observation per date, chronological, immutable once built.
type AssetSeries struct {
	AssetID      string
	observations []Observation
	dateIndex    map[int64]int
}

// NewAssetSeries builds a series from raw observations. Input may be
// unsorted and may contain duplicate dates; dates are normalized to UTC
// midnight, duplicates are deduplicated (last one wins), and the result is
// sorted chronologically.
func NewAssetSeries(assetID string, observations []Observation) *AssetSeries {
	byDate := make(map[int64]Observation, len(observations))

	for _, obs := range observations {
		obs.Date = NormalizeDate(obs.Date)
		byDate[obs.Date.Unix()] = obs
	}

	deduped := make([]Observation, 0, len(byDate))
	for _, obs := range byDate {
		deduped = append(deduped, obs)
	}

	sort.Slice(deduped, func(i, j int) bool {
		return deduped[i].Date.Before(deduped[j].Date)
	})

	index := make(map[int64]int, len(deduped))
	for i, obs := range deduped {
		index[obs.Date.Unix()] = i
	}

	return &AssetSeries{
		AssetID:      assetID,
		observations: deduped,
		dateIndex:    index,
	}
}

// NormalizeDate truncates a timestamp to UTC midnight, the canonical form
// for daily observations.
func NormalizeDate(t time.Time) time.Time {
	utc := t.UTC()

	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

// Len returns the number of observations in the series.
func (s *AssetSeries) Len() int {
	return len(s.observations)
}

// Observations returns the full chronological observation slice. Callers
// must not mutate it.
func (s *AssetSeries) Observations() []Observation {
	return s.observations
}

// At returns the observation for the given date.
func (s *AssetSeries) At(date time.Time) (Observation, error) {
	i, ok := s.dateIndex[NormalizeDate(date).Unix()]
	if !ok {
		return Observation{}, errors.Newf(errors.ErrCodeMissingPrice,
			"no observation for asset %s at %s", s.AssetID, date.Format(time.DateOnly))
	}

	return s.observations[i], nil
}

// PriceAt returns the price for the given date.
func (s *AssetSeries) PriceAt(date time.Time) (float64, error) {
	obs, err := s.At(date)
	if err != nil {
		return 0, err
	}

	return obs.Price, nil
}

// Window returns the last n observations at-or-before asOf. If fewer than n
// exist, all available observations at-or-before asOf are returned.
func (s *AssetSeries) Window(asOf time.Time, n int) []Observation {
	end := s.upperBound(NormalizeDate(asOf))
	if end == 0 {
		return nil
	}

	start := end - n
	if start < 0 {
		start = 0
	}

	return s.observations[start:end]
}

// LastDate returns the date of the most recent observation.
func (s *AssetSeries) LastDate() (time.Time, bool) {
	if len(s.observations) == 0 {
		return time.Time{}, false
	}

	return s.observations[len(s.observations)-1].Date, true
}

// upperBound returns the count of observations with Date <= asOf.
func (s *AssetSeries) upperBound(asOf time.Time) int {
	return sort.Search(len(s.observations), func(i int) bool {
		return s.observations[i].Date.After(asOf)
	})
}
