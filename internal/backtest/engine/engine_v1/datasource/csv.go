package datasource

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/openquant-lab/breakwater/internal/logger"
	"github.com/openquant-lab/breakwater/internal/types"
	"github.com/openquant-lab/breakwater/pkg/errors"
	"go.uber.org/zap"
)

// csvColumns is the expected header of an asset data file.
var csvColumns = []string{"date", "price", "volume", "market_cap"}

// LoadCSV builds a MemoryDataSource from CSV files matching the given glob
// pattern. Each file holds one asset's daily observations with a
// date,price,volume,market_cap header; the asset id is the file's base name
// without extension. Rows with unparsable values are skipped with a
// warning; a file with no valid rows is an error.
func LoadCSV(pattern string, log *logger.Logger) (*MemoryDataSource, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataParseFailed, err, "invalid data pattern %q", pattern)
	}

	if len(paths) == 0 {
		return nil, errors.Newf(errors.ErrCodeEmptyUniverse, "no data files match %q", pattern)
	}

	series := make([]*types.AssetSeries, 0, len(paths))

	for _, path := range paths {
		assetID := strings.ToUpper(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))

		s, err := loadAssetCSV(assetID, path, log)
		if err != nil {
			return nil, err
		}

		series = append(series, s)

		log.Debug("Loaded asset series",
			zap.String("asset", assetID),
			zap.String("path", path),
			zap.Int("observations", s.Len()),
		)
	}

	return NewMemoryDataSource(series), nil
}

func loadAssetCSV(assetID, path string, log *logger.Logger) (*types.AssetSeries, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataParseFailed, err, "failed to open %s", path)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataParseFailed, err, "failed to read header of %s", path)
	}

	columns, err := columnIndexes(header)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataParseFailed, err, "invalid header in %s", path)
	}

	var observations []types.Observation

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeDataParseFailed, err, "failed to read %s", path)
		}

		obs, err := parseObservation(record, columns)
		if err != nil {
			log.Warn("Skipping unparsable row",
				zap.String("asset", assetID),
				zap.String("path", path),
				zap.Int("line", line),
				zap.Error(err),
			)

			continue
		}

		observations = append(observations, obs)
	}

	if len(observations) == 0 {
		return nil, errors.Newf(errors.ErrCodeDataParseFailed, "no valid observations in %s", path)
	}

	return types.NewAssetSeries(assetID, observations), nil
}

func columnIndexes(header []string) (map[string]int, error) {
	indexes := make(map[string]int, len(header))
	for i, name := range header {
		indexes[strings.ToLower(strings.TrimSpace(name))] = i
	}

	for _, required := range csvColumns {
		if _, ok := indexes[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	return indexes, nil
}

func parseObservation(record []string, columns map[string]int) (types.Observation, error) {
	field := func(name string) (string, error) {
		i := columns[name]
		if i >= len(record) {
			return "", fmt.Errorf("missing field %q", name)
		}

		return strings.TrimSpace(record[i]), nil
	}

	rawDate, err := field("date")
	if err != nil {
		return types.Observation{}, err
	}

	date, err := parseDate(rawDate)
	if err != nil {
		return types.Observation{}, err
	}

	values := make(map[string]float64, 3)

	for _, name := range []string{"price", "volume", "market_cap"} {
		raw, err := field(name)
		if err != nil {
			return types.Observation{}, err
		}

		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return types.Observation{}, fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}

		values[name] = v
	}

	return types.Observation{
		Date:      date,
		Price:     values["price"],
		Volume:    values["volume"],
		MarketCap: values["market_cap"],
	}, nil
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{time.DateOnly, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid date %q", raw)
}
