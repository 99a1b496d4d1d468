// Package datasource loads bar series from local files into the shape the
// backtest engine replays. CSV and Parquet files are both read through an
// embedded DuckDB instance, so the two formats share one scanning path and
// one column contract.
package datasource

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/moznion/go-optional"

	"github.com/backcast-lab/backcast/internal/logger"
	"github.com/backcast-lab/backcast/internal/types"
	"github.com/backcast-lab/backcast/pkg/errors"
)

// BarSource streams the rows of one local file in time order. Implementations
// yield rows as they are scanned; validation and per-code assembly happen in
// LoadSeries.
type BarSource interface {
	// ReadAll yields every row within the optional inclusive time bounds.
	// Iteration stops at the first error, which is yielded to the caller.
	ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.Bar, error) bool)
	// Close releases the underlying database handle.
	Close() error
}

// Open picks the source implementation from the file extension.
func Open(path string, log *logger.Logger) (BarSource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return NewCSVSource(path, log)
	case ".parquet":
		return NewParquetSource(path, log)
	default:
		return nil, errors.Newf(errors.ErrCodeDataSourceUnavailable,
			"unsupported data file %s: expected .csv or .parquet", path)
	}
}

// LoadSeries drains a source into validated per-code series ready for the
// engine's SetDataSet.
func LoadSeries(source BarSource, start optional.Option[time.Time], end optional.Option[time.Time]) (map[string][]types.Bar, error) {
	raw, err := collect(source, start, end)
	if err != nil {
		return nil, err
	}

	return normalizeAll(raw)
}

// LoadPath loads one file, or every supported file in a directory, merging
// the per-code series. Files of other extensions in a directory are skipped.
func LoadPath(path string, start optional.Option[time.Time], end optional.Option[time.Time], log *logger.Logger) (map[string][]types.Bar, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataSourceUnavailable, err, "cannot read data path %s", path)
	}

	files := []string{path}

	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeDataSourceUnavailable, err, "cannot list data directory %s", path)
		}

		files = files[:0]

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			switch strings.ToLower(filepath.Ext(entry.Name())) {
			case ".csv", ".parquet":
				files = append(files, filepath.Join(path, entry.Name()))
			}
		}

		if len(files) == 0 {
			return nil, errors.Newf(errors.ErrCodeNoData, "no .csv or .parquet files in %s", path)
		}
	}

	raw := make(map[string][]types.Bar)

	for _, file := range files {
		source, err := Open(file, log)
		if err != nil {
			return nil, err
		}

		part, err := collect(source, start, end)

		if closeErr := source.Close(); closeErr != nil && err == nil {
			err = closeErr
		}

		if err != nil {
			return nil, err
		}

		for code, bars := range part {
			raw[code] = append(raw[code], bars...)
		}
	}

	return normalizeAll(raw)
}

// collect drains one source into raw per-code slices.
func collect(source BarSource, start optional.Option[time.Time], end optional.Option[time.Time]) (map[string][]types.Bar, error) {
	raw := make(map[string][]types.Bar)

	var iterErr error

	source.ReadAll(start, end)(func(bar types.Bar, err error) bool {
		if err != nil {
			iterErr = err

			return false
		}

		raw[bar.Code] = append(raw[bar.Code], bar)

		return true
	})

	if iterErr != nil {
		return nil, iterErr
	}

	return raw, nil
}

func normalizeAll(raw map[string][]types.Bar) (map[string][]types.Bar, error) {
	if len(raw) == 0 {
		return nil, errors.New(errors.ErrCodeNoData, "no bars loaded")
	}

	series := make(map[string][]types.Bar, len(raw))

	for code, bars := range raw {
		normalized, _, err := types.NormalizeSeries(code, bars)
		if err != nil {
			return nil, err
		}

		series[code] = normalized
	}

	return series, nil
}
