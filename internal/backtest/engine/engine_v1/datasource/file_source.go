package datasource

import (
	"database/sql"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/backcast-lab/backcast/internal/logger"
	"github.com/backcast-lab/backcast/internal/types"
	"github.com/backcast-lab/backcast/pkg/errors"
)

// fileSource reads one local file through an embedded DuckDB view. The
// required columns are time, open, high, low and close; an instrument column
// (code or symbol) and volume are optional. Column names are matched case
// insensitively.
type fileSource struct {
	db  *sql.DB
	log *logger.Logger
	sq  squirrel.StatementBuilderType

	path     string
	codeExpr string
	volExpr  string
}

func newFileSource(path, reader string, log *logger.Logger) (*fileSource, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to open database", err)
	}

	s := &fileSource{
		db:   db,
		log:  log,
		sq:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		path: path,
	}

	view := fmt.Sprintf("CREATE VIEW bars AS SELECT * FROM %s('%s')", reader, sqlEscape(path))
	if _, err := db.Exec(view); err != nil {
		_ = db.Close()

		return nil, errors.Wrapf(errors.ErrCodeDataSourceUnavailable, err, "cannot read %s", path)
	}

	columns, err := s.columns()
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	for _, required := range []string{"time", "open", "high", "low", "close"} {
		if !columns[required] {
			_ = db.Close()

			return nil, errors.Newf(errors.ErrCodeDataSourceUnavailable,
				"%s has no %q column", path, required)
		}
	}

	switch {
	case columns["code"]:
		s.codeExpr = "code"
	case columns["symbol"]:
		s.codeExpr = "symbol AS code"
	default:
		// A file without an instrument column holds a single instrument;
		// the file name stem becomes its code.
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		s.codeExpr = fmt.Sprintf("'%s' AS code", sqlEscape(stem))
	}

	s.volExpr = "volume"
	if !columns["volume"] {
		s.volExpr = "CAST('NaN' AS DOUBLE) AS volume"
	}

	return s, nil
}

// columns probes the view for its column names, lowercased.
func (s *fileSource) columns() (map[string]bool, error) {
	rows, err := s.db.Query("SELECT * FROM bars LIMIT 0")
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataReadFailed, err, "cannot inspect columns of %s", s.path)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataReadFailed, err, "cannot inspect columns of %s", s.path)
	}

	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[strings.ToLower(name)] = true
	}

	return set, nil
}

// ReadAll implements BarSource.
func (s *fileSource) ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.Bar, error) bool) {
	return func(yield func(types.Bar, error) bool) {
		s.log.Debug("Reading bars",
			zap.String("path", s.path),
		)

		builder := s.sq.Select("time", s.codeExpr, "open", "high", "low", "close", s.volExpr).
			From("bars").
			OrderBy("time ASC")

		if start.IsSome() {
			builder = builder.Where(squirrel.GtOrEq{"time": start.Unwrap()})
		}

		if end.IsSome() {
			builder = builder.Where(squirrel.LtOrEq{"time": end.Unwrap()})
		}

		query, args, err := builder.ToSql()
		if err != nil {
			yield(types.Bar{}, errors.Wrap(errors.ErrCodeDataReadFailed, "failed to build query", err))

			return
		}

		rows, err := s.db.Query(query, args...)
		if err != nil {
			yield(types.Bar{}, errors.Wrapf(errors.ErrCodeDataReadFailed, err, "query against %s failed", s.path))

			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				bar    types.Bar
				volume sql.NullFloat64
			)

			if err := rows.Scan(&bar.Time, &bar.Code, &bar.Open, &bar.High, &bar.Low, &bar.Close, &volume); err != nil {
				yield(types.Bar{}, errors.Wrapf(errors.ErrCodeDataReadFailed, err, "row scan against %s failed", s.path))

				return
			}

			bar.Volume = math.NaN()
			if volume.Valid {
				bar.Volume = volume.Float64
			}

			if !yield(bar, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(types.Bar{}, errors.Wrapf(errors.ErrCodeDataReadFailed, err, "row iteration against %s failed", s.path))
		}
	}
}

// Close implements BarSource.
func (s *fileSource) Close() error {
	return s.db.Close()
}

// CSVSource reads bars from a CSV file. Header names and column types are
// inferred by DuckDB.
type CSVSource struct {
	*fileSource
}

func NewCSVSource(path string, log *logger.Logger) (*CSVSource, error) {
	source, err := newFileSource(path, "read_csv_auto", log)
	if err != nil {
		return nil, err
	}

	return &CSVSource{fileSource: source}, nil
}

// ParquetSource reads bars from a Parquet file with the same column contract
// as CSVSource.
type ParquetSource struct {
	*fileSource
}

func NewParquetSource(path string, log *logger.Logger) (*ParquetSource, error) {
	source, err := newFileSource(path, "read_parquet", log)
	if err != nil {
		return nil, err
	}

	return &ParquetSource{fileSource: source}, nil
}

func sqlEscape(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}
