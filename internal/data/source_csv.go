package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tradeedge/signalcore/internal/domain"
)

// CSVSource serves bars from per-symbol CSV files in a directory. Used for
// offline scans and backtests; live deployments plug in a provider-backed
// Source instead.
type CSVSource struct {
	dir string
}

func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{dir: dir}
}

func (s *CSVSource) Name() string { return "csv" }

// Bars reads <dir>/<symbol>.csv with columns date,open,high,low,close,volume
// and a header row. Rows must be in ascending date order.
func (s *CSVSource) Bars(ctx context.Context, symbol string, limit int) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, symbol+".csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bars for %s: %w", symbol, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse bars for %s: %w", symbol, err)
	}
	if len(rows) > 0 {
		rows = rows[1:] // header
	}

	bars := make([]domain.Bar, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("bad row %d in %s: %d columns", i+2, path, len(row))
		}
		bar, err := parseBarRow(row)
		if err != nil {
			return nil, fmt.Errorf("bad row %d in %s: %w", i+2, path, err)
		}
		bars = append(bars, bar)
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

func parseBarRow(row []string) (domain.Bar, error) {
	t, err := time.Parse("2006-01-02", row[0])
	if err != nil {
		return domain.Bar{}, err
	}
	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return domain.Bar{}, err
		}
		vals[i] = v
	}
	return domain.Bar{
		Time:   t.UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}
