package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"buffet/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string

	mu sync.RWMutex
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for bar data.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	AssetType string  `parquet:"asset_type"`
	Timestamp int64   `parquet:"timestamp,timestamp(nanosecond)"` // Unix ns, UTC
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

func (r BarRecord) toBar() domain.Bar {
	return domain.Bar{
		Symbol:    r.Symbol,
		Timestamp: time.Unix(0, r.Timestamp).UTC(),
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
	}
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by symbol and year.
// Each symbol+year combination produces a separate file at:
//
//	<DataDir>/bars/<SYMBOL>/<YYYY>.parquet
//
// Bars already stored for the same timestamp are replaced.
func (s *ParquetStore) WriteBars(ctx context.Context, symbol string, assetType domain.AssetType, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return fmt.Errorf("%w: empty symbol", domain.ErrInvalidInput)
	}

	groups := make(map[int][]BarRecord)
	for _, b := range bars {
		ts := b.Timestamp.UTC()
		groups[ts.Year()] = append(groups[ts.Year()], BarRecord{
			Symbol:    symbol,
			AssetType: string(assetType),
			Timestamp: ts.UnixNano(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for year, records := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := s.barPath(symbol, year)

		existing, err := readParquetFile[BarRecord](path)
		if err != nil {
			return domain.NewStoreError(fmt.Sprintf("reading bars for %s/%d", symbol, year), err)
		}
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return domain.NewStoreError(fmt.Sprintf("writing bars for %s/%d", symbol, year), err)
		}
	}
	return nil
}

// ReadBars reads bar data for symbol within [start, end], ascending by
// timestamp. Years with no file contribute nothing.
func (s *ParquetStore) ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	start, end = start.UTC(), end.UTC()
	if end.Before(start) {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var bars []domain.Bar
	for year := start.Year(); year <= end.Year(); year++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := readParquetFile[BarRecord](s.barPath(symbol, year))
		if err != nil {
			return nil, domain.NewStoreError(fmt.Sprintf("reading bars for %s/%d", symbol, year), err)
		}

		lo, hi := start.UnixNano(), end.UnixNano()
		for _, r := range records {
			if r.Timestamp >= lo && r.Timestamp <= hi {
				bars = append(bars, r.toBar())
			}
		}
	}
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}

// ListSymbols lists all symbols that have bar data.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "bars"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, domain.NewStoreError("listing symbols", err)
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/bars/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol string, year int) string {
	return filepath.Join(s.DataDir, "bars", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

// writeParquetFile writes records to a temporary sibling and renames it over
// path so readers never observe a partial file.
func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, records); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// readParquetFile returns the rows stored at path. A missing file yields no
// rows and no error.
func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
