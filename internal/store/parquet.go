package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"orderdesk/internal/domain"
)

// HistoryArchive stores order history in daily Parquet files so the SQLite
// table only holds recent entries.
type HistoryArchive struct {
	Dir string
}

// NewHistoryArchive creates a HistoryArchive rooted at dir.
func NewHistoryArchive(dir string) *HistoryArchive {
	return &HistoryArchive{Dir: dir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// HistoryRecord is the Parquet schema for an archived history entry.
type HistoryRecord struct {
	ID             int64   `parquet:"id"`
	CorrelationID  string  `parquet:"correlation_id"`
	Symbol         string  `parquet:"symbol"`
	Side           string  `parquet:"side"`
	Quantity       int64   `parquet:"quantity"`
	OrderType      string  `parquet:"order_type"`
	LimitPrice     float64 `parquet:"limit_price"`
	AssetClass     string  `parquet:"asset_class"`
	OptionType     string  `parquet:"option_type"`
	StrikePrice    float64 `parquet:"strike_price"`
	ExpirationDate string  `parquet:"expiration_date"`
	Status         string  `parquet:"status"`
	CreatedAt      int64   `parquet:"created_at,timestamp(millisecond)"` // Unix ms
}

func toRecord(e domain.HistoryEntry) HistoryRecord {
	return HistoryRecord{
		ID:             e.ID,
		CorrelationID:  e.CorrelationID,
		Symbol:         e.Intent.Symbol,
		Side:           string(e.Intent.Side),
		Quantity:       int64(e.Intent.Quantity),
		OrderType:      string(e.Intent.OrderType),
		LimitPrice:     e.Intent.LimitPrice,
		AssetClass:     string(e.Intent.AssetClass),
		OptionType:     string(e.Intent.OptionType),
		StrikePrice:    e.Intent.StrikePrice,
		ExpirationDate: e.Intent.ExpirationDate,
		Status:         string(e.Status),
		CreatedAt:      e.CreatedAt.UnixMilli(),
	}
}

func (r HistoryRecord) entry() domain.HistoryEntry {
	return domain.HistoryEntry{
		ID:            r.ID,
		CorrelationID: r.CorrelationID,
		Intent: domain.OrderIntent{
			Symbol:         r.Symbol,
			Side:           domain.Side(r.Side),
			Quantity:       int(r.Quantity),
			OrderType:      domain.OrderType(r.OrderType),
			LimitPrice:     r.LimitPrice,
			AssetClass:     domain.AssetClass(r.AssetClass),
			OptionType:     domain.OptionType(r.OptionType),
			StrikePrice:    r.StrikePrice,
			ExpirationDate: r.ExpirationDate,
		},
		Status:    domain.OrderStatus(r.Status),
		CreatedAt: time.UnixMilli(r.CreatedAt).UTC(),
	}
}

// ---------------------------------------------------------------------------
// Archive operations
// ---------------------------------------------------------------------------

// WriteEntries appends entries to their day files, grouped by UTC date.
// Entries already archived (same ID) are replaced.
func (a *HistoryArchive) WriteEntries(_ context.Context, entries []domain.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	groups := make(map[string][]HistoryRecord)
	for _, e := range entries {
		day := e.CreatedAt.UTC().Format("2006-01-02")
		groups[day] = append(groups[day], toRecord(e))
	}

	for day, records := range groups {
		path := a.dayPath(day)

		existing, _ := readParquetFile[HistoryRecord](path)
		merged := mergeHistoryRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing history for %s: %w", day, err)
		}
	}
	return nil
}

// ReadDay returns the archived entries for the UTC date of day.
func (a *HistoryArchive) ReadDay(_ context.Context, day time.Time) ([]domain.HistoryEntry, error) {
	path := a.dayPath(day.UTC().Format("2006-01-02"))
	records, err := readParquetFile[HistoryRecord](path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]domain.HistoryEntry, 0, len(records))
	for _, r := range records {
		out = append(out, r.entry())
	}
	return out, nil
}

// ListDays returns the archived dates (YYYY-MM-DD), ascending.
func (a *HistoryArchive) ListDays() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(a.Dir, "history"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var days []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".parquet") {
			days = append(days, strings.TrimSuffix(e.Name(), ".parquet"))
		}
	}
	sort.Strings(days)
	return days, nil
}

// Archive moves every entry in src created before cutoff into the archive
// and returns how many were moved. Rows are only deleted from src after the
// Parquet files are written.
func (a *HistoryArchive) Archive(ctx context.Context, src HistoryStore, cutoff time.Time) (int, error) {
	entries, err := src.HistoryBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	if err := a.WriteEntries(ctx, entries); err != nil {
		return 0, err
	}
	if _, err := src.DeleteHistoryBefore(ctx, cutoff); err != nil {
		return 0, fmt.Errorf("pruning archived history: %w", err)
	}
	return len(entries), nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// dayPath returns the filesystem path for a day's history file.
// Layout: <Dir>/history/<YYYY-MM-DD>.parquet
func (a *HistoryArchive) dayPath(day string) string {
	return filepath.Join(a.Dir, "history", day+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeHistoryRecords deduplicates records by ID, preferring incoming ones.
// Results are sorted by creation time.
func mergeHistoryRecords(existing, incoming []HistoryRecord) []HistoryRecord {
	seen := make(map[int64]HistoryRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.ID] = r
	}
	for _, r := range incoming {
		seen[r.ID] = r
	}

	merged := make([]HistoryRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].CreatedAt != merged[j].CreatedAt {
			return merged[i].CreatedAt < merged[j].CreatedAt
		}
		return merged[i].ID < merged[j].ID
	})
	return merged
}
