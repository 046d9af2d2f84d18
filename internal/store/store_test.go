package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"orderdesk/internal/domain"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%q) returned error: %v", dbPath, err)
	}
	t.Cleanup(func() {
		if cerr := s.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	})
	return s
}

func entryAt(id string, symbol string, at time.Time) domain.HistoryEntry {
	return domain.HistoryEntry{
		CorrelationID: id,
		Intent: domain.OrderIntent{
			Symbol:     symbol,
			Side:       domain.SideBuy,
			Quantity:   10,
			OrderType:  domain.OrderTypeMarket,
			AssetClass: domain.AssetClassStock,
		},
		Status:    domain.OrderStatusExecuted,
		CreatedAt: at,
	}
}

func TestSQLiteStoreOpen(t *testing.T) {
	s := openTestStore(t)

	// Verify the store is usable by pinging the database.
	if err := s.db.Ping(); err != nil {
		t.Fatalf("db.Ping() returned error: %v", err)
	}

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("reading user_version: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("user_version = %d, want %d", version, len(migrations))
	}
}

func TestSQLiteStoreReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "orderdesk.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	ctx := context.Background()
	if err := s.RecordSubmission(ctx, "req-1", domain.SubmissionResult{Accepted: true}); err != nil {
		t.Fatalf("RecordSubmission: %v", err)
	}
	s.Close()

	s, err = NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer s.Close()
	if _, err := s.LookupSubmission(ctx, "req-1"); err != nil {
		t.Errorf("LookupSubmission after reopen: %v", err)
	}
}

func TestHistoryAppendList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 18, 14, 30, 0, 0, time.UTC)

	for i, sym := range []string{"SPY", "AAPL", "TSLA"} {
		id, err := s.AppendHistory(ctx, entryAt("req-"+sym, sym, base.Add(time.Duration(i)*time.Minute)))
		if err != nil {
			t.Fatalf("AppendHistory(%s): %v", sym, err)
		}
		if id != int64(i+1) {
			t.Errorf("AppendHistory(%s) id = %d, want %d", sym, id, i+1)
		}
	}

	got, err := s.ListHistory(ctx, 2)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListHistory returned %d entries, want 2", len(got))
	}
	if got[0].Intent.Symbol != "TSLA" || got[1].Intent.Symbol != "AAPL" {
		t.Errorf("ListHistory order = %s, %s; want TSLA, AAPL", got[0].Intent.Symbol, got[1].Intent.Symbol)
	}
	if !got[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("CreatedAt = %v", got[0].CreatedAt)
	}
	if got[0].Status != domain.OrderStatusExecuted || got[0].Intent.Quantity != 10 {
		t.Errorf("entry = %+v", got[0])
	}
}

func TestTemplatesCRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	price := 450.5

	a, err := s.CreateTemplate(ctx, domain.TemplateDraft{Name: "spy limit", Symbol: "SPY", Side: domain.SideBuy, Quantity: 10, OrderType: domain.OrderTypeLimit, LimitPrice: &price})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	if a.ID == 0 || a.LimitPrice == nil || *a.LimitPrice != 450.5 || a.LastUsedAt != nil {
		t.Errorf("created = %+v", a)
	}
	b, err := s.CreateTemplate(ctx, domain.TemplateDraft{Name: "qqq", Symbol: "QQQ", Side: domain.SideSell, Quantity: 1, OrderType: domain.OrderTypeMarket})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	if err := s.MarkTemplateUsed(ctx, b.ID); err != nil {
		t.Fatalf("MarkTemplateUsed: %v", err)
	}
	list, err := s.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(list) != 2 || list[0].ID != b.ID || list[0].LastUsedAt == nil {
		t.Errorf("ListTemplates = %+v, want recently used template first", list)
	}

	if err := s.DeleteTemplate(ctx, a.ID); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	if _, err := s.GetTemplate(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTemplate after delete error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteTemplate(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteTemplate error = %v, want ErrNotFound", err)
	}
	if err := s.MarkTemplateUsed(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkTemplateUsed(999) error = %v, want ErrNotFound", err)
	}
}

func TestTemplateRejectsBlankName(t *testing.T) {
	s := openTestStore(t)
	_, err := s.CreateTemplate(context.Background(), domain.TemplateDraft{Name: "", Symbol: "SPY"})
	if err == nil {
		t.Fatal("CreateTemplate with blank name should fail")
	}
}

func TestSubmissionLedger(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.LookupSubmission(ctx, "req-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LookupSubmission on empty ledger error = %v, want ErrNotFound", err)
	}

	orders := []domain.OrderIntent{{Symbol: "SPY", Side: domain.SideBuy, Quantity: 10}}
	if err := s.RecordSubmission(ctx, "req-1", domain.SubmissionResult{Accepted: true, Orders: orders}); err != nil {
		t.Fatalf("RecordSubmission: %v", err)
	}
	// A second record for the same ID keeps the first result.
	if err := s.RecordSubmission(ctx, "req-1", domain.SubmissionResult{Accepted: false}); err != nil {
		t.Fatalf("second RecordSubmission: %v", err)
	}

	got, err := s.LookupSubmission(ctx, "req-1")
	if err != nil {
		t.Fatalf("LookupSubmission: %v", err)
	}
	if !got.Accepted || len(got.Orders) != 1 || got.Orders[0].Symbol != "SPY" {
		t.Errorf("LookupSubmission = %+v", got)
	}
}

func TestHistoryArchivePath(t *testing.T) {
	a := NewHistoryArchive("/data")
	got := a.dayPath("2025-06-18")
	want := filepath.Join("/data", "history", "2025-06-18.parquet")
	if got != want {
		t.Errorf("dayPath mismatch:\n  got  %s\n  want %s", got, want)
	}
	if !strings.HasSuffix(got, ".parquet") {
		t.Errorf("dayPath should end in .parquet: %s", got)
	}
}

func TestHistoryArchiveWriteRead(t *testing.T) {
	a := NewHistoryArchive(t.TempDir())
	ctx := context.Background()
	day := time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC)

	opt := entryAt("req-opt", "TSLA", day.Add(15*time.Hour))
	opt.ID = 2
	opt.Intent.AssetClass = domain.AssetClassOption
	opt.Intent.OptionType = domain.OptionTypeCall
	opt.Intent.StrikePrice = 250
	opt.Intent.ExpirationDate = "2025-06-20"
	stock := entryAt("req-stk", "SPY", day.Add(14*time.Hour))
	stock.ID = 1

	if err := a.WriteEntries(ctx, []domain.HistoryEntry{opt, stock}); err != nil {
		t.Fatalf("WriteEntries: %v", err)
	}
	// Rewriting the same ID merges instead of duplicating.
	stock.Status = domain.OrderStatusCancelled
	if err := a.WriteEntries(ctx, []domain.HistoryEntry{stock}); err != nil {
		t.Fatalf("WriteEntries (second): %v", err)
	}

	got, err := a.ReadDay(ctx, day)
	if err != nil {
		t.Fatalf("ReadDay: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadDay returned %d entries, want 2", len(got))
	}
	if got[0].ID != 1 || got[0].Status != domain.OrderStatusCancelled {
		t.Errorf("first entry = %+v, want updated SPY entry", got[0])
	}
	if got[1].Intent.StrikePrice != 250 || got[1].Intent.ExpirationDate != "2025-06-20" {
		t.Errorf("option fields lost: %+v", got[1].Intent)
	}

	missing, err := a.ReadDay(ctx, day.AddDate(0, 0, 1))
	if err != nil || missing != nil {
		t.Errorf("ReadDay(missing) = %v, %v; want nil, nil", missing, err)
	}
}

func TestHistoryArchiveMovesOldEntries(t *testing.T) {
	s := openTestStore(t)
	a := NewHistoryArchive(t.TempDir())
	ctx := context.Background()

	old := time.Date(2025, 6, 17, 15, 0, 0, 0, time.UTC)
	recent := time.Date(2025, 6, 19, 15, 0, 0, 0, time.UTC)
	for _, e := range []domain.HistoryEntry{
		entryAt("req-a", "SPY", old),
		entryAt("req-b", "QQQ", old.Add(time.Hour)),
		entryAt("req-c", "IWM", recent),
	} {
		if _, err := s.AppendHistory(ctx, e); err != nil {
			t.Fatalf("AppendHistory: %v", err)
		}
	}

	n, err := a.Archive(ctx, s, time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if n != 2 {
		t.Errorf("Archive moved %d entries, want 2", n)
	}

	remaining, err := s.ListHistory(ctx, 10)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Intent.Symbol != "IWM" {
		t.Errorf("remaining = %+v, want only IWM", remaining)
	}

	days, err := a.ListDays()
	if err != nil {
		t.Fatalf("ListDays: %v", err)
	}
	if len(days) != 1 || days[0] != "2025-06-17" {
		t.Errorf("ListDays = %v, want [2025-06-17]", days)
	}
}

func TestConcurrentWriterWaitsForLock(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "shared.db")
	a, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer a.Close()
	b, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore (second handle): %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO order_history (correlation_id, symbol, status, intent, created_at) VALUES ('req-0', 'SPY', 'executed', '{}', 0)`,
	); err != nil {
		t.Fatalf("insert under tx: %v", err)
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = tx.Commit()
	}()

	if err := b.RecordSubmission(ctx, "req-1", domain.SubmissionResult{Accepted: true}); err != nil {
		t.Fatalf("RecordSubmission while another writer holds the lock: %v", err)
	}
	if _, err := b.LookupSubmission(ctx, "req-1"); err != nil {
		t.Errorf("LookupSubmission: %v", err)
	}
}
