package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"orderdesk/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ HistoryStore = (*SQLiteStore)(nil)
var _ TemplateStore = (*SQLiteStore)(nil)
var _ SubmissionLedger = (*SQLiteStore)(nil)

// migrations are applied in order; PRAGMA user_version records how many
// have run.
var migrations = []string{
	`CREATE TABLE order_history (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		correlation_id TEXT    NOT NULL,
		symbol         TEXT    NOT NULL,
		status         TEXT    NOT NULL,
		intent         TEXT    NOT NULL,
		created_at     INTEGER NOT NULL
	);
	CREATE INDEX idx_order_history_created ON order_history(created_at);`,

	`CREATE TABLE order_templates (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		name         TEXT    NOT NULL CHECK (name <> ''),
		description  TEXT    NOT NULL DEFAULT '',
		symbol       TEXT    NOT NULL,
		side         TEXT    NOT NULL,
		quantity     INTEGER NOT NULL,
		order_type   TEXT    NOT NULL,
		limit_price  REAL,
		created_at   INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL,
		last_used_at INTEGER
	);`,

	`CREATE TABLE submissions (
		correlation_id TEXT PRIMARY KEY,
		accepted       INTEGER NOT NULL,
		orders         TEXT    NOT NULL,
		created_at     INTEGER NOT NULL
	);`,
}

// sqliteParams make a writer blocked by another connection or process wait
// up to five seconds instead of failing with SQLITE_BUSY.
const sqliteParams = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// SQLiteStore implements HistoryStore, TemplateStore and SubmissionLedger
// backed by a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies
// pending migrations and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath+sqliteParams)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	for i := version; i < len(migrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// HistoryStore implementation
// ---------------------------------------------------------------------------

// AppendHistory inserts a history entry and returns its row ID.
func (s *SQLiteStore) AppendHistory(ctx context.Context, e domain.HistoryEntry) (int64, error) {
	intent, err := json.Marshal(e.Intent)
	if err != nil {
		return 0, err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO order_history (correlation_id, symbol, status, intent, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.CorrelationID, e.Intent.Symbol, string(e.Status), string(intent), e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting history: %w", err)
	}
	return res.LastInsertId()
}

// ListHistory returns the most recent entries, newest first.
func (s *SQLiteStore) ListHistory(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryHistory(ctx,
		`SELECT id, correlation_id, status, intent, created_at FROM order_history ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
}

// HistoryBefore returns entries created before cutoff, oldest first.
func (s *SQLiteStore) HistoryBefore(ctx context.Context, cutoff time.Time) ([]domain.HistoryEntry, error) {
	return s.queryHistory(ctx,
		`SELECT id, correlation_id, status, intent, created_at FROM order_history WHERE created_at < ? ORDER BY created_at, id`,
		cutoff.UnixMilli(),
	)
}

// DeleteHistoryBefore removes entries created before cutoff.
func (s *SQLiteStore) DeleteHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM order_history WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("deleting history: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) queryHistory(ctx context.Context, query string, args ...any) ([]domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		var (
			e      domain.HistoryEntry
			status string
			intent string
			ms     int64
		)
		if err := rows.Scan(&e.ID, &e.CorrelationID, &status, &intent, &ms); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(intent), &e.Intent); err != nil {
			return nil, fmt.Errorf("decoding history %d: %w", e.ID, err)
		}
		e.Status = domain.OrderStatus(status)
		e.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// TemplateStore implementation
// ---------------------------------------------------------------------------

const templateColumns = `id, name, description, symbol, side, quantity, order_type, limit_price, created_at, updated_at, last_used_at`

// ListTemplates returns every template, most recently used first and never
// used ones last.
func (s *SQLiteStore) ListTemplates(ctx context.Context) ([]domain.OrderTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM order_templates ORDER BY last_used_at IS NULL, last_used_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("querying templates: %w", err)
	}
	defer rows.Close()

	out := []domain.OrderTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// CreateTemplate inserts a new template.
func (s *SQLiteStore) CreateTemplate(ctx context.Context, d domain.TemplateDraft) (*domain.OrderTemplate, error) {
	now := s.now().UnixMilli()
	var limit sql.NullFloat64
	if d.LimitPrice != nil {
		limit = sql.NullFloat64{Float64: *d.LimitPrice, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO order_templates (name, description, symbol, side, quantity, order_type, limit_price, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Name, d.Description, d.Symbol, string(d.Side), d.Quantity, string(d.OrderType), limit, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting template: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetTemplate(ctx, id)
}

// GetTemplate retrieves a single template by ID.
func (s *SQLiteStore) GetTemplate(ctx context.Context, id int64) (*domain.OrderTemplate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM order_templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// DeleteTemplate removes a template.
func (s *SQLiteStore) DeleteTemplate(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM order_templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting template: %w", err)
	}
	return requireRow(res)
}

// MarkTemplateUsed stamps lastUsedAt.
func (s *SQLiteStore) MarkTemplateUsed(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE order_templates SET last_used_at = ? WHERE id = ?`, s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("marking template used: %w", err)
	}
	return requireRow(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(sc scanner) (*domain.OrderTemplate, error) {
	var (
		t                domain.OrderTemplate
		side, orderType  string
		limit            sql.NullFloat64
		created, updated int64
		lastUsed         sql.NullInt64
	)
	if err := sc.Scan(&t.ID, &t.Name, &t.Description, &t.Symbol, &side, &t.Quantity, &orderType,
		&limit, &created, &updated, &lastUsed); err != nil {
		return nil, err
	}
	t.Side = domain.Side(side)
	t.OrderType = domain.OrderType(orderType)
	if limit.Valid {
		p := limit.Float64
		t.LimitPrice = &p
	}
	t.CreatedAt = time.UnixMilli(created).UTC()
	t.UpdatedAt = time.UnixMilli(updated).UTC()
	if lastUsed.Valid {
		at := time.UnixMilli(lastUsed.Int64).UTC()
		t.LastUsedAt = &at
	}
	return &t, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// SubmissionLedger implementation
// ---------------------------------------------------------------------------

// LookupSubmission returns the stored result for correlationID.
func (s *SQLiteStore) LookupSubmission(ctx context.Context, correlationID string) (*domain.SubmissionResult, error) {
	var (
		accepted bool
		orders   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT accepted, orders FROM submissions WHERE correlation_id = ?`, correlationID,
	).Scan(&accepted, &orders)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up submission: %w", err)
	}

	res := &domain.SubmissionResult{Accepted: accepted}
	if err := json.Unmarshal([]byte(orders), &res.Orders); err != nil {
		return nil, fmt.Errorf("decoding submission %s: %w", correlationID, err)
	}
	return res, nil
}

// RecordSubmission stores result under correlationID; an existing record
// wins.
func (s *SQLiteStore) RecordSubmission(ctx context.Context, correlationID string, result domain.SubmissionResult) error {
	orders, err := json.Marshal(result.Orders)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO submissions (correlation_id, accepted, orders, created_at) VALUES (?, ?, ?, ?)`,
		correlationID, result.Accepted, string(orders), s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("recording submission: %w", err)
	}
	return nil
}
