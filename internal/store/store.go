// Package store defines storage interfaces for the order desk: local order
// history, saved order templates and the backend's submission ledger.
package store

import (
	"context"
	"errors"
	"time"

	"orderdesk/internal/domain"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("store: not found")

// HistoryStore persists and retrieves order history entries.
type HistoryStore interface {
	// AppendHistory inserts entry and returns its row ID.
	AppendHistory(ctx context.Context, entry domain.HistoryEntry) (int64, error)

	// ListHistory returns the most recent entries, newest first, up to limit.
	ListHistory(ctx context.Context, limit int) ([]domain.HistoryEntry, error)

	// HistoryBefore returns every entry created before cutoff, oldest first.
	HistoryBefore(ctx context.Context, cutoff time.Time) ([]domain.HistoryEntry, error)

	// DeleteHistoryBefore removes entries created before cutoff.
	DeleteHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TemplateStore persists and retrieves order templates.
type TemplateStore interface {
	// ListTemplates returns every template, most recently used first.
	ListTemplates(ctx context.Context) ([]domain.OrderTemplate, error)

	// CreateTemplate inserts a template built from draft.
	CreateTemplate(ctx context.Context, draft domain.TemplateDraft) (*domain.OrderTemplate, error)

	// GetTemplate retrieves a single template by ID.
	GetTemplate(ctx context.Context, id int64) (*domain.OrderTemplate, error)

	// DeleteTemplate removes a template.
	DeleteTemplate(ctx context.Context, id int64) error

	// MarkTemplateUsed stamps lastUsedAt with the current time.
	MarkTemplateUsed(ctx context.Context, id int64) error
}

// SubmissionLedger remembers the result of every executed correlation ID.
type SubmissionLedger interface {
	// LookupSubmission returns the stored result for correlationID or
	// ErrNotFound.
	LookupSubmission(ctx context.Context, correlationID string) (*domain.SubmissionResult, error)

	// RecordSubmission stores result under correlationID. Recording the same
	// ID twice keeps the first result.
	RecordSubmission(ctx context.Context, correlationID string, result domain.SubmissionResult) error
}
