// Package submit sends confirmed order intents to the backend and records
// their outcome in the local order history.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"orderdesk/internal/domain"
	"orderdesk/internal/metrics"
	"orderdesk/pkg/orderdesk"
)

// ErrNoPriorSubmission is returned by Replay before any submission has
// been attempted.
var ErrNoPriorSubmission = errors.New("no prior submission to replay")

// Executor performs the backend execute call.
type Executor interface {
	Execute(ctx context.Context, req domain.SubmissionRequest) (*domain.SubmissionResult, error)
}

// History records submission outcomes.
type History interface {
	AppendHistory(ctx context.Context, entry domain.HistoryEntry) (int64, error)
}

// OutcomeKind names how the backend handled a submission.
type OutcomeKind int

const (
	OutcomeExecuted OutcomeKind = iota
	OutcomeCancelled
	OutcomeDuplicate
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeExecuted:
		return "executed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of one submission. Entry is nil for duplicates.
type Outcome struct {
	Kind          OutcomeKind
	CorrelationID string
	Result        domain.SubmissionResult
	Entry         *domain.HistoryEntry
}

// Message is the user-facing summary of the outcome.
func (o *Outcome) Message() string {
	switch o.Kind {
	case OutcomeDuplicate:
		orig := "rejected"
		if o.Result.Accepted {
			orig = "accepted"
		}
		return fmt.Sprintf("Duplicate request %s: the original order was %s", o.CorrelationID, orig)
	case OutcomeCancelled:
		return "Order was not accepted"
	default:
		return "Order executed"
	}
}

// SubmissionError reports a failed execute call. Nothing is recorded.
type SubmissionError struct {
	CorrelationID string
	StatusCode    int
	Message       string
	Err           error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("submitting %s: %d %s", e.CorrelationID, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("submitting %s: %s", e.CorrelationID, e.Message)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Client submits orders and tracks the last correlation ID for replays.
type Client struct {
	exec    Executor
	history History
	log     *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	lastID string
}

// NewClient creates a submission client. history may be nil, in which case
// outcomes are not persisted.
func NewClient(exec Executor, history History, log *slog.Logger) *Client {
	return &Client{exec: exec, history: history, log: log, now: time.Now}
}

// LastCorrelationID returns the ID of the most recent attempt, or "".
func (c *Client) LastCorrelationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastID
}

// Submit sends intent as a live (non dry-run) order under correlationID.
func (c *Client) Submit(ctx context.Context, intent domain.OrderIntent, correlationID string) (*Outcome, error) {
	c.mu.Lock()
	c.lastID = correlationID
	c.mu.Unlock()

	return c.send(ctx, intent, correlationID)
}

// Replay resubmits intent under the last correlation ID so the backend's
// duplicate detection can be observed.
func (c *Client) Replay(ctx context.Context, intent domain.OrderIntent) (*Outcome, error) {
	id := c.LastCorrelationID()
	if id == "" {
		return nil, ErrNoPriorSubmission
	}
	return c.send(ctx, intent, id)
}

func (c *Client) send(ctx context.Context, intent domain.OrderIntent, id string) (*Outcome, error) {
	req := domain.SubmissionRequest{
		DryRun:        false,
		CorrelationID: id,
		Orders:        []domain.OrderIntent{intent},
	}

	c.log.Info("submitting order",
		"correlation_id", id,
		"symbol", intent.Symbol,
		"side", intent.Side,
		"quantity", intent.Quantity,
	)

	res, err := c.exec.Execute(ctx, req)
	if err != nil {
		metrics.IncSubmission("failed")
		c.log.Error("order submission failed", "correlation_id", id, "error", err)
		return nil, newSubmissionError(id, err)
	}

	out := &Outcome{CorrelationID: id, Result: *res}
	if res.Duplicate {
		out.Kind = OutcomeDuplicate
		metrics.IncSubmission(out.Kind.String())
		c.log.Warn("duplicate submission detected", "correlation_id", id, "original_accepted", res.Accepted)
		return out, nil
	}

	entry := domain.HistoryEntry{
		CorrelationID: id,
		Intent:        intent,
		Status:        domain.OrderStatusExecuted,
		CreatedAt:     c.now().UTC(),
	}
	out.Kind = OutcomeExecuted
	if !res.Accepted {
		entry.Status = domain.OrderStatusCancelled
		out.Kind = OutcomeCancelled
	}
	metrics.IncSubmission(out.Kind.String())

	if c.history != nil {
		rowID, err := c.history.AppendHistory(ctx, entry)
		if err != nil {
			// The order stands even when the local row is lost.
			c.log.Error("recording order history", "correlation_id", id, "error", err)
		} else {
			entry.ID = rowID
		}
	}
	out.Entry = &entry

	c.log.Info("order submitted", "correlation_id", id, "outcome", out.Kind.String())
	return out, nil
}

func newSubmissionError(id string, err error) *SubmissionError {
	se := &SubmissionError{CorrelationID: id, Message: err.Error(), Err: err}
	var apiErr *orderdesk.APIError
	if errors.As(err, &apiErr) {
		se.StatusCode = apiErr.StatusCode
		se.Message = apiErr.Message
	}
	return se
}
