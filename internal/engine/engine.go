// Package engine executes order submissions for the paper backend:
// duplicate detection by correlation ID, pre-trade risk checks and broker
// execution.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"orderdesk/internal/broker"
	"orderdesk/internal/domain"
	"orderdesk/internal/metrics"
	"orderdesk/internal/store"
)

var (
	// ErrNoOrders is returned for a request without orders.
	ErrNoOrders = errors.New("request contains no orders")

	// ErrCorrelationRequired is returned for a live request without a
	// correlation ID.
	ErrCorrelationRequired = errors.New("correlationId is required")
)

// Report describes one handled execute request. It is what the execution
// feed broadcasts.
type Report struct {
	CorrelationID string                  `json:"correlationId"`
	Result        domain.SubmissionResult `json:"result"`
	Executions    []broker.Execution      `json:"executions,omitempty"`
	Reason        string                  `json:"reason,omitempty"`
	At            time.Time               `json:"at"`
}

// Engine orchestrates execution by delegating to a broker, a submission
// ledger for replay detection and a risk manager for pre-trade checks.
// Execute calls are serialized so a concurrent replay cannot execute twice.
type Engine struct {
	broker      broker.Broker
	ledger      store.SubmissionLedger
	riskChecker *RiskManager
	log         *slog.Logger

	mu       sync.Mutex
	onReport func(Report)

	// unrecorded holds results the ledger failed to store. They count as
	// seen until a later write succeeds.
	unrecorded map[string]domain.SubmissionResult
}

// NewEngine creates a new Engine wired with the given dependencies.
func NewEngine(
	b broker.Broker,
	ledger store.SubmissionLedger,
	riskChecker *RiskManager,
	log *slog.Logger,
) *Engine {
	if riskChecker == nil {
		riskChecker = NewRiskManager(0, 0)
	}
	return &Engine{
		broker:      b,
		ledger:      ledger,
		riskChecker: riskChecker,
		log:         log,
		unrecorded:  make(map[string]domain.SubmissionResult),
	}
}

// OnReport registers fn to receive every live (non dry-run) report.
func (e *Engine) OnReport(fn func(Report)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onReport = fn
}

// Execute handles one SubmissionRequest. A correlation ID seen before
// returns the stored result with Duplicate set and executes nothing.
func (e *Engine) Execute(ctx context.Context, req domain.SubmissionRequest) (*domain.SubmissionResult, error) {
	if len(req.Orders) == 0 {
		return nil, ErrNoOrders
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if req.DryRun {
		reason, err := e.checkRisk(ctx, req.Orders)
		if err != nil {
			return nil, err
		}
		metrics.IncBackendExecution("dry_run")
		e.log.Info("dry run checked", "correlation_id", req.CorrelationID, "passed", reason == "", "reason", reason)
		return &domain.SubmissionResult{Accepted: reason == "", DryRun: true, Orders: req.Orders}, nil
	}

	id := strings.TrimSpace(req.CorrelationID)
	if id == "" {
		return nil, ErrCorrelationRequired
	}

	e.flushUnrecorded(ctx)

	prev, err := e.lookup(ctx, id)
	switch {
	case err == nil:
		prev.Duplicate = true
		metrics.IncBackendExecution("duplicate")
		e.log.Warn("duplicate submission", "correlation_id", id, "original_accepted", prev.Accepted)
		return prev, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("checking ledger: %w", err)
	}

	report := Report{CorrelationID: id, At: time.Now().UTC()}
	report.Reason, err = e.checkRisk(ctx, req.Orders)
	if err != nil {
		return nil, err
	}

	accepted := report.Reason == ""
	if accepted {
		for i, o := range req.Orders {
			ex, err := e.broker.SubmitOrder(ctx, clientOrderID(id, i), o)
			if err != nil {
				if i > 0 {
					// Earlier orders reached the broker; the ID is spent.
					e.record(ctx, id, domain.SubmissionResult{Accepted: false, Orders: req.Orders[:i]})
				}
				return nil, fmt.Errorf("executing %s via %s: %w", o.Symbol, e.broker.Name(), err)
			}
			report.Executions = append(report.Executions, *ex)
			if !ex.Accepted {
				accepted = false
				report.Reason = ex.Reason
			}
		}
	}

	result := domain.SubmissionResult{Accepted: accepted, Orders: req.Orders}
	e.record(ctx, id, result)

	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	metrics.IncBackendExecution(outcome)
	e.log.Info("submission executed",
		"correlation_id", id,
		"broker", e.broker.Name(),
		"orders", len(req.Orders),
		"accepted", accepted,
		"reason", report.Reason,
	)

	report.Result = result
	if e.onReport != nil {
		e.onReport(report)
	}
	return &result, nil
}

// lookup checks results awaiting a ledger write before the ledger itself.
func (e *Engine) lookup(ctx context.Context, id string) (*domain.SubmissionResult, error) {
	if r, ok := e.unrecorded[id]; ok {
		return &r, nil
	}
	return e.ledger.LookupSubmission(ctx, id)
}

// record stores result in the ledger. A failed write keeps the result in
// memory so replays of id are still answered as duplicates.
func (e *Engine) record(ctx context.Context, id string, result domain.SubmissionResult) {
	if err := e.ledger.RecordSubmission(ctx, id, result); err != nil {
		e.unrecorded[id] = result
		e.log.Error("recording submission, holding in memory", "correlation_id", id, "pending", len(e.unrecorded), "error", err)
	}
}

// flushUnrecorded retries ledger writes that failed earlier.
func (e *Engine) flushUnrecorded(ctx context.Context) {
	for id, result := range e.unrecorded {
		if err := e.ledger.RecordSubmission(ctx, id, result); err != nil {
			return
		}
		delete(e.unrecorded, id)
	}
}

// checkRisk returns the first violation's message, or "" when every order
// passes.
func (e *Engine) checkRisk(ctx context.Context, orders []domain.OrderIntent) (string, error) {
	for _, o := range orders {
		var price float64
		if e.riskChecker.NeedsPrice(o) {
			p, err := e.broker.LastPrice(ctx, o.Symbol)
			if errors.Is(err, broker.ErrUnknownSymbol) {
				return err.Error(), nil
			}
			if err != nil {
				return "", fmt.Errorf("pricing %s: %w", o.Symbol, err)
			}
			price = p
		}
		if err := e.riskChecker.CheckOrder(ctx, o, price); err != nil {
			var v *RiskViolation
			if errors.As(err, &v) {
				return v.Error(), nil
			}
			return "", err
		}
	}
	return "", nil
}

// clientOrderID derives a per-order broker ID from the correlation ID.
func clientOrderID(correlationID string, i int) string {
	if i == 0 {
		return correlationID
	}
	return correlationID + "-" + strconv.Itoa(i)
}
