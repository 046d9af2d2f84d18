// Package analysis fetches a best-effort analysis snapshot for the symbol
// in the order ticket once typing has paused.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"orderdesk/internal/domain"
	"orderdesk/internal/metrics"
)

// DefaultDelay is the quiet period after the last symbol edit.
const DefaultDelay = 800 * time.Millisecond

// State is the fetcher's position in Idle → Debouncing → Fetching →
// Ready|Failed.
type State int

const (
	Idle State = iota
	Debouncing
	Fetching
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Debouncing:
		return "debouncing"
	case Fetching:
		return "fetching"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Source returns the analysis object for a symbol.
type Source interface {
	Analyze(ctx context.Context, symbol string) (*domain.AnalysisSnapshot, error)
}

// Status is a snapshot of the fetcher. Snapshot is set only in Ready and
// Err only in Failed.
type Status struct {
	State    State
	Symbol   string
	Snapshot *domain.AnalysisSnapshot
	Err      error
}

// Fetcher debounces symbol edits and keeps the snapshot for the latest one.
type Fetcher struct {
	src    Source
	log    *slog.Logger
	delay  time.Duration
	notify func(Status)

	base context.Context
	stop context.CancelFunc

	mu     sync.Mutex
	status Status
	gen    uint64
	timer  *time.Timer
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// NewFetcher creates an idle fetcher. A non-positive delay selects
// DefaultDelay; notify may be nil.
func NewFetcher(src Source, log *slog.Logger, delay time.Duration, notify func(Status)) *Fetcher {
	if delay <= 0 {
		delay = DefaultDelay
	}
	base, stop := context.WithCancel(context.Background())
	return &Fetcher{
		src:    src,
		log:    log,
		delay:  delay,
		notify: notify,
		base:   base,
		stop:   stop,
	}
}

// Status returns the current fetcher status.
func (f *Fetcher) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// SetSymbol restarts the quiet period for symbol. Symbols compare trimmed
// and upper-cased, so a change of case alone does not refetch. A blank
// symbol clears the snapshot and suppresses fetching.
func (f *Fetcher) SetSymbol(symbol string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	f.mu.Lock()
	if f.closed || symbol == f.status.Symbol {
		f.mu.Unlock()
		return
	}
	f.invalidateLocked()

	if symbol == "" {
		f.status = Status{State: Idle}
		st := f.status
		f.mu.Unlock()
		f.emit(st)
		return
	}

	f.status = Status{State: Debouncing, Symbol: symbol}
	gen := f.gen
	f.wg.Add(1)
	f.timer = time.AfterFunc(f.delay, func() { f.fire(gen, symbol) })
	st := f.status
	f.mu.Unlock()

	f.emit(st)
}

// Wait blocks until pending timers and fetches have settled. A timer that
// is stopped before firing counts as settled.
func (f *Fetcher) Wait() {
	f.wg.Wait()
}

// Close stops the timer and cancels any in-flight fetch.
func (f *Fetcher) Close() {
	f.mu.Lock()
	f.closed = true
	f.invalidateLocked()
	f.mu.Unlock()
	f.stop()
	f.wg.Wait()
}

// invalidateLocked bumps the generation, stops a pending timer and cancels
// an in-flight fetch.
func (f *Fetcher) invalidateLocked() {
	f.gen++
	if f.timer != nil {
		if f.timer.Stop() {
			f.wg.Done()
		}
		f.timer = nil
	}
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

func (f *Fetcher) fire(gen uint64, symbol string) {
	defer f.wg.Done()

	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return
	}
	f.timer = nil
	ctx, cancel := context.WithCancel(f.base)
	f.cancel = cancel
	f.status = Status{State: Fetching, Symbol: symbol}
	st := f.status
	f.mu.Unlock()
	f.emit(st)

	snap, err := f.src.Analyze(ctx, symbol)
	cancel()
	metrics.IncAnalysisFetch(err)

	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		metrics.IncStale("analysis")
		f.log.Debug("discarding stale analysis", "symbol", symbol)
		return
	}
	f.cancel = nil
	if err != nil {
		f.status = Status{State: Failed, Symbol: symbol, Err: fmt.Errorf("analyzing %s: %w", symbol, err)}
	} else {
		f.status = Status{State: Ready, Symbol: symbol, Snapshot: snap}
	}
	st = f.status
	f.mu.Unlock()

	if err != nil {
		f.log.Warn("analysis fetch failed", "symbol", symbol, "error", err)
	}
	f.emit(st)
}

func (f *Fetcher) emit(st Status) {
	if f.notify != nil {
		f.notify(st)
	}
}
