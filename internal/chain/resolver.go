// Package chain keeps the option-chain cascade of the order ticket
// (symbol → expirations → strikes) consistent while upstream fields change.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"orderdesk/internal/domain"
	"orderdesk/internal/metrics"
)

var (
	// ErrUnknownExpiration is returned when selecting an expiration that is
	// not in the resolved list.
	ErrUnknownExpiration = errors.New("expiration is not in the resolved option chain")

	// ErrUnknownStrike is returned when selecting a strike that is not in the
	// resolved list.
	ErrUnknownStrike = errors.New("strike is not in the resolved option chain")
)

// Source fetches option chain levels from the backend.
type Source interface {
	Expirations(ctx context.Context, symbol string) ([]string, error)
	Strikes(ctx context.Context, symbol, expiration string) ([]float64, error)
}

// Update is delivered to the resolver's listener after every applied
// result. Err is set when a fetch failed; State is then the unchanged
// previous state.
type Update struct {
	State domain.OptionChainState
	Err   error
}

// Resolver maintains the OptionChainState for the current symbol while the
// ticket is in option mode. Every fetch captures the generation current when
// it started; any symbol or expiration change bumps the generation, cancels
// the in-flight request and makes its eventual result a no-op.
type Resolver struct {
	src    Source
	log    *slog.Logger
	notify func(Update)

	base context.Context
	stop context.CancelFunc

	mu      sync.Mutex
	symbol  string
	enabled bool
	state   domain.OptionChainState
	gen     uint64
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewResolver creates a resolver in stock mode. notify may be nil.
func NewResolver(src Source, log *slog.Logger, notify func(Update)) *Resolver {
	base, stop := context.WithCancel(context.Background())
	return &Resolver{
		src:    src,
		log:    log,
		notify: notify,
		base:   base,
		stop:   stop,
	}
}

// State returns a copy of the current chain state.
func (r *Resolver) State() domain.OptionChainState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// SetAssetClass switches the resolver on for options and off (clearing the
// chain) for stock.
func (r *Resolver) SetAssetClass(ac domain.AssetClass) {
	r.mu.Lock()
	enable := ac == domain.AssetClassOption
	if enable == r.enabled {
		r.mu.Unlock()
		return
	}
	r.enabled = enable
	r.resetLocked()
	if enable && r.symbol != "" {
		r.fetchExpirationsLocked()
	}
	st := r.state.Clone()
	r.mu.Unlock()

	r.emit(Update{State: st})
}

// SetSymbol recreates the chain for symbol. Blank symbols and stock mode
// never trigger a fetch.
func (r *Resolver) SetSymbol(symbol string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	r.mu.Lock()
	if symbol == r.symbol {
		r.mu.Unlock()
		return
	}
	r.symbol = symbol
	if !r.enabled {
		r.mu.Unlock()
		return
	}
	r.resetLocked()
	if symbol != "" {
		r.fetchExpirationsLocked()
	}
	st := r.state.Clone()
	r.mu.Unlock()

	r.emit(Update{State: st})
}

// SelectExpiration changes the selected expiration, invalidating the strike
// list until it has been refetched. A blank expiration clears the selection.
func (r *Resolver) SelectExpiration(expiration string) error {
	expiration = strings.TrimSpace(expiration)

	r.mu.Lock()
	if !r.enabled || expiration == r.state.SelectedExpiration {
		r.mu.Unlock()
		return nil
	}
	if expiration != "" && !r.state.HasExpiration(expiration) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownExpiration, expiration)
	}
	r.bumpLocked()
	r.state.SelectedExpiration = expiration
	r.state.Strikes = nil
	r.state.SelectedStrike = 0
	if expiration != "" {
		r.fetchStrikesLocked(r.state.Symbol, expiration)
	}
	st := r.state.Clone()
	r.mu.Unlock()

	r.emit(Update{State: st})
	return nil
}

// SelectStrike picks a strike from the resolved list.
func (r *Resolver) SelectStrike(strike float64) error {
	r.mu.Lock()
	found := false
	for _, s := range r.state.Strikes {
		if s == strike {
			found = true
			break
		}
	}
	if !found {
		r.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrUnknownStrike, strike)
	}
	r.state.SelectedStrike = strike
	st := r.state.Clone()
	r.mu.Unlock()

	r.emit(Update{State: st})
	return nil
}

// Refresh refetches the chain for the current symbol without clearing it
// first. On failure the previous lists stay in place.
func (r *Resolver) Refresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled || r.symbol == "" {
		return
	}
	r.bumpLocked()
	r.fetchExpirationsLocked()
}

// Wait blocks until every fetch started so far has settled.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

// Close cancels in-flight fetches and discards their results.
func (r *Resolver) Close() {
	r.mu.Lock()
	r.gen++
	r.mu.Unlock()
	r.stop()
	r.wg.Wait()
}

// resetLocked starts a fresh chain for the current symbol and mode.
func (r *Resolver) resetLocked() {
	r.bumpLocked()
	r.state = domain.OptionChainState{}
	if r.enabled {
		r.state.Symbol = r.symbol
	}
}

// bumpLocked invalidates every outstanding fetch.
func (r *Resolver) bumpLocked() {
	r.gen++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *Resolver) startLocked() (context.Context, uint64) {
	ctx, cancel := context.WithCancel(r.base)
	r.cancel = cancel
	r.wg.Add(1)
	return ctx, r.gen
}

func (r *Resolver) fetchExpirationsLocked() {
	symbol := r.symbol
	ctx, gen := r.startLocked()

	go func() {
		defer r.wg.Done()
		exps, err := r.src.Expirations(ctx, symbol)
		metrics.IncChainFetch("expirations", err)

		r.mu.Lock()
		if gen != r.gen {
			r.mu.Unlock()
			metrics.IncStale("chain")
			r.log.Debug("discarding stale expirations", "symbol", symbol)
			return
		}
		r.cancel = nil
		if err != nil {
			st := r.state.Clone()
			r.mu.Unlock()
			r.log.Warn("loading option expirations", "symbol", symbol, "error", err)
			r.emit(Update{State: st, Err: fmt.Errorf("loading expirations for %s: %w", symbol, err)})
			return
		}

		r.state.Expirations = exps
		if !r.state.HasExpiration(r.state.SelectedExpiration) {
			r.state.SelectedExpiration = ""
			r.state.Strikes = nil
			r.state.SelectedStrike = 0
			if len(exps) > 0 {
				r.state.SelectedExpiration = exps[0]
			}
		}
		if r.state.SelectedExpiration != "" {
			r.bumpLocked()
			r.fetchStrikesLocked(symbol, r.state.SelectedExpiration)
		}
		st := r.state.Clone()
		r.mu.Unlock()

		r.emit(Update{State: st})
	}()
}

func (r *Resolver) fetchStrikesLocked(symbol, expiration string) {
	ctx, gen := r.startLocked()

	go func() {
		defer r.wg.Done()
		strikes, err := r.src.Strikes(ctx, symbol, expiration)
		metrics.IncChainFetch("strikes", err)

		r.mu.Lock()
		if gen != r.gen {
			r.mu.Unlock()
			metrics.IncStale("chain")
			r.log.Debug("discarding stale strikes", "symbol", symbol, "expiration", expiration)
			return
		}
		r.cancel = nil
		if err != nil {
			st := r.state.Clone()
			r.mu.Unlock()
			r.log.Warn("loading option strikes", "symbol", symbol, "expiration", expiration, "error", err)
			r.emit(Update{State: st, Err: fmt.Errorf("loading strikes for %s %s: %w", symbol, expiration, err)})
			return
		}

		keep := false
		for _, s := range strikes {
			if s == r.state.SelectedStrike {
				keep = true
				break
			}
		}
		r.state.Strikes = strikes
		if !keep {
			r.state.SelectedStrike = 0
			if len(strikes) > 0 {
				r.state.SelectedStrike = strikes[len(strikes)/2]
			}
		}
		st := r.state.Clone()
		r.mu.Unlock()

		r.emit(Update{State: st})
	}()
}

func (r *Resolver) emit(u Update) {
	if r.notify != nil {
		r.notify(u)
	}
}
