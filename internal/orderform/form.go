// Package orderform is the order ticket controller. A Form owns the single
// form state of a mounted ticket and wires the option-chain resolver, the
// analysis fetcher, the confirmation gate, the submission client and the
// template client around it.
package orderform

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"orderdesk/internal/analysis"
	"orderdesk/internal/chain"
	"orderdesk/internal/correlation"
	"orderdesk/internal/domain"
	"orderdesk/internal/order"
	"orderdesk/internal/submit"
	"orderdesk/internal/templates"
)

// ErrClosed is returned by operations on a closed Form.
var ErrClosed = errors.New("order form is closed")

// Backend is everything the ticket needs from the trading backend.
// *orderdesk.Client implements it.
type Backend interface {
	chain.Source
	analysis.Source
	submit.Executor
	templates.Backend
}

// Form is one mounted order ticket. Field setters and workflow operations
// are safe for concurrent use; results of background fetches are applied
// under the same lock.
type Form struct {
	log       *slog.Logger
	gate      *order.Gate
	chain     *chain.Resolver
	analysis  *analysis.Fetcher
	submitter *submit.Client
	templates *templates.Client
	ids       *correlation.Generator

	mu     sync.Mutex
	state  order.FormState
	closed bool

	subsMu     sync.Mutex
	nextSubID  int
	subs       map[int]chan Event
	subsClosed bool
}

// New mounts a ticket with default field values. history may be nil;
// debounce <= 0 selects analysis.DefaultDelay.
func New(backend Backend, history submit.History, debounce time.Duration, log *slog.Logger) *Form {
	f := &Form{
		log:       log,
		gate:      order.NewGate(),
		submitter: submit.NewClient(backend, history, log),
		templates: templates.NewClient(backend, log),
		ids:       correlation.NewGenerator(),
		state:     order.NewFormState(),
		subs:      make(map[int]chan Event),
	}
	f.chain = chain.NewResolver(backend, log, f.onChainUpdate)
	f.analysis = analysis.NewFetcher(backend, log, debounce, f.onAnalysisStatus)
	return f
}

// ---------------------------------------------------------------------------
// Read access
// ---------------------------------------------------------------------------

// State returns a copy of the current form fields.
func (f *Form) State() order.FormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Chain returns the resolved option chain.
func (f *Form) Chain() domain.OptionChainState { return f.chain.State() }

// Analysis returns the analysis panel status.
func (f *Form) Analysis() analysis.Status { return f.analysis.Status() }

// Gate exposes the confirmation gate for rendering its state and message.
func (f *Form) Gate() *order.Gate { return f.gate }

// Templates exposes the template client for list/create/delete.
func (f *Form) Templates() *templates.Client { return f.templates }

// LastCorrelationID returns the ID of the most recent submission, or "".
func (f *Form) LastCorrelationID() string { return f.submitter.LastCorrelationID() }

// CanTestDuplicate reports whether a replay is possible.
func (f *Form) CanTestDuplicate() bool { return f.submitter.LastCorrelationID() != "" }

// ---------------------------------------------------------------------------
// Field setters
// ---------------------------------------------------------------------------

// SetSymbol stores the raw symbol text and notifies the chain resolver and
// the analysis fetcher. Both trim the value themselves.
func (f *Form) SetSymbol(symbol string) {
	if !f.update(func(s *order.FormState) { s.Symbol = symbol }) {
		return
	}
	f.chain.SetSymbol(symbol)
	f.analysis.SetSymbol(symbol)
}

// SetSide sets the order side.
func (f *Form) SetSide(side domain.Side) {
	f.update(func(s *order.FormState) { s.Side = side })
}

// SetQuantity stores the raw quantity text.
func (f *Form) SetQuantity(qty string) {
	f.update(func(s *order.FormState) { s.Quantity = qty })
}

// SetOrderType sets market or limit. Switching to market clears the limit
// price.
func (f *Form) SetOrderType(t domain.OrderType) {
	f.update(func(s *order.FormState) {
		s.OrderType = t
		if t != domain.OrderTypeLimit {
			s.LimitPrice = ""
		}
	})
}

// SetLimitPrice stores the raw limit price text.
func (f *Form) SetLimitPrice(price string) {
	f.update(func(s *order.FormState) { s.LimitPrice = price })
}

// SetAssetClass switches between stock and option. Leaving option mode
// clears the chain and the option fields.
func (f *Form) SetAssetClass(ac domain.AssetClass) {
	if !f.update(func(s *order.FormState) {
		s.AssetClass = ac
		if ac != domain.AssetClassOption {
			s.ExpirationDate = ""
			s.StrikePrice = ""
		}
	}) {
		return
	}
	f.chain.SetAssetClass(ac)
}

// SetOptionType sets call or put.
func (f *Form) SetOptionType(t domain.OptionType) {
	f.update(func(s *order.FormState) { s.OptionType = t })
}

// SelectExpiration picks an expiration from the resolved chain; the strike
// list is refetched for it.
func (f *Form) SelectExpiration(expiration string) error {
	if f.isClosed() {
		return ErrClosed
	}
	return f.chain.SelectExpiration(expiration)
}

// SelectStrike picks a strike from the resolved chain.
func (f *Form) SelectStrike(strike float64) error {
	if f.isClosed() {
		return ErrClosed
	}
	return f.chain.SelectStrike(strike)
}

// update applies fn under the lock and publishes the new form. It reports
// false when the form is closed.
func (f *Form) update(fn func(*order.FormState)) bool {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return false
	}
	fn(&f.state)
	st := f.state
	f.mu.Unlock()

	f.broadcast(Event{Type: EventForm, Form: &st})
	return true
}

func (f *Form) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// ---------------------------------------------------------------------------
// Workflow
// ---------------------------------------------------------------------------

// Submit validates the current form and opens the confirmation gate. It
// returns the confirmation message, a *order.ValidationError, or
// order.ErrGateBusy while another order awaits confirmation.
func (f *Form) Submit() (string, error) {
	if f.isClosed() {
		return "", ErrClosed
	}
	intent, err := f.build()
	if err != nil {
		return "", err
	}
	msg, err := f.gate.Open(intent)
	if err != nil {
		return "", err
	}
	f.broadcast(Event{Type: EventGate, Message: msg})
	return msg, nil
}

// Confirm closes the gate and submits the pending intent exactly once under
// a fresh correlation ID.
func (f *Form) Confirm(ctx context.Context) (*submit.Outcome, error) {
	if f.isClosed() {
		return nil, ErrClosed
	}
	intent, err := f.gate.Confirm()
	if err != nil {
		return nil, err
	}
	f.broadcast(Event{Type: EventGate})
	return f.deliver(f.submitter.Submit(ctx, intent, f.ids.Generate()))
}

// Cancel discards the pending intent without any network call.
func (f *Form) Cancel() bool {
	if !f.gate.Cancel() {
		return false
	}
	f.broadcast(Event{Type: EventGate})
	return true
}

// TestDuplicate builds the current form and resubmits it under the last
// correlation ID, bypassing the gate. The backend is expected to answer
// with a duplicate.
func (f *Form) TestDuplicate(ctx context.Context) (*submit.Outcome, error) {
	if f.isClosed() {
		return nil, ErrClosed
	}
	if !f.CanTestDuplicate() {
		return nil, submit.ErrNoPriorSubmission
	}
	intent, err := f.build()
	if err != nil {
		return nil, err
	}
	return f.deliver(f.submitter.Replay(ctx, intent))
}

// ApplyTemplate overwrites the template-owned fields and stamps the
// template as used in the background.
func (f *Form) ApplyTemplate(t domain.OrderTemplate) {
	var symbol string
	if !f.update(func(s *order.FormState) {
		templates.Apply(s, t)
		symbol = s.Symbol
	}) {
		return
	}
	f.chain.SetSymbol(symbol)
	f.analysis.SetSymbol(symbol)
	f.templates.MarkUsed(t.ID)
	f.log.Info("template applied", "id", t.ID, "name", t.Name)
}

// Wait blocks until background fetches and usage stamps have settled.
func (f *Form) Wait() {
	f.chain.Wait()
	f.analysis.Wait()
	f.templates.Wait()
}

// Close unmounts the form: pending work is cancelled and every subscriber
// channel is closed.
func (f *Form) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()

	f.gate.Cancel()
	f.chain.Close()
	f.analysis.Close()
	f.templates.Wait()

	f.subsMu.Lock()
	f.subsClosed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
	f.subsMu.Unlock()
}

// build validates the current form. In option mode the resolved chain is
// passed along so the strike and expiration must come from it.
func (f *Form) build() (domain.OrderIntent, error) {
	st := f.State()
	if st.AssetClass != domain.AssetClassOption {
		return order.Build(st, nil)
	}
	ch := f.chain.State()
	return order.Build(st, &ch)
}

func (f *Form) deliver(out *submit.Outcome, err error) (*submit.Outcome, error) {
	if err != nil {
		f.broadcast(Event{Type: EventNotice, Scope: ScopeSubmission, Message: err.Error()})
		return nil, err
	}
	f.broadcast(Event{Type: EventOutcome, Message: out.Message(), Outcome: out})
	return out, nil
}

// ---------------------------------------------------------------------------
// Background results
// ---------------------------------------------------------------------------

// onChainUpdate mirrors the resolver's selections into the form fields.
// The resolver is re-read so an update delivered late cannot roll the form
// back.
func (f *Form) onChainUpdate(u chain.Update) {
	if u.Err != nil {
		f.broadcast(Event{Type: EventNotice, Scope: ScopeChain, Message: u.Err.Error()})
		return
	}
	ch := f.chain.State()

	f.mu.Lock()
	if f.closed || f.state.AssetClass != domain.AssetClassOption {
		f.mu.Unlock()
		return
	}
	f.state.ExpirationDate = ch.SelectedExpiration
	f.state.StrikePrice = ""
	if ch.SelectedStrike != 0 {
		f.state.StrikePrice = order.FormatPrice(ch.SelectedStrike)
	}
	f.mu.Unlock()

	f.broadcast(Event{Type: EventChain, Chain: &ch})
}

func (f *Form) onAnalysisStatus(st analysis.Status) {
	f.broadcast(Event{Type: EventAnalysis, Analysis: &st})
	if st.State == analysis.Failed {
		f.broadcast(Event{Type: EventNotice, Scope: ScopeAnalysis, Message: st.Err.Error()})
	}
}
