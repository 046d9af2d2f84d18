package order

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"orderdesk/internal/domain"
)

var (
	// ErrGateBusy is returned by Open while another intent awaits confirmation.
	ErrGateBusy = errors.New("an order is already awaiting confirmation")

	// ErrGateClosed is returned by Confirm when nothing is pending.
	ErrGateClosed = errors.New("no order is awaiting confirmation")
)

// GateState is the externally visible state of a Gate.
type GateState int

const (
	GateClosed GateState = iota
	GateOpen
)

func (s GateState) String() string {
	if s == GateOpen {
		return "open"
	}
	return "closed"
}

// Resolution records how the last pending intent left the gate.
type Resolution int

const (
	ResolutionNone Resolution = iota
	ResolutionConfirmed
	ResolutionCancelled
)

// Gate holds one built intent until the user confirms or cancels it. The
// pending intent is a value copy and cannot be changed while the gate is
// open.
type Gate struct {
	mu      sync.Mutex
	pending *domain.OrderIntent
	last    Resolution
}

// NewGate returns a closed gate.
func NewGate() *Gate {
	return &Gate{}
}

// Open places intent behind the gate and returns the confirmation message.
func (g *Gate) Open(intent domain.OrderIntent) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending != nil {
		return "", ErrGateBusy
	}
	g.pending = &intent
	return ConfirmMessage(intent), nil
}

// State reports whether an intent is pending.
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending != nil {
		return GateOpen
	}
	return GateClosed
}

// Pending returns a copy of the pending intent.
func (g *Gate) Pending() (domain.OrderIntent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return domain.OrderIntent{}, false
	}
	return *g.pending, true
}

// Message returns the confirmation text for the pending intent, or "" when
// the gate is closed.
func (g *Gate) Message() string {
	if intent, ok := g.Pending(); ok {
		return ConfirmMessage(intent)
	}
	return ""
}

// Confirm closes the gate and hands back the pending intent. Each opened
// intent can be confirmed at most once.
func (g *Gate) Confirm() (domain.OrderIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return domain.OrderIntent{}, ErrGateClosed
	}
	intent := *g.pending
	g.pending = nil
	g.last = ResolutionConfirmed
	return intent, nil
}

// Cancel discards the pending intent. It reports false when the gate was
// already closed.
func (g *Gate) Cancel() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return false
	}
	g.pending = nil
	g.last = ResolutionCancelled
	return true
}

// LastResolution reports how the most recent intent left the gate.
func (g *Gate) LastResolution() Resolution {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// ConfirmMessage renders the question shown before submitting o, e.g.
//
//	BUY 10 shares of SPY at market price?
//	SELL 2 TSLA $250 CALL (exp: 2025-06-20) at $3.5?
func ConfirmMessage(o domain.OrderIntent) string {
	side := strings.ToUpper(string(o.Side))
	price := "at market price"
	if o.IsLimit() {
		price = "at $" + FormatPrice(o.LimitPrice)
	}
	if o.IsOption() {
		return fmt.Sprintf("%s %d %s $%s %s (exp: %s) %s?",
			side, o.Quantity, o.Symbol, FormatPrice(o.StrikePrice),
			strings.ToUpper(string(o.OptionType)), o.ExpirationDate, price)
	}
	return fmt.Sprintf("%s %d shares of %s %s?", side, o.Quantity, o.Symbol, price)
}

// FormatPrice prints p with the fewest digits that round-trip.
func FormatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
