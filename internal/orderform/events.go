package orderform

import (
	"orderdesk/internal/analysis"
	"orderdesk/internal/domain"
	"orderdesk/internal/order"
	"orderdesk/internal/submit"
)

// EventType names what changed.
type EventType string

const (
	EventForm     EventType = "form"     // Form is set
	EventChain    EventType = "chain"    // Chain is set
	EventAnalysis EventType = "analysis" // Analysis is set
	EventGate     EventType = "gate"     // Message is set when the gate opened
	EventOutcome  EventType = "outcome"  // Outcome and Message are set
	EventNotice   EventType = "notice"   // Scope and Message are set
)

// Notice scopes. A notice never blocks the rest of the form.
const (
	ScopeChain      = "chain"
	ScopeAnalysis   = "analysis"
	ScopeSubmission = "submission"
)

// Event is published to subscribers on every state change of a Form.
type Event struct {
	Type     EventType
	Scope    string
	Message  string
	Form     *order.FormState
	Chain    *domain.OptionChainState
	Analysis *analysis.Status
	Outcome  *submit.Outcome
}

// Subscribe returns a channel that receives events. bufSize controls the
// channel buffer; slow consumers will have events dropped. After Close the
// returned channel is already closed.
func (f *Form) Subscribe(bufSize int) (int, <-chan Event) {
	ch := make(chan Event, bufSize)
	f.subsMu.Lock()
	if f.subsClosed {
		f.subsMu.Unlock()
		close(ch)
		return -1, ch
	}
	id := f.nextSubID
	f.nextSubID++
	f.subs[id] = ch
	f.subsMu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (f *Form) Unsubscribe(id int) {
	f.subsMu.Lock()
	if ch, ok := f.subs[id]; ok {
		delete(f.subs, id)
		close(ch)
	}
	f.subsMu.Unlock()
}

// broadcast sends an event to all subscribers non-blocking (drop on full).
func (f *Form) broadcast(e Event) {
	f.subsMu.Lock()
	defer f.subsMu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
