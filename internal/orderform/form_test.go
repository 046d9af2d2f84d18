package orderform

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"orderdesk/internal/analysis"
	"orderdesk/internal/broker"
	"orderdesk/internal/domain"
	"orderdesk/internal/engine"
	"orderdesk/internal/httpapi"
	"orderdesk/internal/order"
	"orderdesk/internal/store"
	"orderdesk/internal/submit"
	"orderdesk/internal/util"
	"orderdesk/pkg/orderdesk"
)

// newBackend starts a paper backend and returns an SDK client for it.
func newBackend(t *testing.T) *orderdesk.Client {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "backend.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	sim := broker.NewSimulatorBroker()
	eng := engine.NewEngine(sim, s, nil, util.Discard())
	srv := httptest.NewServer(httpapi.NewBackendServer(eng, sim, s, sim.Name(), util.Discard()).Handler())
	t.Cleanup(srv.Close)
	return orderdesk.NewClient(srv.URL)
}

func newHistory(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "ticket.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newForm(t *testing.T, backend Backend, history submit.History) *Form {
	t.Helper()
	f := New(backend, history, 10*time.Millisecond, util.Discard())
	t.Cleanup(f.Close)
	return f
}

func historyLen(t *testing.T, h *store.SQLiteStore) int {
	t.Helper()
	entries, err := h.ListHistory(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	return len(entries)
}

func TestStockSubmitAndConfirm(t *testing.T) {
	history := newHistory(t)
	f := newForm(t, newBackend(t), history)

	f.SetSymbol(" spy ")
	f.SetQuantity("10")

	msg, err := f.Submit()
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if want := "BUY 10 shares of SPY at market price?"; msg != want {
		t.Errorf("message = %q, want %q", msg, want)
	}
	if f.Gate().State() != order.GateOpen {
		t.Fatal("gate should be open after Submit")
	}

	out, err := f.Confirm(context.Background())
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if out.Kind != submit.OutcomeExecuted {
		t.Errorf("Kind = %v, want executed", out.Kind)
	}
	if f.Gate().State() != order.GateClosed {
		t.Error("gate should be closed after Confirm")
	}
	if got := historyLen(t, history); got != 1 {
		t.Errorf("history has %d entries, want 1", got)
	}

	if _, err := f.Confirm(context.Background()); !errors.Is(err, order.ErrGateClosed) {
		t.Errorf("second Confirm error = %v, want ErrGateClosed", err)
	}
}

func TestValidationKeepsGateClosed(t *testing.T) {
	f := newForm(t, newBackend(t), nil)

	f.SetSymbol("AAPL")
	f.SetOrderType(domain.OrderTypeLimit)
	f.SetLimitPrice("")

	_, err := f.Submit()
	var verr *order.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Submit error = %v, want ValidationError", err)
	}
	if want := "Limit price is required for limit orders"; verr.Message != want {
		t.Errorf("message = %q, want %q", verr.Message, want)
	}
	if f.Gate().State() != order.GateClosed {
		t.Error("gate opened for an invalid form")
	}
}

func TestGateRejectsSecondSubmit(t *testing.T) {
	f := newForm(t, newBackend(t), nil)
	f.SetSymbol("SPY")

	if _, err := f.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.SetQuantity("99")
	if _, err := f.Submit(); !errors.Is(err, order.ErrGateBusy) {
		t.Errorf("second Submit error = %v, want ErrGateBusy", err)
	}
	if intent, _ := f.Gate().Pending(); intent.Quantity != 1 {
		t.Errorf("pending quantity = %d, want 1", intent.Quantity)
	}

	if !f.Cancel() {
		t.Fatal("Cancel reported no pending order")
	}
	if f.Cancel() {
		t.Error("second Cancel should report false")
	}
	msg, err := f.Submit()
	if err != nil {
		t.Fatalf("Submit after cancel: %v", err)
	}
	if want := "BUY 99 shares of SPY at market price?"; msg != want {
		t.Errorf("message = %q, want %q", msg, want)
	}
}

func TestTestDuplicateReplaysLastID(t *testing.T) {
	history := newHistory(t)
	f := newForm(t, newBackend(t), history)
	ctx := context.Background()

	if f.CanTestDuplicate() {
		t.Error("CanTestDuplicate before any submission")
	}
	if _, err := f.TestDuplicate(ctx); !errors.Is(err, submit.ErrNoPriorSubmission) {
		t.Errorf("TestDuplicate error = %v, want ErrNoPriorSubmission", err)
	}

	f.SetSymbol("QQQ")
	f.SetQuantity("2")
	if _, err := f.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	first, err := f.Confirm(ctx)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	f.SetQuantity("3")
	dup, err := f.TestDuplicate(ctx)
	if err != nil {
		t.Fatalf("TestDuplicate: %v", err)
	}
	if dup.Kind != submit.OutcomeDuplicate {
		t.Errorf("Kind = %v, want duplicate", dup.Kind)
	}
	if dup.CorrelationID != first.CorrelationID {
		t.Errorf("replay used %q, want %q", dup.CorrelationID, first.CorrelationID)
	}
	if got := historyLen(t, history); got != 1 {
		t.Errorf("history has %d entries, want 1", got)
	}
}

func TestOptionCascadeFillsForm(t *testing.T) {
	f := newForm(t, newBackend(t), nil)

	f.SetAssetClass(domain.AssetClassOption)
	f.SetSymbol("TSLA")
	f.SetSide(domain.SideSell)
	f.SetQuantity("2")
	f.Wait()

	ch := f.Chain()
	if ch.Symbol != "TSLA" || ch.SelectedExpiration == "" || ch.SelectedStrike == 0 {
		t.Fatalf("chain = %+v, want resolved TSLA chain", ch)
	}
	st := f.State()
	if st.ExpirationDate != ch.SelectedExpiration {
		t.Errorf("ExpirationDate = %q, want %q", st.ExpirationDate, ch.SelectedExpiration)
	}
	if st.StrikePrice != order.FormatPrice(ch.SelectedStrike) {
		t.Errorf("StrikePrice = %q, want %q", st.StrikePrice, order.FormatPrice(ch.SelectedStrike))
	}

	msg, err := f.Submit()
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	want := "SELL 2 TSLA $" + st.StrikePrice + " CALL (exp: " + st.ExpirationDate + ") at market price?"
	if msg != want {
		t.Errorf("message = %q, want %q", msg, want)
	}
}

func TestSelectExpirationRefetchesStrikes(t *testing.T) {
	f := newForm(t, newBackend(t), nil)

	f.SetAssetClass(domain.AssetClassOption)
	f.SetSymbol("AAPL")
	f.Wait()

	exps := f.Chain().Expirations
	if len(exps) < 2 {
		t.Fatalf("got %d expirations, want at least 2", len(exps))
	}
	if err := f.SelectExpiration(exps[1]); err != nil {
		t.Fatalf("SelectExpiration: %v", err)
	}
	f.Wait()

	if got := f.State().ExpirationDate; got != exps[1] {
		t.Errorf("ExpirationDate = %q, want %q", got, exps[1])
	}
	strikes := f.Chain().Strikes
	if err := f.SelectStrike(strikes[0]); err != nil {
		t.Fatalf("SelectStrike: %v", err)
	}
	if got := f.State().StrikePrice; got != order.FormatPrice(strikes[0]) {
		t.Errorf("StrikePrice = %q, want %q", got, order.FormatPrice(strikes[0]))
	}
	if err := f.SelectExpiration("1999-01-01"); err == nil {
		t.Error("SelectExpiration accepted an unlisted date")
	}
}

func TestSwitchToStockClearsOptionFields(t *testing.T) {
	f := newForm(t, newBackend(t), nil)

	f.SetAssetClass(domain.AssetClassOption)
	f.SetSymbol("AAPL")
	f.Wait()
	f.SetAssetClass(domain.AssetClassStock)

	st := f.State()
	if st.ExpirationDate != "" || st.StrikePrice != "" {
		t.Errorf("option fields = %q/%q, want cleared", st.ExpirationDate, st.StrikePrice)
	}
	if ch := f.Chain(); len(ch.Expirations) != 0 || ch.Symbol != "" {
		t.Errorf("chain = %+v, want empty", ch)
	}
}

func TestAnalysisFollowsSymbol(t *testing.T) {
	f := newForm(t, newBackend(t), nil)

	f.SetSymbol("MSFT")
	f.Wait()
	st := f.Analysis()
	if st.State != analysis.Ready || st.Snapshot == nil {
		t.Fatalf("analysis = %+v, want ready snapshot", st)
	}

	f.SetSymbol("  ")
	if st := f.Analysis(); st.State != analysis.Idle || st.Snapshot != nil {
		t.Errorf("analysis after blank symbol = %+v, want idle without snapshot", st)
	}
}

func TestApplyTemplate(t *testing.T) {
	f := newForm(t, newBackend(t), nil)
	ctx := context.Background()

	price := 12.5
	tpl, err := f.Templates().Create(ctx, domain.TemplateDraft{
		Name:       "Ford dip",
		Symbol:     "F",
		Side:       domain.SideBuy,
		Quantity:   40,
		OrderType:  domain.OrderTypeLimit,
		LimitPrice: &price,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	f.SetSymbol("SPY")
	f.SetQuantity("7")
	f.ApplyTemplate(*tpl)
	f.Wait()

	st := f.State()
	if st.Symbol != "F" || st.Quantity != "40" || st.OrderType != domain.OrderTypeLimit || st.LimitPrice != "12.5" {
		t.Errorf("form = %+v, want template fields", st)
	}
	if got := f.Analysis().Symbol; got != "F" {
		t.Errorf("analysis symbol = %q, want %q", got, "F")
	}

	list, err := f.Templates().List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].LastUsedAt == nil {
		t.Errorf("templates = %+v, want lastUsedAt stamped", list)
	}
}

// failingChain serves everything except the option chain.
type failingChain struct {
	Backend
}

func (failingChain) Expirations(context.Context, string) ([]string, error) {
	return nil, errors.New("chain service unavailable")
}

func TestChainFailureDoesNotBlockStockOrders(t *testing.T) {
	history := newHistory(t)
	f := newForm(t, failingChain{newBackend(t)}, history)
	_, events := f.Subscribe(64)

	f.SetAssetClass(domain.AssetClassOption)
	f.SetSymbol("AAPL")
	f.Wait()

	var notice *Event
	for len(events) > 0 {
		e := <-events
		if e.Type == EventNotice && e.Scope == ScopeChain {
			notice = &e
		}
	}
	if notice == nil {
		t.Fatal("no chain notice was published")
	}
	if !strings.Contains(notice.Message, "chain service unavailable") {
		t.Errorf("notice = %q", notice.Message)
	}

	f.SetAssetClass(domain.AssetClassStock)
	if _, err := f.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	out, err := f.Confirm(context.Background())
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if out.Kind != submit.OutcomeExecuted {
		t.Errorf("Kind = %v, want executed", out.Kind)
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	f := New(newBackend(t), nil, 10*time.Millisecond, util.Discard())
	_, events := f.Subscribe(4)

	f.SetSymbol("SPY")
	f.Close()
	f.Close()

	for range events {
	}
	if _, err := f.Submit(); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close error = %v, want ErrClosed", err)
	}
}

func TestSubscribeAfterCloseIsClosed(t *testing.T) {
	f := New(newBackend(t), nil, 10*time.Millisecond, util.Discard())
	f.Close()

	_, events := f.Subscribe(4)
	select {
	case _, ok := <-events:
		if ok {
			t.Error("received an event after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription after Close was never closed")
	}
}
