package order

import (
	"errors"
	"testing"

	"orderdesk/internal/domain"
)

func buildMessage(t *testing.T, f FormState, chain *domain.OptionChainState) string {
	t.Helper()
	_, err := Build(f, chain)
	if err == nil {
		t.Fatal("Build succeeded, want validation error")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Build error %T is not *ValidationError", err)
	}
	return ve.Message
}

func TestBuildMarketStock(t *testing.T) {
	f := NewFormState()
	f.Symbol = "  spy "
	f.Quantity = "10"

	intent, err := Build(f, nil)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if intent.Symbol != "SPY" {
		t.Errorf("Symbol = %q, want %q", intent.Symbol, "SPY")
	}
	if intent.Quantity != 10 {
		t.Errorf("Quantity = %d, want 10", intent.Quantity)
	}
	if intent.LimitPrice != 0 {
		t.Errorf("LimitPrice = %v, want 0 for market order", intent.LimitPrice)
	}
	if got, want := ConfirmMessage(intent), "BUY 10 shares of SPY at market price?"; got != want {
		t.Errorf("ConfirmMessage = %q, want %q", got, want)
	}
}

func TestBuildValidationOrder(t *testing.T) {
	cases := []struct {
		name string
		edit func(*FormState)
		want string
	}{
		{"blank symbol", func(f *FormState) { f.Symbol = "   " }, MsgSymbolRequired},
		{"symbol before quantity", func(f *FormState) { f.Symbol = ""; f.Quantity = "0" }, MsgSymbolRequired},
		{"zero quantity", func(f *FormState) { f.Quantity = "0" }, MsgQuantityInvalid},
		{"negative quantity", func(f *FormState) { f.Quantity = "-3" }, MsgQuantityInvalid},
		{"fractional quantity", func(f *FormState) { f.Quantity = "1.5" }, MsgQuantityInvalid},
		{"text quantity", func(f *FormState) { f.Quantity = "ten" }, MsgQuantityInvalid},
		{"limit without price", func(f *FormState) { f.OrderType = domain.OrderTypeLimit }, MsgLimitPriceRequired},
		{"limit zero price", func(f *FormState) { f.OrderType = domain.OrderTypeLimit; f.LimitPrice = "0" }, MsgLimitPriceRequired},
		{"quantity before limit", func(f *FormState) { f.OrderType = domain.OrderTypeLimit; f.Quantity = "" }, MsgQuantityInvalid},
		{"option without type", func(f *FormState) {
			f.AssetClass = domain.AssetClassOption
			f.OptionType = ""
		}, MsgOptionTypeRequired},
		{"option without strike", func(f *FormState) {
			f.AssetClass = domain.AssetClassOption
			f.ExpirationDate = "2025-06-20"
		}, MsgStrikeRequired},
		{"option without expiration", func(f *FormState) {
			f.AssetClass = domain.AssetClassOption
			f.StrikePrice = "250"
		}, MsgExpirationRequired},
		{"unknown side", func(f *FormState) { f.Side = "hold" }, MsgSideInvalid},
		{"unknown order type", func(f *FormState) { f.OrderType = "stop" }, MsgOrderTypeInvalid},
		{"unknown asset class", func(f *FormState) { f.AssetClass = "future" }, MsgAssetClassInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := NewFormState()
			f.Symbol = "AAPL"
			tc.edit(&f)
			if got := buildMessage(t, f, nil); got != tc.want {
				t.Errorf("message = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildLimitPriceRequired(t *testing.T) {
	f := NewFormState()
	f.Symbol = "AAPL"
	f.OrderType = domain.OrderTypeLimit
	f.LimitPrice = ""

	if got := buildMessage(t, f, nil); got != "Limit price is required for limit orders" {
		t.Errorf("message = %q", got)
	}

	f.LimitPrice = "189.25"
	intent, err := Build(f, nil)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if intent.LimitPrice != 189.25 {
		t.Errorf("LimitPrice = %v, want 189.25", intent.LimitPrice)
	}
	if got, want := ConfirmMessage(intent), "BUY 1 shares of AAPL at $189.25?"; got != want {
		t.Errorf("ConfirmMessage = %q, want %q", got, want)
	}
}

func optionForm() FormState {
	f := NewFormState()
	f.AssetClass = domain.AssetClassOption
	f.Symbol = "TSLA"
	f.OptionType = domain.OptionTypeCall
	f.StrikePrice = "250"
	f.ExpirationDate = "2025-06-20"
	f.Side = domain.SideSell
	f.Quantity = "2"
	return f
}

func TestBuildOptionConfirmMessage(t *testing.T) {
	intent, err := Build(optionForm(), nil)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if !intent.IsOption() || intent.StrikePrice != 250 || intent.ExpirationDate != "2025-06-20" {
		t.Errorf("unexpected option intent: %+v", intent)
	}
	want := "SELL 2 TSLA $250 CALL (exp: 2025-06-20) at market price?"
	if got := ConfirmMessage(intent); got != want {
		t.Errorf("ConfirmMessage = %q, want %q", got, want)
	}
}

func TestBuildOptionChainMembership(t *testing.T) {
	chain := &domain.OptionChainState{
		Symbol:             "TSLA",
		Expirations:        []string{"2025-06-20", "2025-06-27"},
		SelectedExpiration: "2025-06-20",
		Strikes:            []float64{240, 250, 260},
		SelectedStrike:     250,
	}

	if _, err := Build(optionForm(), chain); err != nil {
		t.Fatalf("Build with listed strike returned error: %v", err)
	}

	f := optionForm()
	f.StrikePrice = "255"
	if got := buildMessage(t, f, chain); got != MsgStrikeNotListed {
		t.Errorf("message = %q, want %q", got, MsgStrikeNotListed)
	}

	f = optionForm()
	f.ExpirationDate = "2025-07-18"
	if got := buildMessage(t, f, chain); got != MsgExpirationNotListed {
		t.Errorf("message = %q, want %q", got, MsgExpirationNotListed)
	}

	// Strikes resolved for another expiration do not count.
	f = optionForm()
	f.ExpirationDate = "2025-06-27"
	if got := buildMessage(t, f, chain); got != MsgStrikeNotListed {
		t.Errorf("message = %q, want %q", got, MsgStrikeNotListed)
	}

	// A chain for another symbol is stale.
	f = optionForm()
	f.Symbol = "AAPL"
	if got := buildMessage(t, f, chain); got != MsgExpirationNotListed {
		t.Errorf("message = %q, want %q", got, MsgExpirationNotListed)
	}
}

func TestBuildStockIgnoresOptionFields(t *testing.T) {
	f := optionForm()
	f.AssetClass = domain.AssetClassStock
	f.StrikePrice = ""
	intent, err := Build(f, &domain.OptionChainState{})
	if err != nil {
		t.Fatalf("stock order should not depend on option chain: %v", err)
	}
	if intent.OptionType != "" || intent.StrikePrice != 0 || intent.ExpirationDate != "" {
		t.Errorf("stock intent carries option fields: %+v", intent)
	}
}

func TestGateLifecycle(t *testing.T) {
	g := NewGate()
	if g.State() != GateClosed {
		t.Fatalf("new gate state = %v, want closed", g.State())
	}
	if _, err := g.Confirm(); !errors.Is(err, ErrGateClosed) {
		t.Fatalf("Confirm on closed gate = %v, want ErrGateClosed", err)
	}

	first := domain.OrderIntent{Symbol: "SPY", Side: domain.SideBuy, Quantity: 10, OrderType: domain.OrderTypeMarket, AssetClass: domain.AssetClassStock}
	msg, err := g.Open(first)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if msg != "BUY 10 shares of SPY at market price?" {
		t.Errorf("Open message = %q", msg)
	}

	second := first
	second.Quantity = 99
	if _, err := g.Open(second); !errors.Is(err, ErrGateBusy) {
		t.Fatalf("second Open = %v, want ErrGateBusy", err)
	}
	if g.Message() != msg {
		t.Errorf("Message changed after rejected Open: %q", g.Message())
	}

	got, err := g.Confirm()
	if err != nil {
		t.Fatalf("Confirm returned error: %v", err)
	}
	if got != first {
		t.Errorf("Confirm returned %+v, want %+v", got, first)
	}
	if _, err := g.Confirm(); !errors.Is(err, ErrGateClosed) {
		t.Errorf("second Confirm = %v, want ErrGateClosed", err)
	}
	if g.LastResolution() != ResolutionConfirmed {
		t.Errorf("LastResolution = %v, want confirmed", g.LastResolution())
	}

	if _, err := g.Open(second); err != nil {
		t.Fatalf("Open after confirm returned error: %v", err)
	}
	if !g.Cancel() {
		t.Error("Cancel on open gate returned false")
	}
	if g.Cancel() {
		t.Error("Cancel on closed gate returned true")
	}
	if _, ok := g.Pending(); ok {
		t.Error("Pending reports an intent after Cancel")
	}
	if g.LastResolution() != ResolutionCancelled {
		t.Errorf("LastResolution = %v, want cancelled", g.LastResolution())
	}
}
