// Package order turns raw order-ticket input into validated OrderIntents and
// holds them behind a confirmation gate until the user commits.
package order

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"orderdesk/internal/domain"
)

// Validation messages, in the order the checks run.
const (
	MsgSymbolRequired      = "Symbol is required"
	MsgQuantityInvalid     = "Quantity must be greater than 0"
	MsgLimitPriceRequired  = "Limit price is required for limit orders"
	MsgOptionTypeRequired  = "Option type is required for options"
	MsgStrikeRequired      = "Strike price is required for options"
	MsgExpirationRequired  = "Expiration date is required for options"
	MsgSideInvalid         = "Side must be buy or sell"
	MsgOrderTypeInvalid    = "Order type must be market or limit"
	MsgAssetClassInvalid   = "Asset class must be stock or option"
	MsgExpirationNotListed = "Expiration date is not available for this symbol"
	MsgStrikeNotListed     = "Strike price is not available for this expiration"
)

// FormState is the raw, user-edited content of the order ticket. Numeric
// fields are kept as typed text and only coerced by Build.
type FormState struct {
	Symbol         string
	Side           domain.Side
	Quantity       string
	OrderType      domain.OrderType
	LimitPrice     string
	AssetClass     domain.AssetClass
	OptionType     domain.OptionType
	StrikePrice    string
	ExpirationDate string
}

// NewFormState returns the ticket defaults: buy 1 share at market.
func NewFormState() FormState {
	return FormState{
		Side:       domain.SideBuy,
		Quantity:   "1",
		OrderType:  domain.OrderTypeMarket,
		AssetClass: domain.AssetClassStock,
		OptionType: domain.OptionTypeCall,
	}
}

// ValidationError reports the first failed check of Build.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(field, msg string) (domain.OrderIntent, error) {
	return domain.OrderIntent{}, &ValidationError{Field: field, Message: msg}
}

// Build validates f and returns the normalized intent. When chain is non-nil
// an option intent must also name an expiration and strike from it.
func Build(f FormState, chain *domain.OptionChainState) (domain.OrderIntent, error) {
	symbol := strings.ToUpper(strings.TrimSpace(f.Symbol))
	if symbol == "" {
		return invalid("symbol", MsgSymbolRequired)
	}

	qty, ok := parsePositive(f.Quantity)
	if !ok || !qty.IsInteger() || qty.GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
		return invalid("quantity", MsgQuantityInvalid)
	}

	intent := domain.OrderIntent{
		Symbol:     symbol,
		Side:       domain.Side(normalize(string(f.Side))),
		Quantity:   int(qty.IntPart()),
		OrderType:  domain.OrderType(normalize(string(f.OrderType))),
		AssetClass: domain.AssetClass(normalize(string(f.AssetClass))),
	}

	if intent.IsLimit() {
		price, ok := parsePositive(f.LimitPrice)
		if !ok {
			return invalid("limitPrice", MsgLimitPriceRequired)
		}
		intent.LimitPrice = price.InexactFloat64()
	}

	if intent.IsOption() {
		intent.OptionType = domain.OptionType(normalize(string(f.OptionType)))
		if !intent.OptionType.Valid() {
			return invalid("optionType", MsgOptionTypeRequired)
		}
		strike, ok := parsePositive(f.StrikePrice)
		if !ok {
			return invalid("strikePrice", MsgStrikeRequired)
		}
		intent.StrikePrice = strike.InexactFloat64()
		intent.ExpirationDate = strings.TrimSpace(f.ExpirationDate)
		if intent.ExpirationDate == "" {
			return invalid("expirationDate", MsgExpirationRequired)
		}
	}

	if !intent.Side.Valid() {
		return invalid("side", MsgSideInvalid)
	}
	if !intent.OrderType.Valid() {
		return invalid("orderType", MsgOrderTypeInvalid)
	}
	if !intent.AssetClass.Valid() {
		return invalid("assetClass", MsgAssetClassInvalid)
	}

	if intent.IsOption() && chain != nil {
		if chain.Symbol != symbol || !chain.HasExpiration(intent.ExpirationDate) {
			return invalid("expirationDate", MsgExpirationNotListed)
		}
		if chain.SelectedExpiration != intent.ExpirationDate || !containsStrike(chain.Strikes, strikeOf(intent)) {
			return invalid("strikePrice", MsgStrikeNotListed)
		}
	}

	return intent, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// parsePositive parses s as a decimal and reports whether it is > 0.
func parsePositive(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

func strikeOf(o domain.OrderIntent) decimal.Decimal {
	return decimal.NewFromFloat(o.StrikePrice)
}

func containsStrike(strikes []float64, want decimal.Decimal) bool {
	for _, s := range strikes {
		if decimal.NewFromFloat(s).Equal(want) {
			return true
		}
	}
	return false
}
