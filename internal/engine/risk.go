package engine

import (
	"context"
	"fmt"

	"orderdesk/internal/domain"
)

// optionMultiplier is the share count one option contract controls.
const optionMultiplier = 100

// RiskViolation reports a pre-trade rule an order broke.
type RiskViolation struct {
	Rule    string
	Message string
}

func (v *RiskViolation) Error() string { return v.Rule + ": " + v.Message }

// RiskManager enforces pre-trade risk rules: a per-order quantity cap and a
// per-order notional cap. A zero limit disables its rule.
type RiskManager struct {
	maxQuantity int
	maxNotional float64
}

// NewRiskManager creates a RiskManager with the specified risk thresholds.
//
//   - maxQuantity: most shares or contracts a single order may carry.
//   - maxNotional: largest dollar value a single order may carry.
func NewRiskManager(maxQuantity int, maxNotional float64) *RiskManager {
	return &RiskManager{
		maxQuantity: maxQuantity,
		maxNotional: maxNotional,
	}
}

// NeedsPrice reports whether CheckOrder needs a reference price for o.
func (rm *RiskManager) NeedsPrice(o domain.OrderIntent) bool {
	return rm.maxNotional > 0 && !o.IsLimit() && !o.IsOption()
}

// CheckOrder evaluates o against the configured limits. refPrice is used
// for market stock orders; limit orders are valued at their limit price and
// option contracts at premium × 100. Market option orders carry no premium
// and skip the notional rule.
func (rm *RiskManager) CheckOrder(_ context.Context, o domain.OrderIntent, refPrice float64) error {
	if o.Quantity <= 0 {
		return &RiskViolation{Rule: "quantity", Message: "quantity must be positive"}
	}
	if rm.maxQuantity > 0 && o.Quantity > rm.maxQuantity {
		return &RiskViolation{
			Rule:    "max_quantity",
			Message: fmt.Sprintf("quantity %d exceeds limit %d", o.Quantity, rm.maxQuantity),
		}
	}
	if rm.maxNotional <= 0 {
		return nil
	}

	var price float64
	switch {
	case o.IsLimit():
		price = o.LimitPrice
	case o.IsOption():
		return nil
	default:
		price = refPrice
	}
	notional := price * float64(o.Quantity)
	if o.IsOption() {
		notional *= optionMultiplier
	}
	if notional > rm.maxNotional {
		return &RiskViolation{
			Rule:    "max_notional",
			Message: fmt.Sprintf("notional %.2f exceeds limit %.2f", notional, rm.maxNotional),
		}
	}
	return nil
}
