// Package broker defines the Broker and MarketData interfaces the paper
// backend executes against, with a simulator and an Alpaca implementation.
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"orderdesk/internal/domain"
)

var (
	// ErrUnknownSymbol is returned for symbols the market data source does
	// not list.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrUnknownExpiration is returned when strikes are requested for an
	// expiration that is not listed.
	ErrUnknownExpiration = errors.New("unknown expiration")
)

// Execution is the broker's report for one submitted order.
type Execution struct {
	OrderID       string    `json:"orderId"`
	ClientOrderID string    `json:"clientOrderId"`
	Symbol        string    `json:"symbol"`
	Accepted      bool      `json:"accepted"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// Broker abstracts order execution.
type Broker interface {
	// Name returns the broker identifier (e.g. "alpaca", "simulator").
	Name() string

	// SubmitOrder sends intent to the brokerage under clientOrderID. A
	// rejection by the brokerage is an Execution with Accepted=false, not
	// an error.
	SubmitOrder(ctx context.Context, clientOrderID string, intent domain.OrderIntent) (*Execution, error)

	// LastPrice returns a reference price for symbol, used for notional
	// risk checks on market orders.
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// MarketData serves the option chain and analysis lookups of the order
// ticket.
type MarketData interface {
	Expirations(ctx context.Context, symbol string) ([]string, error)
	Strikes(ctx context.Context, symbol, expiration string) ([]float64, error)
	Analyze(ctx context.Context, symbol string) (*structpb.Struct, error)
}

// OCCSymbol returns the OCC option symbol for an option intent, e.g.
// TSLA250620C00250000.
func OCCSymbol(intent domain.OrderIntent) (string, error) {
	if !intent.IsOption() {
		return "", fmt.Errorf("%s is not an option order", intent.Symbol)
	}
	exp, err := time.Parse("2006-01-02", intent.ExpirationDate)
	if err != nil {
		return "", fmt.Errorf("parsing expiration %q: %w", intent.ExpirationDate, err)
	}
	var cp string
	switch intent.OptionType {
	case domain.OptionTypeCall:
		cp = "C"
	case domain.OptionTypePut:
		cp = "P"
	default:
		return "", fmt.Errorf("invalid option type %q", intent.OptionType)
	}
	if intent.StrikePrice <= 0 {
		return "", fmt.Errorf("invalid strike %v", intent.StrikePrice)
	}
	millis := decimal.NewFromFloat(intent.StrikePrice).Shift(3).Round(0).IntPart()
	root := strings.ReplaceAll(strings.ToUpper(intent.Symbol), ".", "")
	return fmt.Sprintf("%s%s%s%08d", root, exp.Format("060102"), cp, millis), nil
}
