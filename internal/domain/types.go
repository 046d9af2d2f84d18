// Package domain defines the core types shared by the order ticket, the
// backend SDK and the paper backend.
package domain

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// ---------------------------------------------------------------------------
// Enumerations
// ---------------------------------------------------------------------------

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// OrderType is the pricing instruction of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool { return t == OrderTypeMarket || t == OrderTypeLimit }

// AssetClass distinguishes equity orders from single-leg option orders.
type AssetClass string

const (
	AssetClassStock  AssetClass = "stock"
	AssetClassOption AssetClass = "option"
)

// Valid reports whether a is a known asset class.
func (a AssetClass) Valid() bool { return a == AssetClassStock || a == AssetClassOption }

// OptionType is the right conveyed by an option contract.
type OptionType string

const (
	OptionTypeCall OptionType = "call"
	OptionTypePut  OptionType = "put"
)

// Valid reports whether o is a known option type.
func (o OptionType) Valid() bool { return o == OptionTypeCall || o == OptionTypePut }

// OrderStatus is the recorded outcome of a submitted order.
type OrderStatus string

const (
	OrderStatusExecuted  OrderStatus = "executed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// OrderIntent is a normalized, not-yet-submitted order. Option fields are
// only set when AssetClass is AssetClassOption; LimitPrice only when
// OrderType is OrderTypeLimit.
type OrderIntent struct {
	Symbol         string     `json:"symbol"`
	Side           Side       `json:"side"`
	Quantity       int        `json:"quantity"`
	OrderType      OrderType  `json:"orderType"`
	LimitPrice     float64    `json:"limitPrice,omitempty"`
	AssetClass     AssetClass `json:"assetClass"`
	OptionType     OptionType `json:"optionType,omitempty"`
	StrikePrice    float64    `json:"strikePrice,omitempty"`
	ExpirationDate string     `json:"expirationDate,omitempty"`
}

// IsOption reports whether the intent targets an option contract.
func (o OrderIntent) IsOption() bool { return o.AssetClass == AssetClassOption }

// IsLimit reports whether the intent carries a limit price.
func (o OrderIntent) IsLimit() bool { return o.OrderType == OrderTypeLimit }

// SubmissionRequest is the wire envelope sent to POST /trading/execute.
type SubmissionRequest struct {
	DryRun        bool          `json:"dryRun"`
	CorrelationID string        `json:"correlationId"`
	Orders        []OrderIntent `json:"orders"`
}

// SubmissionResult is the backend's answer to a SubmissionRequest. When
// Duplicate is true, Accepted reflects the original attempt.
type SubmissionResult struct {
	Accepted  bool          `json:"accepted"`
	Duplicate bool          `json:"duplicate,omitempty"`
	DryRun    bool          `json:"dryRun,omitempty"`
	Orders    []OrderIntent `json:"orders,omitempty"`
}

// HistoryEntry is one locally recorded order outcome.
type HistoryEntry struct {
	ID            int64       `json:"id"`
	CorrelationID string      `json:"correlationId"`
	Intent        OrderIntent `json:"intent"`
	Status        OrderStatus `json:"status"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// ---------------------------------------------------------------------------
// Option chain
// ---------------------------------------------------------------------------

// OptionChainState is the resolved cascade for one symbol. Strikes belong to
// the (Symbol, SelectedExpiration) pair only.
type OptionChainState struct {
	Symbol             string    `json:"symbol"`
	Expirations        []string  `json:"expirations"`
	SelectedExpiration string    `json:"selectedExpiration,omitempty"`
	Strikes            []float64 `json:"strikes"`
	SelectedStrike     float64   `json:"selectedStrike,omitempty"`
}

// Clone returns a deep copy of the state.
func (s OptionChainState) Clone() OptionChainState {
	out := s
	out.Expirations = append([]string(nil), s.Expirations...)
	out.Strikes = append([]float64(nil), s.Strikes...)
	return out
}

// HasExpiration reports whether exp is in the resolved expiration set.
func (s OptionChainState) HasExpiration(exp string) bool {
	for _, e := range s.Expirations {
		if e == exp {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

// OrderTemplate is a saved order preset.
type OrderTemplate struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Symbol      string     `json:"symbol"`
	Side        Side       `json:"side"`
	Quantity    int        `json:"quantity"`
	OrderType   OrderType  `json:"orderType"`
	LimitPrice  *float64   `json:"limitPrice,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
}

// TemplateDraft holds the user-supplied fields of a new template.
type TemplateDraft struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Quantity    int       `json:"quantity"`
	OrderType   OrderType `json:"orderType"`
	LimitPrice  *float64  `json:"limitPrice,omitempty"`
}

// ---------------------------------------------------------------------------
// Analysis
// ---------------------------------------------------------------------------

// AnalysisSnapshot is an ephemeral, symbol-keyed analysis result. Data is
// opaque to the order ticket.
type AnalysisSnapshot struct {
	Symbol    string
	FetchedAt time.Time
	Data      *structpb.Struct
}
