// Package httpapi provides the HTTP REST API of the paper trading backend:
// order execution, option chains, symbol analysis and order templates.
package httpapi

// ExpirationsJSON answers GET /options/chain?symbol=S.
type ExpirationsJSON struct {
	Symbol      string   `json:"symbol"`
	Expirations []string `json:"expirations"`
}

// StrikesJSON answers GET /options/chain?symbol=S&expiration=E.
type StrikesJSON struct {
	Symbol     string    `json:"symbol"`
	Expiration string    `json:"expiration"`
	Strikes    []float64 `json:"strikes"`
}

// HealthJSON answers GET /healthz.
type HealthJSON struct {
	Status string `json:"status"`
	Broker string `json:"broker"`
	Time   string `json:"time"`
}

// TemplateUsedJSON answers POST /order-templates/{id}/use. Clients ignore it.
type TemplateUsedJSON struct {
	ID   int64  `json:"id"`
	Used bool   `json:"used"`
	At   string `json:"at"`
}
