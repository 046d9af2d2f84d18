package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"orderdesk/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*AlpacaBroker)(nil)

// AlpacaBroker implements the Broker interface using the Alpaca brokerage
// API. The correlation ID travels as Alpaca's client order ID, so Alpaca
// rejects a second order for the same submission on its side too.
type AlpacaBroker struct {
	client *alpaca.Client
	data   *marketdata.Client
}

// NewAlpacaBroker creates a new AlpacaBroker configured with the given
// credentials and API endpoint. dataURL may be empty for the default market
// data endpoint.
func NewAlpacaBroker(apiKey, apiSecret, baseURL, dataURL string) *AlpacaBroker {
	dataOpts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		dataOpts.BaseURL = dataURL
	}
	return &AlpacaBroker{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		data: marketdata.NewClient(dataOpts),
	}
}

// Name returns "alpaca".
func (b *AlpacaBroker) Name() string {
	return "alpaca"
}

// SubmitOrder places a day order via the Alpaca API. Option intents are sent
// under their OCC symbol.
func (b *AlpacaBroker) SubmitOrder(ctx context.Context, clientOrderID string, intent domain.OrderIntent) (*Execution, error) {
	req, err := placeOrderRequest(clientOrderID, intent)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	order, err := b.client.PlaceOrder(req)
	if err != nil {
		var apiErr *alpaca.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity {
			// Alpaca refuses a reused client order ID with 422. If the order
			// exists, an earlier attempt reached Alpaca and this is its result.
			if prior, lerr := b.client.GetOrderByClientOrderID(clientOrderID); lerr == nil {
				return executionOf(prior), nil
			}
		}
		if errors.As(err, &apiErr) && isRejection(apiErr.StatusCode) {
			return &Execution{
				ClientOrderID: clientOrderID,
				Symbol:        req.Symbol,
				Accepted:      false,
				Status:        "rejected",
				Reason:        apiErr.Message,
				SubmittedAt:   time.Now().UTC(),
			}, nil
		}
		return nil, fmt.Errorf("alpaca PlaceOrder: %w", err)
	}
	return executionOf(order), nil
}

func executionOf(order *alpaca.Order) *Execution {
	return &Execution{
		OrderID:       order.ID,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Accepted:      order.Status != "rejected" && order.Status != "canceled",
		Status:        order.Status,
		SubmittedAt:   order.SubmittedAt,
	}
}

// LastPrice returns the latest trade price from Alpaca market data.
func (b *AlpacaBroker) LastPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	trade, err := b.data.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return 0, fmt.Errorf("alpaca GetLatestTrade %s: %w", symbol, err)
	}
	if trade == nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return trade.Price, nil
}

func placeOrderRequest(clientOrderID string, intent domain.OrderIntent) (alpaca.PlaceOrderRequest, error) {
	symbol := intent.Symbol
	if intent.IsOption() {
		occ, err := OCCSymbol(intent)
		if err != nil {
			return alpaca.PlaceOrderRequest{}, err
		}
		symbol = occ
	}

	qty := decimal.NewFromInt(int64(intent.Quantity))
	req := alpaca.PlaceOrderRequest{
		Symbol:        symbol,
		Qty:           &qty,
		Side:          alpaca.Buy,
		Type:          alpaca.Market,
		TimeInForce:   alpaca.Day,
		ClientOrderID: clientOrderID,
	}
	if intent.Side == domain.SideSell {
		req.Side = alpaca.Sell
	}
	if intent.IsLimit() {
		limit := decimal.NewFromFloat(intent.LimitPrice)
		req.Type = alpaca.Limit
		req.LimitPrice = &limit
	}
	return req, nil
}

// isRejection reports whether Alpaca refused the order itself rather than
// failing to process the request.
func isRejection(status int) bool {
	return status == http.StatusForbidden || status == http.StatusUnprocessableEntity
}
