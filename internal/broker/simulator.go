package broker

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"orderdesk/internal/domain"
	"orderdesk/internal/util"
)

// Compile-time interface checks.
var _ Broker = (*SimulatorBroker)(nil)
var _ MarketData = (*SimulatorBroker)(nil)

var symbolPattern = regexp.MustCompile(`^[A-Z][A-Z.]{0,5}$`)

const (
	simExpirations = 6
	simStrikes     = 11
)

// SimulatorBroker implements Broker and MarketData for paper trading. It
// fills every order immediately in memory and derives a stable reference
// price, option chain and analysis from each symbol without making external
// API calls.
type SimulatorBroker struct {
	calendar *util.ExpirationCalendar
	now      func() time.Time

	mu     sync.Mutex
	orders map[string]*Execution
}

// NewSimulatorBroker creates a SimulatorBroker with an empty order map.
func NewSimulatorBroker() *SimulatorBroker {
	// Falls back to UTC when tzdata is unavailable.
	et, _ := time.LoadLocation("America/New_York")
	return &SimulatorBroker{
		calendar: util.NewExpirationCalendar(et),
		now:      time.Now,
		orders:   make(map[string]*Execution),
	}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// SubmitOrder records the order in memory and simulates immediate execution.
// Resubmitting a known client order ID returns the original execution.
func (b *SimulatorBroker) SubmitOrder(_ context.Context, clientOrderID string, intent domain.OrderIntent) (*Execution, error) {
	if err := checkSymbol(intent.Symbol); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if ex, ok := b.orders[clientOrderID]; ok {
		cp := *ex
		return &cp, nil
	}
	ex := &Execution{
		OrderID:       uuid.NewString(),
		ClientOrderID: clientOrderID,
		Symbol:        intent.Symbol,
		Accepted:      true,
		Status:        "filled",
		SubmittedAt:   b.now().UTC(),
	}
	b.orders[clientOrderID] = ex
	cp := *ex
	return &cp, nil
}

// LastPrice returns the symbol's synthetic reference price.
func (b *SimulatorBroker) LastPrice(_ context.Context, symbol string) (float64, error) {
	if err := checkSymbol(symbol); err != nil {
		return 0, err
	}
	return referencePrice(symbol), nil
}

// Expirations lists the next weekly (Friday) expirations.
func (b *SimulatorBroker) Expirations(_ context.Context, symbol string) ([]string, error) {
	if err := checkSymbol(symbol); err != nil {
		return nil, err
	}
	return b.calendar.NextExpirations(b.now(), simExpirations), nil
}

// Strikes lists strikes centred on the reference price. Later expirations
// get a wider grid.
func (b *SimulatorBroker) Strikes(ctx context.Context, symbol, expiration string) ([]float64, error) {
	exps, err := b.Expirations(ctx, symbol)
	if err != nil {
		return nil, err
	}
	week := -1
	for i, e := range exps {
		if e == expiration {
			week = i
			break
		}
	}
	if week < 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrUnknownExpiration, symbol, expiration)
	}

	step := strikeStep(referencePrice(symbol)) * float64(1+week/3)
	center := math.Round(referencePrice(symbol)/step) * step
	strikes := make([]float64, 0, simStrikes)
	for i := -simStrikes / 2; i <= simStrikes/2; i++ {
		if s := center + float64(i)*step; s > 0 {
			strikes = append(strikes, s)
		}
	}
	return strikes, nil
}

// Analyze returns a synthetic analysis object for symbol.
func (b *SimulatorBroker) Analyze(_ context.Context, symbol string) (*structpb.Struct, error) {
	if err := checkSymbol(symbol); err != nil {
		return nil, err
	}
	h := symbolHash(symbol)
	signals := []string{"bearish", "neutral", "bullish"}
	return structpb.NewStruct(map[string]any{
		"symbol":         symbol,
		"signal":         signals[h%3],
		"confidence":     float64(50+h%50) / 100,
		"referencePrice": referencePrice(symbol),
		"generatedAt":    b.now().UTC().Format(time.RFC3339),
		"model":          "simulator",
	})
}

func checkSymbol(symbol string) error {
	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("%w: %q", ErrUnknownSymbol, symbol)
	}
	return nil
}

func symbolHash(symbol string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(strings.ToUpper(symbol)))
	return h.Sum32()
}

// referencePrice maps a symbol to a stable price in [20, 520).
func referencePrice(symbol string) float64 {
	cents := symbolHash(symbol) % 50000
	return 20 + float64(cents)/100
}

func strikeStep(price float64) float64 {
	switch {
	case price < 50:
		return 1
	case price < 200:
		return 2.5
	default:
		return 5
	}
}
