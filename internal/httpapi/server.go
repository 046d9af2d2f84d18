package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protojson"

	"orderdesk/internal/broker"
	"orderdesk/internal/domain"
	"orderdesk/internal/engine"
	"orderdesk/internal/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Executor runs execute requests; *engine.Engine in production.
type Executor interface {
	Execute(ctx context.Context, req domain.SubmissionRequest) (*domain.SubmissionResult, error)
}

// BackendServer serves the trading backend HTTP API.
type BackendServer struct {
	exec       Executor
	market     broker.MarketData
	templates  store.TemplateStore
	brokerName string
	log        *slog.Logger
}

// NewBackendServer creates a new backend HTTP server.
func NewBackendServer(
	exec Executor,
	market broker.MarketData,
	templates store.TemplateStore,
	brokerName string,
	log *slog.Logger,
) *BackendServer {
	return &BackendServer{
		exec:       exec,
		market:     market,
		templates:  templates,
		brokerName: brokerName,
		log:        log,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *BackendServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /trading/execute", s.handleExecute)
	mux.HandleFunc("GET /options/chain", s.handleOptionChain)
	mux.HandleFunc("GET /ai/analyze-symbol/{symbol}", s.handleAnalyze)
	mux.HandleFunc("GET /order-templates", s.handleListTemplates)
	mux.HandleFunc("POST /order-templates", s.handleCreateTemplate)
	mux.HandleFunc("DELETE /order-templates/{id}", s.handleDeleteTemplate)
	mux.HandleFunc("POST /order-templates/{id}/use", s.handleUseTemplate)
}

// Handler returns an http.Handler with CORS middleware.
func (s *BackendServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return CORS(mux)
}

// CORS allows the browser ticket to call the backend from any origin.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func (s *BackendServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthJSON{
		Status: "ok",
		Broker: s.brokerName,
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// ---------------------------------------------------------------------------
// Trading
// ---------------------------------------------------------------------------

func (s *BackendServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmissionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for i, o := range req.Orders {
		if err := validateIntent(o); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("orders[%d]: %v", i, err))
			return
		}
	}

	res, err := s.exec.Execute(r.Context(), req)
	switch {
	case errors.Is(err, engine.ErrNoOrders), errors.Is(err, engine.ErrCorrelationRequired):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.log.Error("execute failed", "correlation_id", req.CorrelationID, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// validateIntent checks the shape of a submitted order. The ticket already
// validates; this guards direct API callers.
func validateIntent(o domain.OrderIntent) error {
	switch {
	case strings.TrimSpace(o.Symbol) == "":
		return errors.New("symbol is required")
	case !o.Side.Valid():
		return fmt.Errorf("invalid side %q", o.Side)
	case o.Quantity <= 0:
		return errors.New("quantity must be greater than 0")
	case !o.OrderType.Valid():
		return fmt.Errorf("invalid orderType %q", o.OrderType)
	case o.IsLimit() && o.LimitPrice <= 0:
		return errors.New("limitPrice is required for limit orders")
	case !o.AssetClass.Valid():
		return fmt.Errorf("invalid assetClass %q", o.AssetClass)
	}
	if o.IsOption() {
		switch {
		case !o.OptionType.Valid():
			return fmt.Errorf("invalid optionType %q", o.OptionType)
		case o.StrikePrice <= 0:
			return errors.New("strikePrice is required for options")
		case o.ExpirationDate == "":
			return errors.New("expirationDate is required for options")
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

func (s *BackendServer) handleOptionChain(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	expiration := strings.TrimSpace(r.URL.Query().Get("expiration"))

	if expiration == "" {
		exps, err := s.market.Expirations(r.Context(), symbol)
		if err != nil {
			s.writeMarketError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ExpirationsJSON{Symbol: symbol, Expirations: exps})
		return
	}

	strikes, err := s.market.Strikes(r.Context(), symbol, expiration)
	if err != nil {
		s.writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StrikesJSON{Symbol: symbol, Expiration: expiration, Strikes: strikes})
}

func (s *BackendServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	data, err := s.market.Analyze(r.Context(), symbol)
	if err != nil {
		s.writeMarketError(w, err)
		return
	}
	body, err := protojson.Marshal(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (s *BackendServer) writeMarketError(w http.ResponseWriter, err error) {
	if errors.Is(err, broker.ErrUnknownSymbol) || errors.Is(err, broker.ErrUnknownExpiration) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Error("market data request failed", "error", err)
	writeError(w, http.StatusBadGateway, err.Error())
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

func (s *BackendServer) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := s.templates.ListTemplates(r.Context())
	if err != nil {
		s.log.Error("listing templates", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *BackendServer) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var d domain.TemplateDraft
	if err := decodeBody(w, r, &d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d.Name = strings.TrimSpace(d.Name)
	d.Symbol = strings.ToUpper(strings.TrimSpace(d.Symbol))
	switch {
	case d.Name == "":
		writeError(w, http.StatusBadRequest, "name is required")
		return
	case d.Symbol == "":
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	if d.Side == "" {
		d.Side = domain.SideBuy
	}
	if d.OrderType == "" {
		d.OrderType = domain.OrderTypeMarket
	}
	if !d.Side.Valid() || !d.OrderType.Valid() {
		writeError(w, http.StatusBadRequest, "invalid side or orderType")
		return
	}
	if d.Quantity <= 0 {
		d.Quantity = 1
	}

	t, err := s.templates.CreateTemplate(r.Context(), d)
	if err != nil {
		s.log.Error("creating template", "name", d.Name, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info("template created", "id", t.ID, "name", t.Name)
	writeJSON(w, http.StatusCreated, t)
}

func (s *BackendServer) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := templateID(w, r)
	if !ok {
		return
	}
	if err := s.templates.DeleteTemplate(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *BackendServer) handleUseTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := templateID(w, r)
	if !ok {
		return
	}
	if err := s.templates.MarkTemplateUsed(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TemplateUsedJSON{ID: id, Used: true, At: time.Now().UTC().Format(time.RFC3339)})
}

func templateID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid template id")
		return 0, false
	}
	return id, true
}

func (s *BackendServer) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}
	s.log.Error("template store", "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}
