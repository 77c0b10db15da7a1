package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-autotrader/internal/arbitrage"
	"github.com/mselser95/polymarket-autotrader/internal/circuitbreaker"
	"github.com/mselser95/polymarket-autotrader/internal/copytrade"
	"github.com/mselser95/polymarket-autotrader/internal/resolution"
	"github.com/mselser95/polymarket-autotrader/internal/trading"
	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"go.uber.org/zap"
)

// Status is the application snapshot served by GET /api/status.
type Status struct {
	Mode          string                 `json:"mode"`
	Loops         map[string]bool        `json:"loops"`
	Providers     []string               `json:"providers"`
	RiskConfig    *types.RiskConfig      `json:"risk_config,omitempty"`
	Budget        *types.BudgetTracking  `json:"budget,omitempty"`
	Remaining     float64                `json:"remaining_budget"`
	Breaker       *circuitbreaker.Status `json:"circuit_breaker,omitempty"`
	ActiveMarkets int                    `json:"active_markets"`
	OpenTrades    int                    `json:"open_trades"`
	OpenSpreads   int                    `json:"open_spread_trades"`
	OpenPositions int                    `json:"open_positions"`
	LastCycle     *trading.CycleResult   `json:"last_cycle,omitempty"`
}

// TradeRequest is the body of POST /api/trades.
type TradeRequest struct {
	MarketID   int64   `json:"market_id"`
	Outcome    string  `json:"outcome"`
	Size       float64 `json:"size"`
	Confidence float64 `json:"confidence"`
}

// MarketRequest is the body of POST /api/markets.
type MarketRequest struct {
	ConditionID string `json:"condition_id"`
}

// ExecuteRequest is the body of POST /api/spreads/{id}/execute.
type ExecuteRequest struct {
	Amount float64 `json:"amount"`
}

// Controller is the application surface exposed under /api.
type Controller interface {
	Status(ctx context.Context) (*Status, error)
	Budgets(ctx context.Context, days int) ([]types.BudgetTracking, error)
	Spreads(ctx context.Context, limit int) ([]types.SpreadOpportunity, error)
	SpreadTrades(ctx context.Context, status types.SpreadTradeStatus) ([]types.SpreadTrade, error)
	Trades(ctx context.Context, status types.TradeStatus) ([]types.Trade, error)
	Positions(ctx context.Context, status types.PositionStatus) ([]types.SnipedPosition, error)

	RiskConfig(ctx context.Context) (*types.RiskConfig, error)
	SetRiskConfig(ctx context.Context, cfg *types.RiskConfig) error
	Markets(ctx context.Context) ([]types.MonitoredMarket, error)
	AddMarket(ctx context.Context, conditionID string) (*types.MonitoredMarket, error)
	RemoveMarket(ctx context.Context, id int64) error

	Scan(ctx context.Context) (*arbitrage.ScanResult, error)
	ExecuteSpread(ctx context.Context, id int64, amount float64) (*types.SpreadTrade, error)
	ResolveSpreads(ctx context.Context) (resolution.Outcome, error)
	RunTradingCycle(ctx context.Context) *trading.CycleResult
	Trade(ctx context.Context, req TradeRequest) (*types.Trade, error)
	Snipe(ctx context.Context) (*copytrade.SnipeResult, error)
	CheckSnipes(ctx context.Context) *copytrade.CheckResult
	StartLoop(ctx context.Context, name string) error
	StopLoop(name string) error
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

type apiHandler struct {
	ctrl   Controller
	logger *zap.Logger
}

func (h *apiHandler) queryRoutes(r chi.Router) {
	r.Get("/status", h.status)
	r.Get("/budgets", h.budgets)
	r.Get("/spreads", h.spreads)
	r.Get("/spread-trades", h.spreadTrades)
	r.Get("/trades", h.trades)
	r.Get("/positions", h.positions)
	r.Get("/risk", h.riskConfig)
	r.Put("/risk", h.setRiskConfig)
	r.Get("/markets", h.markets)
	r.Post("/markets", h.addMarket)
	r.Delete("/markets/{id}", h.removeMarket)
}

// triggerRoutes run on a context detached from the request: once started,
// orders and their bookkeeping complete even if the client goes away.
func (h *apiHandler) triggerRoutes(r chi.Router) {
	r.Post("/scan", h.scan)
	r.Post("/spreads/{id}/execute", h.executeSpread)
	r.Post("/resolve", h.resolve)
	r.Post("/trading/run", h.runCycle)
	r.Post("/trades", h.trade)
	r.Post("/snipe", h.snipe)
	r.Post("/snipes/check", h.checkSnipes)
	r.Post("/loops/{name}/start", h.startLoop)
	r.Post("/loops/{name}/stop", h.stopLoop)
}

func (h *apiHandler) status(w http.ResponseWriter, r *http.Request) {
	st, err := h.ctrl.Status(r.Context())
	h.respond(w, st, err)
}

func (h *apiHandler) budgets(w http.ResponseWriter, r *http.Request) {
	days, ok := h.intQuery(w, r, "days", 7)
	if !ok {
		return
	}
	rows, err := h.ctrl.Budgets(r.Context(), days)
	h.respond(w, rows, err)
}

func (h *apiHandler) spreads(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.intQuery(w, r, "limit", 50)
	if !ok {
		return
	}
	rows, err := h.ctrl.Spreads(r.Context(), limit)
	h.respond(w, rows, err)
}

func (h *apiHandler) spreadTrades(w http.ResponseWriter, r *http.Request) {
	status := types.SpreadTradeStatus(strings.ToUpper(r.URL.Query().Get("status")))
	switch status {
	case "":
		status = types.SpreadTradeOpen
	case types.SpreadTradeOpen, types.SpreadTradeClosed, types.SpreadTradeFailed:
	default:
		h.writeError(w, "invalid status: "+string(status), http.StatusBadRequest)
		return
	}
	rows, err := h.ctrl.SpreadTrades(r.Context(), status)
	h.respond(w, rows, err)
}

func (h *apiHandler) trades(w http.ResponseWriter, r *http.Request) {
	status := types.TradeStatus(strings.ToUpper(r.URL.Query().Get("status")))
	switch status {
	case "":
		status = types.TradeExecuted
	case types.TradePending, types.TradeExecuted, types.TradeResolved, types.TradeFailed, types.TradeCancelled:
	default:
		h.writeError(w, "invalid status: "+string(status), http.StatusBadRequest)
		return
	}
	rows, err := h.ctrl.Trades(r.Context(), status)
	h.respond(w, rows, err)
}

func (h *apiHandler) positions(w http.ResponseWriter, r *http.Request) {
	status := types.PositionStatus(strings.ToUpper(r.URL.Query().Get("status")))
	switch status {
	case "":
		status = types.PositionOpen
	case types.PositionOpen, types.PositionClosed, types.PositionExpired:
	default:
		h.writeError(w, "invalid status: "+string(status), http.StatusBadRequest)
		return
	}
	rows, err := h.ctrl.Positions(r.Context(), status)
	h.respond(w, rows, err)
}

func (h *apiHandler) riskConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.ctrl.RiskConfig(r.Context())
	h.respond(w, cfg, err)
}

func (h *apiHandler) setRiskConfig(w http.ResponseWriter, r *http.Request) {
	var cfg types.RiskConfig
	if !h.decode(w, r, &cfg) {
		return
	}
	err := h.ctrl.SetRiskConfig(r.Context(), &cfg)
	h.respond(w, &cfg, err)
}

func (h *apiHandler) markets(w http.ResponseWriter, r *http.Request) {
	rows, err := h.ctrl.Markets(r.Context())
	h.respond(w, rows, err)
}

func (h *apiHandler) addMarket(w http.ResponseWriter, r *http.Request) {
	var req MarketRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ConditionID == "" {
		h.writeError(w, "condition_id is required", http.StatusBadRequest)
		return
	}
	m, err := h.ctrl.AddMarket(r.Context(), req.ConditionID)
	h.respond(w, m, err)
}

func (h *apiHandler) removeMarket(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, "invalid market id", http.StatusBadRequest)
		return
	}
	err = h.ctrl.RemoveMarket(r.Context(), id)
	h.respond(w, map[string]int64{"deactivated": id}, err)
}

func (h *apiHandler) scan(w http.ResponseWriter, r *http.Request) {
	res, err := h.ctrl.Scan(detach(r))
	h.respond(w, res, err)
}

func (h *apiHandler) executeSpread(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, "invalid opportunity id", http.StatusBadRequest)
		return
	}
	var req ExecuteRequest
	if !h.decode(w, r, &req) {
		return
	}
	trade, err := h.ctrl.ExecuteSpread(detach(r), id, req.Amount)
	h.respond(w, trade, err)
}

func (h *apiHandler) resolve(w http.ResponseWriter, r *http.Request) {
	out, err := h.ctrl.ResolveSpreads(detach(r))
	h.respond(w, out, err)
}

func (h *apiHandler) runCycle(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.ctrl.RunTradingCycle(detach(r)))
}

func (h *apiHandler) trade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.MarketID <= 0 || req.Size <= 0 {
		h.writeError(w, "market_id and size are required", http.StatusBadRequest)
		return
	}
	trade, err := h.ctrl.Trade(detach(r), req)
	h.respond(w, trade, err)
}

func (h *apiHandler) snipe(w http.ResponseWriter, r *http.Request) {
	res, err := h.ctrl.Snipe(detach(r))
	h.respond(w, res, err)
}

func (h *apiHandler) checkSnipes(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.ctrl.CheckSnipes(detach(r)))
}

func (h *apiHandler) startLoop(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	err := h.ctrl.StartLoop(detach(r), name)
	h.respond(w, map[string]string{"loop": name, "state": "running"}, err)
}

func (h *apiHandler) stopLoop(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	err := h.ctrl.StopLoop(name)
	h.respond(w, map[string]string{"loop": name, "state": "stopped"}, err)
}

func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (h *apiHandler) intQuery(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		h.writeError(w, "invalid "+key, http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func (h *apiHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *apiHandler) respond(w http.ResponseWriter, body interface{}, err error) {
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("api-request-failed", zap.Error(err))
		}
		h.writeError(w, err.Error(), status)
		return
	}
	h.writeJSON(w, http.StatusOK, body)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrNotFound), errors.Is(err, types.ErrUnknownLoop):
		return http.StatusNotFound
	case errors.Is(err, arbitrage.ErrInvalidInvestment), errors.Is(err, types.ErrInvalidRiskConfig):
		return http.StatusBadRequest
	case errors.Is(err, arbitrage.ErrInactiveOpportunity),
		errors.Is(err, types.ErrAlreadyHeld),
		errors.Is(err, types.ErrMarketClosed),
		errors.Is(err, types.ErrBudgetExhausted):
		return http.StatusConflict
	case errors.Is(err, trading.ErrRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrRiskConfigMissing):
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

func (h *apiHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

// writeError writes a JSON error response.
func (h *apiHandler) writeError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, ErrorResponse{Error: message})
}
