package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"PaperPerps/internal/engine"
	"PaperPerps/internal/fixedpoint"
	"PaperPerps/internal/query"
)

// callerHeader carries the caller identity. There is no auth layer;
// the deployment fronts this service with a gateway that sets it.
const callerHeader = "X-Caller-ID"

// Handler serves the JSON API. All monetary values cross the wire as
// decimal strings.
type Handler struct {
	engine *engine.Engine
	query  *query.Service
	log    zerolog.Logger
}

func NewHandler(eng *engine.Engine, qs *query.Service, log zerolog.Logger) *Handler {
	return &Handler{
		engine: eng,
		query:  qs,
		log:    log.With().Str("component", "httpapi").Logger(),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type accountResponse struct {
	PlayerID string `json:"player_id"`
	Balance  string `json:"balance"`
}

type tradeResponse struct {
	TradeID              uint64 `json:"trade_id"`
	PlayerID             string `json:"player_id"`
	IsLong               bool   `json:"is_long"`
	EntryPrice           string `json:"entry_price"`
	TakeProfit           string `json:"take_profit"`
	StopLoss             string `json:"stop_loss"`
	Margin               string `json:"margin"`
	Leverage             uint32 `json:"leverage"`
	ManualCloseRequested bool   `json:"manual_close_requested"`
}

type settlementResponse struct {
	Settled   bool   `json:"settled"`
	TradeID   uint64 `json:"trade_id,omitempty"`
	ExitPrice string `json:"exit_price,omitempty"`
	PnL       string `json:"pnl,omitempty"`
	Balance   string `json:"balance,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Register handles POST /v1/accounts/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	balance, err := h.engine.Register(caller)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, accountResponse{
		PlayerID: caller.String(),
		Balance:  fixedpoint.Format(balance),
	})
}

// Account handles GET /v1/accounts/{player}.
func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	player, err := uuid.Parse(chi.URLParam(r, "player"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid player id"})
		return
	}

	balance, err := h.engine.Balance(player)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{
		PlayerID: player.String(),
		Balance:  fixedpoint.Format(balance),
	})
}

type openTradeRequest struct {
	IsLong     bool   `json:"is_long"`
	Margin     string `json:"margin"`
	EntryPrice string `json:"entry_price"`
	TakeProfit string `json:"take_profit"`
	StopLoss   string `json:"stop_loss"`
	Leverage   uint32 `json:"leverage"`
}

// OpenTrade handles POST /v1/trades/open.
func (h *Handler) OpenTrade(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	var req openTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	margin, err := fixedpoint.Parse(req.Margin)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid margin"})
		return
	}
	entryPrice, err := fixedpoint.Parse(req.EntryPrice)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid entry_price"})
		return
	}
	takeProfit, err := fixedpoint.Parse(req.TakeProfit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid take_profit"})
		return
	}
	stopLoss, err := fixedpoint.Parse(req.StopLoss)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid stop_loss"})
		return
	}

	trade, err := h.engine.OpenTrade(caller, engine.OpenParams{
		IsLong:     req.IsLong,
		Margin:     margin,
		EntryPrice: entryPrice,
		TakeProfit: takeProfit,
		StopLoss:   stopLoss,
		Leverage:   req.Leverage,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tradeResponse{
		TradeID:              trade.ID,
		PlayerID:             trade.PlayerID.String(),
		IsLong:               trade.IsLong,
		EntryPrice:           fixedpoint.Format(trade.EntryPrice),
		TakeProfit:           fixedpoint.Format(trade.TakeProfit),
		StopLoss:             fixedpoint.Format(trade.StopLoss),
		Margin:               fixedpoint.Format(trade.Margin),
		Leverage:             trade.Leverage,
		ManualCloseRequested: trade.ManualCloseRequested,
	})
}

// CloseTrade handles POST /v1/trades/close. It only flags the trade;
// settlement happens on the next price resolution.
func (h *Handler) CloseTrade(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	if err := h.engine.CloseTrade(caller); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "close_requested"})
}

// Trade handles GET /v1/trades/{player}.
func (h *Handler) Trade(w http.ResponseWriter, r *http.Request) {
	player, err := uuid.Parse(chi.URLParam(r, "player"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid player id"})
		return
	}

	trade, err := h.engine.Trade(player)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tradeResponse{
		TradeID:              trade.ID,
		PlayerID:             trade.PlayerID.String(),
		IsLong:               trade.IsLong,
		EntryPrice:           fixedpoint.Format(trade.EntryPrice),
		TakeProfit:           fixedpoint.Format(trade.TakeProfit),
		StopLoss:             fixedpoint.Format(trade.StopLoss),
		Margin:               fixedpoint.Format(trade.Margin),
		Leverage:             trade.Leverage,
		ManualCloseRequested: trade.ManualCloseRequested,
	})
}

type resolveRequest struct {
	PlayerID string `json:"player_id"`
	Price    string `json:"price"`
}

// Resolve handles POST /v1/resolve. The caller must hold the price
// authority role; the HTTP layer passes identity through and lets the
// engine decide.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	player, err := uuid.Parse(req.PlayerID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid player_id"})
		return
	}
	price, err := fixedpoint.Parse(req.Price)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid price"})
		return
	}

	settle, err := h.engine.Resolve(caller, player, price)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if settle == nil {
		writeJSON(w, http.StatusOK, settlementResponse{Settled: false})
		return
	}
	writeJSON(w, http.StatusOK, settlementResponse{
		Settled:   true,
		TradeID:   settle.TradeID,
		ExitPrice: fixedpoint.Format(settle.ExitPrice),
		PnL:       fixedpoint.Format(settle.PnL),
		Balance:   fixedpoint.Format(settle.Balance),
		Reason:    settle.Reason,
	})
}

type priceAuthorityRequest struct {
	AuthorityID string `json:"authority_id"`
}

// SetPriceAuthority handles POST /v1/admin/price-authority.
func (h *Handler) SetPriceAuthority(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	var req priceAuthorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	next, err := uuid.Parse(req.AuthorityID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid authority_id"})
		return
	}

	if err := h.engine.SetPriceAuthority(caller, next); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"price_authority": next.String()})
}

// History handles GET /v1/history/{player}.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	player, err := uuid.Parse(chi.URLParam(r, "player"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid player id"})
		return
	}

	limit := queryInt(r, "limit", 100)
	after := int64(queryInt(r, "after", 0))

	entries, err := h.query.History(r.Context(), player, limit, after)
	if err != nil {
		h.log.Error().Err(err).Msg("history query failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	if entries == nil {
		entries = []query.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- helpers ---

func callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get(callerHeader))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing or invalid " + callerHeader + " header"})
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrNotRegistered), errors.Is(err, engine.ErrNoActiveTrade):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrAlreadyRegistered),
		errors.Is(err, engine.ErrTradeAlreadyActive),
		errors.Is(err, engine.ErrCloseAlreadyRequested):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrInvalidMargin),
		errors.Is(err, engine.ErrInvalidLeverage),
		errors.Is(err, fixedpoint.ErrAmountRange):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
