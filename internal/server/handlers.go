package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"tradesense/internal/challenge"
	"tradesense/internal/market"
)

// Handler holds dependencies for the API endpoints.
type Handler struct {
	logger   *zap.Logger
	engine   *challenge.Engine
	provider market.Provider
}

// NewHandler creates a new Handler.
func NewHandler(logger *zap.Logger, engine *challenge.Engine, provider market.Provider) *Handler {
	return &Handler{logger: logger, engine: engine, provider: provider}
}

// HomeHandler is the liveness/info endpoint.
func (h *Handler) HomeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "TradeSense API Ready",
		"status":  "online",
	})
}

// PriceHandler returns a quote for the ticker in the path.
func (h *Handler) PriceHandler(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")

	quote, err := h.provider.GetQuote(r.Context(), ticker)
	if err != nil {
		if market.IsUnavailable(err) {
			writeError(w, http.StatusNotFound, "unknown ticker")
			return
		}
		h.logger.Error("Quote lookup failed", zap.String("ticker", ticker), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "quote lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

// StartChallengeHandler resets and starts a new challenge episode.
// Starting a challenge discards all prior challenges and their trades.
func (h *Handler) StartChallengeHandler(w http.ResponseWriter, r *http.Request) {
	account, err := h.engine.EnsureAccount(r.Context())
	if err != nil {
		h.logger.Error("Failed to ensure account", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start challenge")
		return
	}

	ch, err := h.engine.StartChallenge(r.Context(), account.ID)
	if err != nil {
		h.logger.Error("Failed to start challenge", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start challenge")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Challenge started",
		"balance": ch.CurrentEquity,
	})
}

// tradeRequest is the body of POST /trade.
type tradeRequest struct {
	Ticker string   `json:"ticker"`
	Type   string   `json:"type"`
	Amount *float64 `json:"amount"`
}

// TradeHandler settles a trade against the active challenge.
func (h *Handler) TradeHandler(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Amount == nil {
		writeError(w, http.StatusBadRequest, "amount is required")
		return
	}

	account, err := h.engine.Account(r.Context())
	if errors.Is(err, challenge.ErrNoAccount) {
		writeError(w, http.StatusBadRequest, "no active challenge")
		return
	}
	if err != nil {
		h.logger.Error("Failed to look up account", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to execute trade")
		return
	}

	result, err := h.engine.ExecuteTrade(r.Context(), account.ID, challenge.TradeRequest{
		Ticker: req.Ticker,
		Type:   req.Type,
		Amount: *req.Amount,
	})
	if err != nil {
		switch {
		case errors.Is(err, challenge.ErrInvalidTicker),
			errors.Is(err, challenge.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, challenge.ErrNoActiveChallenge):
			writeError(w, http.StatusBadRequest, "no active challenge")
		case errors.Is(err, challenge.ErrChallengeOver):
			writeError(w, http.StatusBadRequest, "challenge already finished")
		case market.IsUnavailable(err):
			writeError(w, http.StatusInternalServerError, "market closed or unreachable")
		default:
			h.logger.Error("Trade execution failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to execute trade")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "Order executed",
		"new_balance": result.NewBalance,
		"status":      result.Status,
	})
}

// AccountHandler returns the most recent challenge snapshot, or a null
// body if no challenge has ever been started.
func (h *Handler) AccountHandler(w http.ResponseWriter, r *http.Request) {
	account, err := h.engine.Account(r.Context())
	if errors.Is(err, challenge.ErrNoAccount) {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	if err != nil {
		h.logger.Error("Failed to look up account", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get account")
		return
	}

	ch, err := h.engine.Snapshot(r.Context(), account.ID)
	if errors.Is(err, challenge.ErrNoChallenge) {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	if err != nil {
		h.logger.Error("Failed to get challenge snapshot", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get account")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"balance":       ch.CurrentEquity,
		"status":        ch.Status,
		"start_balance": ch.StartBalance,
	})
}
