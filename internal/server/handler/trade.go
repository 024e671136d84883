package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/openpredict/marketd/internal/domain"
	"github.com/openpredict/marketd/internal/engine"
)

// AllocationService defines the engine operations the trade handler exposes
// over HTTP. It is declared locally so the handler package does not depend on
// the concrete engine beyond its result types.
type AllocationService interface {
	SelectSide(ctx context.Context, marketID, userID string, optionIndex int, side domain.Side, mode domain.Mode) (domain.Allocation, error)
	Stage(ctx context.Context, marketID, userID string, optionIndex int, side domain.Side, amount float64, mode domain.Mode) (domain.Allocation, error)
	Clear(ctx context.Context, marketID, userID string, optionIndex int) error
	Commit(ctx context.Context, marketID, userID string, optionIndex int) (domain.Transaction, error)
	CommitAll(ctx context.Context, marketID, userID string) ([]engine.CommitResult, error)
	Deposit(ctx context.Context, marketID, userID string, amount float64) (domain.Transaction, error)
	TradingBalance(ctx context.Context, marketID, userID string) (float64, error)
	Staged(ctx context.Context, marketID, userID string) ([]domain.Allocation, error)
	AvailableToBuy(ctx context.Context, marketID, userID string, optionIndex int, side domain.Side) (float64, error)
	AvailableToSell(ctx context.Context, marketID, userID string, optionIndex int, side domain.Side) (float64, error)
	TotalAllocated(ctx context.Context, marketID, userID string) (float64, error)
	MaxPotentialReturn(ctx context.Context, marketID, userID string) (float64, error)
}

// TradeHandler serves allocation and commit endpoints.
type TradeHandler struct {
	engine AllocationService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler over the given engine.
func NewTradeHandler(eng AllocationService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		engine: eng,
		logger: logger,
	}
}

// selectRequest is the body for choosing a side on an option.
type selectRequest struct {
	UserID string `json:"userId"`
	Side   string `json:"side"`
	Mode   string `json:"mode"`
}

// SelectSide sets the active side and mode for an option, clearing any staged
// amount when the side changes.
// POST /api/markets/{id}/options/{option}/select
func (h *TradeHandler) SelectSide(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	optionIndex, err := optionIndexParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req selectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}

	alloc, err := h.engine.SelectSide(r.Context(), marketID, req.UserID, optionIndex, domain.Side(req.Side), domain.Mode(req.Mode))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, alloc)
}

// stageRequest is the body for staging an amount on an option side.
type stageRequest struct {
	UserID string  `json:"userId"`
	Side   string  `json:"side"`
	Amount float64 `json:"amount"`
	Mode   string  `json:"mode"`
}

// Stage stages an amount against an option side, bounded by the trading
// balance for buys and the owned position for sells.
// POST /api/markets/{id}/options/{option}/stage
func (h *TradeHandler) Stage(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	optionIndex, err := optionIndexParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req stageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}

	alloc, err := h.engine.Stage(r.Context(), marketID, req.UserID, optionIndex, domain.Side(req.Side), req.Amount, domain.Mode(req.Mode))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, alloc)
}

// Clear removes a staged allocation.
// DELETE /api/markets/{id}/options/{option}/allocation
func (h *TradeHandler) Clear(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	optionIndex, err := optionIndexParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID := userParam(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user required")
		return
	}

	if err := h.engine.Clear(r.Context(), marketID, userID, optionIndex); err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// commitRequest is the body for commit endpoints.
type commitRequest struct {
	UserID string `json:"userId"`
}

// Commit settles and places the staged allocation for one option.
// POST /api/markets/{id}/options/{option}/commit
func (h *TradeHandler) Commit(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	optionIndex, err := optionIndexParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req commitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}

	tx, err := h.engine.Commit(r.Context(), marketID, req.UserID, optionIndex)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// CommitAll settles every staged allocation in the market, continuing past
// individual failures.
// POST /api/markets/{id}/commit
func (h *TradeHandler) CommitAll(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")

	var req commitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}

	results, err := h.engine.CommitAll(r.Context(), marketID, req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(results))
	for _, res := range results {
		entry := map[string]any{
			"optionIndex": res.OptionIndex,
		}
		if res.Err != nil {
			entry["error"] = res.Err.Error()
		} else {
			entry["transaction"] = res.Tx
		}
		out = append(out, entry)
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

// depositRequest is the body for funding a trading balance.
type depositRequest struct {
	UserID string  `json:"userId"`
	Amount float64 `json:"amount"`
}

// Deposit credits the user's trading balance for the market.
// POST /api/markets/{id}/deposit
func (h *TradeHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")

	var req depositRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}

	tx, err := h.engine.Deposit(r.Context(), marketID, req.UserID, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

// Balance returns the user's trading balance and allocation totals.
// GET /api/markets/{id}/balance?user=alice
func (h *TradeHandler) Balance(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	userID := userParam(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user required")
		return
	}

	balance, err := h.engine.TradingBalance(r.Context(), marketID, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	allocated, err := h.engine.TotalAllocated(r.Context(), marketID, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	maxReturn, err := h.engine.MaxPotentialReturn(r.Context(), marketID, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"marketId":           marketID,
		"userId":             userID,
		"balance":            balance,
		"totalAllocated":     allocated,
		"maxPotentialReturn": maxReturn,
	})
}

// Allocations returns the user's staged allocations in the market.
// GET /api/markets/{id}/allocations?user=alice
func (h *TradeHandler) Allocations(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	userID := userParam(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user required")
		return
	}

	allocs, err := h.engine.Staged(r.Context(), marketID, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if allocs == nil {
		allocs = []domain.Allocation{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"allocations": allocs})
}

// Limits returns the buy and sell bounds for an option side.
// GET /api/markets/{id}/options/{option}/limits?user=alice&side=yes
func (h *TradeHandler) Limits(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	optionIndex, err := optionIndexParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID := userParam(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user required")
		return
	}
	side := domain.Side(r.URL.Query().Get("side"))
	if !side.Valid() {
		writeError(w, http.StatusBadRequest, "side must be yes or no")
		return
	}

	buy, err := h.engine.AvailableToBuy(r.Context(), marketID, userID, optionIndex, side)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	sell, err := h.engine.AvailableToSell(r.Context(), marketID, userID, optionIndex, side)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"marketId":        marketID,
		"optionIndex":     optionIndex,
		"side":            side,
		"availableToBuy":  buy,
		"availableToSell": sell,
	})
}
