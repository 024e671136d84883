package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/openpredict/marketd/internal/domain"
)

// ResolutionService defines the payout calculations the resolution handler
// requires.
type ResolutionService interface {
	Redeem(ctx context.Context, marketID, userID string) (float64, error)
	Preview(ctx context.Context, marketID, userID string, res domain.Resolution) (float64, error)
}

// ResolutionHandler serves market resolution and redemption endpoints.
type ResolutionHandler struct {
	catalog    domain.MarketCatalog
	calculator ResolutionService
	logger     *slog.Logger
}

// NewResolutionHandler creates a ResolutionHandler over the catalog and
// payout calculator.
func NewResolutionHandler(catalog domain.MarketCatalog, calc ResolutionService, logger *slog.Logger) *ResolutionHandler {
	return &ResolutionHandler{
		catalog:    catalog,
		calculator: calc,
		logger:     logger,
	}
}

// resolveRequest is the body for resolving a market.
type resolveRequest struct {
	OptionIndex int    `json:"optionIndex"`
	Side        string `json:"side"`
}

// Resolve marks the winning (option, side) pair of a market. A market can be
// resolved once.
// POST /api/markets/{id}/resolve
func (h *ResolutionHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	side := domain.Side(req.Side)
	if !side.Valid() {
		writeError(w, http.StatusBadRequest, "side must be yes or no")
		return
	}

	res := domain.Resolution{
		OptionIndex: req.OptionIndex,
		Side:        side,
		ResolvedAt:  time.Now().UTC(),
	}
	if err := h.catalog.Resolve(r.Context(), marketID, res); err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "handler: market resolved",
		slog.String("market_id", marketID),
		slog.Int("option_index", req.OptionIndex),
		slog.String("side", req.Side),
	)

	market, err := h.catalog.Get(r.Context(), marketID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

// Redeem returns the user's payout from a resolved market.
// GET /api/markets/{id}/redeem?user=alice
func (h *ResolutionHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	userID := userParam(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user required")
		return
	}

	payout, err := h.calculator.Redeem(r.Context(), marketID, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"marketId": marketID,
		"userId":   userID,
		"payout":   payout,
	})
}

// previewRequest is the body for a hypothetical-resolution payout query.
type previewRequest struct {
	UserID      string `json:"userId"`
	OptionIndex int    `json:"optionIndex"`
	Side        string `json:"side"`
}

// Preview returns what the user would redeem under a hypothetical resolution.
// POST /api/markets/{id}/redeem/preview
func (h *ResolutionHandler) Preview(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")

	var req previewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}
	side := domain.Side(req.Side)
	if !side.Valid() {
		writeError(w, http.StatusBadRequest, "side must be yes or no")
		return
	}

	payout, err := h.calculator.Preview(r.Context(), marketID, req.UserID, domain.Resolution{
		OptionIndex: req.OptionIndex,
		Side:        side,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"marketId": marketID,
		"userId":   req.UserID,
		"payout":   payout,
	})
}
