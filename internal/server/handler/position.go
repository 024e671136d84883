package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/openpredict/marketd/internal/domain"
)

// PositionService defines the ledger reads the position handler requires.
type PositionService interface {
	Positions(ctx context.Context, marketID, userID string) ([]domain.Position, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	ledger PositionService
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler over the given ledger.
func NewPositionHandler(ledger PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		ledger: ledger,
		logger: logger,
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns the user's placed positions in a market.
// GET /api/markets/{id}/positions?user=alice
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	userID := userParam(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user required")
		return
	}

	positions, err := h.ledger.Positions(r.Context(), marketID, userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("market_id", marketID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	if positions == nil {
		positions = []domain.Position{}
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}
