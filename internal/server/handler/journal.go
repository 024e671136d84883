package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/openpredict/marketd/internal/domain"
)

// JournalService defines the transaction reads the journal handler requires.
type JournalService interface {
	ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Transaction, error)
	ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Transaction, error)
}

// JournalHandler serves transaction history endpoints.
type JournalHandler struct {
	journal JournalService
	logger  *slog.Logger
}

// NewJournalHandler creates a JournalHandler over the given journal.
func NewJournalHandler(journal JournalService, logger *slog.Logger) *JournalHandler {
	return &JournalHandler{
		journal: journal,
		logger:  logger,
	}
}

// listTransactionsResponse wraps transaction list output.
type listTransactionsResponse struct {
	Transactions []domain.Transaction `json:"transactions"`
	Limit        int                  `json:"limit"`
	Offset       int                  `json:"offset"`
}

// ListByMarket returns the transaction history of a market, newest first.
// GET /api/markets/{id}/transactions?limit=50&offset=0
func (h *JournalHandler) ListByMarket(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}
	opts := parseListOpts(r)

	txs, err := h.journal.ListByMarket(r.Context(), marketID, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list market transactions failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}

	writeJSON(w, http.StatusOK, listTransactionsResponse{
		Transactions: txs,
		Limit:        opts.Limit,
		Offset:       opts.Offset,
	})
}

// ListByUser returns a user's transaction history across markets.
// GET /api/users/{user}/transactions?limit=50&offset=0
func (h *JournalHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "user")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}
	opts := parseListOpts(r)

	txs, err := h.journal.ListByUser(r.Context(), userID, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list user transactions failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}

	writeJSON(w, http.StatusOK, listTransactionsResponse{
		Transactions: txs,
		Limit:        opts.Limit,
		Offset:       opts.Offset,
	})
}
