package handler

import (
	"log/slog"
	"net/http"

	"github.com/openpredict/marketd/internal/domain"
	"github.com/openpredict/marketd/internal/pricing"
)

// MarketHandler serves market catalog and pricing endpoints.
type MarketHandler struct {
	catalog domain.MarketCatalog
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler over the given catalog.
func NewMarketHandler(catalog domain.MarketCatalog, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns all known markets with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.catalog.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	total := len(markets)
	if opts.Offset >= total {
		markets = nil
	} else {
		markets = markets[opts.Offset:]
		if len(markets) > opts.Limit {
			markets = markets[:opts.Limit]
		}
	}
	if markets == nil {
		markets = []domain.Market{}
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// optionQuote is the priced view of one option.
type optionQuote struct {
	OptionIndex int     `json:"optionIndex"`
	Name        string  `json:"name"`
	Stake       float64 `json:"stake"`
	Probability float64 `json:"probability"`
	YesPrice    float64 `json:"yesPrice"`
	NoPrice     float64 `json:"noPrice"`
}

// GetPrices returns current per-option probabilities and yes/no share prices.
// GET /api/markets/{id}/prices
func (h *MarketHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	quotes := make([]optionQuote, 0, len(market.Options))
	for i, opt := range market.Options {
		prob, err := pricing.ImpliedProbability(market, i)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		yes, err := pricing.Price(market, i, domain.SideYes)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		no, err := pricing.Price(market, i, domain.SideNo)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		quotes = append(quotes, optionQuote{
			OptionIndex: i,
			Name:        opt.Name,
			Stake:       opt.Stake,
			Probability: prob,
			YesPrice:    yes,
			NoPrice:     no,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"marketId":  market.ID,
		"totalPool": market.TotalPool(),
		"options":   quotes,
	})
}
