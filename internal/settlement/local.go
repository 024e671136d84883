package settlement

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/openpredict/marketd/internal/domain"
)

// LocalExecutor implements domain.SettlementExecutor without any external
// network: every intent settles immediately under a generated reference.
// Intended for development and tests, not production.
type LocalExecutor struct {
	logger *slog.Logger
}

// NewLocalExecutor creates a LocalExecutor.
func NewLocalExecutor(logger *slog.Logger) *LocalExecutor {
	return &LocalExecutor{logger: logger.With(slog.String("component", "settlement"))}
}

// Settle accepts the intent and returns a fresh reference.
func (l *LocalExecutor) Settle(ctx context.Context, intent domain.SettlementIntent) (string, error) {
	ref := "local-" + uuid.New().String()
	l.logger.DebugContext(ctx, "local settlement",
		slog.String("market", intent.MarketID),
		slog.String("user", intent.UserID),
		slog.String("type", string(intent.Type)),
		slog.Float64("amount", intent.Amount),
		slog.String("ref", ref),
	)
	return ref, nil
}

// OpenIdentity implements domain.Identity by accepting every non-empty user
// ID. Pairs with LocalExecutor for development.
type OpenIdentity struct{}

// Authenticated reports whether userID is non-empty.
func (OpenIdentity) Authenticated(_ context.Context, userID string) (bool, error) {
	return userID != "", nil
}

var (
	_ domain.SettlementExecutor = (*LocalExecutor)(nil)
	_ domain.Identity           = OpenIdentity{}
)
