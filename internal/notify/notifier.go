// Package notify alerts operators about market lifecycle events. Alerts are
// dispatched to all registered senders (Telegram, Discord) and can be
// filtered by event type so operators receive only the alerts they care
// about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openpredict/marketd/internal/domain"
)

// Event types accepted by the notifier filter.
const (
	EventMarketResolved   = "market_resolved"
	EventSettlementFailed = "settlement_failed"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches market event alerts to one or more Senders. It
// maintains a set of allowed event types; events outside the set are dropped.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in the events slice are forwarded. If events is
// empty, all event types are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// MarketResolved announces the winning pair of a resolved market.
func (n *Notifier) MarketResolved(ctx context.Context, m domain.Market) {
	if m.Resolution == nil {
		return
	}
	title := fmt.Sprintf("Market resolved: %s", m.ID)
	message := fmt.Sprintf("%s\nWinner: %s (%s)\nTotal pool: %.2f",
		m.Question, m.OptionName(m.Resolution.OptionIndex), m.Resolution.Side, m.TotalPool())
	n.notify(ctx, EventMarketResolved, title, message)
}

// SettlementFailed reports an external settlement attempt that produced no
// reference. Retryable failures are labeled so operators can triage.
func (n *Notifier) SettlementFailed(ctx context.Context, intent domain.SettlementIntent, err error) {
	title := fmt.Sprintf("Settlement failed: %s", intent.MarketID)
	verdict := "permanent"
	if se, ok := domain.AsSettlement(err); ok && se.Retryable() {
		verdict = "retryable"
	}
	message := fmt.Sprintf("user=%s option=%s side=%s amount=%.2f\n%s (%s)",
		intent.UserID, intent.OptionName, intent.Side, intent.Amount, err, verdict)
	n.notify(ctx, EventSettlementFailed, title, message)
}

// notify applies the event filter and dispatches. Delivery failures are
// logged, never propagated; alerting must not affect the trading path.
func (n *Notifier) notify(ctx context.Context, event, title, message string) {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return
	}

	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
}
