// Package feed streams external stake updates into the market catalog over
// WebSocket.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// StakeUpdate is one stake-vector message from the upstream feed.
type StakeUpdate struct {
	MarketID string    `json:"marketId"`
	Stakes   []float64 `json:"stakes"`
}

// StakeSink receives decoded stake updates. The catalog satisfies it via
// SetStakes.
type StakeSink interface {
	SetStakes(ctx context.Context, marketID string, stakes []float64) error
}

// subscribeCmd is the subscription frame sent after connecting.
type subscribeCmd struct {
	Action  string   `json:"action"`
	Markets []string `json:"markets"`
}

// StakeFeed connects to an upstream stake WebSocket, subscribes to the
// configured markets, and forwards every update into the sink. It reconnects
// with exponential backoff on disconnect.
type StakeFeed struct {
	wsURL     string
	marketIDs []string
	sink      StakeSink
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewStakeFeed creates a feed subscribed to the given market IDs.
func NewStakeFeed(wsURL string, marketIDs []string, sink StakeSink, logger *slog.Logger) *StakeFeed {
	return &StakeFeed{
		wsURL:     wsURL,
		marketIDs: marketIDs,
		sink:      sink,
		logger:    logger.With(slog.String("component", "stake_feed")),
		done:      make(chan struct{}),
	}
}

// Run connects and pumps updates until ctx is cancelled or Close is called.
func (f *StakeFeed) Run(ctx context.Context) error {
	if len(f.marketIDs) == 0 {
		f.logger.Info("no markets to subscribe, exiting")
		return nil
	}

	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}

		f.logger.Warn("stake feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// runConnection holds one WebSocket session: dial, subscribe, pump messages.
func (f *StakeFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(subscribeCmd{Action: "subscribe", Markets: f.marketIDs}); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("stake feed subscribed", slog.Int("markets", len(f.marketIDs)))

	// Close the connection when ctx ends so ReadMessage unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-f.done:
				conn.Close()
				return
			case <-stop:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var update StakeUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			f.logger.Warn("stake feed dropped malformed message", slog.String("error", err.Error()))
			continue
		}
		if update.MarketID == "" || len(update.Stakes) == 0 {
			continue
		}

		if err := f.sink.SetStakes(ctx, update.MarketID, update.Stakes); err != nil {
			// A stale or unknown market is the feed's problem, not ours.
			f.logger.Warn("stake update not applied",
				slog.String("market", update.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Close stops the feed.
func (f *StakeFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
