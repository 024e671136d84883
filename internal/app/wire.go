package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/openpredict/marketd/internal/blob/s3"
	"github.com/openpredict/marketd/internal/cache/redis"
	"github.com/openpredict/marketd/internal/catalog"
	"github.com/openpredict/marketd/internal/chain"
	"github.com/openpredict/marketd/internal/config"
	"github.com/openpredict/marketd/internal/domain"
	"github.com/openpredict/marketd/internal/engine"
	"github.com/openpredict/marketd/internal/feed"
	"github.com/openpredict/marketd/internal/journal"
	"github.com/openpredict/marketd/internal/ledger"
	"github.com/openpredict/marketd/internal/notify"
	"github.com/openpredict/marketd/internal/server"
	"github.com/openpredict/marketd/internal/server/handler"
	"github.com/openpredict/marketd/internal/server/ws"
	"github.com/openpredict/marketd/internal/settlement"
	"github.com/openpredict/marketd/internal/store/memory"
	"github.com/openpredict/marketd/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Catalog    *catalog.Catalog
	Ledger     *ledger.Ledger
	Journal    *journal.Journal
	Engine     *engine.Engine
	Calculator *settlement.Calculator

	// Archiver is nil unless archiving is enabled.
	Archiver *s3blob.Archiver
	// Feed is nil unless the stake feed is enabled.
	Feed *feed.StakeFeed
	// Server and Hub are nil unless the HTTP API is enabled.
	Server *server.Server
	Hub    *ws.Hub
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "full", "archive":
		return true
	default:
		return false
	}
}

// needsChain returns true for modes that settle externally.
func needsChain(mode string) bool {
	return mode == "full"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Stores ---
	var (
		positions domain.PositionStore
		balances  domain.BalanceStore
		txs       domain.TransactionStore
		allocs    domain.AllocationStore
	)
	if needsPostgres(mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		positions = postgres.NewPositionStore(pool)
		balances = postgres.NewBalanceStore(pool)
		txs = postgres.NewTransactionStore(pool)
		allocs = postgres.NewAllocationStore(pool)
	} else {
		positions = memory.NewPositionStore()
		balances = memory.NewBalanceStore()
		txs = memory.NewTransactionStore()
		allocs = memory.NewAllocationStore()
	}

	// --- Redis ---
	var (
		redisClient *redis.Client
		stakeCache  domain.StakeCache
		locks       domain.LockManager
	)
	if mode != "local" {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		redisClient = rc
		closers = append(closers, func() { _ = redisClient.Close() })

		stakeCache = redis.NewStakeCache(redisClient)
		// Staged allocations live in Redis so any process can serve the user.
		allocs = redis.NewAllocationStore(redisClient)
		if cfg.Engine.DistributedLock {
			locks = redis.NewLockManager(redisClient)
		}
	}

	// --- Operator alerting ---
	var senders []notify.Sender
	if cfg.Notify.DiscordWebhook != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhook))
	}
	if cfg.Notify.TelegramToken != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	var notifier *notify.Notifier
	if len(senders) > 0 {
		notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	// --- Catalog ---
	markets, err := seedMarkets(cfg.Markets)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: markets: %w", err)
	}
	var catOpts []catalog.Option
	if stakeCache != nil {
		catOpts = append(catOpts, catalog.WithStakeCache(stakeCache))
	}
	if cfg.Server.Enabled {
		deps.Hub = ws.NewHub(mode, logger.With(slog.String("component", "ws")))
	}
	if hub := deps.Hub; hub != nil || notifier != nil {
		catOpts = append(catOpts, catalog.WithNotifier(func(m domain.Market) {
			if hub != nil {
				stakes := make([]float64, len(m.Options))
				for i, opt := range m.Options {
					stakes[i] = opt.Stake
				}
				hub.Publish("prices:"+m.ID, map[string]any{
					"type":      "price_update",
					"marketId":  m.ID,
					"stakes":    stakes,
					"totalPool": m.TotalPool(),
					"updatedAt": m.UpdatedAt,
				})
			}
			if notifier != nil && m.Resolved() {
				// Webhook delivery can block; keep the catalog's write path clear.
				go notifier.MarketResolved(context.Background(), m)
			}
		}))
	}
	deps.Catalog = catalog.New(markets, logger, catOpts...)

	// --- Core services ---
	deps.Ledger = ledger.New(positions, logger)
	deps.Journal = journal.New(txs, logger)

	// --- Settlement executor and identity ---
	var (
		settler  domain.SettlementExecutor
		identity domain.Identity
	)
	if needsChain(mode) {
		exec, err := chain.NewExecutor(ctx, chain.ExecutorConfig{
			RPCURL:       cfg.Chain.RPCURL,
			ChainID:      cfg.Chain.ChainID,
			ContractAddr: cfg.Chain.ContractAddr,
			GasLimit:     uint64(cfg.Chain.GasLimit),
			Key: chain.KeyConfig{
				RawPrivateKey:    cfg.Chain.PrivateKey,
				EncryptedKeyPath: cfg.Chain.EncryptedKeyPath,
				KeyPassword:      cfg.Chain.KeyPassword,
			},
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain: %w", err)
		}
		closers = append(closers, exec.Close)
		settler = exec
		identity = chain.NewWalletIdentity(cfg.Chain.Allowlist)
	} else {
		settler = settlement.NewLocalExecutor(logger)
		identity = settlement.OpenIdentity{}
	}
	if notifier != nil {
		settler = notifyingSettler{inner: settler, notifier: notifier}
	}

	var engOpts []engine.Option
	if locks != nil {
		engOpts = append(engOpts, engine.WithLockManager(locks, cfg.Engine.LockTTL.Duration))
	}
	deps.Engine = engine.New(deps.Catalog, deps.Ledger, deps.Journal, balances, allocs, settler, identity, logger, engOpts...)
	deps.Calculator = settlement.New(deps.Catalog, deps.Ledger, logger)

	// --- S3 archiver ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Journal, cfg.Archive.RetentionDays, logger)
	}

	// --- Stake feed ---
	if cfg.Feed.Enabled {
		ids := make([]string, len(markets))
		for i, m := range markets {
			ids[i] = m.ID
		}
		deps.Feed = feed.NewStakeFeed(cfg.Feed.WSURL, ids, deps.Catalog, logger)
		closers = append(closers, deps.Feed.Close)
	}

	// --- HTTP API ---
	if cfg.Server.Enabled {
		var limiter domain.RateLimiter
		if redisClient != nil && cfg.Server.RateLimit > 0 {
			limiter = redis.NewRateLimiter(redisClient)
		}

		handlerLogger := logger.With(slog.String("component", "handler"))
		handlers := server.Handlers{
			Health:     handler.NewHealthHandler(mode, handlerLogger),
			Markets:    handler.NewMarketHandler(deps.Catalog, handlerLogger),
			Trades:     handler.NewTradeHandler(deps.Engine, handlerLogger),
			Positions:  handler.NewPositionHandler(deps.Ledger, handlerLogger),
			Journal:    handler.NewJournalHandler(deps.Journal, handlerLogger),
			Resolution: handler.NewResolutionHandler(deps.Catalog, deps.Calculator, handlerLogger),
		}
		deps.Server = server.NewServer(server.Config{
			Port:            cfg.Server.Port,
			CORSOrigins:     cfg.Server.CORSOrigins,
			APIKey:          cfg.Server.APIKey,
			RateLimit:       cfg.Server.RateLimit,
			RateLimitWindow: cfg.Server.RateLimitWindow.Duration,
		}, handlers, deps.Hub, limiter, logger.With(slog.String("component", "server")))
	}

	return deps, cleanup, nil
}

// notifyingSettler alerts operators whenever a settlement attempt fails.
// The error passes through unchanged.
type notifyingSettler struct {
	inner    domain.SettlementExecutor
	notifier *notify.Notifier
}

func (s notifyingSettler) Settle(ctx context.Context, intent domain.SettlementIntent) (string, error) {
	ref, err := s.inner.Settle(ctx, intent)
	if err != nil {
		s.notifier.SettlementFailed(ctx, intent, err)
	}
	return ref, err
}

// seedMarkets translates configured markets into domain markets.
func seedMarkets(cfgs []config.MarketConfig) ([]domain.Market, error) {
	now := time.Now().UTC()
	markets := make([]domain.Market, 0, len(cfgs))
	for _, mc := range cfgs {
		m := domain.Market{
			ID:        mc.ID,
			Question:  mc.Question,
			Category:  mc.Category,
			Status:    domain.MarketStatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		for i, name := range mc.Options {
			opt := domain.Option{Name: name}
			if i < len(mc.Stakes) {
				opt.Stake = mc.Stakes[i]
			}
			m.Options = append(m.Options, opt)
		}
		if mc.Deadline != "" {
			deadline, err := time.Parse(time.RFC3339, mc.Deadline)
			if err != nil {
				return nil, fmt.Errorf("market %s: parse deadline: %w", mc.ID, err)
			}
			m.Deadline = deadline
		}
		markets = append(markets, m)
	}
	return markets, nil
}
