package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	httpapi "github.com/p2pmarket/marketd/internal/api/http"
	"github.com/p2pmarket/marketd/internal/application/action"
	"github.com/p2pmarket/marketd/internal/application/dispatcher"
	"github.com/p2pmarket/marketd/internal/application/inbox"
	"github.com/p2pmarket/marketd/internal/application/tally"
	"github.com/p2pmarket/marketd/internal/application/validation"
	"github.com/p2pmarket/marketd/internal/config"
	"github.com/p2pmarket/marketd/internal/domain/notification"
	"github.com/p2pmarket/marketd/internal/domain/store"
	"github.com/p2pmarket/marketd/internal/infrastructure/keystore"
	"github.com/p2pmarket/marketd/internal/infrastructure/memory"
	"github.com/p2pmarket/marketd/internal/infrastructure/metrics"
	"github.com/p2pmarket/marketd/internal/infrastructure/postgres"
	"github.com/p2pmarket/marketd/internal/infrastructure/redis"
	"github.com/p2pmarket/marketd/internal/infrastructure/rpc"
	"github.com/p2pmarket/marketd/internal/infrastructure/sse"
	"github.com/p2pmarket/marketd/internal/migrations"
	"github.com/p2pmarket/marketd/internal/protocol"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the node: inbox loop, proposal finalization and the HTTP bridge",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.LogLevel)
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set, state is kept in memory")
		return memory.New(), func() {}, nil
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, int32(cfg.Inbox.Workers*2+4))
	if err != nil {
		return nil, nil, fmt.Errorf("db error: %w", err)
	}
	if err := postgres.RunMigrations(ctx, pool, migrations.FS); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migration error: %w", err)
	}
	return postgres.NewStore(pool), pool.Close, nil
}

func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	network, err := protocol.LookupNetwork(cfg.ChainNetwork)
	if err != nil {
		return err
	}
	keys := cfg.WalletKeys
	if cfg.WalletKeysFile != "" {
		fromFile, err := keystore.LoadFile(cfg.WalletKeysFile)
		if err != nil {
			return err
		}
		keys = append(keys, fromFile...)
	}
	signer, err := protocol.NewKeySigner(network, keys...)
	if err != nil {
		return fmt.Errorf("wallet keys: %w", err)
	}
	node, err := rpc.NewClient(rpc.Config{
		URL:          cfg.RPC.URL,
		User:         cfg.RPC.User,
		Pass:         cfg.RPC.Pass,
		EscrowMethod: cfg.RPC.EscrowMethod,
	}, logger)
	if err != nil {
		return err
	}
	defer node.Close()

	hub := sse.NewHub()
	defer hub.Stop()
	sinks := notification.Fanout{hub}
	if url := cfg.Redis.URL(); url != "" {
		rdb, err := redis.NewClient(ctx, url)
		if err != nil {
			return err
		}
		defer func(rdb *goredis.Client) { _ = rdb.Close() }(rdb)
		sinks = append(sinks, redis.NewSink(rdb, cfg.Redis.Stream, cfg.Redis.MaxLen))
	}

	recorder := metrics.NewRecorder()
	policy, err := tally.NewPolicy(cfg.Vote.ItemRemovalPercent, cfg.Vote.MarketRemovalPercent, cfg.Vote.RemovalExpression)
	if err != nil {
		return err
	}
	tallySvc := tally.NewService(st, node, policy, logger)

	actions := action.NewService(action.Deps{
		Store:     st,
		Transport: node,
		Chain:     node,
		Escrow:    node,
		Signer:    signer,
		Validator: validation.New(network),
		Tally:     tallySvc,
		Recorder:  recorder,
	}, logger)
	registry, err := dispatcher.NewRegistry(actions.Handlers()...)
	if err != nil {
		return err
	}
	disp := dispatcher.New(st, registry, sinks, recorder, logger)
	processor := inbox.NewProcessor(st, disp, inbox.Config{
		Workers:      cfg.Inbox.Workers,
		BatchSize:    cfg.Inbox.BatchSize,
		PollInterval: cfg.Inbox.PollInterval,
		Retention:    time.Duration(cfg.Inbox.RetentionDays) * 24 * time.Hour,
		MaxRetries:   cfg.Inbox.MaxRetries,
	}, logger)

	server := httpapi.NewServer(httpapi.Deps{
		Actions: actions,
		Inbox:   processor,
		Store:   st,
		Hub:     hub,
		Metrics: recorder.Handler(),
		Token:   cfg.APIToken,
	}, logger)
	httpServer := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go processor.Run(ctx, func(ctx context.Context) {
		n, err := tallySvc.FinalizeExpired(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("proposal finalization failed")
			return
		}
		recorder.ProposalsFinalized(n)
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
