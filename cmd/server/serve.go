package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/settle/internal/auth"
	"github.com/mmynk/settle/internal/chain"
	"github.com/mmynk/settle/internal/chain/simulated"
	"github.com/mmynk/settle/internal/config"
	"github.com/mmynk/settle/internal/goroutine"
	"github.com/mmynk/settle/internal/ledger"
	"github.com/mmynk/settle/internal/metrics"
	"github.com/mmynk/settle/internal/middleware"
	"github.com/mmynk/settle/internal/models"
	"github.com/mmynk/settle/internal/notify"
	"github.com/mmynk/settle/internal/reconciler"
	"github.com/mmynk/settle/internal/service"
	"github.com/mmynk/settle/internal/storage"
	"github.com/mmynk/settle/internal/storage/memory"
	"github.com/mmynk/settle/internal/storage/redisstore"
	"github.com/mmynk/settle/internal/storage/sqlite"
	"github.com/mmynk/settle/internal/watch"
	"github.com/mmynk/settle/pkg/logging"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Connect server",
		Long: `Start the Settle server.

Configuration is read from --config (or ./configs/config.yaml when present)
and SETTLE_* environment variables, e.g. SETTLE_STORAGE_DRIVER=redis.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logging.SetupWithLevel(logging.ParseLevel(cfg.Log.Level))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	kv, redisClient, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer kv.Close()
	slog.Info("Storage initialized", "driver", cfg.Storage.Driver)

	chainInfo := models.ChainInfo{
		ChainID:      cfg.Chain.ChainID,
		Network:      cfg.Chain.Network,
		TokenSymbol:  cfg.Chain.TokenSymbol,
		TokenAddress: cfg.Chain.TokenAddress,
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Payment notifications fan out locally, and across instances when
	// they share a Redis.
	bus := notify.NewBus(cfg.Notify.RedeliveryDelay)
	defer bus.Close()
	var publisher notify.Publisher = bus
	if redisClient != nil {
		relay := notify.NewRedisRelay(redisClient, cfg.Notify.Channel, bus)
		publisher = relay
		goroutine.SafeGo("notify-relay", func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Payment event relay stopped", "error", err)
			}
		})
	}

	l := ledger.New(kv, chainInfo)
	executor := simulated.NewExecutor(cfg.Chain.ConfirmDelay)
	rec := reconciler.New(l, executor, publisher, m, reconciler.Config{
		ConfirmationTimeout: cfg.Chain.ConfirmationTimeout,
		ExplorerBaseURL:     cfg.Chain.ExplorerURL,
		TokenDecimals:       cfg.Chain.TokenDecimals,
	})

	var wallet chain.WalletProvider
	if cfg.Chain.WalletKey != "" {
		key, err := chain.ParsePrivateKey(cfg.Chain.WalletKey)
		if err != nil {
			return fmt.Errorf("chain.wallet_key: %w", err)
		}
		wallet = simulated.NewWallet(key, chainInfo)
	}
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
	authenticator := auth.NewWalletAuthenticator(auth.NewChallenges(cfg.Auth.ChallengeTTL), wallet)

	mux := http.NewServeMux()
	service.Register(mux,
		service.NewWalletService(authenticator, jwtManager, wallet, chainInfo),
		service.NewLedgerService(l, rec, watch.New(l, bus, cfg.Watch.Interval), m, cfg.Server.PublicURL),
		service.NewPaymentService(rec, cfg.Server.PublicURL),
		connect.WithInterceptors(
			middleware.RequireAuth(jwtManager, service.AuthenticatedProcedures...),
			middleware.LoggingInterceptor(m),
		),
	)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	static, err := staticHandler(cfg.Server.StaticPath)
	if err != nil {
		return err
	}
	mux.Handle("/", static)

	// Add logging and CORS middleware
	loggedHandler := loggingMiddleware(corsMiddleware(mux))

	// Wrap with h2c for HTTP/2 without TLS (required for Connect streaming)
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(loggedHandler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	goroutine.SafeGo("http-server", func() {
		slog.Info("Connect server starting", "address", addr, "url", fmt.Sprintf("http://localhost%s", addr))
		errCh <- server.ListenAndServe()
	})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openStore opens the configured backend. The Redis client is returned so
// the notification relay can share it; it is nil for other drivers.
func openStore(cfg config.StorageConfig) (storage.Store, *redis.Client, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil, nil
	case config.DriverSQLite:
		store, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return store, nil, nil
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		return redisstore.New(client, cfg.Redis.KeyPrefix), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
