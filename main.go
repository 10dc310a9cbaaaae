package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	identityclient "github.com/xiaot623/gogo/consult/internal/adapter/identity"
	"github.com/xiaot623/gogo/consult/internal/config"
	"github.com/xiaot623/gogo/consult/internal/domain"
	"github.com/xiaot623/gogo/consult/internal/identity"
	"github.com/xiaot623/gogo/consult/internal/logging"
	"github.com/xiaot623/gogo/consult/internal/reasoner"
	"github.com/xiaot623/gogo/consult/internal/repository"
	"github.com/xiaot623/gogo/consult/internal/service"
	"github.com/xiaot623/gogo/consult/internal/session"
	handler "github.com/xiaot623/gogo/consult/internal/transport/http"
	"github.com/xiaot623/gogo/consult/internal/transport/ws"
	"github.com/xiaot623/gogo/consult/policy"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logging.Init(os.Stdout, cfg.LogLevel)
	log := logging.Logger()

	log.Info("starting consultation service",
		"http_port", cfg.HTTPPort,
		"database", cfg.DatabaseURL,
		"identity_backend", cfg.IdentityBackend,
		"context_backend", cfg.ContextBackend,
		"reasoner_backend", cfg.ReasonerBackend,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		fatal("failed to initialize store", err)
	}
	defer db.Close()

	if cfg.BootstrapAdminToken != "" {
		if err := db.SeedUser(ctx, cfg.BootstrapAdminUserID, domain.RoleAdmin, cfg.BootstrapAdminToken); err != nil {
			fatal("failed to seed bootstrap admin", err)
		}
		log.Info("bootstrap admin seeded", "user_id", cfg.BootstrapAdminUserID)
	}

	// Metrics
	metrics := service.NewMetrics(prometheus.DefaultRegisterer)

	// Identity
	provider, err := newIdentityProvider(cfg, db)
	if err != nil {
		fatal("failed to initialize identity provider", err)
	}
	resolver := identity.NewResolver(provider, cfg.IdentityCacheTTL, identity.WithCacheObserver(metrics.ObserveIdentityCache))
	go sweepIdentityCache(ctx, resolver, cfg.IdentityCacheTTL)

	// Context store
	repo, closeRepo, err := openTurnRepository(cfg, db)
	if err != nil {
		fatal("failed to initialize context store", err)
	}
	defer closeRepo()
	sessions := session.NewStore(repo, cfg.ContextMaxTurns, cfg.ContextTTL)

	if cfg.ContextTTL > 0 && cfg.RetentionCron != "" {
		retention, err := session.NewRetention(sessions, cfg.RetentionCron)
		if err != nil {
			fatal("failed to initialize retention", err)
		}
		go retention.Run(ctx)
	}

	// Reasoner
	r, err := reasoner.FromConfig(cfg)
	if err != nil {
		fatal("failed to initialize reasoner", err)
	}

	// Initialize policy engine
	policyEngine, err := policy.Load(ctx, cfg.PolicyPath)
	if err != nil {
		fatal("failed to initialize policy engine", err)
	}

	// Initialize service
	svc := service.New(resolver, sessions, r, policyEngine, db, metrics, cfg)

	// Create Echo server
	hub := ws.NewHub()
	wsServer := ws.NewServer(cfg, hub, svc)
	server := handler.NewServer(svc, wsServer, prometheus.DefaultGatherer, cfg)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			fatal("failed to start server", err)
		}
	}()

	log.Info("consultation API started", "port", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down consultation service")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.CloseAll()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown server gracefully", "error", err)
	}
	svc.Shutdown()
	stop()

	log.Info("consultation service stopped")
}

func fatal(msg string, err error) {
	logging.Logger().Error(msg, "error", err)
	os.Exit(1)
}

func newIdentityProvider(cfg *config.Config, db *store.SQLiteStore) (identity.Provider, error) {
	switch cfg.IdentityBackend {
	case "sqlite", "":
		return db, nil
	case "http":
		if cfg.IdentityURL == "" {
			return nil, fmt.Errorf("IDENTITY_URL is required for the http identity backend")
		}
		return identityclient.NewHTTPProvider(cfg.IdentityURL, cfg.IdentityTimeout), nil
	default:
		return nil, fmt.Errorf("unknown identity backend %q", cfg.IdentityBackend)
	}
}

func openTurnRepository(cfg *config.Config, db *store.SQLiteStore) (session.TurnRepository, func() error, error) {
	noop := func() error { return nil }
	switch cfg.ContextBackend {
	case "memory", "":
		return session.NewMemoryRepository(), noop, nil
	case "sqlite":
		return db, noop, nil
	case "pebble":
		p, err := store.NewPebbleStore(cfg.PebblePath)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown context backend %q", cfg.ContextBackend)
	}
}

func sweepIdentityCache(ctx context.Context, resolver *identity.Resolver, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := resolver.Sweep(); n > 0 {
				logging.Logger().Debug("identity cache swept", "removed", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
