package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/familyledger/ledger/internal/command"
	"github.com/familyledger/ledger/internal/config"
	"github.com/familyledger/ledger/internal/docstore"
	"github.com/familyledger/ledger/internal/handler"
	"github.com/familyledger/ledger/internal/identity"
	"github.com/familyledger/ledger/internal/projection"
	"github.com/familyledger/ledger/internal/query"
	"github.com/familyledger/ledger/internal/repository"
	"github.com/familyledger/ledger/shared/events"
	"github.com/familyledger/ledger/shared/logger"
	"github.com/familyledger/ledger/shared/middleware"
	"github.com/familyledger/ledger/shared/models"
	redisClient "github.com/familyledger/ledger/shared/redis"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

func main() {
	// Balances and amounts are exchanged as JSON numbers, on the API and in
	// stored documents.
	decimal.MarshalJSONWithoutQuotes = true

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if err := logger.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatal().Err(err).Msg("Invalid logger configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, identities, closeBackends := openBackends(ctx, cfg)
	defer closeBackends()

	// Redis connection (read model store + event streaming)
	var (
		publisher command.EventPublisher      = events.NopPublisher{}
		viewCache repository.AccountViewCache = repository.NoopViewCache{}
		redis     *redisClient.Client
	)
	if cfg.RedisEnabled() {
		redis, err = redisClient.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redis.Close()
		publisher = events.NewPublisher(redis.Client)
		viewCache = redisClient.NewViewCache[models.AccountView](redis.Client, cfg.BalanceCacheTTL)
	} else {
		log.Warn().Msg("REDIS_ADDR not set; balance cache and ledger events disabled")
	}

	// --- CQRS wiring ---
	writeRepo := repository.NewAccountWriteRepository(store)
	readRepo := repository.NewAccountReadRepository(store, viewCache)

	accountSvc := command.NewAccountCommandService(writeRepo, readRepo, identities, publisher)
	transferSvc := command.NewTransferCommandService(writeRepo, readRepo, command.AllowAllChildTransfers, publisher)
	querySvc := query.NewAccountQueryService(readRepo)

	ledgerHandler := handler.NewLedgerHandler(accountSvc, transferSvc, querySvc)

	if redis != nil {
		projector := projection.NewBalanceProjector(readRepo)
		go func() {
			hostname, _ := os.Hostname()
			subscriber := events.NewSubscriber(redis.Client, events.SubscriberConfig{
				Group:    "ledger-projector",
				Consumer: "projector-" + hostname,
				Stream:   events.LedgerEventsStream,
				Handler:  projector.HandleLedgerEvent,
			})
			if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Subscriber stopped")
			}
		}()
	}

	// Setup router
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware())

	var protected gin.IRoutes = router
	if cfg.AuthEnabled() {
		protected = router.Group("/", middleware.AuthMiddleware([]byte(cfg.JWTSecret)))
	}
	ledgerHandler.RegisterRoutes(router, protected)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("port", cfg.ServerPort).Str("store", cfg.StoreDriver).Msg("Ledger service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	log.Info().Msg("Shutting down...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
}

// openBackends returns the document store and identity provider selected by
// STORE_DRIVER, plus a func releasing their resources.
func openBackends(ctx context.Context, cfg *config.Config) (docstore.Store, identity.Provider, func()) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn().Msg("Using in-memory store; data is lost on restart")
		return docstore.NewMemoryStore(), identity.NewMemoryProvider(), func() {}
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}

	store := docstore.NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare document store schema")
	}
	identities := identity.NewPostgresProvider(db)
	if err := identities.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare identity schema")
	}
	return store, identities, func() { _ = db.Close() }
}
