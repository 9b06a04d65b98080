/**
 * @description
 * This is the main entry point for the psp-fee-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, the OAuth client, message brokers, repositories, the core
 * application service, and the HTTP server. It wires everything together and
 * starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Distributed sync locking.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/mollieoauth: OAuth client for the processor.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/ticketfabric/psp-fee-service/internal/api"
	"github.com/ticketfabric/psp-fee-service/internal/app"
	"github.com/ticketfabric/psp-fee-service/internal/config"
	"github.com/ticketfabric/psp-fee-service/internal/store"
	"github.com/ticketfabric/psp-fee-service/pkg/mollieoauth"
	rmrabbit "github.com/ticketfabric/psp-fee-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}
	if strings.TrimSpace(cfg.OAuthStateSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"oauth state secret must be configured\" env=OAUTH_STATE_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting psp-fee-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Sync runs are bursty but bounded; a modest pool is plenty.
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Tenant sync locking prefers Redis for multi-instance deployments and
	// degrades to an in-process lock when Redis is unavailable.
	var locker app.TenantLocker = app.NewLocalTenantLocker()
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; using in-process sync lock\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; using in-process sync lock\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; using in-process sync lock\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				locker = app.NewRedisTenantLocker(redisClient, cfg.RedisSyncLockPrefix, 15*time.Minute)
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the RabbitMQ producer for sync lifecycle events.
	var publisher app.EventPublisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL, cfg.FeeEventExchange, cfg.FeeSyncCompletedRoutingKey)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		publisher = &rmrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		publisher = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the OAuth client for the processor connection flow.
	oauthClient := mollieoauth.NewClient(cfg.MollieOAuthClientID, cfg.MollieOAuthClientSecret, cfg.MollieOAuthRedirectURL)

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Gateway factory: builds per-tenant processor clients on demand.
	defaultCacheTTL := time.Duration(cfg.TransactionCacheTTLSeconds) * time.Second
	gatewayFactory := app.NewClientGatewayFactory(
		repository,
		cfg.MollieAPIBaseURL,
		cfg.SumUpAPIBaseURL,
		cfg.HTTPMaxRetries,
		cfg.HTTPBackoffFactor,
		defaultCacheTTL,
	)

	// Initialize the core application service with its dependencies.
	credentials := app.NewCredentialManager(repository, oauthClient)
	feeService := app.NewService(
		repository,
		credentials,
		oauthClient,
		locker,
		publisher,
		gatewayFactory,
		[]byte(cfg.OAuthStateSecret),
		cfg.SyncMaxPayments,
	)

	// Initialize the API handlers and router.
	handlers := api.NewFeeSyncHandlers(feeService)
	router := api.FeeSyncRoutes(handlers, cfg.InternalAPIKey)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	// Wire up the consumer: due-for-sync messages trigger date-range syncs.
	rabbitConsumer, err := rmrabbit.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; sync runs only via http\" err=%v", err)
	} else {
		defer rabbitConsumer.Close()
		bindings := map[string]func([]byte) bool{
			cfg.FeeSyncDueRoutingKey: feeService.HandleFeeSyncDueMessage,
		}
		if err := rabbitConsumer.ConsumeWithBindings(cfg.FeeEventExchange, cfg.FeeSyncQueue, bindings); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"sync consumer start failed\" err=%v", err)
		}
		log.Println("level=info component=bootstrap msg=\"sync consumer started\"")
	}

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
