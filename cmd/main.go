package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docstore-gateway/internal/gateway/adapter/persistence"
	"docstore-gateway/internal/gateway/adapter/persistence/memory"
	"docstore-gateway/internal/gateway/adapter/persistence/mongodb"
	"docstore-gateway/internal/gateway/adapter/persistence/postgres"
	"docstore-gateway/internal/gateway/adapter/ws"
	"docstore-gateway/internal/gateway/config"
	"docstore-gateway/internal/gateway/domain/repository"
	"docstore-gateway/internal/gateway/rules"
	"docstore-gateway/internal/gateway/usecase"
	"docstore-gateway/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger := logger.NewLogger()
	appLogger.Infof("configuration loaded, backend=%s rule_mode=%s", cfg.Backend, cfg.RuleMode)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	adapterLogger, err := zap.NewProduction()
	if err != nil {
		adapterLogger = zap.NewNop()
	}
	defer adapterLogger.Sync()

	var adapter repository.StorageAdapter
	switch cfg.Backend {
	case config.BackendMongoDB:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDBURI))
		if err != nil {
			log.Fatalf("failed to connect to MongoDB: %v", err)
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				appLogger.Errorf("failed to disconnect MongoDB: %v", err)
			}
		}()
		mongoAdapter := mongodb.New(client, adapterLogger)
		defer mongoAdapter.Close()
		adapter = mongoAdapter
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("failed to create postgres pool: %v", err)
		}
		defer pool.Close()
		adapter = postgres.New(pool, adapterLogger)
	default:
		adapter = memory.New()
	}

	table := rules.Table{}
	if cfg.RulesFile != "" {
		table, err = rules.LoadTable(cfg.RulesFile)
		if err != nil {
			log.Fatalf("failed to load rules: %v", err)
		}
	}
	mode := rules.FailOpen
	if cfg.RuleMode == config.RuleModeFailClosed {
		mode = rules.FailClosed
	}
	validator := rules.NewValidatorWithMode(table, mode)

	var journal usecase.EventJournal
	if cfg.RedisAddr != "" {
		redisClient := config.NewRedisClient(cfg)
		defer redisClient.Close()
		journal = persistence.NewRedisJournal(redisClient, appLogger)
		appLogger.Infof("change journal enabled on %s", cfg.RedisAddr)
	}

	commands := usecase.NewCommands(adapter, validator, journal, appLogger)
	if err := commands.Start(ctx); err != nil {
		log.Fatalf("failed to connect storage adapter: %v", err)
	}
	appLogger.Info("storage adapter connected")

	app := fiber.New(fiber.Config{
		AppName:      "docstore-gateway",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			appLogger.Errorf("http error: %v", err)
			code := fiber.StatusInternalServerError
			if fiberErr, ok := err.(*fiber.Error); ok {
				code = fiberErr.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":        "HEALTHY",
			"backend":       cfg.Backend,
			"subscriptions": commands.SubscriptionCount(),
			"timestamp":     time.Now().UTC(),
		})
	})

	wsHandler := ws.NewHandler(commands, []byte(cfg.JWTSecret), cfg.EventBufferSize, appLogger)
	wsHandler.RegisterRoutes(app)

	serverAddr := cfg.Server.Addr()
	appLogger.Infof("starting server on %s", serverAddr)

	serverShutdown := make(chan error, 1)
	go func() {
		serverShutdown <- app.Listen(serverAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverShutdown:
		if err != nil {
			log.Fatalf("server failed: %v", err)
		}
	case sig := <-quit:
		appLogger.Infof("received shutdown signal: %v", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			appLogger.Errorf("server forced to shut down: %v", err)
		}
		appLogger.Info("server stopped")
	}
}
