package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dev-anas-tahir/Property-Hub/internal/api"
	"github.com/dev-anas-tahir/Property-Hub/internal/auth"
	"github.com/dev-anas-tahir/Property-Hub/internal/config"
	"github.com/dev-anas-tahir/Property-Hub/internal/events"
	"github.com/dev-anas-tahir/Property-Hub/internal/hub"
	"github.com/dev-anas-tahir/Property-Hub/internal/logger"
	"github.com/dev-anas-tahir/Property-Hub/internal/ratelimit"
	"github.com/dev-anas-tahir/Property-Hub/internal/repository"
	"github.com/dev-anas-tahir/Property-Hub/internal/ws"
)

func main() {
	cfgPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Printf("config %s not loaded (%v), using defaults", *cfgPath, err)
		cfg = config.Default()
	}

	zlog, err := logger.New(logger.Config{Development: cfg.Server.Development})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mongoClient, err := mongo.Connect(ctx, mongoopts.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		zlog.Fatalw("mongo connect", "err", err)
	}
	if err := mongoClient.Ping(ctx, nil); err != nil {
		zlog.Fatalw("mongo ping", "err", err)
	}
	repo := repository.New(mongoClient.Database(cfg.Mongo.Database))

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		zlog.Fatalw("redis ping", "err", err)
	}

	limiter := ratelimit.New(rdb, cfg.Redis.Prefix, cfg.Chat.RateLimitMessages, cfg.RateLimitWindow)

	broadcaster, err := hub.New(rdb, cfg.Redis.Prefix+":broadcast", zlog)
	if err != nil {
		zlog.Fatalw("hub", "err", err)
	}
	defer broadcaster.Shutdown()

	jv, err := auth.NewJWTValidatorRS256(cfg.JWT.PublicKeyPath)
	if err != nil {
		zlog.Fatalw("jwt validator", "err", err)
	}

	var sink ws.EventSink
	if len(cfg.Kafka.Brokers) > 0 {
		producer := events.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() { _ = producer.Close() }()
		sink = producer
	}

	var publisher api.Publisher
	if cfg.Nats.URL != "" {
		np, err := events.NewNatsPublisher(cfg.Nats.URL)
		if err != nil {
			zlog.Fatalw("nats connect", "err", err)
		}
		defer np.Close()
		publisher = np
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	ws.Register(app, ws.Deps{
		Auth:        jv,
		Store:       repo,
		Limiter:     limiter,
		Broadcaster: broadcaster,
		Events:      sink,
		Log:         zlog,
		Cfg:         cfg,
	})

	apiGroup := app.Group("/api", api.AuthMiddleware(jv))
	api.NewHandler(repo, repo, publisher, zlog).Register(apiGroup)

	errChan := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Server.Port
		zlog.Infow("chat server starting", "addr", addr)
		errChan <- app.Listen(addr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		zlog.Fatalw("server error", "err", err)
	case sig := <-stop:
		zlog.Infow("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zlog.Warnw("server shutdown", "err", err)
	}
	if err := mongoClient.Disconnect(shutdownCtx); err != nil {
		zlog.Warnw("mongo disconnect", "err", err)
	}
	_ = rdb.Close()
	zlog.Infow("shutdown complete")
}
