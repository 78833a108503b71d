package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/movesintl/moves-study-hub-sub001/internal/api"
	"github.com/movesintl/moves-study-hub-sub001/internal/cache"
	"github.com/movesintl/moves-study-hub-sub001/internal/captcha"
	"github.com/movesintl/moves-study-hub-sub001/internal/config"
	"github.com/movesintl/moves-study-hub-sub001/internal/db"
	"github.com/movesintl/moves-study-hub-sub001/internal/email"
	"github.com/movesintl/moves-study-hub-sub001/internal/logger"
	"github.com/movesintl/moves-study-hub-sub001/internal/notify"
	"github.com/movesintl/moves-study-hub-sub001/internal/storage"
	"github.com/movesintl/moves-study-hub-sub001/internal/store"
	"github.com/movesintl/moves-study-hub-sub001/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*runMode)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger.Configure(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	ctx := context.Background()

	// Persistence
	backend := store.Backend{Driver: cfg.StoreDriver}
	var pgPool *pgxpool.Pool
	var mongoClient *mongo.Client
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		if pgPool, err = db.ConnectPostgres(cfg.DatabaseURL, cfg.DatabaseMaxConns); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to Postgres")
		}
		defer db.DisconnectPostgres(pgPool)
		backend.Postgres = pgPool
	case config.StoreDriverMongo:
		var mongoDb *mongo.Database
		if mongoClient, mongoDb, err = db.ConnectDB(cfg.MongoURI, cfg.MongoDbName, uint64(cfg.DatabaseMaxConns)); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to MongoDB")
		}
		defer func() {
			if err := db.DisconnectDB(mongoClient); err != nil {
				logger.Warn().Err(err).Msg("error disconnecting from MongoDB")
			}
		}()
		backend.Mongo = mongoDb
	default:
		logger.Warn().Msg("using the in-memory store; data is lost on exit")
	}

	// Redis backs the catalog cache, the mock mailbox and the task queue.
	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			logger.Warn().Err(err).Msg("error disconnecting from Redis")
		}
	}()

	var documents storage.IDocumentStorage
	if cfg.AwsS3Bucket != "" {
		if documents, err = storage.NewS3Storage(ctx, cfg); err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize S3 storage")
		}
	} else {
		logger.Warn().Msg("AWS_S3_BUCKET not set, document uploads are disabled")
	}

	taskClient := tasks.NewClient(cfg)
	defer taskClient.Close()
	gateway := notify.NewAsynqGateway(taskClient)

	svcs, err := api.NewServices(ctx, cfg, api.Deps{
		Backend:      backend,
		Gateway:      gateway,
		Documents:    documents,
		CatalogCache: cache.NewRedisCache(redisClient, "catalog"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize services")
	}

	var wg sync.WaitGroup
	shutdownChan := make(chan struct{}, 1)

	// The service API always runs; the mock mailbox only exists with MOCK_SERVICES.
	var mailbox redis.Cmdable
	if cfg.MockServices {
		mailbox = redisClient
	}
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(cfg, mailbox, shutdownChan),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Str("port", cfg.ServiceApiPort).Msg("service API listening")
		if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("service API ListenAndServe error")
		}
	}()

	var mainApiSrv *http.Server
	var backgroundTaskSrv *asynq.Server
	var scheduler *asynq.Scheduler

	logger.Info().Str("mode", cfg.RunMode).Str("store", cfg.StoreDriver).Msg("starting application")

	apiMode := func() {
		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: api.SetupRouter(cfg, svcs, captcha.NewRecaptchaVerifier(cfg)),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info().Str("port", cfg.ApiPort).Msg("main API listening")
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal().Err(err).Msg("main API ListenAndServe error")
			}
		}()
	}

	bgMode := func() {
		sender, err := email.NewFromConfig(cfg, redisClient)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize email sender")
		}
		processor := tasks.NewTaskProcessor(cfg, sender, svcs.EmailTemplates, svcs.Consents, gateway)
		if backgroundTaskSrv, err = tasks.SetupServer(cfg, processor); err != nil {
			logger.Fatal().Err(err).Msg("failed to start background worker")
		}
		if scheduler, err = tasks.SetupScheduler(cfg); err != nil {
			logger.Fatal().Err(err).Msg("failed to start scheduler")
		}
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	default:
		logger.Fatal().Str("mode", cfg.RunMode).Msg("invalid run mode")
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
	case <-shutdownChan:
		logger.Info().Msg("shutdown requested via service API")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		logger.Warn().Err(err).Msg("service API shutdown error")
	}
	if mainApiSrv != nil {
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			logger.Warn().Err(err).Msg("main API shutdown error")
		}
	}
	if scheduler != nil {
		scheduler.Shutdown()
	}
	if backgroundTaskSrv != nil {
		backgroundTaskSrv.Shutdown()
	}

	wg.Wait()
	logger.Info().Msg("server gracefully stopped")
}
