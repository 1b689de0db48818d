package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"                   // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware" // Echo's bundled middleware (recover, request id)
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/iliyamo/bug-hunting/internal/config"
	"github.com/iliyamo/bug-hunting/internal/database"
	"github.com/iliyamo/bug-hunting/internal/handler"
	"github.com/iliyamo/bug-hunting/internal/jobs"
	"github.com/iliyamo/bug-hunting/internal/logger"
	"github.com/iliyamo/bug-hunting/internal/middleware"
	"github.com/iliyamo/bug-hunting/internal/queue"
	"github.com/iliyamo/bug-hunting/internal/repository"
	"github.com/iliyamo/bug-hunting/internal/router"
	"github.com/iliyamo/bug-hunting/internal/service"
)

func main() {
	cfg, err := config.Load() // Load .env and environment config
	if err != nil {
		zlog.Fatal().Err(err).Msg("config")
	}
	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := database.Open(database.Options{
		Driver:     database.Driver(cfg.DBDriver),
		User:       cfg.DBUser,
		Pass:       cfg.DBPass,
		Host:       cfg.DBHost,
		Port:       cfg.DBPort,
		Name:       cfg.DBName,
		SQLitePath: cfg.SQLitePath,
	})
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("open database")
	}
	defer db.Close()
	if cfg.Migrate {
		if err := database.Migrate(ctx, db, database.Driver(cfg.DBDriver)); err != nil {
			log.Fatal().Err(err).Msg("migrate database")
		}
	}

	// Repositories and services
	repos := service.Repos{
		Bugs:     repository.NewBugRepo(db),
		Sessions: repository.NewHuntingSessionRepo(db),
		Users:    repository.NewUserRepo(db),
		Scale:    repository.NewPointScaleRepo(db),
		Payments: repository.NewPointsPaymentRepo(db),
		Stats:    repository.NewStatsRepo(db, database.Driver(cfg.DBDriver)),
	}
	var pub service.Publisher = service.NopPublisher{}
	if cfg.Queue.Enabled {
		pub = service.NewAMQPPublisher(cfg.Queue.URL, log)
	}
	svc := service.NewHuntingService(db, repos, log,
		service.WithTimeout(cfg.DBTimeout),
		service.WithPublisher(pub))
	suggester := service.NewSuggester(repos.Bugs, repos.Users, service.StatsScorer{Stats: repos.Stats}, cfg.DBTimeout)
	reconciler := service.NewStatsReconciler(db, repos.Payments, repos.Stats, log)

	// Redis backed rate limit and cache; both are skipped without Redis
	rlCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("rate limit config")
	}
	cacheCfg, err := config.LoadCacheConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("cache config")
	}
	var rdb *redis.Client
	if rlCfg.Enabled || cacheCfg.Enabled {
		if rdb, err = config.NewRedisClient(); err != nil {
			log.Warn().Err(err).Msg("redis unavailable; rate limiting and caching disabled")
		} else {
			defer rdb.Close()
		}
	}

	// HTTP
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover(), echomw.RequestID(), middleware.RequestLogger(log))
	e.Use(middleware.NewTokenBucket(rlCfg, rdb, log))

	huntingH := handler.NewHuntingHandler(svc, log)
	bugH := handler.NewBugHandler(svc, suggester, log)
	statsH := handler.NewStatsHandler(svc, log)
	router.RegisterRoutes(e, db)
	router.RegisterPublic(e, statsH, middleware.NewRedisCache(cacheCfg, rdb, log))
	router.RegisterHunting(e, huntingH, bugH, statsH, cfg.JWTSecret)
	router.RegisterAdmin(e, bugH, cfg.JWTSecret)

	// Background workers
	if cfg.Queue.ConsumerOn {
		consumer := &queue.PointsConsumer{URL: cfg.Queue.URL, AuditDir: cfg.Queue.AuditLogDir, Log: log}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("points consumer stopped")
			}
		}()
	}
	if cfg.Jobs.ReconcileEnabled {
		cron, err := jobs.NewCron(cfg.Jobs, log, reconciler)
		if err != nil {
			log.Fatal().Err(err).Msg("cron")
		}
		cron.Start()
		defer cron.Stop()
	}

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() { errCh <- e.Start(addr) }()
	log.Info().Str("addr", addr).Str("driver", cfg.DBDriver).Msg("listening")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
		}
	}
	shutdown(e, log)
}

func shutdown(e *echo.Echo, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}
