package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	gormlogger "gorm.io/gorm/logger"

	"taskboard/internal/cache"
	"taskboard/internal/config"
	"taskboard/internal/database"
	"taskboard/internal/logger"
	"taskboard/internal/middleware"
	"taskboard/internal/monitoring"
	"taskboard/internal/repositories"
	"taskboard/internal/server"
	"taskboard/internal/services"
	"taskboard/internal/worker"
)

const serviceName = "taskboard-api"

type application struct {
	cfg    *config.Config
	log    *logrus.Entry
	pool   *database.DatabasePool
	redis  *redis.Client
	cache  *cache.MultiLevelCache
	cached *services.CachedTaskService
	worker *worker.Worker
	server *server.Server
	cancel context.CancelFunc
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.LogLevel)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	app, err := newApplication(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to start")
	}

	go func() {
		if err := app.server.Serve(); err != nil {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.Server.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			// one operation so the steps run in order
			serviceName: app.stop,
		},
	)

	exitCode := <-wait
	log.WithField("exit_code", exitCode).Info("exited")
	os.Exit(exitCode)
}

func newApplication(cfg *config.Config, log *logrus.Entry) (*application, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &application{cfg: cfg, log: log, cancel: cancel}

	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.GetDatabaseDSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		LogLevel:        gormlogger.Warn,
		SlowThreshold:   cfg.Database.SlowQuery,
		Log:             log,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	app.pool = pool

	if cfg.Database.AutoMigrate {
		if err := pool.Migrate(); err != nil {
			app.cleanup()
			return nil, err
		}
	}

	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		app.redis = cache.NewRedisClient(&cache.CacheConfig{
			Addr:         cfg.GetRedisAddr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err := app.redis.Ping(ctx).Err(); err != nil {
			// the cache degrades to L1 on its own; the worker cannot
			log.WithError(err).Warn("redis unreachable at startup")
		}
		redisCache = cache.NewRedisCacheFromClient(app.redis)
	}
	app.cache = cache.NewMultiLevelCache(redisCache, log)
	app.cache.StartJanitor(ctx, time.Minute)

	repo := repositories.NewTaskRepository(pool.DB, cfg.Database.QueryTimeout)

	var observers []services.TaskObserver
	var reminders *worker.ReminderScheduler
	if cfg.Worker.Enabled && app.redis != nil {
		reminders = worker.NewReminderScheduler(app.redis, cfg.Worker.ReminderHour, log)
		observers = append(observers, reminders)
	}

	var tasks services.TaskService = services.NewTaskService(repo, log, observers...)
	if cfg.Cache.Enabled {
		options := services.DefaultCacheOptions()
		options.ListTTL = cfg.Cache.ListTTL
		options.TaskTTL = cfg.Cache.TaskTTL
		if cfg.Cache.WarmupInterval > 0 {
			strategy := cache.DefaultWarmupStrategy()
			strategy.WarmupInterval = cfg.Cache.WarmupInterval
			strategy.HealthCheckFunc = func(ctx context.Context) bool {
				return pool.HealthContext(ctx) == nil
			}
			options.Warmup = strategy
		}
		app.cached = services.NewCachedTaskService(tasks, app.cache, options, log)
		app.cached.StartCacheWarming(ctx)
		tasks = app.cached
	}

	monitor := monitoring.NewMonitor()
	monitor.RegisterCache(app.cache.Metrics())
	if sqlDB, err := pool.DB.DB(); err == nil {
		monitor.RegisterDB(sqlDB, cfg.Database.Name)
	}
	monitor.Health.Register("database", true, pool.HealthContext)
	if app.redis != nil {
		monitor.Health.Register("redis", cfg.Worker.Enabled, app.cache.Health)
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstSize)
		limiter.StartCleanup(ctx, cfg.RateLimit.CleanupInterval)
	}

	if reminders != nil {
		app.worker = worker.NewWorker(worker.WorkerConfig{
			RedisClient:  app.redis,
			Concurrency:  cfg.Worker.Concurrency,
			PollInterval: cfg.Worker.PollInterval,
			Queues:       cfg.Worker.Queues,
			Log:          log,
		})
		app.worker.RegisterHandler(worker.JobTypeTaskReminder, worker.ReminderHandler(tasks, app.redis, func(err error) bool {
			return errors.Is(err, services.ErrTaskNotFound)
		}, log))

		if n, err := reminders.Backfill(ctx, repo, 7); err != nil {
			log.WithError(err).Warn("reminder backfill failed")
		} else if n > 0 {
			log.WithField("scheduled", n).Info("reminders restored")
		}
		app.worker.Start(ctx)
	}

	router := server.NewRouter(server.RouterOptions{
		Tasks:          tasks,
		Monitor:        monitor,
		Log:            log,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RateLimiter:    limiter,
		DebugRoutes:    !cfg.IsProduction(),
		Stats: func() gin.H {
			stats := gin.H{"database": pool.Stats(), "cache": app.cache.Stats()}
			if app.cached != nil {
				stats["cached_service"] = app.cached.GetCacheStats()
			}
			if app.worker != nil {
				stats["worker"] = app.worker.Stats()
			}
			return stats
		},
	})
	app.server = server.New(cfg.Server, router, log)

	log.WithFields(logrus.Fields{
		"addr":        app.server.Addr(),
		"environment": cfg.Server.Environment,
		"driver":      cfg.Database.Driver,
		"redis":       cfg.Redis.Enabled,
		"cache":       cfg.Cache.Enabled,
		"worker":      app.worker != nil,
	}).Info("taskboard api started")

	return app, nil
}

// stop drains HTTP first, then the background jobs, then the stores they use.
func (a *application) stop(ctx context.Context) error {
	a.log.Info("graceful shutdown initiated")

	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}
	if a.worker != nil {
		a.worker.Stop()
	}
	if a.cached != nil {
		a.cached.StopCacheWarming()
	}
	if err := a.cleanup(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *application) cleanup() error {
	a.cancel()

	var errs []error
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	} else if a.redis != nil {
		a.redis.Close()
	}
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	return errors.Join(errs...)
}
