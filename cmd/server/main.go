package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sponsortracker/internal/api"
	"sponsortracker/internal/captcha"
	"sponsortracker/internal/config"
	"sponsortracker/internal/db"
	"sponsortracker/internal/notify"
	"sponsortracker/internal/rate"
	"sponsortracker/internal/reminder"
	"sponsortracker/internal/service"
	"sponsortracker/internal/store"
	"sponsortracker/internal/util"
	"sponsortracker/internal/version"
)

const (
	shutdownTimeout      = 10 * time.Second
	sessionPurgeInterval = time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := util.NewLogger(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	sqdb, dialect, err := db.Open(db.Options{
		Driver:      cfg.DBDriver,
		DSN:         cfg.DBDSN,
		Path:        cfg.DBPath,
		MaxOpen:     cfg.DBMaxOpenConns,
		MaxIdle:     cfg.DBMaxIdleConns,
		MaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer sqdb.Close()
	if err := db.ApplyMigrations(sqdb, dialect, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	mailer := notify.NewSender(cfg, logger.Named("mail"))
	svc := service.New(cfg, store.New(sqdb, dialect), mailer, logger.Named("service"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	var limiter rate.Backend
	switch cfg.RateLimitBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable at startup, rate limiting will fail open", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		limiter = rate.NewRedisLimiter(client, "sponsortracker:ratelimit")
	default:
		mem := rate.NewLimiter(rate.WithSweepInterval(cfg.RateLimitSweep))
		mem.Start()
		defer mem.Stop()
		limiter = mem
	}

	opts := api.Options{
		Limiter: limiter,
		Captcha: captcha.NewVerifier(cfg),
		Logger:  logger.Named("http"),
	}
	if cfg.MailSender == "smtp" {
		opts.MailProbe = mailer.Probe
	}

	hsrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(cfg, svc, opts),
		ReadTimeout:       time.Duration(cfg.HTTPReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTPReadHeaderTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTPWriteTimeoutSec) * time.Second,
		IdleTimeout:       time.Duration(cfg.HTTPIdleTimeoutSec) * time.Second,
	}

	g.Go(func() error {
		info := version.Current()
		logger.Info("listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("version", info.Version),
			zap.String("commit", info.Commit),
			zap.String("db", string(dialect)),
			zap.String("rate_limit_backend", cfg.RateLimitBackend),
		)
		if err := hsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return hsrv.Shutdown(shutdownCtx)
	})
	if cfg.ReminderSchedulerEnabled {
		sched := reminder.NewScheduler(svc, cfg.ReminderHourUTC, logger.Named("reminder"))
		g.Go(func() error { return sched.Run(ctx) })
	}
	g.Go(func() error {
		t := time.NewTicker(sessionPurgeInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				n, err := svc.PurgeSessions(ctx)
				if err != nil {
					logger.Warn("purge sessions failed", zap.Error(err))
					continue
				}
				if n > 0 {
					logger.Debug("purged sessions", zap.Int64("count", n))
				}
			}
		}
	})

	return g.Wait()
}
