package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	httpadp "deferral-backend/internal/adapter/http"
	appmw "deferral-backend/internal/adapter/middleware"
	"deferral-backend/internal/adapter/repository/mysql"
	"deferral-backend/internal/config"
	"deferral-backend/internal/infrastructure/cache"
	"deferral-backend/internal/infrastructure/db"
	"deferral-backend/internal/infrastructure/logger"
	"deferral-backend/internal/infrastructure/storage"
	"deferral-backend/internal/notify"
	ucApproval "deferral-backend/internal/usecase/approval"
	ucDeferral "deferral-backend/internal/usecase/deferral"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.IsProduction())
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.OpenMySQL(cfg.MySQLDSN(), db.Pool{MaxOpen: cfg.DBMaxOpenConns, LogSQL: !cfg.IsProduction() && cfg.DBLogSQL})
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(gdb); err != nil {
		log.Error("migrate", "error", err)
		os.Exit(1)
	}
	rdb, err := cache.OpenRedis(ctx, cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Error("open redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	users := mysql.NewUserRepository(gdb)
	deferrals := mysql.NewDeferralRepository(gdb)
	sequences := mysql.NewSequenceRepository(gdb)
	notes := mysql.NewNotificationRepository(gdb)
	tx := mysql.NewGormUoW(gdb)

	var mailer notify.Mailer = notify.LogMailer{Log: log}
	smtp := notify.NewSMTPMailer(notify.SMTPConfig(cfg.SMTP))
	if smtp.Configured() {
		mailer = smtp
	} else {
		log.Warn("smtp not configured, emails will only be logged")
	}
	dispatcher := notify.NewDispatcher(mailer, notify.NewTemplates(cfg.FrontendURL), users, notes, log, notify.Options{
		Workers:  cfg.NotifyWorkers,
		Attempts: cfg.NotifyAttempts,
		Backoff:  cfg.NotifyBackoff,
	})
	dispatcher.Start(context.Background())

	checks := []httpadp.Check{
		{Name: "mysql", Fn: func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}},
		{Name: "redis", Fn: cache.Ping(rdb)},
	}

	deps := ucDeferral.Deps{
		Deferrals:     deferrals,
		Sequences:     sequences,
		Directory:     users,
		Notifications: notes,
		Publisher:     dispatcher,
	}
	if cfg.Storage.Endpoint != "" {
		store, err := storage.OpenMinio(ctx, storage.Config(cfg.Storage))
		if err != nil {
			log.Error("open document storage", "error", err)
			os.Exit(1)
		}
		deps.Storage = store
		checks = append(checks, httpadp.Check{Name: "storage", Fn: store.Ping})
	} else {
		log.Warn("document storage not configured, uploads are disabled")
	}

	deferralUC := ucDeferral.NewUsecase(tx, deps, ucDeferral.Options{Timeout: cfg.DBTimeout, ListLimit: cfg.ListLimit})
	approvalUC := ucApproval.NewUsecase(tx, users, dispatcher, ucApproval.Options{
		CompletionRecipient: cfg.CompletionRecipient,
		Timeout:             cfg.DBTimeout,
	})

	e := echo.New()
	e.HideBanner = true
	e.Validator = httpadp.NewValidator()
	e.Use(middleware.RequestID(), logger.RequestLogger(log), middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{echo.HeaderContentType, appmw.HeaderUserID, appmw.HeaderRequestID, appmw.HeaderRequestAt},
	}))

	httpadp.Routes{
		Health:    httpadp.NewHandler(checks...),
		Deferrals: httpadp.NewDeferralHandler(deferralUC),
		Approvals: httpadp.NewApprovalHandler(approvalUC),
	}.Register(e,
		appmw.ActorMiddleware(users),
		appmw.IdempotencyMiddleware(rdb, time.Duration(cfg.IdempTTLSecs)*time.Second),
	)

	addr := ":" + cfg.AppPort
	go func() {
		log.Info("listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}
	dispatcher.Stop(shutdownCtx)
	log.Info("bye")
}
