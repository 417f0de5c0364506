package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callcenter-platform/internal/auth"
	"callcenter-platform/internal/calls"
	"callcenter-platform/internal/config"
	"callcenter-platform/internal/crm"
	"callcenter-platform/internal/httpapi"
	"callcenter-platform/internal/notify"
	"callcenter-platform/internal/presence"
	"callcenter-platform/internal/reporting"
	"callcenter-platform/internal/telephony"
	"callcenter-platform/pkg/logger"
	"callcenter-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	notifier := notify.NewRedisPublisher(rdb)
	defer notifier.Close()

	callStore := calls.NewPostgresStore(db)
	taskStore := crm.NewPostgresTaskStore(db)
	provider := telephony.NewBracknetProvider(cfg.Bracknet, log)
	if !cfg.Bracknet.Configured() {
		log.Warn("bracknet credentials absent, outbound calls run in mock mode")
	}

	engine := calls.NewEngine(callStore, taskStore, taskStore, provider, notifier, log)

	presenceLog := presence.NewPostgresEventLog(db)
	tracker := presence.NewTracker(presenceLog, presence.NewRedisCache(rdb), notifier, log)

	deps := routeDeps{
		cfg:         cfg,
		log:         log,
		db:          db,
		authManager: authManager,
		webhooks: telephony.WebhookHandler{
			Engine: engine,
			Secret: cfg.Bracknet.WebhookSecret,
			Locks:  rdb,
		},
		api: httpapi.Handlers{
			Engine:  engine,
			Store:   callStore,
			Tracker: tracker,
			Reports: presence.NewReconstructor(presenceLog),
			CDR:     reporting.NewService(reporting.NewPostgresRepo(db), log),
		},
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, deps)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
