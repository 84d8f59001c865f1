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

	"voicebot-platform/internal/audit"
	"voicebot-platform/internal/auth"
	"voicebot-platform/internal/config"
	"voicebot-platform/internal/engine"
	"voicebot-platform/internal/httpapi"
	"voicebot-platform/internal/llm"
	"voicebot-platform/internal/lock"
	"voicebot-platform/internal/menu"
	"voicebot-platform/internal/reservation"
	"voicebot-platform/internal/schedule"
	"voicebot-platform/internal/session"
	"voicebot-platform/internal/tools"
	"voicebot-platform/pkg/logger"
	"voicebot-platform/pkg/utils"

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
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	policy, err := schedule.NewPolicy(cfg.Restaurant)
	if err != nil {
		log.Error("restaurant policy invalid", "err", err)
		os.Exit(1)
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

	// Persistence
	sessionStore := session.NewPostgresStore(db)
	reservationRepo := reservation.NewPostgresRepo(db)
	auditRepo := audit.NewPostgresRepo(db)
	dedupStore := tools.NewPostgresDedupStore(db)
	for name, ensure := range map[string]func(context.Context) error{
		"call_sessions":    sessionStore.EnsureSchema,
		"reservations":     reservationRepo.EnsureSchema,
		"audit_log":        auditRepo.EnsureSchema,
		"tool_invocations": dedupStore.EnsureSchema,
	} {
		if err := ensure(rootCtx); err != nil {
			log.Error("schema init failed", "table", name, "err", err)
			os.Exit(1)
		}
	}

	// Services
	auditSvc := audit.NewService(auditRepo)
	reservationSvc := reservation.NewService(reservationRepo, policy)
	registry := tools.NewRegistry(auditSvc, dedupStore)
	if err := tools.NewReservationToolset(registry, reservationSvc, policy, cfg.Restaurant); err != nil {
		log.Error("toolset init failed", "err", err)
		os.Exit(1)
	}
	catalog := menu.DefaultCatalog()
	if cfg.Restaurant.MenuFile != "" {
		catalog, err = menu.LoadFile(cfg.Restaurant.MenuFile)
		if err != nil {
			log.Error("menu load failed", "err", err)
			os.Exit(1)
		}
	}
	if err := tools.NewMenuToolset(registry, catalog); err != nil {
		log.Error("toolset init failed", "err", err)
		os.Exit(1)
	}
	generator := llm.NewOpenAIGenerator(cfg.LLM)
	eng := engine.New(sessionStore, lock.NewRedisLocker(rdb), registry, generator, auditSvc, policy, cfg)

	h := httpapi.Handlers{
		Auth:           authManager,
		Reservations:   reservationSvc,
		Sessions:       sessionStore,
		Audit:          auditSvc,
		Engine:         eng,
		Policy:         policy,
		Redis:          rdb,
		MaxActiveCalls: cfg.Engine.MaxActiveCalls,
		GatherPath:     gatherPath,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, h, db, rdb, auth.RequireAccessToken(authManager))

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

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
