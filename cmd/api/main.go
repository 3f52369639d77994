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

	"voicecampaign/internal/agent"
	"voicecampaign/internal/audit"
	"voicecampaign/internal/auth"
	"voicecampaign/internal/calls"
	"voicecampaign/internal/campaign"
	"voicecampaign/internal/config"
	"voicecampaign/internal/conversation"
	"voicecampaign/internal/creds"
	"voicecampaign/internal/httpapi"
	"voicecampaign/internal/pricing"
	"voicecampaign/internal/queue"
	"voicecampaign/internal/reporting"
	"voicecampaign/internal/usage"
	"voicecampaign/pkg/logger"
	"voicecampaign/pkg/utils"

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

	hostname, _ := os.Hostname()
	jobs := queue.NewRedisQueue(rdb, hostname, queue.Policy{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: cfg.Queue.BackoffBase,
		Lease:       cfg.Queue.LeaseTimeout,
	})

	campaignRepo := campaign.NewPostgresRepo(db)
	runRepo := calls.NewPostgresRepo(db)
	agentRepo := agent.NewPostgresRepo(db)
	credsRepo := creds.NewPostgresRepo(db)
	usageRepo := usage.NewPostgresRepo(db)

	credentialChain := creds.Chain{
		creds.NewStoreResolver(credsRepo),
		creds.NewEnvResolver(cfg.Telephony.AccountSID, cfg.Telephony.AuthToken, cfg.Telephony.FromNumber),
	}

	pricingSvc := pricing.NewService(pricing.NewMemoryRepo().SeedDefaults())
	usageSvc := usage.NewService(usageRepo, pricingSvc, nil)
	recorder := usage.NewRecorder(usageSvc, 256, logger.Component(log, "usage-recorder"))
	defer recorder.Close()

	auditSvc := audit.NewService(audit.NewMemoryRepo())
	campaignSvc := campaign.NewService(campaignRepo, jobs, credentialChain, auditSvc, logger.Component(log, "campaign"))
	reportSvc := reporting.NewService(runRepo, usageRepo, campaignRepo)

	generator := conversation.NewOpenAIGenerator(cfg.Generative.BaseURL, cfg.Generative.APIKey, cfg.Generative.Model)
	hooks := conversation.Hooks{Base: cfg.Telephony.WebhookBaseURL}
	engine := conversation.NewEngine(runRepo, agentRepo, usageSvc, recorder, generator, auditSvc, hooks, logger.Component(log, "conversation"))

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Auth:      authManager,
		Campaigns: campaignSvc,
		Agents:    agentRepo,
		Runs:      runRepo,
		Usage:     usageSvc,
		Reports:   reportSvc,
		Creds:     credsRepo,
	}
	registerRoutes(r, h, engine, jobs, auth.RequireAccessToken(authManager))

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
