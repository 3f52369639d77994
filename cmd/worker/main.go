package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voicecampaign/internal/audit"
	"voicecampaign/internal/calls"
	"voicecampaign/internal/campaign"
	"voicecampaign/internal/config"
	"voicecampaign/internal/conversation"
	"voicecampaign/internal/creds"
	"voicecampaign/internal/dialer"
	"voicecampaign/internal/pricing"
	"voicecampaign/internal/queue"
	"voicecampaign/internal/telephony"
	"voicecampaign/internal/usage"
	"voicecampaign/pkg/logger"
	"voicecampaign/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// The worker drains the dial queue: it shares storage and queue layout with
// the api process but serves no HTTP traffic of its own.
func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

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

	// The consumer name keys this process's lease list; a crashed worker's
	// leases are reclaimed after the lease timeout.
	hostname, _ := os.Hostname()
	jobs := queue.NewRedisQueue(rdb, hostname, queue.Policy{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: cfg.Queue.BackoffBase,
		Lease:       cfg.Queue.LeaseTimeout,
	})

	campaignRepo := campaign.NewPostgresRepo(db)
	runRepo := calls.NewPostgresRepo(db)
	credsRepo := creds.NewPostgresRepo(db)
	usageRepo := usage.NewPostgresRepo(db)

	credentialChain := creds.Chain{
		creds.NewStoreResolver(credsRepo),
		creds.NewEnvResolver(cfg.Telephony.AccountSID, cfg.Telephony.AuthToken, cfg.Telephony.FromNumber),
	}

	pricingSvc := pricing.NewService(pricing.NewMemoryRepo().SeedDefaults())
	usageSvc := usage.NewService(usageRepo, pricingSvc, nil)
	auditSvc := audit.NewService(audit.NewMemoryRepo())
	campaignSvc := campaign.NewService(campaignRepo, jobs, credentialChain, auditSvc, logger.Component(log, "campaign"))

	limiter := dialer.NewRedisLimiter(rdb, cfg.Queue.MaxConcurrentCalls, 10*time.Minute)
	hooks := conversation.Hooks{Base: cfg.Telephony.WebhookBaseURL}

	w := dialer.NewWorker(
		jobs,
		campaignSvc,
		campaignRepo,
		runRepo,
		credentialChain,
		telephony.NewTwilioDialer(),
		usageSvc,
		limiter,
		hooks,
		logger.Component(log, "dialer"),
	)

	log.Info("worker started", "consumer", hostname, "env", cfg.App.Env)
	w.Run(rootCtx)
	log.Info("worker stopped")
}
