// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unclebandit/attestation-service/internal/config"
	"github.com/unclebandit/attestation-service/internal/controller"
	"github.com/unclebandit/attestation-service/internal/db"
	"github.com/unclebandit/attestation-service/internal/handler"
	"github.com/unclebandit/attestation-service/internal/kvstore"
	"github.com/unclebandit/attestation-service/internal/metrics"
	"github.com/unclebandit/attestation-service/internal/notification"
	"github.com/unclebandit/attestation-service/internal/queue"
	"github.com/unclebandit/attestation-service/internal/repository"
	"github.com/unclebandit/attestation-service/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}
	defer conn.Close()

	// Email queue: RabbitMQ when configured, otherwise delivered in-process
	var q queue.Queue
	if cfg.AMQPURL != "" {
		aq, err := queue.DialAMQP(cfg.AMQPURL, logger)
		if err != nil {
			logger.Fatal("rabbitmq unavailable", zap.Error(err))
		}
		defer aq.Close()
		q = aq
	} else {
		mq := queue.NewInMemoryQueue(logger)
		if err := notification.StartEmailSubscriber(mq, cfg.EmailQueue, &notification.LogMailer{Log: logger}, logger); err != nil {
			logger.Fatal("email subscriber", zap.Error(err))
		}
		logger.Info("AMQP_URL not set, delivering emails in-process")
		q = mq
	}

	var locks kvstore.Store
	if cfg.RedisAddr != "" {
		rs, err := kvstore.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal("redis unavailable", zap.Error(err))
		}
		defer rs.Close()
		locks = rs
	} else {
		locks = kvstore.NewMemoryStore(time.Now)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	campaignRepo := &repository.CampaignRepository{DB: conn}
	recordRepo := &repository.RecordRepository{DB: conn}
	inviteRepo := &repository.InviteRepository{DB: conn}
	ledgerRepo := &repository.LedgerRepository{DB: conn}
	userRepo := &repository.UserRepository{DB: conn}
	assetRepo := &repository.AssetRepository{DB: conn}
	auditRepo := &repository.AuditRepository{DB: conn}

	notifier := &notification.QueueDispatcher{Queue: q, Topic: cfg.EmailQueue, Log: logger, Metrics: m}

	if cfg.IdentityHookToken == "" {
		logger.Warn("IDENTITY_HOOK_TOKEN not set, first-login invite conversion is disabled")
	}

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		RecordRepo:   recordRepo,
		InviteRepo:   inviteRepo,
		Resolver:     &service.Resolver{Users: userRepo, Companies: assetRepo, Assets: assetRepo},
		Notifier:     notifier,
		Audit:        auditRepo,
		StartLocks:   locks,
		Metrics:      m,
		Log:          logger.Named("campaigns"),

		Concurrency:           cfg.FanoutConcurrency,
		StartLockTTL:          cfg.StartLockTTL,
		AppBaseURL:            cfg.AppBaseURL,
		DefaultReminderDays:   cfg.DefaultReminderDays,
		DefaultEscalationDays: cfg.DefaultEscalationDays,
	}
	recordService := &service.RecordService{
		CampaignRepo: campaignRepo,
		RecordRepo:   recordRepo,
		LedgerRepo:   ledgerRepo,
		Users:        userRepo,
		Assets:       assetRepo,
		Notifier:     notifier,
		Audit:        auditRepo,
		Metrics:      m,
		Log:          logger.Named("records"),
		Concurrency:  cfg.FanoutConcurrency,
		AppBaseURL:   cfg.AppBaseURL,
	}
	inviteService := &service.InviteService{
		CampaignRepo: campaignRepo,
		RecordRepo:   recordRepo,
		InviteRepo:   inviteRepo,
		Users:        userRepo,
		Notifier:     notifier,
		Audit:        auditRepo,
		Metrics:      m,
		Log:          logger.Named("invites"),
		AppBaseURL:   cfg.AppBaseURL,
	}

	r := newRouter(routes{
		campaigns: &controller.CampaignController{
			Campaigns: campaignService, Nudges: recordService, Invites: inviteService, Log: logger,
		},
		records:   &controller.RecordController{Records: recordService, Log: logger},
		identity:  &controller.IdentityController{Invites: inviteService, Log: logger},
		dashboard: &handler.CampaignHandler{Campaigns: campaignService, Records: recordService, Invites: inviteService, Log: logger},
		views:     &handler.RecordHandler{Records: recordService, Invites: inviteService, Log: logger},
		metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		hookToken: cfg.IdentityHookToken,
		log:       logger,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("server running", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if mq, ok := q.(*queue.InMemoryQueue); ok {
		mq.Wait()
	}
}
