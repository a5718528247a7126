package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/unclebandit/attestation-service/internal/config"
	"github.com/unclebandit/attestation-service/internal/notification"
	"github.com/unclebandit/attestation-service/internal/queue"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// Connect to RabbitMQ
	q, err := queue.DialAMQP(cfg.AMQPURL, logger)
	if err != nil {
		logger.Fatal("rabbitmq unavailable", zap.Error(err))
	}
	defer q.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mailer := &notification.LogMailer{Log: logger.Named("mailer")}
	if err := run(ctx, q, cfg.EmailQueue, mailer, logger); err != nil {
		logger.Fatal("worker stopped", zap.Error(err))
	}
}

// run consumes attestation emails from topic until ctx is done.
func run(ctx context.Context, q queue.Queue, topic string, mailer notification.Mailer, log *zap.Logger) error {
	if err := notification.StartEmailSubscriber(q, topic, mailer, log); err != nil {
		return err
	}
	log.Info("worker running, waiting for messages", zap.String("queue", topic))
	<-ctx.Done()
	log.Info("worker shutting down")
	return nil
}
