package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"

	"github.com/pcforge/storefront/internal/events"
	"github.com/pcforge/storefront/internal/notifications"
)

type notifierConfig struct {
	KafkaBrokers string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	GroupID      string `envconfig:"NOTIFIER_GROUP_ID" default:"storefront-notifier"`
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	var cfg notifierConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	notifier := notifications.NewNotifier(&notifications.LogSender{Logger: logger}, logger)

	var consumer *events.KafkaConsumer
	var err error

	// Kafka may still be starting; retry before giving up.
	for i := 0; i < 10; i++ {
		consumer, err = events.NewKafkaConsumer(cfg.KafkaBrokers, cfg.GroupID, notifier, logger)
		if err == nil {
			logger.Info("Successfully connected to Kafka")
			break
		}
		logger.WithError(err).WithField("attempt", i+1).Warn("Failed to connect to Kafka, retrying...")
		time.Sleep(5 * time.Second)
	}
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka consumer after retries")
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.WithField("brokers", cfg.KafkaBrokers).Info("Starting notifier consumer")
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Error("Kafka consumer error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down notifier...")
	cancel()
	<-done
	logger.Info("Notifier stopped")
}
