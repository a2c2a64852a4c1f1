package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lborres/pulsetrack/adapters/kafka"
	"github.com/lborres/pulsetrack/config"
	"github.com/lborres/pulsetrack/services"
)

func newNotifierCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "notifier",
		Short: "Consume notification requests and deliver them",
		Long: `notifier reads notifications.requested from Kafka, stores each request as a
notification (which reaches open feeds through the database changefeed) and
delivers it over the requested push, sms and whatsapp channels.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runNotifier(cmd.Context(), cfg)
		},
	}
}

func runNotifier(ctx context.Context, cfg config.Config) error {
	log := newLogger(os.Stdout, cfg)
	if len(cfg.KafkaBrokers) == 0 {
		return fmt.Errorf("notifier requires KAFKA_BROKERS")
	}

	d, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup, cfg.KafkaTopic)
	if err != nil {
		return err
	}
	defer consumer.Close()

	dispatcher := services.NewDispatcher(services.DispatcherConfig{
		Store:    d.store,
		Profiles: d.store,
		Push:     d.pushProvider(),
		SMS:      d.sms,
		WhatsApp: d.whatsapp,
		Logger:   log,
	})

	worker := kafka.NewWorker(log, consumer, dispatcher, kafka.WorkerConfig{
		Topic:    cfg.KafkaTopic,
		Interval: cfg.ConsumerPollInterval,
	})
	log.Info("notifier started", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic, "group", cfg.KafkaConsumerGroup)

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
