package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lborres/pulsetrack/adapters/kafka"
	"github.com/lborres/pulsetrack/core"
)

func newSendCommand() *cobra.Command {
	var (
		req      core.NotificationRequest
		channels []string
		data     string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Queue a notification request",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(cfg.KafkaBrokers) == 0 {
				return fmt.Errorf("send requires KAFKA_BROKERS")
			}

			for _, ch := range channels {
				req.Channels = append(req.Channels, core.Channel(ch))
			}
			if data != "" {
				if !json.Valid([]byte(data)) {
					return fmt.Errorf("%w: --data is not valid JSON", core.ErrInvalidRequest)
				}
				req.Data = json.RawMessage(data)
			}

			payload, err := kafka.EncodeRequest(req)
			if err != nil {
				return err
			}
			if _, err := kafka.DecodeRequest(payload); err != nil {
				return err
			}

			publisher, err := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
			if err != nil {
				return err
			}
			defer publisher.Close()

			if err := publisher.Publish(cmd.Context(), req.UserID, payload); err != nil {
				return fmt.Errorf("publish notification request: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "queued notification for %s\n", req.UserID)
			return err
		},
	}

	cmd.Flags().StringVar(&req.UserID, "user", "", "recipient user id")
	cmd.Flags().StringVar(&req.Title, "title", "", "notification title")
	cmd.Flags().StringVar(&req.Message, "message", "", "notification message")
	cmd.Flags().StringVar(&req.Type, "type", "", "notification type")
	cmd.Flags().StringVar(&data, "data", "", "JSON payload attached to the notification")
	cmd.Flags().StringSliceVar(&channels, "channel", nil, "delivery channel: push, sms or whatsapp (repeatable)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}
