package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lborres/pulsetrack/core"
	"github.com/lborres/pulsetrack/services"
)

type Poller interface {
	Poll(ctx context.Context, max int) ([]Message, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req core.NotificationRequest) (*services.DispatchResult, error)
}

type WorkerConfig struct {
	// Topic is the request topic. Messages from other topics are ignored.
	Topic     string
	Interval  time.Duration
	BatchSize int
}

// Worker polls notification requests and hands them to the dispatcher.
// A request that fails to decode or dispatch is logged and skipped.
type Worker struct {
	logger     *slog.Logger
	consumer   Poller
	dispatcher Dispatcher
	config     WorkerConfig
}

func NewWorker(logger *slog.Logger, consumer Poller, dispatcher Dispatcher, config ...WorkerConfig) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := WorkerConfig{}
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Topic == "" {
		cfg.Topic = RequestsTopic
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Worker{
		logger:     logger.With("component", "notifier"),
		consumer:   consumer,
		dispatcher: dispatcher,
		config:     cfg,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "consumer iteration failed",
				"operation", "process_once",
				"outcome", "failure",
				"error", err,
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce handles one batch and returns how many requests were
// dispatched.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	msgs, err := w.consumer.Poll(ctx, w.config.BatchSize)
	dispatched := 0
	for _, msg := range msgs {
		if msg.Topic != w.config.Topic {
			w.logger.DebugContext(ctx, "ignoring message", "topic", msg.Topic)
			continue
		}

		req, decodeErr := DecodeRequest(msg.Payload)
		if decodeErr != nil {
			w.logger.WarnContext(ctx, "dropping malformed notification request", "operation", "decode", "error", decodeErr)
			continue
		}

		result, dispatchErr := w.dispatcher.Dispatch(ctx, req)
		if dispatchErr != nil {
			w.logger.WarnContext(ctx, "failed to dispatch notification request",
				"operation", "dispatch",
				"user_id", req.UserID,
				"error", dispatchErr,
			)
			continue
		}
		dispatched++
		for ch, chErr := range result.Failed {
			w.logger.WarnContext(ctx, "channel delivery failed", "channel", ch, "notification_id", result.Event.ID, "error", chErr)
		}
	}
	return dispatched, err
}

// DecodeRequest parses a notifications.requested payload.
func DecodeRequest(payload []byte) (core.NotificationRequest, error) {
	var req core.NotificationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, fmt.Errorf("%w: %v", core.ErrInvalidRequest, err)
	}
	for _, ch := range req.Channels {
		switch ch {
		case core.ChannelPush, core.ChannelSMS, core.ChannelWhatsApp:
		default:
			return req, fmt.Errorf("%w: unknown channel %q", core.ErrInvalidRequest, ch)
		}
	}
	return req, nil
}

// EncodeRequest is the producer side of DecodeRequest.
func EncodeRequest(req core.NotificationRequest) ([]byte, error) {
	return json.Marshal(req)
}
