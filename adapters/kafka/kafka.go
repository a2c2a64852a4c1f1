// Package kafka carries notification requests between producers and the
// notifier process.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	RequestsTopic  = "notifications.requested"
	DefaultGroupID = "pulsetrack-notifier"
)

type Message struct {
	Topic   string
	Key     []byte
	Payload []byte
}

type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, groupID string, topics ...string) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer requires at least one broker")
	}
	if groupID == "" {
		groupID = DefaultGroupID
	}
	if len(topics) == 0 {
		topics = []string{RequestsTopic}
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})
	return &Consumer{reader: reader}, nil
}

// Poll reads up to max messages, returning early once the topic is idle
// for a short read window.
func (c *Consumer) Poll(ctx context.Context, max int) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	out := make([]Message, 0, max)
	for i := 0; i < max; i++ {
		readCtx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		msg, err := c.reader.ReadMessage(readCtx)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				return out, nil
			case errors.Is(err, context.Canceled):
				return out, ctx.Err()
			default:
				return out, err
			}
		}
		out = append(out, Message{Topic: msg.Topic, Key: msg.Key, Payload: msg.Value})
	}
	return out, nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

type Publisher struct {
	writer *kafka.Writer
	topic  string
}

func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if topic == "" {
		topic = RequestsTopic
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			RequiredAcks:           kafka.RequireAll,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}, nil
}

// Publish writes payload keyed by key, so requests for one user stay on
// one partition.
func (p *Publisher) Publish(ctx context.Context, key string, payload []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
