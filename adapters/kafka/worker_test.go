package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lborres/pulsetrack/core"
	"github.com/lborres/pulsetrack/services"
)

type stubPoller struct {
	msgs []Message
	err  error
}

func (p *stubPoller) Poll(context.Context, int) ([]Message, error) {
	msgs := p.msgs
	p.msgs = nil
	return msgs, p.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    core.NotificationRequest
		wantErr bool
	}{
		{
			name:    "minimal",
			payload: `{"user_id":"u1","title":"Reminder","message":"Take your pills"}`,
			want:    core.NotificationRequest{UserID: "u1", Title: "Reminder", Message: "Take your pills"},
		},
		{
			name:    "with channels",
			payload: `{"user_id":"u1","title":"t","message":"m","channels":["push","sms","whatsapp"]}`,
			want:    core.NotificationRequest{UserID: "u1", Title: "t", Message: "m", Channels: []core.Channel{core.ChannelPush, core.ChannelSMS, core.ChannelWhatsApp}},
		},
		{name: "unknown channel", payload: `{"user_id":"u1","title":"t","message":"m","channels":["fax"]}`, wantErr: true},
		{name: "not json", payload: `{`, wantErr: true},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			got, err := DecodeRequest([]byte(test.payload))
			if test.wantErr {
				assert.ErrorIs(t, err, core.ErrInvalidRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}
}

// Requirement: valid requests become stored notifications; malformed and
// foreign-topic messages are skipped without stopping the batch.
func TestWorker_ProcessOnce(t *testing.T) {
	storage := services.NewFakeStorageProvider()
	dispatcher := services.NewDispatcher(services.DispatcherConfig{Store: storage, Profiles: storage, Logger: discardLogger()})

	valid, err := EncodeRequest(core.NotificationRequest{UserID: "u1", Title: "BP", Message: "Log your reading"})
	require.NoError(t, err)

	poller := &stubPoller{msgs: []Message{
		{Topic: RequestsTopic, Payload: []byte(`not json`)},
		{Topic: "other.topic", Payload: valid},
		{Topic: RequestsTopic, Payload: []byte(`{"user_id":"u1"}`)},
		{Topic: RequestsTopic, Payload: valid},
	}}
	w := NewWorker(discardLogger(), poller, dispatcher)

	n, err := w.ProcessOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	events, err := storage.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "BP", events[0].Title)
}

func TestWorker_CustomTopic(t *testing.T) {
	storage := services.NewFakeStorageProvider()
	dispatcher := services.NewDispatcher(services.DispatcherConfig{Store: storage, Logger: discardLogger()})
	valid, err := EncodeRequest(core.NotificationRequest{UserID: "u1", Title: "t", Message: "m"})
	require.NoError(t, err)

	poller := &stubPoller{msgs: []Message{
		{Topic: RequestsTopic, Payload: valid},
		{Topic: "reminders", Payload: valid},
	}}
	w := NewWorker(discardLogger(), poller, dispatcher, WorkerConfig{Topic: "reminders"})

	n, err := w.ProcessOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWorker_ProcessOnce_PollError(t *testing.T) {
	pollErr := errors.New("broker down")
	w := NewWorker(discardLogger(), &stubPoller{err: pollErr}, nil)

	n, err := w.ProcessOnce(context.Background())

	assert.ErrorIs(t, err, pollErr)
	assert.Zero(t, n)
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := NewWorker(discardLogger(), &stubPoller{}, nil)

	err := w.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewConsumer_RequiresBrokers(t *testing.T) {
	_, err := NewConsumer(nil, "")
	assert.Error(t, err)

	_, err = NewPublisher(nil, "")
	assert.Error(t, err)
}
