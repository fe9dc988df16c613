package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/calllog"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/message"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	topic string
	key   string
	value []byte
}

type recordingSender struct {
	sent []sentMessage
	err  error
}

func (s *recordingSender) SendMessage(topic string, key, value []byte) (int32, int64, error) {
	if s.err != nil {
		return 0, 0, s.err
	}

	s.sent = append(s.sent, sentMessage{topic: topic, key: string(key), value: value})

	return 0, int64(len(s.sent)), nil
}

func newTestPublisher(sender Sender) *Publisher {
	publisher := NewPublisher(sender, "sessions", "messages")
	publisher.Now = func() time.Time { return time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC) }

	return publisher
}

func TestPublishSessionEnded(t *testing.T) {
	sender := &recordingSender{}
	publisher := newTestPublisher(sender)

	record := &calllog.CallLog{SessionID: "s-1", Status: calllog.StatusTransferred, CallerPhone: "+4681"}
	require.NoError(t, publisher.PublishSessionEnded(context.Background(), record))

	require.Len(t, sender.sent, 1)
	require.Equal(t, "sessions", sender.sent[0].topic)
	require.Equal(t, "s-1", sender.sent[0].key)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(sender.sent[0].value, &envelope))
	require.Equal(t, TypeSessionEnded, envelope.Type)
	require.Equal(t, "s-1", envelope.SessionID)
	require.NotEmpty(t, envelope.ID)
	require.True(t, envelope.OccurredAt.Equal(publisher.Now()))

	var payload calllog.CallLog
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	require.Equal(t, calllog.StatusTransferred, payload.Status)
}

func TestPublishMessageCreatedUsesMessageTopic(t *testing.T) {
	sender := &recordingSender{}
	publisher := newTestPublisher(sender)

	require.NoError(t, publisher.PublishMessageCreated(context.Background(), &message.Message{SessionID: "s-2", Text: "call me"}))
	require.Equal(t, "messages", sender.sent[0].topic)
	require.Equal(t, "s-2", sender.sent[0].key)
}

func TestPublishReturnsSenderError(t *testing.T) {
	boom := errors.New("broker down")
	publisher := newTestPublisher(&recordingSender{err: boom})

	err := publisher.PublishSessionStarted(context.Background(), SessionStarted{SessionID: "s-3"})
	require.ErrorIs(t, err, boom)
}

func TestPublishSkipsCanceledContext(t *testing.T) {
	sender := &recordingSender{}
	publisher := newTestPublisher(sender)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, publisher.PublishSessionStarted(ctx, SessionStarted{SessionID: "s-4"}), context.Canceled)
	require.Empty(t, sender.sent)
}

func TestPublishTransferRequestedUsesMessageTopic(t *testing.T) {
	sender := &recordingSender{}
	publisher := newTestPublisher(sender)

	require.NoError(t, publisher.PublishTransferRequested(context.Background(), TransferRequested{
		SessionID:   "s-5",
		EmployeeID:  "e-jane",
		CallerPhone: "+46811122233",
		Reason:      "the invoice",
	}))
	require.Equal(t, "messages", sender.sent[0].topic)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(sender.sent[0].value, &envelope))
	require.Equal(t, TypeTransferRequested, envelope.Type)

	var payload TransferRequested
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	require.Equal(t, "e-jane", payload.EmployeeID)
	require.Equal(t, "the invoice", payload.Reason)
}
