// Package events publishes the receptionist's outward facing events: a
// session starting or ending, a message being created, and an employee about
// to receive a transfer.
package events

import (
	"context"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/calllog"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	TypeSessionStarted = "session.started"
	TypeSessionEnded   = "session.ended"
	TypeMessageCreated = "message.created"
	// TypeTransferRequested shares the message topic so one notifier serves both.
	TypeTransferRequested = "transfer.requested"
)

type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	SessionID  string          `json:"session_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

type SessionStarted struct {
	SessionID   string    `json:"session_id"`
	CallerPhone string    `json:"caller_phone"`
	CallerName  string    `json:"caller_name,omitempty"`
	RoomName    string    `json:"room_name"`
	StartedAt   time.Time `json:"started_at"`
}

type TransferRequested struct {
	SessionID   string `json:"session_id"`
	EmployeeID  string `json:"employee_id"`
	CallerName  string `json:"caller_name,omitempty"`
	CallerPhone string `json:"caller_phone"`
	Reason      string `json:"reason,omitempty"`
}

// Sender is satisfied by kafka.Producer.
type Sender interface {
	SendMessage(topic string, key, value []byte) (int32, int64, error)
}

type Publisher struct {
	Sender       Sender
	SessionTopic string
	MessageTopic string
	Now          func() time.Time
}

func NewPublisher(sender Sender, sessionTopic, messageTopic string) *Publisher {
	return &Publisher{
		Sender:       sender,
		SessionTopic: sessionTopic,
		MessageTopic: messageTopic,
		Now:          time.Now,
	}
}

func NewPublisherFromConfig(sender Sender) *Publisher {
	return NewPublisher(sender, config.Conf.KafkaSessionTopic, config.Conf.KafkaMessageTopic)
}

func (publisher *Publisher) PublishSessionStarted(ctx context.Context, event SessionStarted) error {
	return publisher.Publish(ctx, publisher.SessionTopic, TypeSessionStarted, event.SessionID, event)
}

func (publisher *Publisher) PublishSessionEnded(ctx context.Context, record *calllog.CallLog) error {
	return publisher.Publish(ctx, publisher.SessionTopic, TypeSessionEnded, record.SessionID, record)
}

func (publisher *Publisher) PublishMessageCreated(ctx context.Context, msg *message.Message) error {
	return publisher.Publish(ctx, publisher.MessageTopic, TypeMessageCreated, msg.SessionID, msg)
}

func (publisher *Publisher) PublishTransferRequested(ctx context.Context, event TransferRequested) error {
	return publisher.Publish(ctx, publisher.MessageTopic, TypeTransferRequested, event.SessionID, event)
}

// Publish wraps payload in an Envelope keyed by session id.
func (publisher *Publisher) Publish(ctx context.Context, topic, eventType, sessionID string, payload any) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	value, err := json.Marshal(Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		SessionID:  sessionID,
		OccurredAt: publisher.Now().UTC(),
		Payload:    raw,
	})
	if err != nil {
		return err
	}

	partition, offset, err := publisher.Sender.SendMessage(topic, []byte(sessionID), value)
	if err != nil {
		logging.Logger.Error("[Publish] failed to publish event",
			zap.String("type", eventType),
			zap.String("session_id", sessionID),
			zap.String("error", err.Error()),
		)

		return err
	}

	logging.Logger.Debug("[Publish] event published",
		zap.String("type", eventType),
		zap.String("session_id", sessionID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)

	return nil
}
