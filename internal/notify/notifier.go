// Package notify delivers taken messages and transfer heads-ups to employees
// over SMS and email, and records how each message went out.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/directory"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/events"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/message"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/prometheus"
	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 10 * time.Second
	inboxName      = "Reception"
)

var ErrNoChannels = errors.New("no notification channels configured")

type EmployeeLookup interface {
	GetByID(ctx context.Context, employeeID string) (*directory.Employee, error)
}

type DeliveryRecorder interface {
	UpdateDelivery(ctx context.Context, messageID, status string, deliveredVia []string) error
}

type Notifier struct {
	Employees EmployeeLookup
	Messages  DeliveryRecorder
	Channels  []Channel
	// InboxEmail receives messages that are not addressed to anyone.
	InboxEmail string
	Timeout    time.Duration
}

func NewNotifier(employees EmployeeLookup, messages DeliveryRecorder, channels ...Channel) *Notifier {
	return &Notifier{
		Employees: employees,
		Messages:  messages,
		Channels:  channels,
		Timeout:   defaultTimeout,
	}
}

func NewNotifierFromConfig(employees EmployeeLookup, messages DeliveryRecorder, channels ...Channel) *Notifier {
	notifier := NewNotifier(employees, messages, channels...)
	notifier.InboxEmail = config.Conf.NotifyInboxEmail

	if config.Conf.NotifyTimeout > 0 {
		notifier.Timeout = time.Duration(config.Conf.NotifyTimeout) * time.Second
	}

	return notifier
}

// MessageHandler is the kafka consumer callback for the message topic.
func (notifier *Notifier) MessageHandler(ctx context.Context, msg *sarama.ConsumerMessage) {
	var envelope events.Envelope

	err := json.Unmarshal(msg.Value, &envelope)
	if err != nil {
		logging.Logger.Error("[MessageHandler] failed to decode event envelope",
			zap.String("error", err.Error()),
			zap.ByteString("msg_value", msg.Value),
		)

		return
	}

	switch envelope.Type {
	case events.TypeMessageCreated:
		var taken message.Message

		err = json.Unmarshal(envelope.Payload, &taken)
		if err == nil {
			err = notifier.DeliverMessage(ctx, &taken)
		}
	case events.TypeTransferRequested:
		var transfer events.TransferRequested

		err = json.Unmarshal(envelope.Payload, &transfer)
		if err == nil {
			err = notifier.NotifyTransfer(ctx, transfer)
		}
	default:
		return
	}

	if err != nil {
		logging.Logger.Error("[MessageHandler] failed to notify",
			zap.String("type", envelope.Type),
			zap.String("session_id", envelope.SessionID),
			zap.String("error", err.Error()),
		)
	}
}

// DeliverMessage sends msg to its employee, or to the inbox when it has none,
// and records the outcome. A message nobody can be told about stays pending.
func (notifier *Notifier) DeliverMessage(ctx context.Context, msg *message.Message) error {
	if msg.ID == "" {
		return fmt.Errorf("message for session %s has no id", msg.SessionID)
	}

	recipient, found, err := notifier.recipientFor(ctx, msg)
	if err != nil {
		return err
	}

	if !found {
		logging.Logger.Warn("[DeliverMessage] no recipient for message, leaving it pending",
			zap.String("message_id", msg.ID),
			zap.String("session_id", msg.SessionID),
		)

		return nil
	}

	deliveredVia, err := notifier.send(ctx, recipient, messageNote(recipient.Name, msg))
	if errors.Is(err, ErrNoChannels) {
		return err
	}

	status := message.StatusDelivered
	if len(deliveredVia) == 0 {
		status = message.StatusFailed
	}

	err = notifier.Messages.UpdateDelivery(ctx, msg.ID, status, deliveredVia)
	if err != nil {
		return fmt.Errorf("record delivery of message %s: %w", msg.ID, err)
	}

	logging.Logger.Info("[DeliverMessage] message delivery recorded",
		zap.String("message_id", msg.ID),
		zap.String("status", status),
		zap.Strings("delivered_via", deliveredVia),
	)

	return nil
}

// NotifyTransfer warns the employee that a caller is about to be put through.
func (notifier *Notifier) NotifyTransfer(ctx context.Context, event events.TransferRequested) error {
	employee, err := notifier.Employees.GetByID(ctx, event.EmployeeID)
	if err != nil {
		return fmt.Errorf("look up employee %s: %w", event.EmployeeID, err)
	}

	recipient := recipientOf(employee)

	deliveredVia, err := notifier.send(ctx, recipient, transferNote(recipient.Name, event))
	if err != nil {
		return err
	}

	if len(deliveredVia) == 0 {
		return fmt.Errorf("transfer note for session %s reached no channel", event.SessionID)
	}

	return nil
}

func (notifier *Notifier) recipientFor(ctx context.Context, msg *message.Message) (Recipient, bool, error) {
	if msg.ToEmployeeID != nil && *msg.ToEmployeeID != "" {
		employee, err := notifier.Employees.GetByID(ctx, *msg.ToEmployeeID)
		if err == nil {
			return recipientOf(employee), true, nil
		}

		if !errors.Is(err, directory.ErrEmployeeNotFound) {
			return Recipient{}, false, fmt.Errorf("look up employee %s: %w", *msg.ToEmployeeID, err)
		}

		logging.Logger.Warn("[recipientFor] message addressed to unknown employee, using inbox",
			zap.String("message_id", msg.ID),
			zap.String("employee_id", *msg.ToEmployeeID),
		)
	}

	if notifier.InboxEmail == "" {
		return Recipient{}, false, nil
	}

	return Recipient{Name: inboxName, Email: notifier.InboxEmail}, true, nil
}

func recipientOf(employee *directory.Employee) Recipient {
	recipient := Recipient{
		Name:  employee.FullName(),
		Phone: employee.PhoneNumber,
	}

	if employee.Email != nil {
		recipient.Email = *employee.Email
	}

	return recipient
}

// send tries every channel and returns the names of those that succeeded.
func (notifier *Notifier) send(ctx context.Context, recipient Recipient, note Note) ([]string, error) {
	if len(notifier.Channels) == 0 {
		return nil, ErrNoChannels
	}

	deliveredVia := []string{}

	for _, channel := range notifier.Channels {
		deliverCtx, cancel := context.WithTimeout(ctx, notifier.Timeout)
		err := channel.Deliver(deliverCtx, recipient, note)

		cancel()

		switch {
		case errors.Is(err, ErrNoAddress):
			prometheus.NotificationDeliveries.WithLabelValues(channel.Name(), "skipped").Inc()
		case err != nil:
			prometheus.NotificationDeliveries.WithLabelValues(channel.Name(), "failed").Inc()

			logging.Logger.Error("[send] notification channel failed",
				zap.String("channel", channel.Name()),
				zap.String("recipient", recipient.Name),
				zap.String("error", err.Error()),
			)
		default:
			prometheus.NotificationDeliveries.WithLabelValues(channel.Name(), "delivered").Inc()

			deliveredVia = append(deliveredVia, channel.Name())
		}
	}

	return deliveredVia, nil
}
