package kafka

import (
	"context"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/logging"
	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

const (
	TelephonyConsumerName = "Telephony"
	NotifierConsumerName  = "Notifier"
)

type MessageHandler func(context.Context, *sarama.ConsumerMessage)

type Consumer struct {
	Client sarama.ConsumerGroup
	Name   string
}

// NewConsumer joins groupID; name only labels the logs.
func NewConsumer(groupID, name string) (*Consumer, error) {
	client, err := createConsumerGroup(groupID, name)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		Client: client,
		Name:   name,
	}, nil
}

// NewTelephonyConsumer joins the group that receives telephony participant events.
func NewTelephonyConsumer() (*Consumer, error) {
	return NewConsumer(config.Conf.KafkaTelephonyGroupID, TelephonyConsumerName)
}

// NewNotifierConsumer joins the group that delivers messages and transfer notes.
func NewNotifierConsumer() (*Consumer, error) {
	return NewConsumer(config.Conf.KafkaNotifyGroupID, NotifierConsumerName)
}

// Consume blocks until ctx is canceled, passing every message on topic to messageHandler.
func (c *Consumer) Consume(ctx context.Context, topic string, messageHandler MessageHandler) error {
	handler := &consumerGroupHandler{
		messageHandler: messageHandler,
	}

	runConsumerLoop(ctx, c.Client, topic, handler, c.Name)

	return nil
}

func (c *Consumer) Close() error {
	err := c.Client.Close()
	if err != nil {
		logging.Logger.Error("Failed to close Kafka consumer",
			zap.String("consumer", c.Name),
			zap.String("error", err.Error()),
		)

		return err
	}

	logging.Logger.Info("Kafka consumer closed successfully", zap.String("consumer", c.Name))

	return nil
}

type consumerGroupHandler struct {
	messageHandler MessageHandler
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// Messages are marked once the handler returns. The telephony handler only
// schedules work, so a slow call never blocks its partition.
func (h *consumerGroupHandler) ConsumeClaim(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			h.messageHandler(session.Context(), message)

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
