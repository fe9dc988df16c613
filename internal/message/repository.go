package message

import (
	"context"
	"errors"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/database"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrInvalidMessageResult = errors.New("invalid result type, it should be pointer to Message struct")
	ErrInvalidRowsResult    = errors.New("invalid result type, it should be int64 rows affected")
	ErrMessageNotFound      = errors.New("message not found")
)

type MessageRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *MessageRepository {
	cbSettings := database.GetCircuitBreakerSettings("messages")

	return &MessageRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// SaveMessage stores msg and returns its id. Messages are keyed by session so a
// replayed save returns the id that was stored first.
func (messageRepository *MessageRepository) SaveMessage(ctx context.Context, msg *Message) (string, error) {
	result, err := messageRepository.CircuitBreaker.Execute(func() (any, error) {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}

		if msg.Status == "" {
			msg.Status = StatusPending
		}

		// stored stays zero so the lookup is by session only
		var stored Message

		err := messageRepository.DBConn.WithContext(ctx).
			Where(Message{SessionID: msg.SessionID}).
			Attrs(*msg).
			FirstOrCreate(&stored).Error
		if err != nil {
			return nil, err
		}

		return &stored, nil
	})
	if err != nil {
		return "", err
	}

	stored, ok := result.(*Message)
	if !ok {
		return "", ErrInvalidMessageResult
	}

	msg.ID = stored.ID

	return stored.ID, nil
}

// UpdateDelivery records how a message was delivered. A message the employee
// has already read keeps its read status.
func (messageRepository *MessageRepository) UpdateDelivery(
	ctx context.Context,
	messageID string,
	status string,
	deliveredVia []string,
) error {
	_, err := messageRepository.updateStatus(ctx, messageID, map[string]any{
		"status":        status,
		"delivered_via": datatypes.JSONSlice[string](deliveredVia),
	}, StatusRead)

	return err
}

func (messageRepository *MessageRepository) MarkRead(ctx context.Context, messageID string) error {
	rows, err := messageRepository.updateStatus(ctx, messageID, map[string]any{"status": StatusRead}, "")
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrMessageNotFound
	}

	return nil
}

func (messageRepository *MessageRepository) updateStatus(
	ctx context.Context,
	messageID string,
	fields map[string]any,
	keepStatus string,
) (int64, error) {
	result, err := messageRepository.CircuitBreaker.Execute(func() (any, error) {
		query := messageRepository.DBConn.WithContext(ctx).Model(&Message{}).Where("id = ?", messageID)
		if keepStatus != "" {
			query = query.Where("status <> ?", keepStatus)
		}

		tx := query.Updates(fields)

		return tx.RowsAffected, tx.Error
	})
	if err != nil {
		return 0, err
	}

	rows, ok := result.(int64)
	if !ok {
		return 0, ErrInvalidRowsResult
	}

	return rows, nil
}
