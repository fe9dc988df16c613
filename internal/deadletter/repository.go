package deadletter

import (
	"context"
	"errors"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/logging"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidPendingWriteResult      = errors.New("invalid result type, it should be pointer to PendingWrite")
	ErrInvalidPendingWriteSliceResult = errors.New("invalid result type, it should be slice of PendingWrite")
	ErrAlreadyClaimed                 = errors.New("pending write already claimed")
)

type DeadLetterRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *DeadLetterRepository {
	cbSettings := database.GetCircuitBreakerSettings("pending_writes")

	return &DeadLetterRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// Create stores a failed write, replacing the payload of an earlier row for
// the same kind and key.
func (dlRepository *DeadLetterRepository) Create(
	ctx context.Context,
	kind, key string,
	payload []byte,
	errMsg string,
) (*PendingWrite, error) {
	result, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		now := time.Now()

		var pendingWrite PendingWrite

		var dbConn *gorm.DB

		select {
		case <-ctx.Done():
			dbConn = dlRepository.DBConn
		default:
			dbConn = dlRepository.DBConn.WithContext(ctx)
		}

		err := dbConn.Where(PendingWrite{Kind: kind, Key: key}).
			Attrs(PendingWrite{ID: uuid.NewString()}).
			Assign(map[string]any{
				"payload":       payload,
				"error":         errMsg,
				"status":        StatusPending,
				"last_retry_at": &now,
			}).
			FirstOrCreate(&pendingWrite).Error
		if err != nil {
			logging.Logger.Error("failed to create pending write",
				zap.String("kind", kind),
				zap.String("key", key),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return &pendingWrite, nil
	})
	if err != nil {
		return nil, err
	}

	pendingWrite, ok := result.(*PendingWrite)
	if !ok {
		return nil, ErrInvalidPendingWriteResult
	}

	return pendingWrite, nil
}

// GetPending returns rows due for another attempt, oldest first.
func (dlRepository *DeadLetterRepository) GetPending(
	ctx context.Context,
	retryDelay time.Duration,
	maxRetries, limit int,
) ([]PendingWrite, error) {
	result, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		var records []PendingWrite

		err := dlRepository.DBConn.WithContext(ctx).
			Where(
				"status = ? AND last_retry_at <= ? AND retry_count < ?",
				StatusPending,
				time.Now().Add(-retryDelay),
				maxRetries,
			).
			Order("created_at ASC").
			Limit(limit).
			Find(&records).Error
		if err != nil {
			logging.Logger.Info("failed to fetch pending writes", zap.String("error", err.Error()))
			return nil, err
		}

		return records, nil
	})
	if err != nil {
		return nil, err
	}

	records, ok := result.([]PendingWrite)
	if !ok {
		return nil, ErrInvalidPendingWriteSliceResult
	}

	return records, nil
}

// Claim moves a pending row to in_progress. It fails with ErrAlreadyClaimed
// when another worker got there first.
func (dlRepository *DeadLetterRepository) Claim(ctx context.Context, pendingWrite *PendingWrite) error {
	result, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		tx := dlRepository.DBConn.WithContext(ctx).
			Model(&PendingWrite{}).
			Where("id = ? AND status = ?", pendingWrite.ID, StatusPending).
			Update("status", StatusInProgress)
		if tx.Error != nil {
			return nil, tx.Error
		}

		return tx.RowsAffected, nil
	})
	if err != nil {
		return err
	}

	if rows, ok := result.(int64); !ok || rows == 0 {
		return ErrAlreadyClaimed
	}

	pendingWrite.Status = StatusInProgress

	return nil
}

func (dlRepository *DeadLetterRepository) IncreaseRetryCount(
	ctx context.Context,
	pendingWrite *PendingWrite,
	errMsg string,
) error {
	_, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		updates := map[string]any{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_retry_at": time.Now(),
			"status":        StatusPending,
			"error":         errMsg,
		}

		err := dlRepository.DBConn.WithContext(ctx).
			Model(&PendingWrite{}).
			Where("id = ?", pendingWrite.ID).
			Updates(updates).Error
		if err != nil {
			logging.Logger.Error("failed to increase pending write retry count",
				zap.String("id", pendingWrite.ID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return pendingWrite, nil
	})

	return err
}

func (dlRepository *DeadLetterRepository) Delete(ctx context.Context, pendingWrite *PendingWrite) error {
	_, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		err := dlRepository.DBConn.WithContext(ctx).
			Where("id = ?", pendingWrite.ID).
			Delete(&PendingWrite{}).
			Error

		return nil, err
	})

	return err
}
