package calllog

import (
	"context"
	"errors"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/database"
	"github.com/sony/gobreaker/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidCallLogResult = errors.New("invalid result type, it should be pointer to CallLog struct")

type CallLogRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *CallLogRepository {
	cbSettings := database.GetCircuitBreakerSettings("call_logs")

	return &CallLogRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// AppendCallLog inserts the record; a second insert for the same session is a
// no-op, which keeps reconciliation replays idempotent.
func (callLogRepository *CallLogRepository) AppendCallLog(ctx context.Context, record *CallLog) error {
	_, err := callLogRepository.CircuitBreaker.Execute(func() (any, error) {
		err := callLogRepository.DBConn.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "session_id"}},
				DoNothing: true,
			}).
			Create(record).Error
		if err != nil {
			return nil, err
		}

		return record, nil
	})

	return err
}

func (callLogRepository *CallLogRepository) GetBySessionID(ctx context.Context, sessionID string) (*CallLog, error) {
	result, err := callLogRepository.CircuitBreaker.Execute(func() (any, error) {
		var record CallLog

		err := callLogRepository.DBConn.WithContext(ctx).
			Where("session_id = ?", sessionID).
			First(&record).Error
		if err != nil {
			return nil, err
		}

		return &record, nil
	})
	if err != nil {
		return nil, err
	}

	record, ok := result.(*CallLog)
	if !ok {
		return nil, ErrInvalidCallLogResult
	}

	return record, nil
}
