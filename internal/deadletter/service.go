package deadletter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/calllog"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/message"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/prometheus"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

var ErrUnknownKind = errors.New("unknown pending write kind")

const (
	stageFlagged     = "flagged"
	stagePublished   = "published"
	stageLogged      = "logged"
	stageReplayed    = "replayed"
	stageReplayError = "replay_failed"
)

type Store interface {
	Create(ctx context.Context, kind, key string, payload []byte, errMsg string) (*PendingWrite, error)
	GetPending(ctx context.Context, retryDelay time.Duration, maxRetries, limit int) ([]PendingWrite, error)
	Claim(ctx context.Context, pendingWrite *PendingWrite) error
	IncreaseRetryCount(ctx context.Context, pendingWrite *PendingWrite, errMsg string) error
	Delete(ctx context.Context, pendingWrite *PendingWrite) error
}

type CallLogWriter interface {
	AppendCallLog(ctx context.Context, record *calllog.CallLog) error
}

type MessageWriter interface {
	SaveMessage(ctx context.Context, msg *message.Message) (string, error)
}

type EventPublisher interface {
	PublishSessionEnded(ctx context.Context, record *calllog.CallLog) error
	PublishMessageCreated(ctx context.Context, msg *message.Message) error
	Publish(ctx context.Context, topic, eventType, sessionID string, payload any) error
}

// DeadLetterService makes sure a failed call log or message write is never
// silently lost. A flagged write lands in the pending_writes table, or on the
// reconcile topic when the database itself is down, or as a last resort in
// the error log with its full payload.
type DeadLetterService struct {
	DLRepository   Store
	CallLogs       CallLogWriter
	Messages       MessageWriter
	Events         EventPublisher
	ReconcileTopic string
}

func NewService(store Store, callLogs CallLogWriter, messages MessageWriter, events EventPublisher) *DeadLetterService {
	return &DeadLetterService{
		DLRepository:   store,
		CallLogs:       callLogs,
		Messages:       messages,
		Events:         events,
		ReconcileTopic: config.Conf.KafkaReconcileTopic,
	}
}

func (dlService *DeadLetterService) FlagCallLog(ctx context.Context, record *calllog.CallLog, cause error) error {
	return dlService.flag(ctx, KindCallLog, record.SessionID, record, cause)
}

func (dlService *DeadLetterService) FlagMessage(ctx context.Context, msg *message.Message, cause error) error {
	return dlService.flag(ctx, KindMessage, msg.SessionID, msg, cause)
}

func (dlService *DeadLetterService) flag(ctx context.Context, kind, key string, payload any, cause error) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, storeErr := dlService.DLRepository.Create(ctx, kind, key, data, cause.Error())
	if storeErr == nil {
		prometheus.ReconciliationEvents.WithLabelValues(kind, stageFlagged).Inc()
		logging.Logger.Info("[flag] write flagged for reconciliation",
			zap.String("kind", kind),
			zap.String("session_id", key),
		)

		return nil
	}

	publishErr := dlService.Events.Publish(ctx, dlService.ReconcileTopic, "reconcile."+kind, key, PendingWrite{
		Kind:    kind,
		Key:     key,
		Payload: data,
		Error:   cause.Error(),
		Status:  StatusPending,
	})
	if publishErr == nil {
		prometheus.ReconciliationEvents.WithLabelValues(kind, stagePublished).Inc()
		logging.Logger.Warn("[flag] pending write sent to reconcile topic",
			zap.String("kind", kind),
			zap.String("session_id", key),
			zap.String("error", storeErr.Error()),
		)

		return nil
	}

	prometheus.ReconciliationEvents.WithLabelValues(kind, stageLogged).Inc()
	logging.Logger.Error("[flag] unable to store pending write",
		zap.String("kind", kind),
		zap.String("session_id", key),
		zap.ByteString("payload", data),
		zap.String("cause", cause.Error()),
		zap.String("error", errors.Join(storeErr, publishErr).Error()),
	)

	return errors.Join(storeErr, publishErr)
}

// ProcessPendingWrite replays one row. The stores are idempotent per session,
// so a write that actually landed the first time is not duplicated.
func (dlService *DeadLetterService) ProcessPendingWrite(ctx context.Context, pendingWrite *PendingWrite) {
	err := dlService.DLRepository.Claim(ctx, pendingWrite)
	if err != nil {
		logging.Logger.Info("failed to claim pending write",
			zap.String("id", pendingWrite.ID),
			zap.String("error", err.Error()),
		)

		return
	}

	err = dlService.replay(ctx, pendingWrite)
	if err != nil {
		prometheus.ReconciliationEvents.WithLabelValues(pendingWrite.Kind, stageReplayError).Inc()
		logging.Logger.Error("failed to replay pending write",
			zap.String("id", pendingWrite.ID),
			zap.String("kind", pendingWrite.Kind),
			zap.String("session_id", pendingWrite.Key),
			zap.String("error", err.Error()),
		)

		_ = dlService.DLRepository.IncreaseRetryCount(ctx, pendingWrite, err.Error())

		return
	}

	prometheus.ReconciliationEvents.WithLabelValues(pendingWrite.Kind, stageReplayed).Inc()
	logging.Logger.Info("pending write replayed",
		zap.String("kind", pendingWrite.Kind),
		zap.String("session_id", pendingWrite.Key),
	)

	err = dlService.DLRepository.Delete(ctx, pendingWrite)
	if err != nil {
		logging.Logger.Info("failed to delete replayed pending write",
			zap.String("id", pendingWrite.ID),
			zap.String("error", err.Error()),
		)
	}
}

func (dlService *DeadLetterService) replay(ctx context.Context, pendingWrite *PendingWrite) error {
	switch pendingWrite.Kind {
	case KindCallLog:
		var record calllog.CallLog

		err := json.Unmarshal(pendingWrite.Payload, &record)
		if err != nil {
			return err
		}

		err = dlService.CallLogs.AppendCallLog(ctx, &record)
		if err != nil {
			return err
		}

		return dlService.Events.PublishSessionEnded(ctx, &record)
	case KindMessage:
		var msg message.Message

		err := json.Unmarshal(pendingWrite.Payload, &msg)
		if err != nil {
			return err
		}

		_, err = dlService.Messages.SaveMessage(ctx, &msg)
		if err != nil {
			return err
		}

		return dlService.Events.PublishMessageCreated(ctx, &msg)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, pendingWrite.Kind)
	}
}
