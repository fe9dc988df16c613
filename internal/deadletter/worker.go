package deadletter

import (
	"context"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/logging"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

type WorkerOptions struct {
	PoolSize   int
	Interval   time.Duration
	RetryDelay time.Duration
	MaxRetries int
	Limit      int
}

func WorkerOptionsFromConfig() WorkerOptions {
	return WorkerOptions{
		PoolSize:   config.Conf.DeadLetterPoolSize,
		Interval:   time.Duration(config.Conf.DeadLetterInterval) * time.Minute,
		RetryDelay: time.Duration(config.Conf.DeadLetterRetryDelay) * time.Minute,
		MaxRetries: config.Conf.DeadLetterMaxRetries,
		Limit:      config.Conf.DeadLetterLimit,
	}
}

type DeadLetterWorker struct {
	WorkerPool   *ants.Pool
	DLService    *DeadLetterService
	DLRepository Store
	Options      WorkerOptions
}

func NewWorker(dlService *DeadLetterService, opts WorkerOptions) (*DeadLetterWorker, error) {
	workerPool, err := ants.NewPool(opts.PoolSize, ants.WithPreAlloc(true))
	if err != nil {
		return nil, err
	}

	return &DeadLetterWorker{
		WorkerPool:   workerPool,
		DLService:    dlService,
		DLRepository: dlService.DLRepository,
		Options:      opts,
	}, nil
}

func (dlWorker *DeadLetterWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(dlWorker.Options.Interval)
	defer ticker.Stop()

	defer dlWorker.WorkerPool.Release()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dlWorker.processPendingWrites(ctx)
		}
	}
}

func (dlWorker *DeadLetterWorker) processPendingWrites(ctx context.Context) {
	pendingWrites, err := dlWorker.DLRepository.GetPending(
		ctx,
		dlWorker.Options.RetryDelay,
		dlWorker.Options.MaxRetries,
		dlWorker.Options.Limit,
	)
	if err != nil {
		return
	}

	if len(pendingWrites) == 0 {
		logging.Logger.Debug("no pending writes to replay")
		return
	}

	logging.Logger.Info("start replaying pending writes", zap.Int("count_pending_writes", len(pendingWrites)))

	for idx := range pendingWrites {
		pendingWrite := pendingWrites[idx]

		err := dlWorker.WorkerPool.Submit(func() {
			dlWorker.DLService.ProcessPendingWrite(ctx, &pendingWrite)
		})
		if err != nil {
			logging.Logger.Error("failed to submit pending write to worker pool",
				zap.String("id", pendingWrite.ID),
				zap.String("error", err.Error()),
			)
		}
	}
}
