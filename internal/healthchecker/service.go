// Package healthchecker restarts the app after a circuit breaker trips: it
// cancels the running app and blocks until the failed dependency answers again.
package healthchecker

import (
	"context"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/logging"
	"go.uber.org/zap"
)

type CheckFunc func() error

type Healthchecker struct {
	CtxCancelFunc context.CancelFunc
	ErrorService  string
	Checks        map[string]CheckFunc
	Interval      time.Duration
}

func NewService(ctxCancelFunc context.CancelFunc) *Healthchecker {
	return &Healthchecker{
		CtxCancelFunc: ctxCancelFunc,
		Checks: map[string]CheckFunc{
			circuitbreak.TelephonyService:     CheckTelephony,
			circuitbreak.DBService:            CheckDB,
			circuitbreak.KafkaProducerService: CheckKafkaProducer,
		},
		Interval: time.Duration(config.Conf.HealthCheckerMonitorInterval) * time.Second,
	}
}

// Monitor blocks until a breaker trips or ctx ends.
func (h *Healthchecker) Monitor(ctx context.Context) {
	logging.Logger.Info("[Monitor] health checker monitor started")

	select {
	case serviceName := <-circuitbreak.CircuitBreakChan:
		logging.Logger.Error("[Monitor] circuit break happened", zap.String("service", serviceName))
		h.ErrorService = serviceName
		h.CtxCancelFunc()
	case <-ctx.Done():
	}
}

// Check polls the failed service until it is healthy again. It returns at once
// when the app stopped for another reason.
func (h *Healthchecker) Check() {
	if h.ErrorService == "" {
		logging.Logger.Warn("[Check] no failed service recorded")
		return
	}

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	for {
		<-ticker.C

		if h.checkErrorService() {
			h.ErrorService = ""
			return
		}
	}
}

func (h *Healthchecker) checkErrorService() bool {
	check, ok := h.Checks[h.ErrorService]
	if !ok {
		logging.Logger.Warn("[checkErrorService] unknown service", zap.String("service", h.ErrorService))
		return true
	}

	err := check()
	if err != nil {
		logging.Logger.Warn("[checkErrorService] service still unhealthy",
			zap.String("service", h.ErrorService),
			zap.String("error", err.Error()),
		)

		return false
	}

	logging.Logger.Info("[checkErrorService] service back healthy", zap.String("service", h.ErrorService))

	return true
}
