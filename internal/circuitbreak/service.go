package circuitbreak

import (
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/logging"
	"go.uber.org/zap"
)

const (
	TelephonyService     = "telephony"
	DBService            = "database"
	MinioService         = "minio"
	KafkaProducerService = "kafka_producer"
)

// trips queue up while the monitor is busy; one is enough to restart the app
const chanSize = 8

var CircuitBreakChan = make(chan string, chanSize)

// Init drains trips left over from a previous app instance.
func Init() {
	for {
		select {
		case <-CircuitBreakChan:
		default:
			return
		}
	}
}

func TriggerError(service string) {
	select {
	case CircuitBreakChan <- service:
	default:
		logging.Logger.Warn("[TriggerError] circuit break already pending", zap.String("service", service))
	}
}
