package healthchecker

import (
	"context"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/kafka"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/telephony"
	"go.uber.org/zap"
)

const checkTimeout = 10 * time.Second

func CheckDB() error {
	dbConn, err := database.NewDatabase()
	if err != nil {
		return err
	}

	sqlDB, err := dbConn.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

func CheckTelephony() error {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	err := telephony.NewClient(telephony.OptionsFromConfig()).Ping(ctx)
	if err != nil {
		logging.Logger.Info("[CheckTelephony] telephony api status", zap.String("error", err.Error()))
	}

	return err
}

func CheckKafkaProducer() error {
	kafkaProducer, err := kafka.NewProducer()
	if err != nil {
		logging.Logger.Error("[CheckKafkaProducer] failed to create kafka producer", zap.String("error", err.Error()))
		return err
	}

	return kafkaProducer.Close()
}
