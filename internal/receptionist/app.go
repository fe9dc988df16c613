// Package receptionist wires the call pipeline together: telephony events in,
// one call session per caller, persistence and events out.
package receptionist

import (
	"context"
	"net/http"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/calllog"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/consultation"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/deadletter"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/directory"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/events"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/healthchecker"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/intent"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/kafka"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/message"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/minio"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/notify"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/redis"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/session"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/telephony"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/webhook"
	"github.com/panjf2000/ants/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Receptionist struct {
	DBConn               *gorm.DB
	RedisClient          *goredis.Client
	MinioClient          *minio.MinioClient
	KafkaConsumer        *kafka.Consumer
	NotifierConsumer     *kafka.Consumer
	KafkaProducer        *kafka.Producer
	WorkerPool           *ants.Pool
	Telephony            *telephony.Client
	Registry             *consultation.Registry
	Dispatcher           *Dispatcher
	Notifier             *notify.Notifier
	DeadLetterService    *deadletter.DeadLetterService
	DeadLetterWorker     *deadletter.DeadLetterWorker
	WebhookServer        *http.Server
	HealthCheckerService *healthchecker.Healthchecker
}

func NewApp(ctx context.Context, ctxCancelFunc context.CancelFunc) (*Receptionist, error) {
	logging.Logger.Info("[NewApp] Initializing receptionist application...")

	healthcheckerService := healthchecker.NewService(ctxCancelFunc)

	dbConn, err := database.NewDatabase()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to initialize database", zap.String("error", err.Error()))
		return nil, err
	}

	redisClient, err := redis.NewRedisClient(ctx, redis.OptionsFromConfig())
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to initialize redis", zap.String("error", err.Error()))
		return nil, err
	}

	minioClient, err := minio.NewMinioClient(minio.OptionsFromConfig())
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to initialize Minio client", zap.String("error", err.Error()))
		return nil, err
	}

	kafkaConsumer, err := kafka.NewTelephonyConsumer()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create Kafka consumer", zap.String("error", err.Error()))
		return nil, err
	}

	notifierConsumer, err := kafka.NewNotifierConsumer()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create notifier Kafka consumer", zap.String("error", err.Error()))
		return nil, err
	}

	kafkaProducer, err := kafka.NewProducer()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create Kafka producer", zap.String("error", err.Error()))
		return nil, err
	}

	logging.Logger.Info("[NewApp] Creating session pool", zap.Int("pool_size", config.Conf.PoolSize))

	workerPool, err := ants.NewPool(config.Conf.PoolSize, ants.WithPreAlloc(true), ants.WithNonblocking(true))
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create worker pool", zap.String("error", err.Error()))
		return nil, err
	}

	telephonyClient := telephony.NewClient(telephony.OptionsFromConfig())
	registry := consultation.NewRegistry()
	publisher := events.NewPublisherFromConfig(kafkaProducer)

	callLogRepository := calllog.NewRepository(dbConn)
	messageRepository := message.NewRepository(dbConn)

	deadletterService := deadletter.NewService(
		deadletter.NewRepository(dbConn),
		callLogRepository,
		messageRepository,
		publisher,
	)

	deadletterWorker, err := deadletter.NewWorker(deadletterService, deadletter.WorkerOptionsFromConfig())
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create dead letter worker", zap.String("error", err.Error()))
		return nil, err
	}

	companyHours, err := directory.CompanyHoursFromConfig()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to parse company hours", zap.String("error", err.Error()))
		return nil, err
	}

	employeeRepository := directory.NewEmployeeRepository(dbConn)

	channels := []notify.Channel{notify.NewSMSChannel(telephonyClient)}
	if emailChannel := notify.NewEmailChannelFromConfig(); emailChannel != nil {
		channels = append(channels, emailChannel)
	}

	notifier := notify.NewNotifierFromConfig(employeeRepository, messageRepository, channels...)

	directoryService := directory.NewService(
		employeeRepository,
		directory.NewRedisCache(redisClient, time.Duration(config.Conf.DirectoryCacheTTL)*time.Second),
		time.Duration(config.Conf.DirectoryTimeoutMillis)*time.Millisecond,
		config.Conf.DirectorySearchLimit,
	)

	controller := consultation.NewController(telephonyClient, telephonyClient, registry, consultation.Options{
		Timeout:                 time.Duration(config.Conf.ConsultationTimeout) * time.Second,
		CleanupTimeout:          time.Duration(config.Conf.CleanupTimeout) * time.Second,
		ListenForSpokenDecision: config.Conf.ConsultationListen,
	})

	orchestrator := session.NewOrchestrator(session.Dependencies{
		Rooms:      telephonyClient,
		Speech:     telephonyClient,
		Intents:    intent.NewParser(),
		Directory:  directoryService,
		Consultant: controller,
		CallLogs:   callLogRepository,
		Messages:   messageRepository,
		Reconciler: deadletterService,
		Events:     publisher,
		Archive:    minioClient,
		Hours:      companyHours,
	}, session.Options{
		CompanyName:        config.Conf.CompanyName,
		Greeting:           config.Conf.CompanyGreeting,
		IntentAttempts:     config.Conf.IntentAttempts,
		ListenTimeout:      time.Duration(config.Conf.ListenTimeout) * time.Second,
		CleanupTimeout:     time.Duration(config.Conf.CleanupTimeout) * time.Second,
		MergeRetryAttempts: config.Conf.MergeRetryAttempts,
		MergeRetryBackoff:  time.Duration(config.Conf.MergeRetryBackoffMillis) * time.Millisecond,
	})

	claims := redis.NewCallClaims(redisClient, time.Duration(config.Conf.CallClaimTTL)*time.Minute)

	router := webhook.NewRouter(registry, messageRepository, map[string]webhook.Probe{
		"database": func(ctx context.Context) error {
			sqlDB, err := dbConn.DB()
			if err != nil {
				return err
			}

			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
		"minio":     minioClient.Ping,
		"telephony": telephonyClient.Ping,
	})

	logging.Logger.Info("[NewApp] Initializing circuit breakers...")
	circuitbreak.Init()

	return &Receptionist{
		DBConn:               dbConn,
		RedisClient:          redisClient,
		MinioClient:          minioClient,
		KafkaConsumer:        kafkaConsumer,
		NotifierConsumer:     notifierConsumer,
		KafkaProducer:        kafkaProducer,
		WorkerPool:           workerPool,
		Telephony:            telephonyClient,
		Registry:             registry,
		Dispatcher:           NewDispatcher(orchestrator, workerPool, claims),
		Notifier:             notifier,
		DeadLetterService:    deadletterService,
		DeadLetterWorker:     deadletterWorker,
		WebhookServer:        webhook.NewServer(config.Conf.WebhookPort, time.Duration(config.Conf.WebhookTimeout)*time.Second, router),
		HealthCheckerService: healthcheckerService,
	}, nil
}

// Run blocks until ctx is canceled, then drains in-flight calls before
// releasing shared resources.
func (app *Receptionist) Run(ctx context.Context) error {
	logging.Logger.Info("[Run] Starting app goroutines...")

	go app.HealthCheckerService.Monitor(ctx)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		app.DeadLetterWorker.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		return webhook.Run(groupCtx, app.WebhookServer)
	})

	group.Go(func() error {
		logging.Logger.Info("[Run] Starting telephony Kafka consumer",
			zap.String("topic", config.Conf.KafkaTelephonyTopic),
			zap.Int("worker_pool_size", config.Conf.PoolSize),
		)

		return app.KafkaConsumer.Consume(groupCtx, config.Conf.KafkaTelephonyTopic, app.Dispatcher.MessageHandler)
	})

	group.Go(func() error {
		logging.Logger.Info("[Run] Starting notifier Kafka consumer",
			zap.String("topic", config.Conf.KafkaMessageTopic),
		)

		return app.NotifierConsumer.Consume(groupCtx, config.Conf.KafkaMessageTopic, app.Notifier.MessageHandler)
	})

	err := group.Wait()
	if err != nil {
		logging.Logger.Error("[Run] app stopped with error", zap.String("error", err.Error()))
	}

	app.shutdown()

	return err
}

func (app *Receptionist) shutdown() {
	logging.Logger.Info("[shutdown] Closing Kafka consumer...")

	err := app.KafkaConsumer.Close()
	if err != nil {
		logging.Logger.Error("[shutdown] Failed to close consumer", zap.String("error", err.Error()))
	}

	err = app.NotifierConsumer.Close()
	if err != nil {
		logging.Logger.Error("[shutdown] Failed to close notifier consumer", zap.String("error", err.Error()))
	}

	logging.Logger.Info("[shutdown] Waiting for active calls", zap.Int("active_calls", app.Dispatcher.Active()))
	app.Dispatcher.Wait()

	app.WorkerPool.Release()

	err = app.KafkaProducer.Close()
	if err != nil {
		logging.Logger.Error("[shutdown] Failed to close producer", zap.String("error", err.Error()))
	}

	err = app.RedisClient.Close()
	if err != nil {
		logging.Logger.Error("[shutdown] Failed to close redis", zap.String("error", err.Error()))
	}

	sqlDB, err := app.DBConn.DB()
	if err == nil {
		err = sqlDB.Close()
	}

	if err != nil {
		logging.Logger.Error("[shutdown] Failed to close database", zap.String("error", err.Error()))
	}

	logging.Logger.Info("[shutdown] ===== App shutdown complete =====")
}
