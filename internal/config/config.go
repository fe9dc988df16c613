package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	CompanyName     string `mapstructure:"company_name"`
	CompanyGreeting string `mapstructure:"company_greeting"`
	CompanyHours    string `mapstructure:"company_hours"`
	CompanyTimeZone string `mapstructure:"company_time_zone"`

	ConsultationTimeout     int  `mapstructure:"consultation_timeout"       validate:"min=1"`
	ConsultationListen      bool `mapstructure:"consultation_listen"`
	CleanupTimeout          int  `mapstructure:"cleanup_timeout"            validate:"min=1"`
	ListenTimeout           int  `mapstructure:"listen_timeout"             validate:"min=1"`
	IntentAttempts          int  `mapstructure:"intent_attempts"            validate:"min=1"`
	MergeRetryAttempts      uint `mapstructure:"merge_retry_attempts"       validate:"min=1"`
	MergeRetryBackoffMillis int  `mapstructure:"merge_retry_backoff_millis"`

	DirectoryTimeoutMillis int `mapstructure:"directory_timeout_ms"   validate:"min=1"`
	DirectorySearchLimit   int `mapstructure:"directory_search_limit" validate:"min=1"`
	DirectoryCacheTTL      int `mapstructure:"directory_cache_ttl"`

	IntentProvider              string `mapstructure:"intent_provider"                validate:"required,oneof=openai keyword"`
	OpenAIBaseURL               string `mapstructure:"openai_base_url"`
	OpenAIAPIKey                string `mapstructure:"openai_api_key"`
	OpenAIModel                 string `mapstructure:"openai_model"                   validate:"required"`
	OpenAITimeout               int    `mapstructure:"openai_timeout"`
	OpenAIIntervalCB            uint32 `mapstructure:"openai_interval_cb"`
	OpenAIConsecutiveFailuresCB uint32 `mapstructure:"openai_consecutive_failures_cb"`

	PostgresHost            string `mapstructure:"postgres_host"              validate:"required"`
	PostgresUsername        string `mapstructure:"postgres_username"          validate:"required"`
	PostgresPassword        string `mapstructure:"postgres_password"`
	PostgresPort            string `mapstructure:"postgres_port"              validate:"required"`
	PostgresDatabase        string `mapstructure:"postgres_database"          validate:"required"`
	DBIntervalCB            uint32 `mapstructure:"db_interval_cb"`
	DBConsecutiveFailuresCB uint32 `mapstructure:"db_consecutive_failures_cb"`

	RedisAddr     string `mapstructure:"redis_addr"     validate:"required"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisTimeout  int    `mapstructure:"redis_timeout"`
	CallClaimTTL  int    `mapstructure:"call_claim_ttl"`

	KafkaBootstrapServer       string `mapstructure:"kafka_bootstrap_server"        validate:"required"`
	KafkaUsername              string `mapstructure:"kafka_username"`
	KafkaPassword              string `mapstructure:"kafka_password"`
	KafkaSASLMechanism         string `mapstructure:"kafka_sasl_mechanism"          validate:"oneof=none SCRAM-SHA-256 SCRAM-SHA-512"`
	KafkaTelephonyTopic        string `mapstructure:"kafka_telephony_topic"         validate:"required"`
	KafkaTelephonyGroupID      string `mapstructure:"kafka_telephony_group_id"      validate:"required"`
	KafkaSessionTopic          string `mapstructure:"kafka_session_topic"           validate:"required"`
	KafkaMessageTopic          string `mapstructure:"kafka_message_topic"           validate:"required"`
	KafkaReconcileTopic        string `mapstructure:"kafka_reconcile_topic"         validate:"required"`
	KafkaNotifyGroupID         string `mapstructure:"kafka_notify_group_id"         validate:"required"`
	KafkaIntervalCB            uint32 `mapstructure:"kafka_interval_cb"`
	KafkaConsecutiveFailuresCB uint32 `mapstructure:"kafka_consecutive_failures_cb"`

	LogLevel    string `mapstructure:"log_level"`
	LogFilePath string `mapstructure:"log_file_path"`

	MinioEndpointURL            string `mapstructure:"minio_endpoint_url"              validate:"required"`
	MinioAccessKey              string `mapstructure:"minio_access_key"`
	MinioSecretKey              string `mapstructure:"minio_secret_key"`
	MinioSecure                 bool   `mapstructure:"minio_secure"`
	MinioBucketName             string `mapstructure:"minio_bucket_name"               validate:"required"`
	MinioPathPrefix             string `mapstructure:"minio_path_prefix"`
	MinioMaxRetryAttempts       uint   `mapstructure:"minio_max_retry_attempts"`
	MinioRetryBackoffMinSeconds int    `mapstructure:"minio_retry_backoff_min_seconds"`
	MinioRetryBackoffMaxSeconds int    `mapstructure:"minio_retry_backoff_max_seconds"`
	MinioTimeout                int    `mapstructure:"minio_timeout"`
	MinioIntervalCB             uint32 `mapstructure:"minio_interval_cb"`
	MinioConsecutiveFailuresCB  uint32 `mapstructure:"minio_consecutive_failures_cb"`

	PoolSize           int `mapstructure:"pool_size"             validate:"min=1"`
	DeadLetterPoolSize int `mapstructure:"dead_letter_pool_size" validate:"min=1"`

	TelephonyBaseURL               string `mapstructure:"telephony_base_url"                validate:"required"`
	TelephonyAPIKey                string `mapstructure:"telephony_api_key"`
	TelephonyTimeout               int    `mapstructure:"telephony_timeout"`
	TelephonyRetryMaxAttempts      uint   `mapstructure:"telephony_retry_max_attempts"`
	TelephonyRetryBackoffMinMillis int    `mapstructure:"telephony_retry_backoff_min_millis"`
	TelephonyRetryBackoffMaxMillis int    `mapstructure:"telephony_retry_backoff_max_millis"`
	TelephonyIntervalCB            uint32 `mapstructure:"telephony_interval_cb"`
	TelephonyConsecutiveFailuresCB uint32 `mapstructure:"telephony_consecutive_failures_cb"`

	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     string `mapstructure:"smtp_port"`
	SMTPUsername string `mapstructure:"smtp_username"`
	SMTPPassword string `mapstructure:"smtp_password"`
	SMTPFrom     string `mapstructure:"smtp_from"`

	NotifyInboxEmail string `mapstructure:"notify_inbox_email"`
	NotifyTimeout    int    `mapstructure:"notify_timeout"`

	WebhookPort    string `mapstructure:"webhook_port"    validate:"required"`
	WebhookTimeout int    `mapstructure:"webhook_timeout"`

	DeadLetterMaxRetries int `mapstructure:"deadletter_max_retries"`
	DeadLetterLimit      int `mapstructure:"deadletter_limit"`
	DeadLetterInterval   int `mapstructure:"deadletter_interval"`
	DeadLetterRetryDelay int `mapstructure:"deadletter_retry_delay"`

	HealthCheckerMonitorInterval int `mapstructure:"health_checker_monitor_interval"`

	PrometheusPort    string `mapstructure:"prometheus_port"`
	PrometheusTimeout int    `mapstructure:"prometheus_timeout"`
}

var Conf Config

func init() {
	err := loadEnvConfig(&Conf)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.String("error", err.Error()))
	}
}

func loadEnvConfig(cfg *Config) error {
	viper.AutomaticEnv()
	viper.AllowEmptyEnv(true)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setupDefaults()

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	err := viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError

		ok := errors.As(err, &configFileNotFoundError)
		if !ok {
			return err
		}
	}

	err = viper.Unmarshal(cfg)
	if err != nil {
		return err
	}

	return Validate(cfg)
}

// Validate checks the struct tags of cfg.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

func setupDefaults() {
	confType := reflect.TypeOf(Conf)
	for i := range confType.NumField() {
		field := confType.Field(i)
		viper.SetDefault(field.Tag.Get("mapstructure"), "")
	}

	viper.SetDefault("COMPANY_NAME", "our company")
	viper.SetDefault("COMPANY_GREETING", "Thank you for calling. How may I direct your call?")
	viper.SetDefault("COMPANY_TIME_ZONE", "UTC")
	viper.SetDefault("CONSULTATION_TIMEOUT", "60")
	viper.SetDefault("CONSULTATION_LISTEN", "true")
	viper.SetDefault("CLEANUP_TIMEOUT", "10")
	viper.SetDefault("LISTEN_TIMEOUT", "20")
	viper.SetDefault("INTENT_ATTEMPTS", "2")
	viper.SetDefault("MERGE_RETRY_ATTEMPTS", "3")
	viper.SetDefault("MERGE_RETRY_BACKOFF_MILLIS", "200")
	viper.SetDefault("DIRECTORY_TIMEOUT_MS", "800")
	viper.SetDefault("DIRECTORY_SEARCH_LIMIT", "5")
	viper.SetDefault("DIRECTORY_CACHE_TTL", "30")
	viper.SetDefault("INTENT_PROVIDER", "keyword")
	viper.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	viper.SetDefault("OPENAI_TIMEOUT", "3")
	viper.SetDefault("OPENAI_INTERVAL_CB", "30")
	viper.SetDefault("OPENAI_CONSECUTIVE_FAILURES_CB", "5")
	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_USERNAME", "postgres")
	viper.SetDefault("POSTGRES_PORT", "5432")
	viper.SetDefault("POSTGRES_DATABASE", "receptionist")
	viper.SetDefault("DB_INTERVAL_CB", "30")
	viper.SetDefault("DB_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", "0")
	viper.SetDefault("REDIS_TIMEOUT", "1")
	viper.SetDefault("CALL_CLAIM_TTL", "60")
	viper.SetDefault("KAFKA_BOOTSTRAP_SERVER", "localhost:9092")
	viper.SetDefault("KAFKA_SASL_MECHANISM", "none")
	viper.SetDefault("KAFKA_TELEPHONY_TOPIC", "telephony.participants")
	viper.SetDefault("KAFKA_TELEPHONY_GROUP_ID", "receptionist")
	viper.SetDefault("KAFKA_SESSION_TOPIC", "receptionist.sessions")
	viper.SetDefault("KAFKA_MESSAGE_TOPIC", "receptionist.messages")
	viper.SetDefault("KAFKA_RECONCILE_TOPIC", "receptionist.reconcile")
	viper.SetDefault("KAFKA_NOTIFY_GROUP_ID", "receptionist-notifier")
	viper.SetDefault("KAFKA_INTERVAL_CB", "30")
	viper.SetDefault("KAFKA_CONSECUTIVE_FAILURES_CB", "5")
	viper.SetDefault("LOG_LEVEL", "INFO")
	viper.SetDefault("LOG_FILE_PATH", "./access.log")
	viper.SetDefault("MINIO_ENDPOINT_URL", "localhost:9000")
	viper.SetDefault("MINIO_BUCKET_NAME", "receptionist")
	viper.SetDefault("MINIO_PATH_PREFIX", "transcripts")
	viper.SetDefault("MINIO_MAX_RETRY_ATTEMPTS", "3")
	viper.SetDefault("MINIO_RETRY_BACKOFF_MIN_SECONDS", "1")
	viper.SetDefault("MINIO_RETRY_BACKOFF_MAX_SECONDS", "10")
	viper.SetDefault("MINIO_TIMEOUT", "60")
	viper.SetDefault("MINIO_INTERVAL_CB", "300")
	viper.SetDefault("MINIO_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("POOL_SIZE", "50")
	viper.SetDefault("DEAD_LETTER_POOL_SIZE", "3")
	viper.SetDefault("TELEPHONY_BASE_URL", "http://localhost:7880")
	viper.SetDefault("TELEPHONY_TIMEOUT", "10")
	viper.SetDefault("TELEPHONY_RETRY_MAX_ATTEMPTS", "3")
	viper.SetDefault("TELEPHONY_RETRY_BACKOFF_MIN_MILLIS", "100")
	viper.SetDefault("TELEPHONY_RETRY_BACKOFF_MAX_MILLIS", "1000")
	viper.SetDefault("TELEPHONY_INTERVAL_CB", "30")
	viper.SetDefault("TELEPHONY_CONSECUTIVE_FAILURES_CB", "5")
	viper.SetDefault("SMTP_PORT", "587")
	viper.SetDefault("NOTIFY_TIMEOUT", "10")
	viper.SetDefault("WEBHOOK_PORT", "8080")
	viper.SetDefault("WEBHOOK_TIMEOUT", "10")
	viper.SetDefault("DEADLETTER_MAX_RETRIES", "10")
	viper.SetDefault("DEADLETTER_LIMIT", "100")
	viper.SetDefault("DEADLETTER_INTERVAL", "1")
	viper.SetDefault("DEADLETTER_RETRY_DELAY", "5")
	viper.SetDefault("HEALTH_CHECKER_MONITOR_INTERVAL", "60")
	viper.SetDefault("PROMETHEUS_PORT", "2112")
	viper.SetDefault("PROMETHEUS_TIMEOUT", "60")
}
