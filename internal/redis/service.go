package redis

import (
	"context"
	"fmt"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/logging"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 2 * time.Second
	poolSize       = 20
	claimKeyPrefix = "receptionist:call:"
)

type Options struct {
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
}

func OptionsFromConfig() Options {
	return Options{
		Addr:     config.Conf.RedisAddr,
		Password: config.Conf.RedisPassword,
		DB:       config.Conf.RedisDB,
		Timeout:  time.Duration(config.Conf.RedisTimeout) * time.Second,
	}
}

// NewRedisClient connects and validates the connection with PING.
func NewRedisClient(ctx context.Context, opts Options) (*goredis.Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.Timeout,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
		PoolSize:     poolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	err := client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		logging.Logger.Error("[NewRedisClient] failed to ping redis",
			zap.String("addr", opts.Addr),
			zap.String("error", err.Error()),
		)

		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logging.Logger.Info("[NewRedisClient] connected to redis", zap.String("addr", opts.Addr))

	return client, nil
}

// CallClaims makes sure a caller room is handled by one session across all
// replicas, even when the join event is delivered twice.
type CallClaims struct {
	Client *goredis.Client
	TTL    time.Duration
}

func NewCallClaims(client *goredis.Client, ttl time.Duration) *CallClaims {
	return &CallClaims{Client: client, TTL: ttl}
}

func (callClaims *CallClaims) Claim(ctx context.Context, room, sessionID string) (bool, error) {
	return callClaims.Client.SetNX(ctx, claimKeyPrefix+room, sessionID, callClaims.TTL).Result()
}

// releaseScript deletes the claim only while it still names the session, so a
// session whose claim expired cannot drop a newer session's claim.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (callClaims *CallClaims) Release(ctx context.Context, room, sessionID string) error {
	return releaseScript.Run(ctx, callClaims.Client, []string{claimKeyPrefix + room}, sessionID).Err()
}
