// Package minio archives call transcripts in object storage.
package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/logging"
	"github.com/avast/retry-go"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	transcriptContentType = "application/json"
	defaultRegion         = "us-east-1"
)

var (
	ErrConvertToStringUrl = errors.New("failed to convert result url to string")
	ErrBucketMissing      = errors.New("transcript bucket does not exist")
)

type Options struct {
	EndpointURL           string
	AccessKey             string
	SecretKey             string
	Secure                bool
	BucketName            string
	PathPrefix            string
	Timeout               time.Duration
	MaxRetryAttempts      uint
	RetryBackoffMin       time.Duration
	RetryBackoffMax       time.Duration
	IntervalCB            time.Duration
	ConsecutiveFailuresCB uint32
}

func OptionsFromConfig() Options {
	return Options{
		EndpointURL:           config.Conf.MinioEndpointURL,
		AccessKey:             config.Conf.MinioAccessKey,
		SecretKey:             config.Conf.MinioSecretKey,
		Secure:                config.Conf.MinioSecure,
		BucketName:            config.Conf.MinioBucketName,
		PathPrefix:            config.Conf.MinioPathPrefix,
		Timeout:               time.Duration(config.Conf.MinioTimeout) * time.Second,
		MaxRetryAttempts:      config.Conf.MinioMaxRetryAttempts,
		RetryBackoffMin:       time.Duration(config.Conf.MinioRetryBackoffMinSeconds) * time.Second,
		RetryBackoffMax:       time.Duration(config.Conf.MinioRetryBackoffMaxSeconds) * time.Second,
		IntervalCB:            time.Duration(config.Conf.MinioIntervalCB) * time.Second,
		ConsecutiveFailuresCB: config.Conf.MinioConsecutiveFailuresCB,
	}
}

type MinioClient struct {
	Client         *minio.Client
	CircuitBreaker *gobreaker.CircuitBreaker[any]
	Options        Options
}

func NewMinioClient(opts Options) (*MinioClient, error) {
	client, err := minio.New(opts.EndpointURL, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
		Region: defaultRegion,
	})
	if err != nil {
		logging.Logger.Error("[NewMinioClient] failed to initialize MinIO client",
			zap.String("endpoint", opts.EndpointURL),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	if opts.MaxRetryAttempts < 1 {
		opts.MaxRetryAttempts = 1
	}

	logging.Logger.Info("[NewMinioClient] transcript archive ready",
		zap.String("endpoint", opts.EndpointURL),
		zap.String("bucket", opts.BucketName),
	)

	return &MinioClient{
		Client:         client,
		CircuitBreaker: newCircuitBreaker(opts),
		Options:        opts,
	}, nil
}

func newCircuitBreaker(opts Options) *gobreaker.CircuitBreaker[any] {
	settings := gobreaker.Settings{
		Name:     circuitbreak.MinioService,
		Interval: opts.IntervalCB,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return opts.ConsecutiveFailuresCB > 0 && counts.ConsecutiveFailures >= opts.ConsecutiveFailuresCB
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Warn("[MinioClient] circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)
		},
	}

	return gobreaker.NewCircuitBreaker[any](settings)
}

// Upload stores the buffer under objectKey and returns the object's URL.
// The archive is best effort, so an open breaker never restarts the app.
func (minioClient *MinioClient) Upload(ctx context.Context, buffer *bytes.Buffer, objectKey string) (string, error) {
	url, err := minioClient.CircuitBreaker.Execute(func() (any, error) {
		return minioClient.doUpload(ctx, buffer, objectKey)
	})
	if err != nil {
		return "", err
	}

	urlStr, ok := url.(string)
	if !ok {
		return "", ErrConvertToStringUrl
	}

	return urlStr, nil
}

func (minioClient *MinioClient) doUpload(ctx context.Context, buffer *bytes.Buffer, objectKey string) (string, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, minioClient.Options.Timeout)
	defer cancel()

	err := retry.Do(
		func() error {
			_, err := minioClient.Client.PutObject(
				ctxWithTimeout,
				minioClient.Options.BucketName,
				minioClient.getKey(objectKey),
				bytes.NewReader(buffer.Bytes()),
				int64(buffer.Len()),
				minio.PutObjectOptions{ContentType: transcriptContentType},
			)

			return err
		},
		retry.Attempts(minioClient.Options.MaxRetryAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(minioClient.Options.RetryBackoffMin),
		retry.MaxDelay(minioClient.Options.RetryBackoffMax),
		retry.Context(ctxWithTimeout),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		logging.Logger.Error("[Upload] transcript upload failed after all retry attempts",
			zap.String("object_key", objectKey),
			zap.String("error", err.Error()),
		)

		return "", err
	}

	return minioClient.generateURL(objectKey), nil
}

// Ping reports whether the bucket is reachable; used by the health checker.
func (minioClient *MinioClient) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, minioClient.Options.Timeout)
	defer cancel()

	exists, err := minioClient.Client.BucketExists(ctxWithTimeout, minioClient.Options.BucketName)
	if err != nil {
		return err
	}

	if !exists {
		return fmt.Errorf("%w: %s", ErrBucketMissing, minioClient.Options.BucketName)
	}

	return nil
}

func (minioClient *MinioClient) generateURL(objectKey string) string {
	scheme := "http"
	if minioClient.Options.Secure {
		scheme = "https"
	}

	endpoint := strings.TrimSuffix(minioClient.Options.EndpointURL, "/")

	return fmt.Sprintf("%s://%s/%s/%s", scheme, endpoint, minioClient.Options.BucketName, minioClient.getKey(objectKey))
}

func (minioClient *MinioClient) getKey(objectKey string) string {
	return path.Join(minioClient.Options.PathPrefix, objectKey)
}
