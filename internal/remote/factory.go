package remote

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"favsync/internal/config"
	"favsync/internal/database"
	"favsync/internal/fav"
)

// NewStoreFromConfig creates the RemoteStore named by cfg.Type, wrapped in a
// retrying decorator when cfg.RetryAttempts > 1. The returned close function
// releases the store's resources.
func NewStoreFromConfig(ctx context.Context, cfg config.RemoteConfig, logger fav.Logger) (fav.RemoteStore, func() error, error) {
	var (
		store   fav.RemoteStore
		closeFn = func() error { return nil }
	)

	switch cfg.Type {
	case "memory":
		store = NewMemoryStore(nil)
	case "sqlite":
		db, err := database.NewStoreFromConfig(cfg, nil)
		if err != nil {
			return nil, nil, err
		}
		store, closeFn = db, db.Close
	case "s3":
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		store = NewS3Store(client, cfg.S3Bucket, cfg.S3Prefix, nil)
	default:
		return nil, nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}

	if cfg.RetryAttempts > 1 {
		interval, err := cfg.RetryInterval()
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("remote retry interval: %w", err)
		}
		store = NewRetrying(store, cfg.RetryAttempts, interval, logger)
	}
	return store, closeFn, nil
}

// newS3Client loads AWS configuration from the environment. Static
// credentials from FAVS_S3_ACCESS_KEY_ID and FAVS_S3_SECRET_ACCESS_KEY take
// precedence, which is convenient for S3-compatible services.
func newS3Client(ctx context.Context, cfg config.RemoteConfig) (*s3.Client, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 remote requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if key, secret := cfg.S3AccessKeyID, cfg.S3SecretAccessKey; key != "" && secret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, secret, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
