// Package objectstore wraps S3 presigned-PUT generation: the backend side
// of the callback protocol's upload step. The backend hands the worker a
// presigned URL; the worker PUTs its payload bytes directly, never touching
// AWS credentials itself.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultPresignExpiry bounds how long a presigned PUT URL remains valid.
const DefaultPresignExpiry = 15 * time.Minute

// StoreConfig configures an S3-compatible object store.
type StoreConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PresignExpiry   time.Duration
}

// DefaultStoreConfig returns the default configuration.
func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{Region: "us-east-1", PresignExpiry: DefaultPresignExpiry}
}

// Store generates presigned PUT URLs for one S3-compatible bucket, used by
// the task queue backend to satisfy a worker's "request upload URL" step.
type Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
	expiry  time.Duration
}

// New builds a Store from configuration. A custom Endpoint plus
// UsePathStyle targets MinIO-style S3-compatible stores.
func New(ctx context.Context, cfg *StoreConfig) (*Store, error) {
	if cfg == nil {
		cfg = DefaultStoreConfig()
	}

	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("objectstore: bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	loadOptions := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}

	return &Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		expiry:  expiry,
	}, nil
}

// PresignPut returns a presigned PUT URL scoped to a task's object key,
// valid for the store's configured expiry.
func (s *Store) PresignPut(ctx context.Context, taskID string) (string, error) {
	key := s.objectKey(TaskResultKey(taskID))
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String("application/json"),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", fmt.Errorf("objectstore: presign put %s: %w", key, err)
	}
	return req.URL, nil
}

// Get retrieves an uploaded callback payload by task id, used by the
// backend after it receives the S3-notify callback.
func (s *Store) Get(ctx context.Context, taskID string) ([]byte, error) {
	key := s.objectKey(TaskResultKey(taskID))
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: get %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("objectstore: read %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// TaskResultKey is the object key convention used for a task's uploaded
// callback payload.
func TaskResultKey(taskID string) string {
	return fmt.Sprintf("tasks/%s/callback.json", taskID)
}
