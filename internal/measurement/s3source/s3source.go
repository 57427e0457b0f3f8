package s3source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/tiger/reconfig-hazard-analyzer/internal/measurement"
	"github.com/tiger/reconfig-hazard-analyzer/internal/measurement/fetchpool"
)

const SourceID = "results-amazon-s3"

type objectClient interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Config struct {
	Bucket string
	Prefix string
	Region string
	// Concurrency bounds parallel object fetches. Zero or negative uses 4.
	Concurrency int
	Timeout     time.Duration
}

func ConfigFromEnv() Config {
	cfg := Config{
		Bucket:      strings.TrimSpace(os.Getenv("RHA_RESULTS_S3_BUCKET")),
		Prefix:      strings.TrimSpace(os.Getenv("RHA_RESULTS_S3_PREFIX")),
		Region:      defaultString(os.Getenv("RHA_RESULTS_S3_REGION"), defaultString(os.Getenv("AWS_REGION"), "us-east-1")),
		Concurrency: 4,
		Timeout:     60 * time.Second,
	}
	if raw := strings.TrimSpace(os.Getenv("RHA_RESULTS_S3_CONCURRENCY")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 1 {
			cfg.Concurrency = parsed
		}
	}
	return cfg
}

// ErrorClass groups S3 failures by recovery strategy.
type ErrorClass string

const (
	ErrorNotFound  ErrorClass = "not_found"
	ErrorThrottled ErrorClass = "throttled"
	ErrorTransport ErrorClass = "transport"
)

// SourceError is one classified S3 operation failure.
type SourceError struct {
	Class ErrorClass
	Op    string
	Key   string
	Err   error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("s3 %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Retryable reports whether the operation may succeed on retry.
func (e *SourceError) Retryable() bool { return e.Class == ErrorThrottled }

// IsNotFound reports whether err is a missing-bucket/key failure.
func IsNotFound(err error) bool {
	var srcErr *SourceError
	return errors.As(err, &srcErr) && srcErr.Class == ErrorNotFound
}

// Source downloads measurement sets from an S3 results bucket.
type Source struct {
	mu     sync.Mutex
	client objectClient
	cfg    Config
}

func NewSource(cfg Config) (*Source, error) {
	return NewSourceWithClient(cfg, nil)
}

func NewSourceWithClient(cfg Config, client objectClient) (*Source, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 results bucket is required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Source{client: client, cfg: cfg}, nil
}

func NewSourceFromEnv() (*Source, error) {
	return NewSource(ConfigFromEnv())
}

// Download fetches one measurement set's *.json objects into destDir,
// bounded by cfg.Concurrency parallel fetches, and returns the local paths
// sorted by name. Zero matching objects fail with a not-found error
// wrapping measurement.ErrNoMeasurementsFound.
func (s *Source) Download(ctx context.Context, measurementName, destDir string) ([]string, error) {
	client, err := s.resolveClient()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}

	keyPrefix := path.Join(s.cfg.Prefix, measurementName) + "/"
	var keys []string
	var token *string
	for {
		listing, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.cfg.Bucket,
			Prefix:            &keyPrefix,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, normalizeError("list", keyPrefix, err)
		}
		for _, object := range listing.Contents {
			if object.Key == nil || !strings.HasSuffix(*object.Key, ".json") {
				continue
			}
			keys = append(keys, *object.Key)
		}
		if listing.IsTruncated == nil || !*listing.IsTruncated {
			break
		}
		token = listing.NextContinuationToken
	}

	if len(keys) == 0 {
		return nil, &SourceError{
			Class: ErrorNotFound,
			Op:    "list",
			Key:   keyPrefix,
			Err:   fmt.Errorf("%w: no result documents under s3://%s/%s", measurement.ErrNoMeasurementsFound, s.cfg.Bucket, keyPrefix),
		}
	}

	pool := fetchpool.New(s.cfg.Concurrency, len(keys))
	for _, key := range keys {
		key := key
		task := fetchpool.Task{Key: key, Run: func() error {
			_, err := s.fetchObject(ctx, client, key, destDir)
			return err
		}}
		if err := pool.Submit(task); err != nil {
			return nil, fmt.Errorf("queue %s: %w", key, err)
		}
	}
	if err := pool.Drain(ctx); err != nil {
		return nil, fmt.Errorf("drain downloads: %w", err)
	}
	if failures := pool.Failures(); len(failures) > 0 {
		return nil, failures[0].Err
	}

	files := make([]string, 0, len(keys))
	for _, key := range keys {
		files = append(files, filepath.Join(destDir, path.Base(key)))
	}
	sort.Strings(files)
	return files, nil
}

func (s *Source) fetchObject(ctx context.Context, client objectClient, key, destDir string) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	object, err := client.GetObject(fetchCtx, &s3.GetObjectInput{
		Bucket: &s.cfg.Bucket,
		Key:    &key,
	})
	if err != nil {
		return "", normalizeError("get", key, err)
	}
	defer object.Body.Close()

	local := filepath.Join(destDir, path.Base(key))
	f, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", local, err)
	}
	if _, err := io.Copy(f, object.Body); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", local, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", local, err)
	}
	return local, nil
}

func normalizeError(op, key string, err error) error {
	class := ErrorTransport

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "NoSuchKey", "NotFound":
			class = ErrorNotFound
		case "SlowDown", "Throttling", "ThrottlingException", "RequestLimitExceeded", "TooManyRequests":
			class = ErrorThrottled
		}
	}

	return &SourceError{Class: class, Op: op, Key: key, Err: err}
}

func defaultString(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func (s *Source) resolveClient() (objectClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(s.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	s.client = s3.NewFromConfig(awsCfg)
	return s.client, nil
}
