// Package s3 implements the object store client over the S3 API.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/osmdbt-courier/internal/domain/replication"
	"github.com/ahrav/osmdbt-courier/pkg/common/logger"
)

// metrics defines the metric operations recorded by the store.
type metrics interface {
	// IncObjectOp counts object operations by kind ("get" or "put").
	IncObjectOp(ctx context.Context, kind string)

	// IncS3Error counts object store failures by operation kind.
	IncS3Error(ctx context.Context, kind string)
}

// contentTypes maps trailing file extensions to the content type set on
// uploads. Unknown extensions omit the header.
var contentTypes = map[string]string{
	".txt":  "text/plain",
	".gz":   "application/gzip",
	".xml":  "application/xml",
	".json": "application/json",
}

// Config holds the connection settings for the store.
type Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	ACL       string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Store reads and writes objects in a single bucket.
type Store struct {
	client *minio.Client
	bucket string
	region string
	acl    string

	logger  *logger.Logger
	metrics metrics
	tracer  trace.Tracer
}

// NewStore creates an object store client for the configured bucket.
func NewStore(cfg Config, log *logger.Logger, metrics metrics, tracer trace.Tracer) (*Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("object store endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("object store access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	acl := cfg.ACL
	if acl == "" {
		acl = "public-read"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    region,
		Transport: &aclTransport{acl: acl, next: http.DefaultTransport},
	})
	if err != nil {
		return nil, fmt.Errorf("creating object store client: %w", err)
	}

	return &Store{
		client:  client,
		bucket:  bucket,
		region:  region,
		acl:     acl,
		logger:  log,
		metrics: metrics,
		tracer:  tracer,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return replication.NewError(replication.KindS3, fmt.Errorf("checking bucket %s: %w", s.bucket, err))
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return replication.NewError(replication.KindS3, fmt.Errorf("creating bucket %s: %w", s.bucket, err))
	}
	return nil
}

// GetObject returns a reader over the object content. Draining the reader is
// the caller's responsibility.
func (s *Store) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, span := s.tracer.Start(ctx, "object_store.get",
		trace.WithAttributes(attribute.String("object.key", key)))
	defer span.End()

	s.metrics.IncObjectOp(ctx, "get")

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		span.RecordError(err)
		s.metrics.IncS3Error(ctx, "get")
		return nil, replication.NewError(replication.KindS3, fmt.Errorf("get %s: %w", key, err))
	}

	// minio defers most failures until the first read; probe so callers get
	// a tagged error instead of a raw stream failure.
	if _, err := obj.Stat(); err != nil {
		span.RecordError(err)
		s.metrics.IncS3Error(ctx, "get")
		obj.Close()
		return nil, replication.NewError(replication.KindS3, fmt.Errorf("get %s: %w", key, err))
	}

	return obj, nil
}

// GetObjectText reads the object and returns its content as a string.
func (s *Store) GetObjectText(ctx context.Context, key string) (string, error) {
	obj, err := s.GetObject(ctx, key)
	if err != nil {
		return "", err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		s.metrics.IncS3Error(ctx, "get")
		return "", replication.NewError(replication.KindS3, fmt.Errorf("reading %s: %w", key, err))
	}
	return string(data), nil
}

// PutObject uploads data under the key with the configured canned ACL. The
// content type is inferred from the key's trailing extension; unknown
// extensions upload without one.
func (s *Store) PutObject(ctx context.Context, key string, data []byte) error {
	ctx, span := s.tracer.Start(ctx, "object_store.put",
		trace.WithAttributes(
			attribute.String("object.key", key),
			attribute.Int("object.size", len(data)),
		))
	defer span.End()

	s.metrics.IncObjectOp(ctx, "put")

	opts := minio.PutObjectOptions{
		ContentType: contentTypes[path.Ext(key)],
	}

	if _, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		span.RecordError(err)
		s.metrics.IncS3Error(ctx, "put")
		return replication.NewError(replication.KindS3, fmt.Errorf("put %s: %w", key, err))
	}

	s.logger.Debug(ctx, "uploaded object", "key", key, "size", len(data))
	return nil
}

// aclTransport injects the canned ACL header on object uploads. The client
// library exposes no ACL option on puts, so the header is set at the
// transport layer where every outgoing PUT passes through.
type aclTransport struct {
	acl  string
	next http.RoundTripper
}

func (t *aclTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodPut {
		req.Header.Set("x-amz-acl", t.acl)
	}
	return t.next.RoundTrip(req)
}
