package measurement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/l4slab/slicecall/pkg/logger"
	"github.com/l4slab/slicecall/pkg/telemetry/prometheus"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3SinkParams struct {
	Region      string
	SessionName string
	Logger      logger.Logger
}

// S3Sink archives every batch and the call summary as JSON objects under
// <prefix>/<session name>/call-<first sample ms>/. The call segment is stamped
// by the first batch and cleared by the summary.
type S3Sink struct {
	params S3SinkParams

	lock   sync.Mutex
	awsCfg aws.Config
	client objectPutter
	bucket string
	prefix string
	call   string
	seq    int
	closed bool
}

func NewS3Sink(params S3SinkParams) *S3Sink {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	return &S3Sink{params: params}
}

func (s *S3Sink) connect(ctx context.Context) error {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.params.Region))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	s.lock.Lock()
	s.awsCfg = cfg
	s.client = s3.NewFromConfig(cfg)
	s.lock.Unlock()
	return nil
}

func (s *S3Sink) Name() string {
	return "s3"
}

// Configure takes an s3://bucket/prefix URI. Non-empty credentials are used as
// a static access key pair instead of the default credential chain.
func (s *S3Sink) Configure(uri string, creds Credentials) error {
	bucket, prefix, err := ParseS3URI(uri)
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.bucket = bucket
	s.prefix = prefix
	if creds.Username != "" && s.client != nil {
		cfg := s.awsCfg.Copy()
		cfg.Credentials = credentials.NewStaticCredentialsProvider(creds.Username, creds.Password, "")
		s.client = s3.NewFromConfig(cfg)
	}
	return nil
}

func (s *S3Sink) Emit(ctx context.Context, batch []Item) error {
	if len(batch) == 0 {
		return nil
	}
	s.lock.Lock()
	if s.call == "" {
		s.call = fmt.Sprintf("call-%d", batch[0].TimestampMs)
	}
	s.seq++
	key := s.objectKey(fmt.Sprintf("%d-%06d.json", batch[0].TimestampMs, s.seq))
	s.lock.Unlock()

	err := s.put(ctx, key, batch)
	prometheus.RecordSinkFlush(s.Name(), len(batch), err)
	return err
}

func (s *S3Sink) EmitSummary(ctx context.Context, summary Summary) error {
	s.lock.Lock()
	now := time.Now().UnixMilli()
	if s.call == "" {
		s.call = fmt.Sprintf("call-%d", now)
	}
	key := s.objectKey(fmt.Sprintf("summary-%d.json", now))
	s.call = ""
	s.seq = 0
	s.lock.Unlock()

	return s.put(ctx, key, summary)
}

func (s *S3Sink) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closed = true
	return nil
}

func (s *S3Sink) put(ctx context.Context, key string, v interface{}) error {
	s.lock.Lock()
	client, bucket, closed := s.client, s.bucket, s.closed
	s.lock.Unlock()
	if closed {
		return ErrSinkClosed
	}
	if client == nil {
		return fmt.Errorf("%w: not connected", ErrInvalidS3URI)
	}

	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		s.params.Logger.Warnw("failed to upload measurements to S3", err, "key", key)
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	s.params.Logger.Debugw("uploaded measurements", "location", fmt.Sprintf("s3://%s/%s", bucket, key))
	return nil
}

// must hold lock
func (s *S3Sink) objectKey(name string) string {
	parts := make([]string, 0, 4)
	if s.prefix != "" {
		parts = append(parts, strings.TrimSuffix(s.prefix, "/"))
	}
	if s.params.SessionName != "" {
		parts = append(parts, s.params.SessionName)
	}
	if s.call != "" {
		parts = append(parts, s.call)
	}
	parts = append(parts, name)
	return strings.Join(parts, "/")
}

// ParseS3URI splits s3://bucket/prefix into bucket and prefix.
func ParseS3URI(uri string) (string, string, error) {
	if !strings.HasPrefix(uri, "s3://") {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidS3URI, uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "s3://"), "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidS3URI, uri)
	}
	var prefix string
	if len(parts) > 1 {
		prefix = parts[1]
	}
	return parts[0], prefix, nil
}
