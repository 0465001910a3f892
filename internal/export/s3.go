package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"hapdb/internal/config"
	"hapdb/internal/parser"
	"hapdb/internal/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

// ObjectPutter is the slice of the S3 API the sink needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads a batch as one gzip JSONL object.
type S3Sink struct {
	cfg     config.S3Config
	client  ObjectPutter
	Encoder *Encoder

	// OnError is called after every failed attempt.
	OnError func(err error)

	now func() time.Time
}

// NewS3Sink loads the default AWS credential chain for cfg.Region.
func NewS3Sink(ctx context.Context, cfg config.S3Config) (*S3Sink, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewS3SinkWithClient(cfg, newS3Client(awsCfg)), nil
}

// newS3Client makes exactly one HTTP attempt per PutObject. Retries and
// backoff are the sink's, so s3.retries bounds the total number of calls.
func newS3Client(awsCfg aws.Config) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.Retryer = aws.NopRetryer{}
	})
}

func NewS3SinkWithClient(cfg config.S3Config, client ObjectPutter) *S3Sink {
	return &S3Sink{cfg: cfg, client: client, Encoder: NewEncoder(), now: time.Now}
}

// ObjectKey names the object for a source file: prefix<base>-<unix>.jsonl.gz
func (s *S3Sink) ObjectKey(source string) string {
	base := filepath.Base(source)
	base = strings.TrimSuffix(base, ".gz")
	return fmt.Sprintf("%s%s-%d.jsonl.gz", s.cfg.Prefix, base, s.now().Unix())
}

func (s *S3Sink) Ingest(ctx context.Context, source string, records []parser.Record) (*storage.IngestRun, error) {
	data, err := s.Encoder.EncodeJSONLGZ(records)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", source, err)
	}

	key := s.ObjectKey(source)
	if err := s.upload(ctx, key, data); err != nil {
		return nil, fmt.Errorf("upload s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}

	location := "s3://" + s.cfg.Bucket + "/" + key
	log.Info().Str("source", source).Str("location", location).Int("records", len(records)).Msg("uploaded records")
	return newRun(source, location, len(records)), nil
}

// upload retries PutObject with capped exponential backoff until ctx is
// done or the configured attempts run out.
func (s *S3Sink) upload(ctx context.Context, key string, body []byte) error {
	var lastErr error
	backoff := initialBackoff

	attempts := s.cfg.Retries
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := s.putObject(ctx, key, bytes.NewReader(body), int64(len(body)))
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn().Err(err).Str("key", key).Int("attempt", attempt).Msg("s3 put failed")
		if s.OnError != nil {
			s.OnError(err)
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}

	return lastErr
}

func (s *S3Sink) putObject(ctx context.Context, key string, body io.Reader, size int64) error {
	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx2, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := s.client.PutObject(ctx2, &s3.PutObjectInput{
		Bucket:          aws.String(s.cfg.Bucket),
		Key:             aws.String(key),
		Body:            body,
		ContentLength:   aws.Int64(size),
		ContentType:     aws.String("application/x-ndjson"),
		ContentEncoding: aws.String("gzip"),
	})
	return err
}
