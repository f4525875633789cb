// Package archive copies error and batch metric records to S3 as JSON lines objects.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"FeedIngestor/internal/clock"
	"FeedIngestor/internal/domain"
	"FeedIngestor/internal/ports"
)

const contentType = "application/x-ndjson"

// putter is the part of the S3 client the archive needs.
type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config selects the bucket and the AWS profile. Empty values fall back to the default chain.
type Config struct {
	Bucket       string
	Prefix       string
	Region       string
	Profile      string
	UsePathStyle bool
}

// S3Archive writes one object per flush under <prefix>/<kind>/YYYY/MM/DD/.
type S3Archive struct {
	client putter
	bucket string
	prefix string
	clock  clock.Clock
}

var _ ports.RecordStore = (*S3Archive)(nil)

// New loads the default AWS configuration with the optional overrides.
func New(ctx context.Context, cfg Config, clk clock.Clock) (*S3Archive, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newS3Archive(client, cfg.Bucket, cfg.Prefix, clk), nil
}

func newS3Archive(client putter, bucket, prefix string, clk clock.Clock) *S3Archive {
	if clk == nil {
		clk = clock.Real{}
	}
	return &S3Archive{client: client, bucket: bucket, prefix: prefix, clock: clk}
}

// WriteErrors implements ports.RecordStore.
func (a *S3Archive) WriteErrors(ctx context.Context, records []domain.ErrorRecord) error {
	if len(records) == 0 {
		return nil
	}
	return put(ctx, a, "errors", records)
}

// WriteMetrics implements ports.RecordStore.
func (a *S3Archive) WriteMetrics(ctx context.Context, metrics []domain.BatchMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	return put(ctx, a, "metrics", metrics)
}

func put[T any](ctx context.Context, a *S3Archive, kind string, records []T) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode %s record: %w", kind, err)
		}
	}

	now := a.clock.Now().UTC()
	key := path.Join(a.prefix, kind, now.Format("2006/01/02"),
		fmt.Sprintf("%d-%s.jsonl", now.UnixNano(), uuid.NewString()))

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", a.bucket, key, err)
	}
	return nil
}
