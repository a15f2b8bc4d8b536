// Package storage provides S3 archival of the diagnostic log. The log file
// itself is size-capped and loses its head on every trim; archival keeps
// the discarded history around for postmortems.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/gads-reporter/internal/config"
	"github.com/ignite/gads-reporter/internal/pkg/logger"
)

// LogArchiver uploads diagnostic log snapshots to S3.
type LogArchiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewLogArchiver creates an archiver from the archive config. Returns an
// error if AWS credentials cannot be resolved.
func NewLogArchiver(ctx context.Context, cfg config.ArchiveConfig) (*LogArchiver, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSProfile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &LogArchiver{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.S3Bucket,
		prefix: cfg.S3Prefix,
	}, nil
}

// Archive uploads one log snapshot under a timestamped key.
func (a *LogArchiver) Archive(ctx context.Context, snapshot []byte) error {
	key := fmt.Sprintf("%s/%s.log", a.prefix, time.Now().UTC().Format("2006-01-02T15-04-05Z"))

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(snapshot),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("uploading log snapshot to s3://%s/%s: %w", a.bucket, key, err)
	}
	return nil
}

// ArchiveFunc adapts the archiver to the diaglog hook signature. Uploads
// run with their own timeout and failures are logged, never propagated:
// losing an archive must not block the log write that triggered the trim.
func (a *LogArchiver) ArchiveFunc() func(snapshot []byte) {
	return func(snapshot []byte) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.Archive(ctx, snapshot); err != nil {
			logger.Warn("storage: log archive failed", "error", err)
		}
	}
}
