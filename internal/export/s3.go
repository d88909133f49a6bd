package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// ObjectPutter is the subset of the S3 client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Options struct {
	Bucket          string
	Region          string
	Prefix          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// S3Uploader copies committed artifacts to prefix/YYYY/MM/DD/<file>.
type S3Uploader struct {
	client ObjectPutter
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3Uploader builds an uploader from the default AWS credential chain,
// using static credentials when both keys are set.
func NewS3Uploader(ctx context.Context, opts S3Options, logger *zap.Logger) (*S3Uploader, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return NewS3UploaderWithClient(client, opts.Bucket, opts.Prefix, logger), nil
}

func NewS3UploaderWithClient(client ObjectPutter, bucket, prefix string, logger *zap.Logger) *S3Uploader {
	return &S3Uploader{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// Key returns the object key for a local file and run date.
func (u *S3Uploader) Key(localPath string, runDate time.Time) string {
	return path.Join(u.prefix, runDate.Format("2006/01/02"), filepath.Base(localPath))
}

// Upload puts every file and returns the keys written. It stops at the
// first failure.
func (u *S3Uploader) Upload(ctx context.Context, files []string, runDate time.Time) ([]string, error) {
	keys := make([]string, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return keys, fmt.Errorf("reading %s: %w", f, err)
		}

		key := u.Key(f, runDate)
		_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(u.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String(contentType(f)),
		})
		if err != nil {
			return keys, fmt.Errorf("put s3://%s/%s: %w", u.bucket, key, err)
		}

		u.logger.Info("uploaded artifact",
			zap.String("bucket", u.bucket),
			zap.String("key", key),
			zap.Int("bytes", len(data)))
		keys = append(keys, key)
	}
	return keys, nil
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".csv":
		return "text/csv"
	case ".jsonl":
		return "application/x-ndjson"
	case ".parquet":
		return "application/vnd.apache.parquet"
	default:
		return "application/octet-stream"
	}
}
