package archive

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"qslm/internal/config"
)

// S3Destination stores snapshots as objects in an S3 bucket, optionally
// under a key prefix.
type S3Destination struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Destination creates a destination backed by the configured bucket.
// Static credentials from the config take precedence over the default
// credential chain.
func NewS3Destination(cfg config.ArchiveConfig) (*S3Destination, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3Destination{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.S3Bucket,
		prefix:   cfg.S3Prefix,
	}, nil
}

// Put uploads the snapshot to s3://<bucket>/<prefix>/<name>.
func (d *S3Destination) Put(name string, r io.Reader, size int64) error {
	_, err := d.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(path.Join(d.prefix, name)),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("uploading snapshot: %w", err)
	}
	return nil
}

// ValidateSetup verifies the bucket is reachable.
func (d *S3Destination) ValidateSetup() error {
	_, err := d.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(d.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", d.bucket, err)
	}
	return nil
}

// Compile-time check that S3Destination implements Destination
var _ Destination = (*S3Destination)(nil)
