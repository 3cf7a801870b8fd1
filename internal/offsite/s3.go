package offsite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"orchestrall-backup/internal/fsys"
)

// S3Uploader replicates backup directories to an Amazon S3 bucket.
type S3Uploader struct {
	client *s3.S3
	bucket string
}

// NewS3Uploader creates an S3 uploader from static credentials. Region and
// bucket are required; Endpoint overrides the AWS endpoint for
// S3-compatible services.
func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("S3 region is required")
	}

	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Uploader{
		client: s3.New(sess),
		bucket: cfg.Bucket,
	}, nil
}

// Provider returns "s3".
func (u *S3Uploader) Provider() string {
	return "s3"
}

// Upload copies every file under localDir to the bucket under remotePrefix,
// preserving the relative layout.
func (u *S3Uploader) Upload(ctx context.Context, localDir, remotePrefix string) error {
	files, err := fsys.Walk(localDir)
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", localDir, err)
	}

	for _, f := range files {
		file, err := os.Open(filepath.Join(localDir, filepath.FromSlash(f.Path)))
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", f.Path, err)
		}

		_, err = u.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket: aws.String(u.bucket),
			Key:    aws.String(remotePrefix + "/" + f.Path),
			Body:   file,
		})
		file.Close()
		if err != nil {
			return fmt.Errorf("failed to upload %s to S3: %w", f.Path, err)
		}
	}
	return nil
}
