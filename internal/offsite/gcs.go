package offsite

import (
	"context"
	"fmt"
	"path/filepath"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"orchestrall-backup/internal/fsys"
)

// GCSUploader replicates backup directories to a Google Cloud Storage
// bucket.
type GCSUploader struct {
	client *storage.Client
	bucket string
}

// NewGCSUploader creates a GCS uploader. When no credentials path is
// configured the client falls back to application default credentials.
func NewGCSUploader(cfg GCSConfig) (*GCSUploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("GCS bucket is required")
	}

	ctx := context.Background()
	var client *storage.Client
	var err error
	if cfg.CredentialsPath != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(cfg.CredentialsPath))
	} else {
		client, err = storage.NewClient(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSUploader{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// Provider returns "gcs".
func (u *GCSUploader) Provider() string {
	return "gcs"
}

// Upload copies every file under localDir to the bucket under remotePrefix,
// preserving the relative layout.
func (u *GCSUploader) Upload(ctx context.Context, localDir, remotePrefix string) error {
	files, err := fsys.Walk(localDir)
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", localDir, err)
	}

	bucket := u.client.Bucket(u.bucket)
	for _, f := range files {
		data, err := fsys.ReadFile(filepath.Join(localDir, filepath.FromSlash(f.Path)))
		if err != nil {
			return err
		}

		w := bucket.Object(remotePrefix + "/" + f.Path).NewWriter(ctx)
		if _, err := w.Write(data); err != nil {
			w.Close()
			return fmt.Errorf("failed to write %s to GCS: %w", f.Path, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("failed to upload %s to GCS: %w", f.Path, err)
		}
	}
	return nil
}

// Close releases the underlying GCS client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}
