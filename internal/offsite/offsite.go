// Package offsite replicates completed backup directories to cloud object
// storage. Uploads are best effort: a failed replication leaves a warning on
// the job record, never a failed backup.
package offsite

import (
	"context"
	"fmt"
)

// Uploader copies a local backup directory to a remote location under the
// given prefix.
type Uploader interface {
	// Upload replicates every file under localDir to remotePrefix.
	Upload(ctx context.Context, localDir, remotePrefix string) error
	// Provider names the backing service for logs and job metadata.
	Provider() string
}

// Config selects and configures the offsite provider. Provider is one of
// "s3", "gcs", "azure", or empty to disable offsite replication.
type Config struct {
	Provider string      `mapstructure:"provider"`
	S3       S3Config    `mapstructure:"s3"`
	GCS      GCSConfig   `mapstructure:"gcs"`
	Azure    AzureConfig `mapstructure:"azure"`
}

// S3Config holds AWS S3 settings.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Endpoint  string `mapstructure:"endpoint"`
}

// GCSConfig holds Google Cloud Storage settings.
type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	ProjectID       string `mapstructure:"project_id"`
	CredentialsPath string `mapstructure:"credentials_path"`
}

// AzureConfig holds Azure Blob Storage settings.
type AzureConfig struct {
	AccountName   string `mapstructure:"account_name"`
	AccountKey    string `mapstructure:"account_key"`
	ContainerName string `mapstructure:"container_name"`
}

// NewUploader builds an uploader for the configured provider. An empty
// provider returns nil without error, meaning offsite replication is off.
func NewUploader(cfg Config) (Uploader, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "s3":
		return NewS3Uploader(cfg.S3)
	case "gcs":
		return NewGCSUploader(cfg.GCS)
	case "azure":
		return NewAzureUploader(cfg.Azure)
	default:
		return nil, fmt.Errorf("unsupported offsite provider: %s", cfg.Provider)
	}
}
