package offsite

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"orchestrall-backup/internal/fsys"
)

// AzureUploader replicates backup directories to an Azure Blob Storage
// container.
type AzureUploader struct {
	containerURL azblob.ContainerURL
	container    string
}

// NewAzureUploader creates an Azure uploader from shared key credentials.
func NewAzureUploader(cfg AzureConfig) (*AzureUploader, error) {
	if cfg.AccountName == "" || cfg.AccountKey == "" {
		return nil, fmt.Errorf("Azure account name and key are required")
	}
	if cfg.ContainerName == "" {
		return nil, fmt.Errorf("Azure container name is required")
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credentials: %w", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})
	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Azure service URL: %w", err)
	}

	return &AzureUploader{
		containerURL: azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(cfg.ContainerName),
		container:    cfg.ContainerName,
	}, nil
}

// Provider returns "azure".
func (u *AzureUploader) Provider() string {
	return "azure"
}

// Upload copies every file under localDir to the container under
// remotePrefix, preserving the relative layout.
func (u *AzureUploader) Upload(ctx context.Context, localDir, remotePrefix string) error {
	files, err := fsys.Walk(localDir)
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", localDir, err)
	}

	for _, f := range files {
		data, err := fsys.ReadFile(filepath.Join(localDir, filepath.FromSlash(f.Path)))
		if err != nil {
			return err
		}

		blobURL := u.containerURL.NewBlockBlobURL(remotePrefix + "/" + f.Path)
		_, err = azblob.UploadBufferToBlockBlob(ctx, data, blobURL, azblob.UploadToBlockBlobOptions{
			BlockSize:   4 * 1024 * 1024,
			Parallelism: 16,
		})
		if err != nil {
			return fmt.Errorf("failed to upload %s to Azure: %w", f.Path, err)
		}
	}
	return nil
}
