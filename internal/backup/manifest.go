package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"orchestrall-backup/internal/fsys"
	"orchestrall-backup/internal/logging"
)

// ManifestBuilder walks a completed backup directory and emits its manifest:
// every file with size, modified time, and SHA-256 digest. The manifest is
// written atomically and never mutated afterwards.
type ManifestBuilder struct {
	logger *logging.Logger
}

// NewManifestBuilder creates a manifest builder.
func NewManifestBuilder(logger *logging.Logger) *ManifestBuilder {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &ManifestBuilder{logger: logger}
}

// Build walks backupDir, computes checksums, and writes manifest.json into
// it. The manifest file itself is excluded from its own listing.
func (mb *ManifestBuilder) Build(backupDir string, job *Job) (*Manifest, error) {
	files, err := fsys.Walk(backupDir)
	if err != nil {
		return nil, NewStorageError("failed to walk backup directory", err)
	}

	manifest := &Manifest{
		ID:        job.ID,
		Type:      job.Type,
		Timestamp: time.Now().UTC(),
		Version:   ManifestVersion,
		Metadata:  map[string]string{},
		Checksums: make(map[string]string),
	}
	if job.Metadata.TenantID != "" {
		manifest.Metadata["tenant_id"] = job.Metadata.TenantID
	}
	if job.Metadata.CutoffTime != nil {
		manifest.Metadata["cutoff_time"] = job.Metadata.CutoffTime.UTC().Format(time.RFC3339)
	}
	if job.Metadata.Compression != "" {
		manifest.Metadata["compression"] = job.Metadata.Compression
	}
	if job.Metadata.Encrypted {
		manifest.Metadata["encrypted"] = "true"
	}

	for _, f := range files {
		if f.Path == ManifestFilename {
			continue
		}
		digest, err := checksumFile(filepath.Join(backupDir, filepath.FromSlash(f.Path)))
		if err != nil {
			return nil, NewStorageError(fmt.Sprintf("failed to checksum %s", f.Path), err)
		}
		manifest.Files = append(manifest.Files, f)
		manifest.Checksums[f.Path] = digest
	}

	data, err := manifest.ToJSON()
	if err != nil {
		return nil, NewStorageError("failed to serialize manifest", err)
	}
	if err := fsys.WriteFileAtomic(filepath.Join(backupDir, ManifestFilename), data); err != nil {
		return nil, NewStorageError("failed to write manifest", err)
	}

	mb.logger.Debugf("Manifest written for %s: %d files", job.ID, len(manifest.Files))
	return manifest, nil
}

// IntegrityVerifier recomputes manifest checksums against on-disk bytes.
// It fails closed: any missing file or digest mismatch refuses the restore
// before a single table write happens.
type IntegrityVerifier struct {
	logger *logging.Logger
}

// NewIntegrityVerifier creates an integrity verifier.
func NewIntegrityVerifier(logger *logging.Logger) *IntegrityVerifier {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &IntegrityVerifier{logger: logger}
}

// Verify loads the manifest of backupDir and recomputes every listed
// checksum. It returns the manifest on success and an IntegrityError on the
// first missing file or mismatch.
func (iv *IntegrityVerifier) Verify(backupDir string) (*Manifest, error) {
	start := time.Now()

	manifestPath := filepath.Join(backupDir, ManifestFilename)
	data, err := fsys.ReadFile(manifestPath)
	if err != nil {
		return nil, NewIntegrityError("manifest is missing or unreadable", err)
	}

	var manifest Manifest
	if err := manifest.FromJSON(data); err != nil {
		return nil, NewIntegrityError("manifest is malformed", err)
	}

	for path, expected := range manifest.Checksums {
		fullPath := filepath.Join(backupDir, filepath.FromSlash(path))
		if _, err := os.Stat(fullPath); err != nil {
			verr := NewIntegrityError(fmt.Sprintf("file %s listed in manifest is missing", path), err)
			iv.logger.LogIntegrityCheck(manifest.ID, len(manifest.Checksums), time.Since(start), verr)
			return nil, verr
		}

		actual, err := checksumFile(fullPath)
		if err != nil {
			verr := NewIntegrityError(fmt.Sprintf("failed to checksum %s", path), err)
			iv.logger.LogIntegrityCheck(manifest.ID, len(manifest.Checksums), time.Since(start), verr)
			return nil, verr
		}
		if actual != expected {
			verr := NewIntegrityError(fmt.Sprintf("checksum mismatch for %s", path), nil).
				WithContext("expected", expected).
				WithContext("actual", actual)
			iv.logger.LogIntegrityCheck(manifest.ID, len(manifest.Checksums), time.Since(start), verr)
			return nil, verr
		}
	}

	iv.logger.LogIntegrityCheck(manifest.ID, len(manifest.Checksums), time.Since(start), nil)
	return &manifest, nil
}

// checksumFile computes the SHA-256 digest of a file as lowercase hex.
func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
