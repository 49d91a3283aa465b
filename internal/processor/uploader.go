package processor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/me/kfpc/internal/compiler"
	"github.com/me/kfpc/internal/config"
	"github.com/me/kfpc/internal/cos"
	"github.com/me/kfpc/pkg/pipeline"
)

// UploaderFactory builds the dependency uploader for a runtime
// configuration. It is invoked once per submission, before compilation, so
// unreachable storage fails the run before any platform state changes.
type UploaderFactory func(ctx context.Context, rc *config.RuntimeConfig, settings *config.Settings, logger *slog.Logger) (compiler.Uploader, error)

// objectStore is the slice of the storage client the uploader needs.
type objectStore interface {
	VerifyConnectivity(ctx context.Context) error
	Upload(ctx context.Context, key string, body io.Reader) error
}

// StorageUploader places each generic node's dependency archive under the
// pipeline instance's object prefix. Archives are expected next to the
// node's source file, relative to the configured root directory.
type StorageUploader struct {
	store   objectStore
	rootDir string
	logger  *slog.Logger
}

// NewStorageUploader connects to the runtime configuration's object
// storage and verifies the bucket before returning the uploader.
func NewStorageUploader(ctx context.Context, rc *config.RuntimeConfig, settings *config.Settings, logger *slog.Logger) (compiler.Uploader, error) {
	client, err := cos.NewClient(ctx, cos.Config{
		Endpoint:  rc.COSEndpoint,
		AccessKey: rc.COSUsername,
		SecretKey: rc.COSPassword,
		Bucket:    rc.COSBucket,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		return nil, err
	}
	return &StorageUploader{store: client, rootDir: settings.RootDir, logger: logger}, nil
}

// UploadDependencies streams the node's archive to object storage.
func (u *StorageUploader) UploadDependencies(ctx context.Context, node *pipeline.Node, objectPrefix string) error {
	archive := node.ArchiveName()
	path := filepath.Join(u.rootDir, filepath.Dir(node.Filename), archive)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open dependency archive for node %q: %w", node.Name, err)
	}
	defer f.Close()

	key := config.JoinPaths(objectPrefix, archive)
	if err := u.store.Upload(ctx, key, f); err != nil {
		return err
	}
	if u.logger != nil {
		u.logger.Debug("dependency archive uploaded", "node", node.Name, "key", key)
	}
	return nil
}
