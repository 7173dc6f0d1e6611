package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
	"github.com/JakeFAU/pdp-auditor/internal/metrics"
)

// Upload outcomes reported to metrics.
const (
	outcomeStored = "stored"
	outcomeCached = "cached"
	outcomeError  = "error"
)

// Uploader implements audit.ArtifactUploader over a BlobStore. Objects are
// laid out as <prefix>/<namespace>/<viewport>/<kind>.<ext>.
type Uploader struct {
	store  BlobStore
	prefix string
	logger *zap.Logger
}

// NewUploader wires a blob store. prefix may be empty.
func NewUploader(store BlobStore, prefix string, logger *zap.Logger) (*Uploader, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.Named("uploader"),
	}, nil
}

// ObjectPath returns the storage path for one artifact.
func (u *Uploader) ObjectPath(namespace string, viewport audit.Viewport, kind audit.ArtifactKind) string {
	name := string(kind) + extension(kind)
	if u.prefix == "" {
		return path.Join(namespace, string(viewport), name)
	}
	return path.Join(u.prefix, namespace, string(viewport), name)
}

// Upload stores data. With CheckExisting set and Overwrite unset, an object
// already present at the path is returned as a cached result without writing.
func (u *Uploader) Upload(
	ctx context.Context,
	namespace string,
	viewport audit.Viewport,
	kind audit.ArtifactKind,
	data []byte,
	opts audit.UploadOptions,
) (audit.UploadResult, error) {
	if strings.TrimSpace(namespace) == "" {
		return audit.UploadResult{}, &audit.StorageError{Type: "invalid", Message: "namespace is required"}
	}
	objectPath := u.ObjectPath(namespace, viewport, kind)

	if opts.CheckExisting && !opts.Overwrite {
		info, err := u.store.StatObject(ctx, objectPath)
		switch {
		case err == nil:
			metrics.ObserveUpload(string(kind), outcomeCached)
			return audit.UploadResult{Path: objectPath, PublicURL: info.URI, Size: info.Size, Cached: true}, nil
		case !errors.Is(err, audit.ErrNotFound):
			u.logger.Warn("stat before upload failed", zap.String("path", objectPath), zap.Error(err))
		}
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = defaultContentType(kind)
	}
	uri, err := u.store.PutObject(ctx, objectPath, contentType, bytes.NewReader(data))
	if err != nil {
		metrics.ObserveUpload(string(kind), outcomeError)
		return audit.UploadResult{}, &audit.StorageError{
			Type:    "upload_failed",
			Message: fmt.Sprintf("%s %s upload: %v", viewport, kind, err),
			Err:     err,
		}
	}
	metrics.ObserveUpload(string(kind), outcomeStored)
	return audit.UploadResult{Path: objectPath, PublicURL: uri, Size: int64(len(data))}, nil
}

func extension(kind audit.ArtifactKind) string {
	switch kind {
	case audit.ArtifactScreenshot:
		return ".png"
	case audit.ArtifactMarkup:
		return ".html"
	default:
		return ""
	}
}

func defaultContentType(kind audit.ArtifactKind) string {
	switch kind {
	case audit.ArtifactScreenshot:
		return "image/png"
	case audit.ArtifactMarkup:
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// NotFound wraps audit.ErrNotFound for a missing path.
func NotFound(path string) error {
	return fmt.Errorf("object %s: %w", path, audit.ErrNotFound)
}
