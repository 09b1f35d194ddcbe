package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/config"
	"github.com/google/uuid"
)

// Provider stores objects and hands back the URL they are served from.
type Provider interface {
	Upload(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, objectPath string) error
	URL(objectPath string) string
}

// NewProvider builds the provider selected by STORAGE_PROVIDER.
func NewProvider(ctx context.Context, cfg config.StorageConfig) (Provider, error) {
	switch cfg.Provider {
	case "minio":
		return NewMinioProvider(ctx, cfg)
	case "local", "":
		return NewLocalProvider(cfg.LocalDir, "/uploads"), nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}

// ObjectPath returns a collision-free object path under folder, prefixed by
// the upload date: "<folder>/2006/01/02/<uuid><ext>".
func ObjectPath(folder, ext string, now time.Time) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join(strings.Trim(folder, "/"), now.UTC().Format("2006/01/02"), uuid.NewString()+ext)
}
