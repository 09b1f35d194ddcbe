package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalProvider writes objects under a directory on disk. It is meant for
// development; the HTTP server serves the directory under urlPrefix.
type LocalProvider struct {
	root      string
	urlPrefix string
}

func NewLocalProvider(root, urlPrefix string) *LocalProvider {
	return &LocalProvider{root: root, urlPrefix: strings.TrimRight(urlPrefix, "/")}
}

func (p *LocalProvider) Root() string {
	return p.root
}

func (p *LocalProvider) Upload(ctx context.Context, objectPath string, reader io.Reader, _ int64, _ string) (string, error) {
	dst, err := p.resolve(objectPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, reader); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.URL(objectPath), nil
}

func (p *LocalProvider) Delete(_ context.Context, objectPath string) error {
	dst, err := p.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (p *LocalProvider) URL(objectPath string) string {
	return p.urlPrefix + "/" + strings.TrimLeft(filepath.ToSlash(objectPath), "/")
}

// resolve keeps object paths inside the root directory.
func (p *LocalProvider) resolve(objectPath string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(objectPath))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("invalid object path %q", objectPath)
	}
	return filepath.Join(p.root, clean), nil
}
