// Package blob stores uploaded media bytes under slash-separated keys.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"honestai/internal/config"
)

// ErrNotExist is returned when no object is stored under a key.
var ErrNotExist = errors.New("blob does not exist")

// Store persists upload bytes. Keys are relative slash-separated paths such as
// "12/clip.mp4"; writing an existing key replaces it.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	// LocalPath makes the object available as a local file. release must be
	// called once the caller is done with the path.
	LocalPath(ctx context.Context, key string) (string, func(), error)
}

// New opens the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg.BaseDir)
	case "minio":
		return NewMinioStore(ctx, cfg.Minio)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("invalid blob key %q", key)
		}
	}
	return path.Clean(key), nil
}
