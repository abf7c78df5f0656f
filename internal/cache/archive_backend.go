package cache

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"

	"github.com/newthinker/marketlens/internal/storage/archive"
)

const archiveDir = "cache"

// ArchiveBackend persists entries as one object per key in an archive
// storage (local filesystem or S3), so the cache survives restarts.
type ArchiveBackend struct {
	storage archive.Storage
}

// NewArchiveBackend wraps an archive storage.
func NewArchiveBackend(storage archive.Storage) *ArchiveBackend {
	return &ArchiveBackend{storage: storage}
}

func objectPath(key string) string {
	return path.Join(archiveDir, url.PathEscape(key)+".json")
}

func keyFromPath(p string) (string, bool) {
	name := path.Base(strings.ReplaceAll(p, "\\", "/"))
	if !strings.HasSuffix(name, ".json") {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
	if err != nil {
		return "", false
	}
	return key, true
}

func (a *ArchiveBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := a.storage.Read(ctx, objectPath(key))
	if errors.Is(err, archive.ErrNotFound) {
		return nil, ErrMiss
	}
	return data, err
}

func (a *ArchiveBackend) Set(ctx context.Context, key string, value []byte) error {
	return a.storage.Write(ctx, objectPath(key), value)
}

func (a *ArchiveBackend) Delete(ctx context.Context, key string) error {
	err := a.storage.Delete(ctx, objectPath(key))
	if errors.Is(err, archive.ErrNotFound) {
		return nil
	}
	return err
}

func (a *ArchiveBackend) DeleteMany(ctx context.Context, keys []string) (int, error) {
	paths := make([]string, len(keys))
	for i, k := range keys {
		paths[i] = objectPath(k)
	}
	return a.storage.DeleteMany(ctx, paths)
}

func (a *ArchiveBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	paths, err := a.storage.List(ctx, archiveDir)
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, p := range paths {
		key, ok := keyFromPath(p)
		if ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
