package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/poiesic/semdex/storage"
	"github.com/spf13/afero"
)

// FsBlobStore keeps each object as one file under root, named by the
// escaped key. It gives local development and tests an object store with
// flat-namespace semantics.
type FsBlobStore struct {
	fs   afero.Fs
	root string
}

// NewFsBlobStore creates a blob store in root on fsys.
func NewFsBlobStore(fsys afero.Fs, root string) (*FsBlobStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("%w: object store root is required", storage.ErrConfiguration)
	}
	if err := fsys.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating object store root: %w", storage.ErrConfiguration, err)
	}
	return &FsBlobStore{fs: fsys, root: root}, nil
}

func (b *FsBlobStore) file(key string) string {
	return filepath.Join(b.root, url.PathEscape(key))
}

// Put implements BlobStore.
func (b *FsBlobStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := b.file(key)
	tmp := filepath.Join(b.root, ".upload-"+uuid.NewString())
	if err := afero.WriteFile(b.fs, tmp, data, 0o644); err != nil {
		_ = b.fs.Remove(tmp)
		return fmt.Errorf("%w: put %s: %w", storage.ErrTransientIO, key, err)
	}
	if err := b.fs.Rename(tmp, target); err != nil {
		_ = b.fs.Remove(tmp)
		return fmt.Errorf("%w: put %s: %w", storage.ErrTransientIO, key, err)
	}
	return nil
}

// Get implements BlobStore.
func (b *FsBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(b.fs, b.file(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: object %s", storage.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", storage.ErrTransientIO, key, err)
	}
	return data, nil
}

// Delete implements BlobStore.
func (b *FsBlobStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.fs.Remove(b.file(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: delete %s: %w", storage.ErrTransientIO, key, err)
	}
	return nil
}

// List implements BlobStore.
func (b *FsBlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(b.fs, b.root)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", storage.ErrTransientIO, prefix, err)
	}
	var keys []string
	for _, info := range infos {
		if info.IsDir() || strings.HasPrefix(info.Name(), ".upload-") {
			continue
		}
		key, err := url.PathUnescape(info.Name())
		if err != nil {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
