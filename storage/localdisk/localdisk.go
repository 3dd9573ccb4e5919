// Package localdisk persists semantic models as a directory tree on the local
// filesystem.
package localdisk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/poiesic/semdex/storage"
	"github.com/spf13/afero"
)

// StrategyName is the name the factory resolves to this backend.
const StrategyName = "LocalDisk"

// New creates a local-disk strategy on the OS filesystem.
func New(opts ...storage.Option) storage.Strategy {
	return NewWithFs(afero.NewOsFs(), opts...)
}

// NewWithFs creates a local-disk strategy over fs. Tests pass afero.NewMemMapFs().
func NewWithFs(fsys afero.Fs, opts ...storage.Option) storage.Strategy {
	return storage.NewTreeStrategy(StrategyName, NewStore(fsys), opts...)
}

// Store is a storage.TreeStore on an afero filesystem. Writes go to a
// uniquely named temporary file that is renamed over the target, so readers
// see either the old file or the new one.
type Store struct {
	fs afero.Fs
}

// NewStore creates a Store on fsys.
func NewStore(fsys afero.Fs) *Store {
	return &Store{fs: fsys}
}

// ReadFile implements storage.TreeStore.
func (s *Store) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, filepath.FromSlash(name))
	if err != nil {
		return nil, classify(name, err)
	}
	return data, nil
}

// WriteFile implements storage.TreeStore.
func (s *Store) WriteFile(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := filepath.FromSlash(name)
	if err := s.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return classify(name, err)
	}

	tmp := target + ".tmp-" + uuid.NewString()
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		_ = s.fs.Remove(tmp)
		return classify(name, err)
	}
	if err := ctx.Err(); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := s.fs.Rename(tmp, target); err != nil {
		_ = s.fs.Remove(tmp)
		return classify(name, err)
	}
	return nil
}

// Remove implements storage.TreeStore.
func (s *Store) Remove(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.fs.Remove(filepath.FromSlash(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return classify(name, err)
	}
	return nil
}

// List implements storage.TreeStore.
func (s *Store) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(s.fs, filepath.FromSlash(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, classify(dir, err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if !info.IsDir() {
			names = append(names, info.Name())
		}
	}
	return names, nil
}

// classify maps filesystem errors onto the storage taxonomy. Anything other
// than a missing file or a permission failure is assumed to be contention
// with another reader or writer and is retryable.
func classify(name string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", storage.ErrNotFound, name)
	case errors.Is(err, fs.ErrPermission), errors.Is(err, os.ErrInvalid):
		return fmt.Errorf("%s: %w", name, err)
	}
	return fmt.Errorf("%w: %s: %w", storage.ErrTransientIO, name, err)
}
