package blob

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// LocalOptions configures the filesystem backend.
type LocalOptions struct {
	// RootDir anchors every key; it is created on open.
	RootDir string
}

// LocalStore keeps objects as plain files under a root directory. Bytes are
// stored verbatim; the deflate flag is ignored.
type LocalStore struct {
	root string
}

// NewLocalStore opens (and creates) the root directory.
func NewLocalStore(opts LocalOptions) (*LocalStore, error) {
	if opts.RootDir == "" {
		return nil, eris.New("blob: local root dir is required")
	}
	if err := os.MkdirAll(opts.RootDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "blob: create local root")
	}
	return &LocalStore{root: opts.RootDir}, nil
}

func (s *LocalStore) filePath(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(cleanKey(key)))
}

// Exists reports whether the key holds a regular file.
func (s *LocalStore) Exists(_ context.Context, path string) (bool, error) {
	info, err := os.Stat(s.filePath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, eris.Wrapf(err, "blob: stat %s", path)
	}
	return !info.IsDir(), nil
}

// Get reads the object bytes.
func (s *LocalStore) Get(_ context.Context, path string, _ bool) ([]byte, error) {
	data, err := os.ReadFile(s.filePath(path))
	if err != nil {
		return nil, eris.Wrapf(err, "blob: read %s", path)
	}
	return data, nil
}

// GetRange reads a byte slice of the object.
func (s *LocalStore) GetRange(ctx context.Context, path string, start, end int64, deflate bool) ([]byte, error) {
	data, err := s.Get(ctx, path, deflate)
	if err != nil {
		return nil, err
	}
	return sliceRange(data, start, end), nil
}

// GetToFile copies the object to a local file.
func (s *LocalStore) GetToFile(ctx context.Context, path, localPath string, deflate bool) error {
	data, err := s.Get(ctx, path, deflate)
	if err != nil {
		return err
	}
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return eris.Wrapf(err, "blob: write local file %s", localPath)
	}
	return nil
}

// Put stores the buffer, creating parent directories as needed.
func (s *LocalStore) Put(_ context.Context, path string, data []byte, _ bool) error {
	fp := s.filePath(path)
	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return eris.Wrapf(err, "blob: create dirs for %s", path)
	}
	if err := os.WriteFile(fp, data, 0o644); err != nil {
		return eris.Wrapf(err, "blob: write %s", path)
	}
	return nil
}

// PutFile stores a local file's contents under the key.
func (s *LocalStore) PutFile(ctx context.Context, path, localPath string, deflate bool) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return eris.Wrapf(err, "blob: read local file %s", localPath)
	}
	return s.Put(ctx, path, data, deflate)
}

// Delete removes the object; a missing key is not an error.
func (s *LocalStore) Delete(_ context.Context, path string) error {
	if err := os.Remove(s.filePath(path)); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "blob: delete %s", path)
	}
	return nil
}

// Size returns the stored size in bytes.
func (s *LocalStore) Size(_ context.Context, path string) (int64, error) {
	info, err := os.Stat(s.filePath(path))
	if err != nil {
		return 0, eris.Wrapf(err, "blob: stat %s", path)
	}
	return info.Size(), nil
}

// List returns every key under the prefix, recursively, in sorted order.
func (s *LocalStore) List(_ context.Context, prefix string) ([]string, error) {
	prefix = cleanKey(prefix)
	var keys []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, p)
		if relErr != nil {
			return relErr
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "blob: list %s", prefix)
	}
	sort.Strings(keys)
	return keys, nil
}

// ListFolders derives directories from the key namespace via the "/"
// delimiter, matching the object-store backends.
func (s *LocalStore) ListFolders(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = cleanKey(prefix)
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	folders := newFolderSet()
	for _, key := range keys {
		folders.addKey(prefix, key)
	}
	return folders.list(limit), nil
}

// Close is a no-op for the filesystem backend.
func (s *LocalStore) Close() error {
	return nil
}
