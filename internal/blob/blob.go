// Package blob provides the document object store behind the EDGAR corpus.
// Exactly one backend is selected at process start: S3, Azure Blob, Azure
// Data Lake Gen2 or the local filesystem. Keys are UNIX-style paths treated
// as opaque strings; a leading slash is stripped.
package blob

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// Store is the capability set shared by every backend. The deflate flag
// asks for transparent zlib compression; backends whose contract does not
// promise it (local, Data Lake) store bytes verbatim and ignore the flag.
type Store interface {
	// Exists reports whether the key holds an object. A missing key is
	// (false, nil); transport failures return an error.
	Exists(ctx context.Context, path string) (bool, error)

	// Get returns the object bytes, inflating them when deflate is set.
	Get(ctx context.Context, path string, deflate bool) ([]byte, error)

	// GetRange returns the slice [start, end) of the inflated object.
	GetRange(ctx context.Context, path string, start, end int64, deflate bool) ([]byte, error)

	// GetToFile writes the (inflated) object to a local file.
	GetToFile(ctx context.Context, path, localPath string, deflate bool) error

	// Put stores the buffer, deflating it first when requested.
	Put(ctx context.Context, path string, data []byte, deflate bool) error

	// PutFile stores a local file's contents under the key.
	PutFile(ctx context.Context, path, localPath string, deflate bool) error

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, path string) error

	// Size returns the stored object size in bytes (compressed size for
	// deflated objects).
	Size(ctx context.Context, path string) (int64, error)

	// List returns every key under the prefix, recursively.
	List(ctx context.Context, prefix string) ([]string, error)

	// ListFolders returns the logical directories directly under the
	// prefix using the "/" delimiter, each with a trailing slash.
	// A limit of 0 means unlimited.
	ListFolders(ctx context.Context, prefix string, limit int) ([]string, error)

	Close() error
}

// Options selects and configures a backend. ClientType takes the canonical
// values S3, Blob, ADL or Local.
type Options struct {
	ClientType string
	S3         S3Options
	Azure      AzureOptions
	Datalake   DatalakeOptions
	Local      LocalOptions
}

// Open constructs the backend named by opts.ClientType. Bucket, container
// or filesystem creation happens here so callers never race on first write.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.ClientType {
	case "S3":
		return NewS3Store(ctx, opts.S3)
	case "Blob":
		return NewAzureStore(ctx, opts.Azure)
	case "ADL":
		return NewDatalakeStore(ctx, opts.Datalake)
	case "Local", "":
		return NewLocalStore(opts.Local)
	default:
		return nil, eris.Errorf("blob: unknown client type %q (want S3, Blob, ADL or Local)", opts.ClientType)
	}
}

// cleanKey normalises a path into a storage key.
func cleanKey(path string) string {
	return strings.TrimPrefix(path, "/")
}

// sliceRange clamps [start, end) to the buffer the way the range read
// contract promises: out-of-range positions clip instead of failing.
func sliceRange(buf []byte, start, end int64) []byte {
	n := int64(len(buf))
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if start >= end {
		return []byte{}
	}
	return buf[start:end]
}

// folderSet accumulates delimiter-derived folder names for backends that
// have no native hierarchy listing.
type folderSet struct {
	seen  map[string]struct{}
	names []string
}

func newFolderSet() *folderSet {
	return &folderSet{seen: make(map[string]struct{})}
}

// addKey derives the first folder segment of key past the prefix, if any.
func (s *folderSet) addKey(prefix, key string) {
	rest := strings.TrimPrefix(key, prefix)
	idx := strings.Index(rest, "/")
	if idx < 0 {
		return
	}
	folder := prefix + rest[:idx+1]
	if _, ok := s.seen[folder]; ok {
		return
	}
	s.seen[folder] = struct{}{}
	s.names = append(s.names, folder)
}

func (s *folderSet) list(limit int) []string {
	if limit > 0 && len(s.names) > limit {
		return s.names[:limit]
	}
	return s.names
}
