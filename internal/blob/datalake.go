package blob

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azdatalake/datalakeerror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azdatalake/filesystem"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DatalakeOptions configures the Azure Data Lake Gen2 backend.
type DatalakeOptions struct {
	AccountName  string
	FileSystem   string
	TenantID     string
	ClientID     string
	ClientSecret string
}

// DatalakeStore stores objects as Data Lake Gen2 paths. Bytes are stored
// verbatim; the deflate flag is ignored.
type DatalakeStore struct {
	fs *filesystem.Client
}

// NewDatalakeStore builds the filesystem client and ensures the filesystem
// exists.
func NewDatalakeStore(ctx context.Context, opts DatalakeOptions) (*DatalakeStore, error) {
	if opts.AccountName == "" || opts.FileSystem == "" {
		return nil, eris.New("blob: datalake account name and file system are required")
	}

	cred, err := azidentity.NewClientSecretCredential(opts.TenantID, opts.ClientID, opts.ClientSecret, nil)
	if err != nil {
		return nil, eris.Wrap(err, "blob: datalake credential")
	}

	fsURL := fmt.Sprintf("https://%s.dfs.core.windows.net/%s", opts.AccountName, opts.FileSystem)
	fsClient, err := filesystem.NewClient(fsURL, cred, nil)
	if err != nil {
		return nil, eris.Wrap(err, "blob: datalake client")
	}

	store := &DatalakeStore{fs: fsClient}
	if err := store.ensureFileSystem(ctx, opts.FileSystem); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *DatalakeStore) ensureFileSystem(ctx context.Context, name string) error {
	_, err := s.fs.Create(ctx, nil)
	if err != nil {
		if datalakeerror.HasCode(err, datalakeerror.FileSystemAlreadyExists) {
			return nil
		}
		return eris.Wrapf(err, "blob: create file system %s", name)
	}
	zap.L().Info("created datalake file system", zap.String("file_system", name))
	return nil
}

// Exists reports whether the key holds a path.
func (s *DatalakeStore) Exists(ctx context.Context, path string) (bool, error) {
	key := cleanKey(path)
	_, err := s.fs.NewFileClient(key).GetProperties(ctx, nil)
	if err != nil {
		if datalakeerror.HasCode(err, datalakeerror.PathNotFound, datalakeerror.ResourceNotFound) {
			return false, nil
		}
		return false, eris.Wrapf(err, "blob: properties %s", key)
	}
	return true, nil
}

// Get downloads the path bytes.
func (s *DatalakeStore) Get(ctx context.Context, path string, _ bool) ([]byte, error) {
	key := cleanKey(path)
	resp, err := s.fs.NewFileClient(key).DownloadStream(ctx, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: download %s", key)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: read body %s", key)
	}
	return data, nil
}

// GetRange returns the slice [start, end) of the object.
func (s *DatalakeStore) GetRange(ctx context.Context, path string, start, end int64, deflate bool) ([]byte, error) {
	data, err := s.Get(ctx, path, deflate)
	if err != nil {
		return nil, err
	}
	return sliceRange(data, start, end), nil
}

// GetToFile writes the object to a local file.
func (s *DatalakeStore) GetToFile(ctx context.Context, path, localPath string, deflate bool) error {
	data, err := s.Get(ctx, path, deflate)
	if err != nil {
		return err
	}
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return eris.Wrapf(err, "blob: write local file %s", localPath)
	}
	return nil
}

// Put creates (or replaces) the path and uploads the buffer.
func (s *DatalakeStore) Put(ctx context.Context, path string, data []byte, _ bool) error {
	key := cleanKey(path)
	fileClient := s.fs.NewFileClient(key)
	if _, err := fileClient.Create(ctx, nil); err != nil {
		return eris.Wrapf(err, "blob: create path %s", key)
	}
	if err := fileClient.UploadBuffer(ctx, data, nil); err != nil {
		return eris.Wrapf(err, "blob: upload %s", key)
	}
	return nil
}

// PutFile uploads a local file's contents under the key.
func (s *DatalakeStore) PutFile(ctx context.Context, path, localPath string, deflate bool) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return eris.Wrapf(err, "blob: read local file %s", localPath)
	}
	return s.Put(ctx, path, data, deflate)
}

// Delete removes the path; a missing path is not an error.
func (s *DatalakeStore) Delete(ctx context.Context, path string) error {
	key := cleanKey(path)
	if _, err := s.fs.NewFileClient(key).Delete(ctx, nil); err != nil {
		if datalakeerror.HasCode(err, datalakeerror.PathNotFound, datalakeerror.ResourceNotFound) {
			return nil
		}
		return eris.Wrapf(err, "blob: delete %s", key)
	}
	return nil
}

// Size returns the stored object size.
func (s *DatalakeStore) Size(ctx context.Context, path string) (int64, error) {
	key := cleanKey(path)
	props, err := s.fs.NewFileClient(key).GetProperties(ctx, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "blob: properties %s", key)
	}
	if props.ContentLength == nil {
		return 0, nil
	}
	return *props.ContentLength, nil
}

// List returns every file path under the prefix, recursively.
func (s *DatalakeStore) List(ctx context.Context, prefix string) ([]string, error) {
	prefix = cleanKey(prefix)
	var keys []string
	pager := s.fs.NewListPathsPager(true, &filesystem.ListPathsOptions{Prefix: &prefix})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, eris.Wrapf(err, "blob: list %s", prefix)
		}
		for _, p := range page.Paths {
			if p.Name == nil {
				continue
			}
			if p.IsDirectory != nil && *p.IsDirectory {
				continue
			}
			keys = append(keys, *p.Name)
		}
	}
	return keys, nil
}

// ListFolders returns the directories directly under the prefix.
func (s *DatalakeStore) ListFolders(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = cleanKey(prefix)
	var folders []string
	pager := s.fs.NewListPathsPager(false, &filesystem.ListPathsOptions{Prefix: &prefix})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, eris.Wrapf(err, "blob: list folders %s", prefix)
		}
		for _, p := range page.Paths {
			if p.Name == nil {
				continue
			}
			if p.IsDirectory == nil || !*p.IsDirectory {
				continue
			}
			folders = append(folders, *p.Name+"/")
		}
		if limit > 0 && len(folders) >= limit {
			return folders[:limit], nil
		}
	}
	return folders, nil
}

// Close is a no-op; the Data Lake client holds no persistent connection state.
func (s *DatalakeStore) Close() error {
	return nil
}
