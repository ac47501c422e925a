package blob

import (
	"context"
	"io"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// AzureOptions configures the Azure Blob Storage backend.
type AzureOptions struct {
	ConnectionString string
	Container        string
	// CompressionLevel for deflated objects; zero means DefaultCompressionLevel.
	CompressionLevel int
}

// AzureStore stores objects as block blobs. Deflated objects are
// zlib-compressed before upload and inflated after download.
type AzureStore struct {
	client    *azblob.Client
	container string
	level     int
}

// NewAzureStore builds the client and ensures the container exists.
func NewAzureStore(ctx context.Context, opts AzureOptions) (*AzureStore, error) {
	if opts.ConnectionString == "" || opts.Container == "" {
		return nil, eris.New("blob: azure connection string and container are required")
	}

	client, err := azblob.NewClientFromConnectionString(opts.ConnectionString, nil)
	if err != nil {
		return nil, eris.Wrap(err, "blob: azure client")
	}

	store := &AzureStore{client: client, container: opts.Container, level: opts.CompressionLevel}
	if err := store.ensureContainer(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *AzureStore) ensureContainer(ctx context.Context) error {
	_, err := s.client.CreateContainer(ctx, s.container, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return nil
		}
		return eris.Wrapf(err, "blob: create container %s", s.container)
	}
	zap.L().Info("created blob container", zap.String("container", s.container))
	return nil
}

// Exists reports whether the key holds a blob.
func (s *AzureStore) Exists(ctx context.Context, path string) (bool, error) {
	key := cleanKey(path)
	blobClient := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(key)
	_, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, eris.Wrapf(err, "blob: properties %s", key)
	}
	return true, nil
}

// Get downloads the blob and inflates it when deflate is set.
func (s *AzureStore) Get(ctx context.Context, path string, deflate bool) ([]byte, error) {
	key := cleanKey(path)
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: download %s", key)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: read body %s", key)
	}
	if deflate {
		return inflateBuffer(data)
	}
	return data, nil
}

// GetRange returns the slice [start, end) of the inflated blob.
func (s *AzureStore) GetRange(ctx context.Context, path string, start, end int64, deflate bool) ([]byte, error) {
	data, err := s.Get(ctx, path, deflate)
	if err != nil {
		return nil, err
	}
	return sliceRange(data, start, end), nil
}

// GetToFile writes the (inflated) blob to a local file.
func (s *AzureStore) GetToFile(ctx context.Context, path, localPath string, deflate bool) error {
	data, err := s.Get(ctx, path, deflate)
	if err != nil {
		return err
	}
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return eris.Wrapf(err, "blob: write local file %s", localPath)
	}
	return nil
}

// Put uploads the buffer, deflating it first when requested.
func (s *AzureStore) Put(ctx context.Context, path string, data []byte, deflate bool) error {
	key := cleanKey(path)
	body := data
	if deflate {
		var err error
		body, err = deflateBuffer(data, s.level)
		if err != nil {
			return err
		}
	}
	if _, err := s.client.UploadBuffer(ctx, s.container, key, body, nil); err != nil {
		return eris.Wrapf(err, "blob: upload %s", key)
	}
	return nil
}

// PutFile uploads a local file's contents under the key.
func (s *AzureStore) PutFile(ctx context.Context, path, localPath string, deflate bool) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return eris.Wrapf(err, "blob: read local file %s", localPath)
	}
	return s.Put(ctx, path, data, deflate)
}

// Delete removes the blob; a missing blob is not an error.
func (s *AzureStore) Delete(ctx context.Context, path string) error {
	key := cleanKey(path)
	if _, err := s.client.DeleteBlob(ctx, s.container, key, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil
		}
		return eris.Wrapf(err, "blob: delete %s", key)
	}
	return nil
}

// Size returns the stored (compressed) blob size.
func (s *AzureStore) Size(ctx context.Context, path string) (int64, error) {
	key := cleanKey(path)
	blobClient := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(key)
	props, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "blob: properties %s", key)
	}
	if props.ContentLength == nil {
		return 0, nil
	}
	return *props.ContentLength, nil
}

// List returns every key under the prefix, recursively.
func (s *AzureStore) List(ctx context.Context, prefix string) ([]string, error) {
	prefix = cleanKey(prefix)
	var keys []string
	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, eris.Wrapf(err, "blob: list %s", prefix)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				keys = append(keys, *item.Name)
			}
		}
	}
	return keys, nil
}

// ListFolders returns the delimiter-derived directories under the prefix.
func (s *AzureStore) ListFolders(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = cleanKey(prefix)
	var folders []string
	containerClient := s.client.ServiceClient().NewContainerClient(s.container)
	pager := containerClient.NewListBlobsHierarchyPager("/", &container.ListBlobsHierarchyOptions{
		Prefix: &prefix,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, eris.Wrapf(err, "blob: list folders %s", prefix)
		}
		for _, bp := range page.Segment.BlobPrefixes {
			if bp.Name != nil {
				folders = append(folders, *bp.Name)
			}
		}
		if limit > 0 && len(folders) >= limit {
			return folders[:limit], nil
		}
	}
	return folders, nil
}

// Close is a no-op; the Azure client holds no persistent connection state.
func (s *AzureStore) Close() error {
	return nil
}
