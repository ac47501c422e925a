package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// S3Options configures the S3 backend.
type S3Options struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the AWS endpoint for S3-compatible stores.
	Endpoint string
	// CompressionLevel for deflated objects; zero means DefaultCompressionLevel.
	CompressionLevel int
}

// S3Store stores objects in an S3 bucket. Deflated objects are
// zlib-compressed before upload and inflated after download.
type S3Store struct {
	client *s3.Client
	bucket string
	level  int
}

// NewS3Store builds the client and ensures the bucket exists.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, eris.New("blob: s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "blob: load aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	store := &S3Store{client: client, bucket: opts.Bucket, level: opts.CompressionLevel}
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return eris.Wrapf(err, "blob: create bucket %s", s.bucket)
	}
	zap.L().Info("created s3 bucket", zap.String("bucket", s.bucket))
	return nil
}

// Exists reports whether the key holds an object.
func (s *S3Store) Exists(ctx context.Context, path string) (bool, error) {
	key := cleanKey(path)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, eris.Wrapf(err, "blob: head %s", key)
	}
	return true, nil
}

// Get downloads the object and inflates it when deflate is set.
func (s *S3Store) Get(ctx context.Context, path string, deflate bool) ([]byte, error) {
	key := cleanKey(path)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "blob: get %s", key)
	}
	defer out.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: read body %s", key)
	}
	if deflate {
		return inflateBuffer(data)
	}
	return data, nil
}

// GetRange returns the slice [start, end) of the inflated object.
func (s *S3Store) GetRange(ctx context.Context, path string, start, end int64, deflate bool) ([]byte, error) {
	data, err := s.Get(ctx, path, deflate)
	if err != nil {
		return nil, err
	}
	return sliceRange(data, start, end), nil
}

// GetToFile writes the (inflated) object to a local file.
func (s *S3Store) GetToFile(ctx context.Context, path, localPath string, deflate bool) error {
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
func (s *S3Store) Put(ctx context.Context, path string, data []byte, deflate bool) error {
	key := cleanKey(path)
	body := data
	if deflate {
		var err error
		body, err = deflateBuffer(data, s.level)
		if err != nil {
			return err
		}
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return eris.Wrapf(err, "blob: put %s", key)
	}
	return nil
}

// PutFile uploads a local file's contents under the key.
func (s *S3Store) PutFile(ctx context.Context, path, localPath string, deflate bool) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return eris.Wrapf(err, "blob: read local file %s", localPath)
	}
	return s.Put(ctx, path, data, deflate)
}

// Delete removes the object; S3 treats a missing key as success.
func (s *S3Store) Delete(ctx context.Context, path string) error {
	key := cleanKey(path)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return eris.Wrapf(err, "blob: delete %s", key)
	}
	return nil
}

// Size returns the stored (compressed) object size.
func (s *S3Store) Size(ctx context.Context, path string) (int64, error) {
	key := cleanKey(path)
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, eris.Wrapf(err, "blob: head %s", key)
	}
	if out.ContentLength == nil {
		return 0, nil
	}
	return *out.ContentLength, nil
}

// List returns every key under the prefix, recursively.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	prefix = cleanKey(prefix)
	var keys []string
	pager := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, eris.Wrapf(err, "blob: list %s", prefix)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

// ListFolders returns the delimiter-derived directories under the prefix.
func (s *S3Store) ListFolders(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = cleanKey(prefix)
	var folders []string
	pager := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, eris.Wrapf(err, "blob: list folders %s", prefix)
		}
		for _, cp := range page.CommonPrefixes {
			if cp.Prefix != nil {
				folders = append(folders, *cp.Prefix)
			}
		}
		if limit > 0 && len(folders) >= limit {
			return folders[:limit], nil
		}
	}
	return folders, nil
}

// Close is a no-op; the S3 client holds no persistent connection state.
func (s *S3Store) Close() error {
	return nil
}
