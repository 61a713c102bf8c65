package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/charmbracelet/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"honestai/internal/config"
)

// MinioStore keeps blobs as objects in an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects and makes sure the bucket exists.
func NewMinioStore(ctx context.Context, cfg config.MinioConfig) (*MinioStore, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		log.Info("created blob bucket", "bucket", cfg.Bucket, "endpoint", cfg.Endpoint)
	}
	return &MinioStore{client: cli, bucket: cfg.Bucket}, nil
}

// Put streams r into the bucket. The size is unknown up front so minio-go
// falls back to a multipart upload.
func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return 0, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	info, err := s.client.PutObject(ctx, s.bucket, clean, r, -1, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return 0, fmt.Errorf("put object %s: %w", clean, err)
	}
	return info.Size, nil
}

// Exists stats the object.
func (s *MinioStore) Exists(ctx context.Context, key string) (bool, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	_, err = s.client.StatObject(ctx, s.bucket, clean, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object %s: %w", clean, err)
	}
	return true, nil
}

// LocalPath downloads the object into a temp file removed by release.
func (s *MinioStore) LocalPath(ctx context.Context, key string) (string, func(), error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", nil, err
	}
	dir, err := os.MkdirTemp("", "honestai-blob-*")
	if err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}
	release := func() { os.RemoveAll(dir) }

	// keep the original extension, collaborators may look at it
	local := dir + string(os.PathSeparator) + path.Base(clean)
	if err := s.client.FGetObject(ctx, s.bucket, clean, local, minio.GetObjectOptions{}); err != nil {
		release()
		if isNoSuchKey(err) {
			return "", nil, ErrNotExist
		}
		return "", nil, fmt.Errorf("download object %s: %w", clean, err)
	}
	return local, release, nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
