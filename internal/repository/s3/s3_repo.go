package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/edupgarcia/bulk-processing/internal/domain/usecase"
	"github.com/edupgarcia/bulk-processing/pkg/client/s3"
)

type S3Repo struct {
	StorageS3 *s3.StorageS3
}

func NewS3Repo(storageS3 *s3.StorageS3) *S3Repo {
	return &S3Repo{
		StorageS3: storageS3,
	}
}

func (s *S3Repo) client() (*minio.Client, error) {
	if s.StorageS3 == nil || s.StorageS3.Client == nil {
		return nil, fmt.Errorf("s3 client not initialized")
	}
	return s.StorageS3.Client, nil
}

func (s *S3Repo) Download(ctx context.Context, bucket, key, dstPath string) error {
	c, err := s.client()
	if err != nil {
		return err
	}
	if err := c.FGetObject(ctx, bucket, key, dstPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("s3 get object: %w", classify(err))
	}
	return nil
}

func (s *S3Repo) UploadFile(ctx context.Context, bucket, key, srcPath string) error {
	c, err := s.client()
	if err != nil {
		return err
	}
	_, err = c.FPutObject(ctx, bucket, key, srcPath, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", classify(err))
	}
	return nil
}

func (s *S3Repo) Upload(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	c, err := s.client()
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = c.PutObject(
		ctx,
		bucket,
		key,
		bytes.NewReader(body),
		int64(len(body)),
		minio.PutObjectOptions{
			ContentType: contentType,
		},
	)
	if err != nil {
		return fmt.Errorf("s3 put object: %w", classify(err))
	}
	return nil
}

// List returns every object under prefix, directory markers excluded.
func (s *S3Repo) List(ctx context.Context, bucket, prefix string) ([]usecase.ObjectInfo, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}

	var out []usecase.ObjectInfo
	for obj := range c.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("s3 list objects: %w", classify(obj.Err))
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		out = append(out, usecase.ObjectInfo{Key: obj.Key, Size: obj.Size})
	}
	return out, nil
}

func (s *S3Repo) Read(ctx context.Context, bucket, key string) ([]byte, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}

	obj, err := c.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("s3 get object: %w", classify(err))
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("s3 read object: %w", classify(err))
	}
	return data, nil
}

// classify maps S3 error codes that redelivery cannot fix onto the
// usecase not-found errors.
func classify(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchBucket":
		return fmt.Errorf("%w: %v", usecase.ErrBucketNotFound, err)
	case "NoSuchKey":
		return fmt.Errorf("%w: %v", usecase.ErrObjectNotFound, err)
	default:
		return err
	}
}
