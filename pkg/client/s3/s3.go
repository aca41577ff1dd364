package s3

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type StorageS3 struct {
	Endpoint string
	Client   *minio.Client
}

func NewS3Client(endpoint, accessKeyID, secretKey string, useSSL bool, region string) (*StorageS3, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	return &StorageS3{
		Endpoint: endpoint,
		Client:   client,
	}, nil
}

// BucketExists reports whether bucket is reachable with the client's
// credentials.
func (s *StorageS3) BucketExists(ctx context.Context, bucket string) (bool, error) {
	ok, err := s.Client.BucketExists(ctx, bucket)
	if err != nil {
		return false, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	return ok, nil
}
