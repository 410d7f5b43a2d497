package minio

import (
	"bytes"
	"context"

	"giveaway-fulfillment/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Client = fx.Module("minio.client", fx.Provide(registerClient))

// registerClient returns nil when MINIO.ENDPOINT is empty.
func registerClient(c *config.Config) (*minio.Client, error) {
	if c.Minio.Endpoint == "" {
		return nil, nil
	}
	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("[MinIO] client initialized", zap.String("endpoint", c.Minio.Endpoint), zap.String("bucket", c.Minio.BucketName))
	return client, nil
}

// Uploader writes export files to one bucket.
type Uploader struct {
	client *minio.Client
	bucket string
}

func NewUploader(client *minio.Client, bucket string) *Uploader {
	return &Uploader{client: client, bucket: bucket}
}

// Put stores data under name, creating the bucket on first use, and returns the
// object key.
func (u *Uploader) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
			return "", err
		}
		zap.L().Info("[MinIO] bucket created", zap.String("bucket", u.bucket))
	}

	info, err := u.client.PutObject(ctx, u.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	zap.L().Info("[MinIO] object uploaded", zap.String("bucket", u.bucket), zap.String("key", info.Key), zap.Int64("size", info.Size))
	return info.Key, nil
}
