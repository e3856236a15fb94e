package report

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Uploader stores a rendered report and returns where it was put.
type Uploader interface {
	Upload(ctx context.Context, name string, body []byte) (string, error)
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

func NewMinioClient(cfg MinioConfig) (*minio.Client, error) {
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
}

type MinioUploader struct {
	client *minio.Client
	bucket string
}

func NewMinioUploader(client *minio.Client, bucket string) *MinioUploader {
	return &MinioUploader{client: client, bucket: bucket}
}

func (u *MinioUploader) Upload(ctx context.Context, name string, body []byte) (string, error) {
	_, err := u.client.PutObject(ctx, u.bucket, name, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: ContentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload report to %s: %w", u.bucket, err)
	}
	return u.bucket + "/" + name, nil
}

// ReadyCheck verifies the bucket exists.
func (u *MinioUploader) ReadyCheck(ctx context.Context) error {
	ok, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", u.bucket)
	}
	return nil
}
