// Package storage 提供备份文件的对象存储上传
package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"z-novel-pipeline/internal/config"
)

const defaultRegion = "us-east-1"

// S3Uploader 将备份文件上传到 S3 兼容存储
type S3Uploader struct {
	client   *minio.Client
	bucket   string
	prefix   string
	region   string
	initOnce sync.Once
	initErr  error
}

// NewS3Uploader 创建上传器，存储桶在首次上传时按需创建
func NewS3Uploader(cfg config.BackupStorageConfig) (*S3Uploader, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("backup endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKeyID)
	secret := strings.TrimSpace(cfg.SecretAccessKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("backup access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("backup bucket is required")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: defaultRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	return &S3Uploader{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
		region: defaultRegion,
	}, nil
}

func (u *S3Uploader) ensureBucket(ctx context.Context) error {
	u.initOnce.Do(func() {
		exists, err := u.client.BucketExists(ctx, u.bucket)
		if err != nil {
			u.initErr = err
			return
		}
		if exists {
			return
		}
		u.initErr = u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{Region: u.region})
	})
	return u.initErr
}

// Upload 上传本地文件，key 形如 "<project>/story_<ts>.txt"
func (u *S3Uploader) Upload(ctx context.Context, key string, path string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("object key is required")
	}
	if err := u.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	_, err := u.client.FPutObject(ctx, u.bucket, u.objectKey(key), path, minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	return err
}

// Bucket 目标存储桶
func (u *S3Uploader) Bucket() string {
	return u.bucket
}

func (u *S3Uploader) objectKey(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if u.prefix == "" {
		return key
	}
	return u.prefix + "/" + key
}
