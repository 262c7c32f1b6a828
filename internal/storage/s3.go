package storage

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// S3Storage implements Provider on one bucket of an S3-compatible service
// (AWS S3, MinIO, etc.)
type S3Storage struct {
	client *minio.Client
	bucket string
	region string
}

// NewS3Storage creates a new S3-compatible storage provider bound to bucket
func NewS3Storage(endpoint, accessKey, secretKey, region, bucket string, useSSL bool) (*S3Storage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	log.Info().
		Str("endpoint", endpoint).
		Str("bucket", bucket).
		Bool("ssl", useSSL).
		Msg("S3-compatible storage initialized")

	return &S3Storage{
		client: client,
		bucket: bucket,
		region: region,
	}, nil
}

// Name returns the provider name
func (s3 *S3Storage) Name() string {
	return "s3"
}

// Health checks that the bucket is reachable
func (s3 *S3Storage) Health(ctx context.Context) error {
	exists, err := s3.client.BucketExists(ctx, s3.bucket)
	if err != nil {
		return fmt.Errorf("S3 health check failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("S3 bucket %s does not exist", s3.bucket)
	}
	return nil
}

// EnsureBucket creates the bucket if it does not exist
func (s3 *S3Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s3.client.BucketExists(ctx, s3.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	if err := s3.client.MakeBucket(ctx, s3.bucket, minio.MakeBucketOptions{Region: s3.region}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	log.Info().Str("bucket", s3.bucket).Msg("S3 bucket created")
	return nil
}

// Upload uploads an object to S3
func (s3 *S3Storage) Upload(ctx context.Context, key string, data io.Reader, size int64, opts *UploadOptions) (*Object, error) {
	if opts == nil {
		opts = &UploadOptions{}
	}

	info, err := s3.client.PutObject(ctx, s3.bucket, key, data, size, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	log.Debug().
		Str("bucket", s3.bucket).
		Str("key", key).
		Int64("size", info.Size).
		Msg("File uploaded to S3")

	return &Object{
		Key:          key,
		Size:         info.Size,
		ContentType:  opts.ContentType,
		LastModified: info.LastModified,
		ETag:         info.ETag,
	}, nil
}

// Download downloads an object from S3
func (s3 *S3Storage) Download(ctx context.Context, key string) (io.ReadCloser, *Object, error) {
	stat, err := s3.client.StatObject(ctx, s3.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to get object info: %w", err)
	}

	reader, err := s3.client.GetObject(ctx, s3.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download from S3: %w", err)
	}

	return reader, &Object{
		Key:          key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		LastModified: stat.LastModified,
		ETag:         stat.ETag,
	}, nil
}

// Exists checks if an object exists
func (s3 *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s3.client.StatObject(ctx, s3.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete deletes an object from S3
func (s3 *S3Storage) Delete(ctx context.Context, key string) error {
	if err := s3.client.RemoveObject(ctx, s3.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// List lists objects under prefix
func (s3 *S3Storage) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object

	for info := range s3.client.ListObjects(ctx, s3.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", info.Err)
		}
		objects = append(objects, Object{
			Key:          info.Key,
			Size:         info.Size,
			ContentType:  info.ContentType,
			LastModified: info.LastModified,
			ETag:         info.ETag,
		})
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}
