package storage

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// s3Operator serves an S3-compatible bucket, optionally under a key
// prefix, through the MinIO client.
type s3Operator struct {
	client *minio.Client
	bucket string
	prefix string
}

func newS3Operator(cfg S3Config) (*s3Operator, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, &StorageError{Op: "init", Path: cfg.Endpoint, Err: err}
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &s3Operator{client: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

func (o *s3Operator) key(p string) string {
	return o.prefix + strings.TrimPrefix(p, "/")
}

func (o *s3Operator) entry(info minio.ObjectInfo) Entry {
	rel := strings.TrimPrefix(info.Key, o.prefix)
	return Entry{
		Path:         rel,
		Name:         path.Base(rel),
		IsFile:       !strings.HasSuffix(info.Key, "/"),
		Size:         info.Size,
		LastModified: info.LastModified,
	}
}

func (o *s3Operator) List(ctx context.Context, limit int) ([]Entry, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var entries []Entry
	for info := range o.client.ListObjects(ctx, o.bucket, minio.ListObjectsOptions{
		Prefix:    o.prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, info.Err
		}
		entries = append(entries, o.entry(info))
		if len(entries) >= limit {
			break
		}
	}
	return entries, nil
}

func (o *s3Operator) Stat(ctx context.Context, p string) (Entry, error) {
	info, err := o.client.StatObject(ctx, o.bucket, o.key(p), minio.StatObjectOptions{})
	if err != nil {
		return Entry{}, err
	}
	e := o.entry(info)
	e.Path = p
	e.Name = path.Base(p)
	return e, nil
}

func (o *s3Operator) Open(ctx context.Context, p string) (Reader, error) {
	obj, err := o.client.GetObject(ctx, o.bucket, o.key(p), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject defers the request, so surface a missing key now.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

func (o *s3Operator) Write(ctx context.Context, p string, r io.Reader) error {
	_, err := o.client.PutObject(ctx, o.bucket, o.key(p), r, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

func (o *s3Operator) Delete(ctx context.Context, p string) error {
	return o.client.RemoveObject(ctx, o.bucket, o.key(p), minio.RemoveObjectOptions{})
}
