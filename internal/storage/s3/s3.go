// Package s3 is the blob store for attachment bodies, backed by any
// S3-compatible service through minio-go.
package s3

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/venkatram-2005/Quick-Share/configs"
	"github.com/venkatram-2005/Quick-Share/internal/apperr"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

func ConfigFrom(cfg *configs.Config) Config {
	return Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		UseSSL:    cfg.S3UseSSL,
		Bucket:    cfg.S3Bucket,
	}
}

// Object is a listing entry.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

type Storage struct {
	cfg    Config
	client *minio.Client
}

func New(cfg Config) (*Storage, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "http://"), "https://")
	cl, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &Storage{cfg: cfg, client: cl}, nil
}

func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return err
	}
	if !exists {
		return s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{})
	}
	return nil
}

// Put streams size bytes from r under key.
func (s *Storage) Put(ctx context.Context, key, contentType string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return classify("blob.put", err)
}

// Get opens key for reading. A missing key is NotFound.
func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, classify("blob.get", err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, 0, classify("blob.get", err)
	}
	return obj, info.Size, nil
}

// Remove deletes key. Removing an absent key succeeds.
func (s *Storage) Remove(ctx context.Context, key string) error {
	return classify("blob.remove", s.client.RemoveObject(ctx, s.cfg.Bucket, key, minio.RemoveObjectOptions{}))
}

// RemovePrefix deletes every object whose key starts with prefix.
func (s *Storage) RemovePrefix(ctx context.Context, prefix string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	objects := s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	listErr := make(chan error, 1)
	keys := make(chan minio.ObjectInfo)
	go func() {
		defer close(listErr)
		defer close(keys)
		for o := range objects {
			if o.Err != nil {
				listErr <- o.Err
				return
			}
			select {
			case keys <- o:
			case <-ctx.Done():
				return
			}
		}
	}()
	var errs []error
	for e := range s.client.RemoveObjects(ctx, s.cfg.Bucket, keys, minio.RemoveObjectsOptions{}) {
		errs = append(errs, e.Err)
	}
	// Unblocks the lister if RemoveObjects stopped reading, then waits for it.
	cancel()
	if err := <-listErr; err != nil {
		errs = append(errs, err)
	}
	return classify("blob.remove_prefix", errors.Join(errs...))
}

// Walk calls fn for every object under prefix. Listing stops at the first
// error fn returns.
func (s *Storage) Walk(ctx context.Context, prefix string, fn func(Object) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for o := range s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if o.Err != nil {
			return classify("blob.list", o.Err)
		}
		if err := fn(Object{Key: o.Key, Size: o.Size, LastModified: o.LastModified}); err != nil {
			return err
		}
	}
	return nil
}

// PresignGet returns a time-limited download URL that names the file.
func (s *Storage) PresignGet(ctx context.Context, key, fileName string, ttl time.Duration) (*url.URL, error) {
	params := make(url.Values)
	if fileName != "" {
		params.Set("response-content-disposition", `attachment; filename="`+strings.ReplaceAll(fileName, `"`, "")+`"`)
	}
	u, err := s.client.PresignedGetObject(ctx, s.cfg.Bucket, key, ttl, params)
	return u, classify("blob.presign", err)
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject":
		return apperr.NotFound(op, apperr.ReasonNotFound, "blob not found")
	}
	return apperr.FromStore(op, err)
}
