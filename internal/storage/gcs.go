package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore implements ObjectStore on Google Cloud Storage.
type GCSStore struct {
	client *gcs.Client
}

// NewGCSStore creates a client using application default credentials, or the
// given options (e.g. option.WithCredentialsFile for local development).
func NewGCSStore(ctx context.Context, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{client: client}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	r, err := s.client.Bucket(bucket).Object(path).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s/%s: %w", bucket, path, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("open %s/%s: %w", bucket, path, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", bucket, path, err)
	}
	return data, nil
}

func (s *GCSStore) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	w := s.client.Bucket(bucket).Object(path).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s/%s: %w", bucket, path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize %s/%s: %w", bucket, path, err)
	}
	return nil
}

func (s *GCSStore) SignedURL(ctx context.Context, bucket, path string, expiresIn time.Duration) (string, error) {
	url, err := s.client.Bucket(bucket).SignedURL(path, &gcs.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: time.Now().Add(expiresIn),
		Scheme:  gcs.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("sign %s/%s: %w", bucket, path, err)
	}
	return url, nil
}

func (s *GCSStore) Remove(ctx context.Context, bucket string, paths []string) error {
	for _, p := range paths {
		err := s.client.Bucket(bucket).Object(p).Delete(ctx)
		if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
			return fmt.Errorf("delete %s/%s: %w", bucket, p, err)
		}
	}
	return nil
}
