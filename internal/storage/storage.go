// Package storage abstracts the object store holding uploaded document files.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrObjectNotFound is returned when a path does not exist in the bucket.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the blob surface consumed by the pipeline.
type ObjectStore interface {
	Download(ctx context.Context, bucket, path string) ([]byte, error)
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error
	SignedURL(ctx context.Context, bucket, path string, expiresIn time.Duration) (string, error)
	Remove(ctx context.Context, bucket string, paths []string) error
}

// MemoryObjectStore keeps blobs in memory for tests and local development.
type MemoryObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryObjectStore creates an empty in-memory object store.
func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{objects: make(map[string][]byte)}
}

func objectKey(bucket, path string) string {
	return bucket + "/" + path
}

func (m *MemoryObjectStore) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[objectKey(bucket, path)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, path, ErrObjectNotFound)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryObjectStore) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	m.objects[objectKey(bucket, path)] = stored
	return nil
}

func (m *MemoryObjectStore) SignedURL(ctx context.Context, bucket, path string, expiresIn time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[objectKey(bucket, path)]; !ok {
		return "", fmt.Errorf("%s/%s: %w", bucket, path, ErrObjectNotFound)
	}
	return fmt.Sprintf("memory://%s/%s?expires=%d", bucket, path, time.Now().Add(expiresIn).Unix()), nil
}

func (m *MemoryObjectStore) Remove(ctx context.Context, bucket string, paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range paths {
		delete(m.objects, objectKey(bucket, p))
	}
	return nil
}
