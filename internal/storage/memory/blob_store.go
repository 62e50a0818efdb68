// Package memory stores archived pages in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/joalvis1996/archive-saver-web/internal/archive"
)

// Object is a stored page and its content type.
type Object struct {
	ContentType string
	Data        []byte
}

// BlobStore stores artifacts in-memory and returns memory:// links.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		objects: make(map[string]Object),
	}
}

// Upload persists a copy of data under path.
func (s *BlobStore) Upload(_ context.Context, path string, contentType string, data []byte) error {
	if path == "" {
		return fmt.Errorf("%w: path is required", archive.ErrStorage)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = Object{ContentType: contentType, Data: append([]byte(nil), data...)}
	return nil
}

// ShareableLink returns a pseudo link for an existing object.
func (s *BlobStore) ShareableLink(_ context.Context, path string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[path]; !ok {
		return "", fmt.Errorf("%w: object %q not found", archive.ErrStorage, path)
	}
	return "memory://" + path, nil
}

// Delete drops the object at path.
func (s *BlobStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, path)
	return nil
}

// Object returns the stored object at path.
func (s *BlobStore) Object(path string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	return obj, ok
}
