package client

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
)

// StorageClient defines the interface for object storage operations
type StorageClient interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string, meta map[string]string) (string, error)
	Delete(ctx context.Context, key string) error
	GetPublicURL(key string) string
}

// ObjectKey builds the storage key of a generated asset:
// stories/{storyId}/scenes/{sceneId}/{assetType}/{assetType}_{taskId}.{ext}
func ObjectKey(storyID, sceneID, assetType, taskID, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "bin"
	}
	name := fmt.Sprintf("%s_%s.%s", assetType, taskID, ext)
	return path.Join("stories", storyID, "scenes", sceneID, assetType, name)
}

// MemoryStorage keeps objects in process memory. It backs local runs
// without a bucket and tests.
type MemoryStorage struct {
	mu        sync.RWMutex
	objects   map[string]StoredObject
	publicURL string
}

type StoredObject struct {
	Data        []byte
	ContentType string
	Meta        map[string]string
}

func NewMemoryStorage(publicURL string) *MemoryStorage {
	if publicURL == "" {
		publicURL = "memory://assets"
	}
	return &MemoryStorage{
		objects:   make(map[string]StoredObject),
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

func (m *MemoryStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string, meta map[string]string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read upload body: %w", err)
	}
	m.mu.Lock()
	m.objects[key] = StoredObject{Data: data, ContentType: contentType, Meta: meta}
	m.mu.Unlock()
	return m.GetPublicURL(key), nil
}

func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) GetPublicURL(key string) string {
	return fmt.Sprintf("%s/%s", m.publicURL, key)
}

// Object returns a stored object, used by tests and diagnostics.
func (m *MemoryStorage) Object(key string) (StoredObject, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj, ok
}
