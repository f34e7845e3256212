// Package storage defines the blob storage provider used to deliver report
// files. This abstraction allows the bot to be independent of a specific
// storage implementation (e.g., Google Cloud Storage or any S3-compatible
// object store).
package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

const pdfContentType = "application/pdf"

// Provider defines the common interface for a blob storage provider.
type Provider interface {
	// Upload saves the object and returns a public URL the group chat
	// can open.
	Upload(ctx context.Context, objectName string, data []byte) (string, error)

	// Close cleans up any client connections and resources.
	Close() error
}

// ObjectKey builds the blob key from an optional prefix and the file name.
func ObjectKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	name = strings.TrimPrefix(name, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// NoOpProvider discards uploads. It is useful for running the bot without
// object storage; report links are replaced by an explanatory message.
type NoOpProvider struct{}

// Upload for NoOpProvider does nothing and returns an empty URL.
func (n *NoOpProvider) Upload(_ context.Context, _ string, _ []byte) (string, error) {
	return "", nil
}

// Close for NoOpProvider does nothing and returns nil.
func (n *NoOpProvider) Close() error { return nil }

// MemoryProvider keeps uploads in memory for tests and local development.
type MemoryProvider struct {
	mu      sync.Mutex
	objects map[string][]byte

	// BaseURL forms the returned links, "memory://" when empty.
	BaseURL string
}

// NewMemoryProvider constructs an empty MemoryProvider.
func NewMemoryProvider(baseURL string) *MemoryProvider {
	if baseURL == "" {
		baseURL = "memory:/"
	}
	return &MemoryProvider{
		objects: make(map[string][]byte),
		BaseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Upload stores a copy of the data under the object name.
func (m *MemoryProvider) Upload(_ context.Context, objectName string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectName] = append([]byte(nil), data...)
	return fmt.Sprintf("%s/%s", m.BaseURL, objectName), nil
}

// Object returns a stored object and whether it exists.
func (m *MemoryProvider) Object(objectName string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objectName]
	return data, ok
}

// Len reports the number of stored objects.
func (m *MemoryProvider) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// Close for MemoryProvider does nothing and returns nil.
func (m *MemoryProvider) Close() error { return nil }
