// Package preview keeps downloaded images addressable by blob URLs for on-screen display.
package preview

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Scheme prefixes every URL the registry issues.
const Scheme = "blob:"

// Blob is one registered image.
type Blob struct {
	ContentType string
	Data        []byte
}

// Registry maps blob URLs to image bytes until they are revoked.
type Registry struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

func NewRegistry() *Registry {
	return &Registry{blobs: make(map[string]Blob)}
}

// Create stores a copy of data and returns its URL.
func (r *Registry) Create(data []byte, contentType string) string {
	url := Scheme + uuid.NewString()
	r.mu.Lock()
	r.blobs[url] = Blob{ContentType: contentType, Data: append([]byte(nil), data...)}
	r.mu.Unlock()
	return url
}

// Get returns a copy of the blob behind url.
func (r *Registry) Get(url string) (Blob, bool) {
	r.mu.RLock()
	blob, ok := r.blobs[url]
	r.mu.RUnlock()
	if !ok {
		return Blob{}, false
	}
	return Blob{ContentType: blob.ContentType, Data: append([]byte(nil), blob.Data...)}, true
}

// Revoke releases url. Unknown or empty URLs are ignored.
func (r *Registry) Revoke(url string) {
	if url == "" {
		return
	}
	r.mu.Lock()
	delete(r.blobs, url)
	r.mu.Unlock()
}

// Len reports how many blobs are live.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}

// ID strips the scheme, giving the path segment used by the blob route.
func ID(url string) string {
	return strings.TrimPrefix(url, Scheme)
}

// URL is the inverse of ID.
func URL(id string) string {
	return Scheme + id
}
