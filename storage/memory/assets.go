package memory

import (
	"context"
	"fmt"
	"io"
	stdSync "sync"
)

// Assets is an in-memory feed.AssetStore. Uploaded blobs are retained and
// addressed by a stable mem:// URL.
type Assets struct {
	mu    stdSync.Mutex
	blobs map[string][]byte
}

// NewAssets creates an empty in-memory asset store.
func NewAssets() *Assets {
	return &Assets{blobs: make(map[string][]byte)}
}

// Upload stores the blob under folder/name and returns its retrieval URL.
func (a *Assets) Upload(ctx context.Context, folder, name string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("mem://%s/%s", folder, name)

	a.mu.Lock()
	a.blobs[url] = data
	a.mu.Unlock()
	return url, nil
}

// Get returns the blob stored under url.
func (a *Assets) Get(url string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.blobs[url]
	return data, ok
}
