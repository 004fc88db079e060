package data

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
)

// MemoryBackend keeps documents in a map. Values are copied on the way in
// and out so callers cannot mutate stored bytes.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string][]byte)}
}

func (b *MemoryBackend) Has(_ context.Context, path string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.docs[path]
	return ok
}

func (b *MemoryBackend) Get(_ context.Context, path string) ([]byte, bool) {
	b.mu.RLock()
	raw, ok := b.docs[path]
	b.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !json.Valid(raw) {
		slog.Error("read document", "component", "data.memory", "path", path, "error", ErrMalformed)
		return nil, false
	}
	return clone(raw), true
}

func (b *MemoryBackend) Set(_ context.Context, path string, raw []byte) bool {
	body, err := pretty(raw)
	if err != nil {
		slog.Error("encode document", "component", "data.memory", "path", path, "error", err)
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs[path] = body
	return true
}

// Put stores raw bytes without validation. Tests use it to plant malformed documents.
func (b *MemoryBackend) Put(path string, raw []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs[path] = clone(raw)
}

func (b *MemoryBackend) Delete(_ context.Context, path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.docs[path]; !ok {
		return false
	}
	delete(b.docs, path)
	return true
}

func (b *MemoryBackend) List(ctx context.Context, dir string, visit Visitor) bool {
	b.mu.RLock()
	paths := make([]string, 0, len(b.docs))
	for p := range b.docs {
		if strings.HasPrefix(p, dir) {
			paths = append(paths, p)
		}
	}
	b.mu.RUnlock()

	for _, p := range paths {
		raw, ok := b.Get(ctx, p)
		if !ok {
			continue
		}
		if err := visit(p, raw); err != nil {
			slog.Error("visit document", "component", "data.memory", "path", p, "error", err)
		}
	}
	return true
}

// Len returns the number of stored documents.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.docs)
}

func (b *MemoryBackend) Close() error {
	return nil
}

func clone(raw []byte) []byte {
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}
