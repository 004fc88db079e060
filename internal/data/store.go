package data

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Presence reports where a document was found. Result is Cache OR File.
type Presence struct {
	Cache  bool `json:"cache"`
	File   bool `json:"file"`
	Result bool `json:"result"`
}

// Outcome reports a mutation across both layers. Result is Cache AND File.
type Outcome struct {
	Cache  bool `json:"cache"`
	File   bool `json:"file"`
	Result bool `json:"result"`
}

func outcome(cache, file bool) Outcome {
	return Outcome{Cache: cache, File: file, Result: cache && file}
}

// Metrics receives one observation per facade operation.
type Metrics interface {
	ObserveStoreOp(op string, ok bool)
}

// Store is the facade every feature reads and writes through.
//
// Typed access goes through the package-level Read, Write and ForEachUnder
// functions, since methods cannot carry type parameters.
type Store struct {
	codec    Codec
	cache    *Cache
	backend  Backend
	rollback bool
	metrics  Metrics
	log      *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithCodec sets the path codec. Default: NewCodec(DefaultRoot).
func WithCodec(c Codec) StoreOption {
	return func(s *Store) {
		s.codec = c
	}
}

// WithCache shares an existing cache.
func WithCache(c *Cache) StoreOption {
	return func(s *Store) {
		s.cache = c
	}
}

// WithCacheRollback controls what happens to the cache when the backend
// rejects a write. Enabled (default): the cache entry is restored so the
// cache never holds a value the backend lacks. Disabled: the cache keeps the
// new value and only the Outcome reports the failure.
func WithCacheRollback(enabled bool) StoreOption {
	return func(s *Store) {
		s.rollback = enabled
	}
}

// WithMetrics records facade operations.
func WithMetrics(m Metrics) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

// NewStore layers a fresh cache over backend.
func NewStore(backend Backend, opts ...StoreOption) *Store {
	s := &Store{
		codec:    NewCodec(DefaultRoot),
		backend:  backend,
		rollback: true,
		log:      slog.With("component", "data.store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = NewCache()
	}
	return s
}

// Codec returns the store's path codec.
func (s *Store) Codec() Codec { return s.codec }

// Cache returns the store's cache layer.
func (s *Store) Cache() *Cache { return s.cache }

// Backend returns the store's durable layer.
func (s *Store) Backend() Backend { return s.backend }

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Exists reports whether id is present in either layer.
func (s *Store) Exists(ctx context.Context, id string) Presence {
	path := s.codec.FilePath(id)
	inCache := s.cache.Has(path)
	inFile := s.backend.Has(ctx, path)
	p := Presence{Cache: inCache, File: inFile, Result: inCache || inFile}
	s.observe("exists", p.Result)
	return p
}

// Remove deletes id from both layers.
func (s *Store) Remove(ctx context.Context, id string) Outcome {
	path := s.codec.FilePath(id)
	prev, existed := s.cache.Get(path)
	cacheOK := s.cache.Delete(path)
	fileOK := s.backend.Delete(ctx, path)
	if !fileOK && existed && s.rollback && s.backend.Has(ctx, path) {
		s.cache.restore(path, prev, true)
	}
	o := outcome(cacheOK, fileOK)
	if !o.Result {
		s.log.Debug("remove incomplete", "doc", id, "cache", cacheOK, "file", fileOK)
	}
	s.observe("remove", o.Result)
	return o
}

// Invalidate drops the cached value at a canonical path so the next read
// goes to the backend.
func (s *Store) Invalidate(path string) bool {
	return s.cache.Delete(path)
}

// ClearCache drops every cached value.
func (s *Store) ClearCache() {
	s.cache.Clear()
}

// CachedIDs returns the identifiers currently held in the cache.
func (s *Store) CachedIDs() []string {
	paths := s.cache.Paths()
	ids := make([]string, len(paths))
	for i, p := range paths {
		ids[i] = s.codec.ID(p)
	}
	return ids
}

func (s *Store) observe(op string, ok bool) {
	if s.metrics != nil {
		s.metrics.ObserveStoreOp(op, ok)
	}
}

// Read returns the document at id decoded as T.
//
// The caller owns the returned value: it is a copy, never the cached value.
// A cached value is returned without touching the backend. On a miss the
// backend is consulted and a hit populates the cache.
func Read[T any](ctx context.Context, s *Store, id string) (T, bool) {
	path := s.codec.FilePath(id)
	if cached, ok := s.cache.Get(path); ok {
		if v, ok := convert[T](cached); ok {
			s.observe("read", true)
			return v, true
		}
		s.log.Warn("cached value has unexpected shape", "doc", id)
	}

	var zero T
	raw, ok := s.backend.Get(ctx, path)
	if !ok {
		s.observe("read", false)
		return zero, false
	}
	var v, cached T
	if err := json.Unmarshal(raw, &v); err != nil {
		s.log.Error("decode document", "doc", id, "error", err)
		s.observe("read", false)
		return zero, false
	}
	_ = json.Unmarshal(raw, &cached)
	s.cache.Set(path, cached)
	s.observe("read", true)
	return v, true
}

// Write stores v at id in the cache and then the backend. The cache keeps its
// own copy, so later changes to v are not seen until the next Write.
func Write[T any](ctx context.Context, s *Store, id string, v T) Outcome {
	path := s.codec.FilePath(id)
	raw, err := encode(v)
	if err != nil {
		s.log.Error("encode document", "doc", id, "error", err)
		s.observe("write", false)
		return Outcome{}
	}

	var cached T
	if err := json.Unmarshal(raw, &cached); err != nil {
		s.log.Error("copy document", "doc", id, "error", err)
		s.observe("write", false)
		return Outcome{}
	}

	prev, existed := s.cache.Get(path)
	cacheOK := s.cache.Set(path, cached)
	fileOK := s.backend.Set(ctx, path, raw)
	if !fileOK && s.rollback {
		s.cache.restore(path, prev, existed)
	}
	o := outcome(cacheOK, fileOK)
	if !o.Result {
		s.log.Warn("write incomplete", "doc", id, "cache", cacheOK, "file", fileOK)
	}
	s.observe("write", o.Result)
	return o
}

// ForEachUnder visits every document below id, cached entries first and then
// backend entries. A document held in both layers is visited twice. A value
// that cannot be decoded as T, or a visitor error, is logged and skipped.
func ForEachUnder[T any](ctx context.Context, s *Store, id string, visit func(v T, path string) error) Outcome {
	dir := s.codec.DirPath(id)

	cacheOK := s.cache.List(dir, func(path string, cached any) {
		v, ok := convert[T](cached)
		if !ok {
			s.log.Error("decode cached document", "path", path)
			return
		}
		if err := visit(v, path); err != nil {
			s.log.Error("visit cached document", "path", path, "error", err)
		}
	})

	fileOK := s.backend.List(ctx, dir, func(path string, raw []byte) error {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		return visit(v, path)
	})

	o := outcome(cacheOK, fileOK)
	s.observe("for_each", o.Result)
	return o
}

// convert decodes a fresh T from a cached value. Going through JSON every
// time means no slice or map is shared between the cache and a caller.
func convert[T any](cached any) (T, bool) {
	var v T
	raw, err := json.Marshal(cached)
	if err != nil {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false
	}
	return v, true
}
