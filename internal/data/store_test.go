package data

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roleEntry struct {
	RoleID string `json:"role_id"`
	Emoji  string `json:"emoji"`
}

// createTestStore opens a file-backed store in a temp directory.
func createTestStore(t *testing.T, opts ...StoreOption) (*Store, *FileBackend) {
	t.Helper()
	fb := NewFileBackend(t.TempDir())
	s := NewStore(fb, opts...)
	t.Cleanup(func() { s.Close() })
	return s, fb
}

// brokenStore returns a store whose backend cannot create directories.
func brokenStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	return NewStore(NewFileBackend(blocker), opts...)
}

func TestStore_ReadThrough(t *testing.T) {
	ctx := context.Background()
	s, fb := createTestStore(t)
	path := s.Codec().FilePath("bot/config")

	require.True(t, fb.Set(ctx, path, []byte(`{"dev":true}`)))
	assert.False(t, s.Cache().Has(path))

	v, ok := Read[map[string]bool](ctx, s, "bot/config")
	require.True(t, ok)
	assert.Equal(t, map[string]bool{"dev": true}, v)
	assert.True(t, s.Cache().Has(path), "backend hit populates the cache")
}

func TestStore_ReadServesCacheWithoutBackend(t *testing.T) {
	ctx := context.Background()
	s, fb := createTestStore(t)

	require.True(t, Write(ctx, s, "x", "cached").Result)
	require.True(t, fb.Delete(ctx, s.Codec().FilePath("x")))

	v, ok := Read[string](ctx, s, "x")
	require.True(t, ok)
	assert.Equal(t, "cached", v)
}

func TestStore_ReadMissing(t *testing.T) {
	s, _ := createTestStore(t)
	v, ok := Read[[]roleEntry](context.Background(), s, "role/none")
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestStore_ReadConvertsCachedType(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)
	require.True(t, Write(ctx, s, "role/G_U", []roleEntry{{RoleID: "1", Emoji: "x"}}).Result)

	raw, ok := Read[[]map[string]string](ctx, s, "role/G_U")
	require.True(t, ok)
	assert.Equal(t, []map[string]string{{"role_id": "1", "emoji": "x"}}, raw)
}

func TestStore_RoundTrip(t *testing.T) {
	type nested struct {
		Name  string            `json:"name"`
		Tags  []string          `json:"tags"`
		Meta  map[string]string `json:"meta"`
		Count int               `json:"count"`
	}
	ctx := context.Background()
	want := nested{Name: "n", Tags: []string{"a", "b"}, Meta: map[string]string{"k": "v"}, Count: 3}

	s, fb := createTestStore(t)
	require.True(t, Write(ctx, s, "things/one", want).Result)

	got, ok := Read[nested](ctx, s, "things/one")
	require.True(t, ok)
	assert.Equal(t, want, got)

	// A fresh store over the same files reads the same value from disk.
	fresh := NewStore(fb)
	got, ok = Read[nested](ctx, fresh, "things/one")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestStore_RoleRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, fb := createTestStore(t)
	want := []roleEntry{{RoleID: "1", Emoji: "x"}}

	require.True(t, Write(ctx, s, "role/G_U", want).Result)

	got, ok := Read[[]roleEntry](ctx, s, "role/G_U")
	require.True(t, ok)
	assert.Equal(t, want, got)

	// Key order in the stored document does not matter.
	path := s.Codec().FilePath("role/G_U")
	require.True(t, fb.Set(ctx, path, []byte(`[{"emoji":"x","role_id":"1"}]`)))
	got, ok = Read[[]roleEntry](ctx, NewStore(fb), "role/G_U")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestStore_WriteConjunction(t *testing.T) {
	ctx := context.Background()

	t.Run("rollback", func(t *testing.T) {
		s := brokenStore(t)
		out := Write(ctx, s, "role/G_U", []roleEntry{{RoleID: "1"}})
		assert.Equal(t, Outcome{Cache: true, File: false, Result: false}, out)
		assert.False(t, s.Cache().Has(s.Codec().FilePath("role/G_U")), "cache entry is rolled back")
		assert.False(t, s.Exists(ctx, "role/G_U").Result)
	})

	t.Run("rollback restores previous value", func(t *testing.T) {
		s := brokenStore(t)
		path := s.Codec().FilePath("k")
		s.Cache().Set(path, "old")

		out := Write(ctx, s, "k", "new")
		assert.False(t, out.Result)
		v, ok := Read[string](ctx, s, "k")
		require.True(t, ok)
		assert.Equal(t, "old", v)
	})

	t.Run("optimistic", func(t *testing.T) {
		s := brokenStore(t, WithCacheRollback(false))
		out := Write(ctx, s, "role/G_U", []roleEntry{{RoleID: "1"}})
		assert.False(t, out.Result)
		assert.True(t, out.Cache)
		assert.False(t, out.File)
		assert.True(t, s.Cache().Has(s.Codec().FilePath("role/G_U")), "cache keeps the optimistic value")
	})
}

func TestStore_WriteUnencodable(t *testing.T) {
	s, _ := createTestStore(t)
	out := Write(context.Background(), s, "bad", map[string]any{"ch": make(chan int)})
	assert.Equal(t, Outcome{}, out)
	assert.False(t, s.Exists(context.Background(), "bad").Result)
}

func TestStore_Exists(t *testing.T) {
	ctx := context.Background()
	s, fb := createTestStore(t)

	assert.Equal(t, Presence{}, s.Exists(ctx, "a"))

	require.True(t, fb.Set(ctx, s.Codec().FilePath("a"), []byte(`1`)))
	assert.Equal(t, Presence{Cache: false, File: true, Result: true}, s.Exists(ctx, "a"))

	s.Cache().Set(s.Codec().FilePath("b"), 2)
	assert.Equal(t, Presence{Cache: true, File: false, Result: true}, s.Exists(ctx, "b"))
}

func TestStore_RemoveConjunction(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)

	assert.False(t, s.Exists(ctx, "ghost").Result)
	out := s.Remove(ctx, "ghost")
	assert.False(t, out.Result)
	assert.False(t, s.Exists(ctx, "ghost").Result)

	require.True(t, Write(ctx, s, "real", 1).Result)
	out = s.Remove(ctx, "real")
	assert.Equal(t, Outcome{Cache: true, File: true, Result: true}, out)
	assert.False(t, s.Exists(ctx, "real").Result)
}

func TestStore_ForEachUnderScoping(t *testing.T) {
	ctx := context.Background()
	s, fb := createTestStore(t)

	require.True(t, Write(ctx, s, "mail/archive/G/C1", []string{"one"}).Result)
	require.True(t, fb.Set(ctx, s.Codec().FilePath("mail/archive/G/C2"), []byte(`["two"]`)))
	require.True(t, Write(ctx, s, "mail/archive/OTHER/C3", []string{"three"}).Result)
	require.True(t, Write(ctx, s, "mail/archive/GG/C4", []string{"four"}).Result)

	var paths []string
	out := ForEachUnder(ctx, s, "mail/archive/G", func(v []string, path string) error {
		paths = append(paths, path)
		return nil
	})
	assert.True(t, out.Result)

	for _, p := range paths {
		assert.Contains(t, p, "data/mail/archive/G/")
	}
	sort.Strings(paths)
	// C1 lives in both layers and is visited twice.
	assert.Equal(t, []string{
		"data/mail/archive/G/C1.json",
		"data/mail/archive/G/C1.json",
		"data/mail/archive/G/C2.json",
	}, paths)
}

func TestStore_ForEachUnderMissingDirectory(t *testing.T) {
	s, _ := createTestStore(t)
	out := ForEachUnder(context.Background(), s, "mail/none", func(int, string) error { return nil })
	assert.True(t, out.Cache)
	assert.False(t, out.File)
	assert.False(t, out.Result)
}

func TestStore_CachedIDsAndClear(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)
	Write(ctx, s, "b/2", 2)
	Write(ctx, s, "a/1", 1)

	assert.Equal(t, []string{"a/1", "b/2"}, s.CachedIDs())
	s.ClearCache()
	assert.Empty(t, s.CachedIDs())

	v, ok := Read[int](ctx, s, "a/1")
	require.True(t, ok, "cleared entries are reloaded from the backend")
	assert.Equal(t, 1, v)
}

type countingMetrics struct {
	ops map[string][2]int
}

func (m *countingMetrics) ObserveStoreOp(op string, ok bool) {
	c := m.ops[op]
	if ok {
		c[0]++
	} else {
		c[1]++
	}
	m.ops[op] = c
}

func TestStore_Metrics(t *testing.T) {
	ctx := context.Background()
	m := &countingMetrics{ops: map[string][2]int{}}
	s, _ := createTestStore(t, WithMetrics(m))

	Write(ctx, s, "a", 1)
	Read[int](ctx, s, "a")
	Read[int](ctx, s, "missing")
	s.Remove(ctx, "a")

	assert.Equal(t, [2]int{1, 0}, m.ops["write"])
	assert.Equal(t, [2]int{1, 1}, m.ops["read"])
	assert.Equal(t, [2]int{1, 0}, m.ops["remove"])
}

func TestStore_CallersDoNotShareCachedValues(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend())

	roles := []roleEntry{{RoleID: "R1", Emoji: "🎮"}}
	require.True(t, Write(ctx, s, "role/G_U", roles).Result)

	// Mutating the written slice does not reach the cache.
	roles[0].RoleID = "changed"
	got, ok := Read[[]roleEntry](ctx, s, "role/G_U")
	require.True(t, ok)
	assert.Equal(t, "R1", got[0].RoleID)

	// Nor does mutating a value returned by Read.
	got[0].RoleID = "changed again"
	got = append(got, roleEntry{RoleID: "R2"})
	again, ok := Read[[]roleEntry](ctx, s, "role/G_U")
	require.True(t, ok)
	assert.Equal(t, []roleEntry{{RoleID: "R1", Emoji: "🎮"}}, again)

	// The same holds for a value that was filled from the backend.
	s.ClearCache()
	fromBackend, ok := Read[map[string]any](ctx, s, "bot/none")
	assert.False(t, ok)
	assert.Nil(t, fromBackend)

	require.True(t, Write(ctx, s, "bot/config", map[string]any{"dev": true}).Result)
	s.ClearCache()
	cfg, ok := Read[map[string]any](ctx, s, "bot/config")
	require.True(t, ok)
	cfg["dev"] = false
	cfg2, ok := Read[map[string]any](ctx, s, "bot/config")
	require.True(t, ok)
	assert.Equal(t, true, cfg2["dev"])
}
