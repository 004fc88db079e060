package data

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_EvictsOnExternalEdit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, fb := createTestStore(t)
	require.True(t, Write(ctx, s, "bot/config", map[string]bool{"dev": false}).Result)

	w, err := NewWatcher(s)
	require.NoError(t, err)
	defer w.Close()
	go w.Run(ctx)

	file := filepath.Join(fb.Base(), "data", "bot", "config.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"dev": true}`), 0o644))

	assert.Eventually(t, func() bool {
		return !s.Cache().Has("data/bot/config.json")
	}, 2*time.Second, 10*time.Millisecond)

	v, ok := Read[map[string]bool](ctx, s, "bot/config")
	require.True(t, ok)
	assert.True(t, v["dev"])
}

func TestWatcher_RequiresFileBackend(t *testing.T) {
	_, err := NewWatcher(NewStore(NewMemoryBackend()))
	assert.Error(t, err)
}
