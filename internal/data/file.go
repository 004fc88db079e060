package data

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileBackend stores each document as a file below Base. Canonical paths are
// slash-separated and relative to Base.
type FileBackend struct {
	base string
	log  *slog.Logger
}

// NewFileBackend returns a backend rooted at base ("." when empty).
func NewFileBackend(base string) *FileBackend {
	if strings.TrimSpace(base) == "" {
		base = "."
	}
	return &FileBackend{
		base: base,
		log:  slog.With("component", "data.file", "base", base),
	}
}

// Base returns the directory canonical paths are resolved against.
func (b *FileBackend) Base() string {
	return b.base
}

func (b *FileBackend) osPath(path string) string {
	return filepath.Join(b.base, filepath.FromSlash(path))
}

func (b *FileBackend) Has(_ context.Context, path string) bool {
	info, err := os.Stat(b.osPath(path))
	return err == nil && info.Mode().IsRegular()
}

func (b *FileBackend) Get(_ context.Context, path string) ([]byte, bool) {
	raw, err := os.ReadFile(b.osPath(path))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			b.log.Error("read document", "path", path, "error", err)
		}
		return nil, false
	}
	if !json.Valid(raw) {
		b.log.Error("read document", "path", path, "error", ErrMalformed)
		return nil, false
	}
	return raw, true
}

func (b *FileBackend) Set(_ context.Context, path string, raw []byte) bool {
	body, err := pretty(raw)
	if err != nil {
		b.log.Error("encode document", "path", path, "error", err)
		return false
	}
	full := b.osPath(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		b.log.Error("create directory", "path", path, "error", err)
		return false
	}
	if err := os.WriteFile(full, body, 0o644); err != nil {
		b.log.Error("write document", "path", path, "error", err)
		return false
	}
	return true
}

func (b *FileBackend) Delete(_ context.Context, path string) bool {
	if err := os.Remove(b.osPath(path)); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			b.log.Error("delete document", "path", path, "error", err)
		}
		return false
	}
	return true
}

func (b *FileBackend) List(ctx context.Context, dir string, visit Visitor) bool {
	root := b.osPath(dir)
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		switch {
		case err == nil:
			b.log.Error("list directory", "dir", dir, "error", errors.New("not a directory"))
		case errors.Is(err, fs.ErrNotExist):
			// Nothing stored under dir yet.
			b.log.Debug("list directory", "dir", dir, "error", err)
		default:
			b.log.Error("list directory", "dir", dir, "error", err)
		}
		return false
	}

	err = filepath.WalkDir(root, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			b.log.Error("walk directory", "path", full, "error", err)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.base, full)
		if err != nil {
			return nil
		}
		path := filepath.ToSlash(rel)
		raw, ok := b.Get(ctx, path)
		if !ok {
			return nil
		}
		if err := visit(path, raw); err != nil {
			b.log.Error("visit document", "path", path, "error", err)
		}
		return nil
	})
	if err != nil {
		b.log.Error("list directory", "dir", dir, "error", err)
		return false
	}
	return true
}

func (b *FileBackend) Close() error {
	return nil
}
