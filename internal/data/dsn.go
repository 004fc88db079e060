package data

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// ErrInvalidDSN is returned for empty or unparseable backend DSNs.
var ErrInvalidDSN = errors.New("invalid backend dsn")

// BackendFactory builds a Backend from a DSN.
type BackendFactory func(dsn string) (Backend, error)

var backendFactories = struct {
	mu        sync.RWMutex
	factories map[string]BackendFactory
}{
	factories: map[string]BackendFactory{},
}

// RegisterBackendFactory makes a custom scheme available to OpenBackend.
// Registered schemes take precedence over the built-in ones.
func RegisterBackendFactory(scheme string, factory BackendFactory) {
	scheme = normalizeScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	backendFactories.mu.Lock()
	defer backendFactories.mu.Unlock()
	backendFactories.factories[scheme] = factory
}

func lookupBackendFactory(scheme string) (BackendFactory, bool) {
	backendFactories.mu.RLock()
	defer backendFactories.mu.RUnlock()
	f, ok := backendFactories.factories[scheme]
	return f, ok
}

// OpenBackend builds a Backend from dsn. A bare path is treated as a file
// backend base directory; an empty dsn means the working directory.
func OpenBackend(dsn string) (Backend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return NewFileBackend("."), nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDSN, err)
	}
	scheme := normalizeScheme(parsed.Scheme)
	if factory, ok := lookupBackendFactory(scheme); ok {
		return factory(dsn)
	}
	switch scheme {
	case "", "file":
		return NewFileBackend(dsnPath(parsed, dsn, ".")), nil
	case "memory", "mem":
		return NewMemoryBackend(), nil
	case "sqlite", "sqlite3":
		path := dsnPath(parsed, dsn, "")
		if path == "" {
			return nil, fmt.Errorf("%w: sqlite dsn needs a database path", ErrInvalidDSN)
		}
		return OpenSQLite(path)
	case "postgres", "postgresql":
		return NewPostgresBackend(dsn)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidDSN, parsed.Scheme)
	}
}

// dsnPath extracts a filesystem path from a parsed DSN. "file://data" and
// "file:data" both yield "data"; "file:///srv/bot" yields "/srv/bot".
func dsnPath(parsed *url.URL, raw, fallback string) string {
	if parsed.Scheme == "" {
		return raw
	}
	path := parsed.Host + parsed.Path
	if path == "" {
		path = parsed.Opaque
	}
	if strings.TrimSpace(path) == "" {
		return fallback
	}
	return path
}

func normalizeScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}
