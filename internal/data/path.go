package data

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultRoot is the directory every canonical path lives under.
const DefaultRoot = "data"

const docExt = ".json"

// Codec maps logical identifiers to canonical paths.
//
// FilePath and DirPath are pure and idempotent: applying either to its own
// output returns the same string. Identifiers are NFC-normalized first so
// that visually identical ids share one document.
type Codec struct {
	Root string
}

// NewCodec returns a Codec rooted at root, or DefaultRoot when root is empty.
func NewCodec(root string) Codec {
	root = strings.Trim(strings.TrimSpace(root), "/")
	if root == "" {
		root = DefaultRoot
	}
	return Codec{Root: root}
}

func (c Codec) root() string {
	if c.Root == "" {
		return DefaultRoot
	}
	return c.Root
}

// FilePath returns "<root>/<id>.json". The root prefix and the extension are
// only added when missing.
func (c Codec) FilePath(id string) string {
	p := c.withRoot(id)
	if !strings.HasSuffix(p, docExt) {
		p += docExt
	}
	return p
}

// DirPath returns "<root>/<id>/" with any ".json" extension removed.
func (c Codec) DirPath(id string) string {
	p := c.withRoot(strings.TrimSuffix(norm.NFC.String(id), docExt))
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// Contains reports whether path is the canonical path of a document below dir.
func (c Codec) Contains(dir, path string) bool {
	return strings.HasPrefix(path, c.DirPath(dir))
}

// ID strips the root prefix and the extension from a canonical path.
func (c Codec) ID(path string) string {
	p := strings.TrimPrefix(path, c.root()+"/")
	return strings.TrimSuffix(p, docExt)
}

func (c Codec) withRoot(id string) string {
	id = norm.NFC.String(id)
	prefix := c.root() + "/"
	if strings.HasPrefix(id, prefix) {
		return id
	}
	return prefix + strings.TrimPrefix(id, "/")
}
