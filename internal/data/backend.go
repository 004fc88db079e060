package data

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
)

// Backend is durable storage for JSON documents keyed by canonical path.
//
// Implementations never surface errors: every failure is logged and reported
// as false (or absent for Get). Values travel as raw JSON; Set stores them
// tab-indented so files stay readable by hand.
type Backend interface {
	// Has reports whether a document exists at path.
	Has(ctx context.Context, path string) bool
	// Get returns the document at path. Missing or malformed documents are absent.
	Get(ctx context.Context, path string) ([]byte, bool)
	// Set stores raw at path, creating any missing parent directories.
	Set(ctx context.Context, path string, raw []byte) bool
	// Delete removes the document at path. Missing documents report false.
	Delete(ctx context.Context, path string) bool
	// List visits every document directly or indirectly under dir, in no
	// particular order. It reports false only when dir itself cannot be listed.
	List(ctx context.Context, dir string, visit Visitor) bool
	Close() error
}

// Visitor receives one document per call. Returning an error skips the
// document without stopping the listing.
type Visitor func(path string, raw []byte) error

// ErrMalformed marks a stored document that is not valid JSON.
var ErrMalformed = errors.New("malformed document")

// encode renders v as tab-indented JSON.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "\t")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// pretty re-indents raw JSON, failing with ErrMalformed on invalid input.
func pretty(raw []byte) ([]byte, error) {
	if !json.Valid(raw) {
		return nil, ErrMalformed
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "\t"); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
