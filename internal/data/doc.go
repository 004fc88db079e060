// Package data is the document store behind every guildbot feature.
//
// Documents are JSON values addressed by slash-delimited identifiers such as
// "mail/config/123" or "role/123_456". An identifier maps to a canonical path
// through a Codec ("data/mail/config/123.json"), and the Store layers an
// in-memory Cache over a durable Backend:
//
//   - Exists is a disjunction: cached OR durable.
//   - Read is read-through: a cache miss loads from the backend and fills the cache.
//   - Write and Remove are write-through and report a conjunction of both layers.
//   - ForEachUnder visits every document below a directory in both layers.
//
// Backends never return errors to callers. Failures are logged with slog and
// reported as false or absent, so a feature callback decides what a failed
// write means for its user.
//
// Backends are selected by DSN:
//
//	file://./         JSON files below the working directory (default)
//	sqlite://bot.db   one row per document in SQLite
//	postgres://...    one row per document in Postgres
//	memory://         process-local map, used by tests and dry runs
package data
