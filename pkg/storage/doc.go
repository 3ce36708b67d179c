// Package storage provides the Master's persisted state: Node records,
// TaskInstance records, and the encrypted Master RSA key, backed by an
// embedded bbolt database with one bucket per entity type.
//
// BoltStore is the only implementation. Reads use db.View, writes use
// db.Update; Create and Update share the same upsert put. All records are
// JSON-encoded.
package storage
