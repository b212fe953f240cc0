// Package storage provides the append-only event store used by beacon.
//
// # Overview
//
// Telemetry events are immutable facts. Once inserted they are never updated;
// the only destructive operation is DeleteAll, which is reserved for the admin
// CLI and tests. Reports are always derived from the stored events on demand.
//
// # Interfaces
//
// The store is composed from small capabilities:
//
//   - EventWriter: Insert assigns an id and appends the event
//   - EventReader: Find and Count over secondary fields (session, identity,
//     step, status, timestamp range)
//   - EventAggregator: Aggregate groups matching events by one or more fields
//   - Admin: DeleteAll
//   - HealthChecker: HealthCheck
//
// EventStore composes all of them plus Close.
//
// # Ordering
//
// Find returns events ordered by timestamp. Events with equal timestamps keep
// insertion order, so session reports are deterministic even when installers
// emit several events within the same microsecond.
//
// # Backends
//
// MemoryStore keeps everything in process memory and is the default for
// development:
//
//	store := storage.NewMemoryStore()
//
// FileSystemStore appends JSON lines to events.jsonl under a root directory
// and rebuilds its index on open:
//
//	store, err := storage.NewFileSystemStore("/var/lib/beacon")
//
// The SQL backend in the postgres subpackage speaks both PostgreSQL and
// SQLite:
//
//	store, err := postgres.NewStore(storage.Config{
//		Type:        "postgres",
//		PostgresURL: "postgres://localhost/beacon?sslmode=disable",
//	})
//
// # Filters
//
// Filter fields left at their zero value do not constrain the result. Since is
// inclusive and Until is exclusive:
//
//	since := time.Now().Add(-24 * time.Hour)
//	n, err := store.Count(ctx, storage.Filter{Step: "install", Since: &since})
//
// Null values are reported as empty strings by Aggregate and FieldValue.
package storage
