// Package sqlite provides a unified SQLite-based implementation of the
// kbsynth storage ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO. One database backs three stores:
//
//   - KBStore: partitioned documents, metadata and clusters
//   - KnowledgeBaseStore: knowledge base registry and defaults
//   - SeedStore: build idea seeds, completion markers and failures
//
// # Partitioning
//
// Every partitioned table leads its primary key with kb_id, and every query
// binds kb_id. Partition handles are bound to one KB when they are created;
// there is no query that spans knowledge bases.
//
// # Schema
//
// Migrations live in migrations/ as NNN_name.up.sql with a matching
// .down.sql for manual rollback. PRAGMA user_version holds the last applied
// number; each migration and its version bump commit together.
//
// # Data Location
//
// By default, the database is stored at ~/.kbsynth/data/kbsynth.db
package sqlite
