// Package stores provides the persistence layer. The SQLite implementation
// uses WAL mode with embedded migrations and records runs, per-task results,
// an append-only event log, TTL-cached host facts, and release archive builds.
package stores
