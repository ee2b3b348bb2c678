// Package store provides SQLite-backed persistence for clipd.
//
// It holds the durable state that must survive restarts: cache entry
// records, the per-owner admission request log, owner profiles, operation
// history, and named parameter templates. In-flight jobs are deliberately
// not persisted; a restart is a cold start.
package store
