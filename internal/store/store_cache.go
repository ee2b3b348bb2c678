package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertCacheEntry records a cached result. A concurrent write for the same
// key wins by arriving last; both writers produced identical bytes anyway.
func (s *Store) UpsertCacheEntry(ctx context.Context, entry CacheEntry) error {
	ctx = ensureContext(ctx)
	now := time.Now()
	created := entry.CreatedAt
	if created.IsZero() {
		created = now
	}
	accessed := entry.LastAccessedAt
	if accessed.IsZero() {
		accessed = now
	}
	_, err := s.execWithRetry(ctx, `
		INSERT INTO cache_entries (key, output_path, size_bytes, operation, created_at, last_accessed_at, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			output_path = excluded.output_path,
			size_bytes = excluded.size_bytes,
			operation = excluded.operation,
			created_at = excluded.created_at,
			last_accessed_at = excluded.last_accessed_at`,
		entry.Key, entry.OutputPath, entry.SizeBytes, entry.Operation,
		timestamp(created), timestamp(accessed), entry.AccessCount)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

// GetCacheEntry looks up a cache entry by key and bumps its access
// statistics. Returns (nil, nil) when the key is absent.
func (s *Store) GetCacheEntry(ctx context.Context, key string) (*CacheEntry, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `
		SELECT key, output_path, size_bytes, operation, created_at, last_accessed_at, access_count
		FROM cache_entries WHERE key = ?`, key)

	entry, err := scanCacheEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cache entry: %w", err)
	}

	if _, err := s.execWithRetry(ctx, `
		UPDATE cache_entries SET last_accessed_at = ?, access_count = access_count + 1
		WHERE key = ?`, timestamp(time.Now()), key); err != nil {
		return nil, fmt.Errorf("touch cache entry: %w", err)
	}
	entry.AccessCount++
	return entry, nil
}

// DeleteCacheEntry removes a single entry, typically after its backing file
// went missing.
func (s *Store) DeleteCacheEntry(ctx context.Context, key string) error {
	_, err := s.execWithRetry(ensureContext(ctx), "DELETE FROM cache_entries WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// DeleteCacheEntriesBefore removes entries created before the cutoff and
// returns the output paths of the deleted rows so callers can remove the
// backing files.
func (s *Store) DeleteCacheEntriesBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT output_path FROM cache_entries WHERE created_at < ?", timestamp(cutoff))
	if err != nil {
		return nil, fmt.Errorf("list expired cache entries: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scan expired cache entry: %w", err)
		}
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired cache entries: %w", err)
	}

	if _, err := s.execWithRetry(ctx,
		"DELETE FROM cache_entries WHERE created_at < ?", timestamp(cutoff)); err != nil {
		return nil, fmt.Errorf("delete expired cache entries: %w", err)
	}
	return paths, nil
}

// ListCacheEntries returns all entries ordered newest first.
func (s *Store) ListCacheEntries(ctx context.Context) ([]CacheEntry, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, output_path, size_bytes, operation, created_at, last_accessed_at, access_count
		FROM cache_entries ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []CacheEntry
	for rows.Next() {
		entry, err := scanCacheEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache entries: %w", err)
	}
	return entries, nil
}

// CacheTotals reports the number of entries and their combined size.
func (s *Store) CacheTotals(ctx context.Context) (count int64, bytes int64, err error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT COUNT(1), COALESCE(SUM(size_bytes), 0) FROM cache_entries")
	if err := row.Scan(&count, &bytes); err != nil {
		return 0, 0, fmt.Errorf("cache totals: %w", err)
	}
	return count, bytes, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCacheEntry(row rowScanner) (*CacheEntry, error) {
	var (
		entry    CacheEntry
		created  string
		accessed string
	)
	if err := row.Scan(&entry.Key, &entry.OutputPath, &entry.SizeBytes, &entry.Operation,
		&created, &accessed, &entry.AccessCount); err != nil {
		return nil, err
	}
	entry.CreatedAt = parseTimestamp(created)
	entry.LastAccessedAt = parseTimestamp(accessed)
	return &entry, nil
}
