package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"log/slog"

	"golang.org/x/sys/unix"

	"clipd/internal/config"
	"clipd/internal/fileutil"
	"clipd/internal/logging"
	"clipd/internal/store"
)

// fingerprintBytes bounds how much of the source file feeds the digest.
// Hashing a fixed prefix keeps keys cheap for large inputs while the size
// suffix still separates files that share a prefix.
const fingerprintBytes = 1 << 20

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Manager handles storing, looking up, and expiring cached results.
type Manager struct {
	store  *store.Store
	root   string
	maxAge time.Duration
	logger *slog.Logger
	statfs statfsFunc
}

// Stats describes current cache usage.
type Stats struct {
	Entries      int64  `json:"entries"`
	TotalBytes   int64  `json:"total_bytes"`
	MaxAge       string `json:"max_age"`
	FreeBytes    uint64 `json:"free_bytes"`
	TotalFSBytes uint64 `json:"total_fs_bytes"`
}

// NewManager builds a cache manager when enabled; returns nil when caching is
// disabled or misconfigured. A nil manager is safe to use and behaves as a
// permanent miss.
func NewManager(cfg *config.Config, st *store.Store, logger *slog.Logger) *Manager {
	if cfg == nil || !cfg.Cache.Enabled || st == nil {
		return nil
	}
	root := strings.TrimSpace(cfg.Cache.Dir)
	if root == "" || cfg.Cache.MaxAgeSeconds <= 0 {
		return nil
	}
	return &Manager{
		store:  st,
		root:   root,
		maxAge: time.Duration(cfg.Cache.MaxAgeSeconds) * time.Second,
		logger: logging.NewComponentLogger(logger, "cache"),
		statfs: realStatfs,
	}
}

// Fingerprint digests the first megabyte of the file together with its size.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cache: open source: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("cache: stat source: %w", err)
	}

	hasher := sha256.New()
	if _, err := io.CopyN(hasher, f, fingerprintBytes); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("cache: read source: %w", err)
	}
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(info.Size()))
	hasher.Write(size[:])
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Key derives the cache key for one segment result from the source
// fingerprint, the operation, the segment range, and the operation
// parameters. Parameters are folded in sorted order so equal maps yield
// equal keys.
func Key(fingerprint, operation, segment string, params map[string]string) string {
	hasher := sha256.New()
	io.WriteString(hasher, fingerprint)
	io.WriteString(hasher, "\x00")
	io.WriteString(hasher, operation)
	io.WriteString(hasher, "\x00")
	io.WriteString(hasher, segment)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		io.WriteString(hasher, "\x00")
		io.WriteString(hasher, k)
		io.WriteString(hasher, "=")
		io.WriteString(hasher, params[k])
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// Lookup resolves a key to a cached output path. A stale row whose backing
// file disappeared is dropped and reported as a miss.
func (m *Manager) Lookup(ctx context.Context, key string) (string, bool, error) {
	if m == nil {
		return "", false, nil
	}
	entry, err := m.store.GetCacheEntry(ctx, key)
	if err != nil {
		return "", false, err
	}
	if entry == nil {
		return "", false, nil
	}
	if _, err := os.Stat(entry.OutputPath); err != nil {
		if deleteErr := m.store.DeleteCacheEntry(ctx, key); deleteErr != nil {
			return "", false, deleteErr
		}
		m.logger.WarnContext(ctx, "dropped cache entry with missing file",
			logging.String("cache_key", key),
			logging.String("output_path", entry.OutputPath),
		)
		return "", false, nil
	}
	return entry.OutputPath, true, nil
}

// Store moves a freshly produced result into the cache directory and records
// it. The returned path is the durable cache location; src no longer exists
// on success.
func (m *Manager) Store(ctx context.Context, key, operation, src string) (string, error) {
	if m == nil {
		return "", nil
	}
	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("cache: stat result: %w", err)
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return "", fmt.Errorf("cache: create root: %w", err)
	}

	dest := filepath.Join(m.root, key+filepath.Ext(src))
	if err := os.Rename(src, dest); err != nil {
		// Rename fails across filesystems; fall back to a verified copy.
		if copyErr := fileutil.CopyFileVerified(src, dest); copyErr != nil {
			return "", fmt.Errorf("cache: place result: %w", copyErr)
		}
		_ = os.Remove(src)
	}

	entry := store.CacheEntry{
		Key:        key,
		OutputPath: dest,
		SizeBytes:  info.Size(),
		Operation:  operation,
	}
	if err := m.store.UpsertCacheEntry(ctx, entry); err != nil {
		return "", err
	}
	m.logger.InfoContext(ctx, "stored cache entry",
		logging.String("cache_key", key),
		logging.String("output_path", dest),
		logging.Int64("size_bytes", info.Size()),
	)
	return dest, nil
}

// EvictExpired removes entries older than the configured maximum age along
// with their backing files. Returns the number of entries removed.
func (m *Manager) EvictExpired(ctx context.Context) (int, error) {
	if m == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-m.maxAge)
	paths, err := m.store.DeleteCacheEntriesBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.WarnContext(ctx, "failed to remove expired cache file",
				logging.String("output_path", path),
				logging.Error(err),
			)
		}
	}
	if len(paths) > 0 {
		m.logger.InfoContext(ctx, "evicted expired cache entries",
			logging.Int("evicted", len(paths)),
		)
	}
	return len(paths), nil
}

// Stats returns current cache usage and filesystem free-space info.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if m == nil {
		return s, nil
	}
	count, bytes, err := m.store.CacheTotals(ctx)
	if err != nil {
		return s, err
	}
	total, free, err := m.statfs(m.root)
	if err != nil {
		return s, fmt.Errorf("cache: statfs: %w", err)
	}
	return Stats{
		Entries:      count,
		TotalBytes:   bytes,
		MaxAge:       m.maxAge.String(),
		FreeBytes:    free,
		TotalFSBytes: total,
	}, nil
}

// Root returns the cache directory, or empty when caching is disabled.
func (m *Manager) Root() string {
	if m == nil {
		return ""
	}
	return m.root
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
