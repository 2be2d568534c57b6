// Package cache persists synthesized audio on disk so repeated cue texts
// skip the backend. Entries live in one SQLite database; PCM payloads are
// zstd-compressed when that makes them smaller.
package cache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/alnah/go-subvoice/internal/audio"
	"github.com/alnah/go-subvoice/internal/tts"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped when schema.sql changes incompatibly.
const schemaVersion = 1

// File names inside the cache directory.
const (
	dbName   = "cache.db"
	lockName = ".lock"
)

// minCompressSize skips compression for tiny payloads.
const minCompressSize = 1024

// Stats describes cache contents and this process's hit rate.
type Stats struct {
	Path     string
	Entries  int
	Bytes    int64
	MaxBytes int64
	Hits     int64
	Misses   int64
}

// HitRate returns hits over lookups, or 0 before any lookup.
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Cache is a size-bounded audio store with least-recently-used eviction.
// It is safe for concurrent use within one process; other processes are
// kept out by a lock file.
type Cache struct {
	dir      string
	maxBytes int64
	db       *sql.DB
	lock     *flock.Flock
	enc      *zstd.Encoder
	dec      *zstd.Decoder
	now      func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

var _ tts.Store = (*Cache)(nil)

// Open opens or creates the cache in dir. maxBytes bounds the stored
// payload size; zero or less means unbounded.
func Open(dir string, maxBytes int64) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire cache lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", dir, ErrLocked)
	}

	c := &Cache{dir: dir, maxBytes: maxBytes, lock: lock, now: time.Now}
	if err := c.init(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) init() error {
	var err error
	if c.enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)); err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	if c.dec, err = zstd.NewReader(nil); err != nil {
		return fmt.Errorf("create zstd decoder: %w", err)
	}

	c.db, err = sql.Open("sqlite", filepath.Join(c.dir, dbName))
	if err != nil {
		return fmt.Errorf("open cache db: %w", err)
	}
	c.db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := c.db.Exec(pragma); err != nil {
			return fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	return c.initSchema(context.Background())
}

func (c *Cache) initSchema(ctx context.Context) error {
	var exists int
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if exists == 1 {
		var version int
		if err := c.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		if version != schemaVersion {
			return fmt.Errorf("%w: database has version %d, expected %d (run 'subvoice cache clear' or delete %s)",
				ErrSchemaMismatch, version, schemaVersion, c.dir)
		}
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Get returns the audio stored under key. A corrupt entry is deleted and
// reported as a miss.
func (c *Cache) Get(ctx context.Context, key string) (audio.Buffer, bool, error) {
	var (
		rate, channels int
		compressed     bool
		data           []byte
	)
	err := c.db.QueryRowContext(ctx,
		"SELECT sample_rate, channels, compressed, data FROM entries WHERE key = ?", key,
	).Scan(&rate, &channels, &compressed, &data)
	if errors.Is(err, sql.ErrNoRows) {
		c.misses.Add(1)
		return audio.Buffer{}, false, nil
	}
	if err != nil {
		return audio.Buffer{}, false, fmt.Errorf("read cache entry: %w", err)
	}

	buf, err := c.decode(data, compressed, audio.Format{SampleRate: rate, Channels: channels})
	if err != nil {
		c.misses.Add(1)
		if _, derr := c.db.ExecContext(ctx, "DELETE FROM entries WHERE key = ?", key); derr != nil {
			return audio.Buffer{}, false, errors.Join(err, derr)
		}
		return audio.Buffer{}, false, nil
	}

	if _, err := c.db.ExecContext(ctx,
		"UPDATE entries SET accessed_at = ? WHERE key = ?", c.now().UnixNano(), key,
	); err != nil {
		return audio.Buffer{}, false, fmt.Errorf("touch cache entry: %w", err)
	}
	c.hits.Add(1)
	return buf, true, nil
}

func (c *Cache) decode(data []byte, compressed bool, f audio.Format) (audio.Buffer, error) {
	if compressed {
		raw, err := c.dec.DecodeAll(data, nil)
		if err != nil {
			return audio.Buffer{}, fmt.Errorf("decompress cache entry: %w", err)
		}
		data = raw
	}
	return audio.FromPCM16LE(data, f)
}

// Put stores buf under key, replacing any previous entry, then evicts the
// least recently used entries until the cache fits its budget.
func (c *Cache) Put(ctx context.Context, key string, buf audio.Buffer) error {
	data := buf.PCM16LE()
	compressed := false
	if len(data) > minCompressSize {
		if z := c.enc.EncodeAll(data, nil); len(z) < len(data) {
			data, compressed = z, true
		}
	}
	size := int64(len(data))
	if c.maxBytes > 0 && size > c.maxBytes {
		return fmt.Errorf("%d bytes over %d: %w", size, c.maxBytes, ErrTooLarge)
	}

	now := c.now().UnixNano()
	f := buf.Format()
	if _, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO entries (
            key, sample_rate, channels, compressed, size, data, created_at, accessed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key, f.SampleRate, f.Channels, compressed, size, data, now, now,
	); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return c.evict(ctx)
}

// evict deletes entries in access order until the total fits maxBytes.
func (c *Cache) evict(ctx context.Context) error {
	if c.maxBytes <= 0 {
		return nil
	}
	total, err := c.totalBytes(ctx)
	if err != nil {
		return err
	}
	for total > c.maxBytes {
		var (
			key  string
			size int64
		)
		err := c.db.QueryRowContext(ctx,
			"SELECT key, size FROM entries ORDER BY accessed_at ASC, created_at ASC LIMIT 1",
		).Scan(&key, &size)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select eviction candidate: %w", err)
		}
		if _, err := c.db.ExecContext(ctx, "DELETE FROM entries WHERE key = ?", key); err != nil {
			return fmt.Errorf("evict cache entry: %w", err)
		}
		total -= size
	}
	return nil
}

func (c *Cache) totalBytes(ctx context.Context) (int64, error) {
	var total int64
	if err := c.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(size), 0) FROM entries").Scan(&total); err != nil {
		return 0, fmt.Errorf("sum cache size: %w", err)
	}
	return total, nil
}

// Stats returns the current contents and this process's lookups.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	s := Stats{
		Path:     c.dir,
		MaxBytes: c.maxBytes,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
	}
	if err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(1), COALESCE(SUM(size), 0) FROM entries",
	).Scan(&s.Entries, &s.Bytes); err != nil {
		return Stats{}, fmt.Errorf("read cache stats: %w", err)
	}
	return s, nil
}

// Clear deletes every entry and returns how many were removed.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx, "DELETE FROM entries")
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, "VACUUM"); err != nil {
		return int(n), fmt.Errorf("vacuum cache: %w", err)
	}
	return int(n), nil
}

// Close releases the database, the codecs and the directory lock.
func (c *Cache) Close() error {
	var errs []error
	if c.db != nil {
		errs = append(errs, c.db.Close())
	}
	if c.enc != nil {
		errs = append(errs, c.enc.Close())
	}
	if c.dec != nil {
		c.dec.Close()
	}
	if c.lock != nil {
		errs = append(errs, c.lock.Unlock())
	}
	return errors.Join(errs...)
}
