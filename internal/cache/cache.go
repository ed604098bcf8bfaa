// Package cache implements the Whole-File Cache (spec.md §4.E):
// mapping remote paths to local scratch files with reference counts,
// materialising on first open and flushing-and-discarding on last
// close. Ported from original_source/bbfs.c's cache_open/cache_close.
package cache

import (
	"context"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// DefaultMax is the suggested cache cardinality from spec.md §3
// (CACHE_MAX), matching original_source/params.h's CACHE_SIZE.
const DefaultMax = 1024

// Sentinel errors surfaced to callers (spec.md §7: cache capacity and
// local I/O errors are per-operation failures).
var (
	ErrCacheFull = errors.New("cache: table is full")
	ErrNotCached = errors.New("cache: remote path is not open")
)

// transfer is the subset of *remote.Session the cache needs to
// materialise and flush a file, kept as an interface so tests don't need
// a real SSH session.
type transfer interface {
	CopyIn(ctx context.Context, remotePath string) ([]byte, error)
	CopyOut(ctx context.Context, remotePath string, data []byte, mode os.FileMode) error
}

// entry is one materialised remote file (spec.md §3's CacheEntry).
type entry struct {
	localPath string
	refCount  int
}

// Table maps remote absolute paths to CacheEntry records, enforcing
// CacheMax cardinality (spec.md §3's CacheTable).
type Table struct {
	mu       sync.Mutex
	entries  map[string]*entry
	max      int
	fs       afero.Fs
	scratch  string
	sess     transfer
	pathLock *pathLock
}

// NewTable constructs an empty cache table. scratchDir holds the
// materialised scratch files; fs abstracts local storage (production
// callers pass afero.NewOsFs()). max <= 0 uses DefaultMax.
func NewTable(fs afero.Fs, scratchDir string, sess transfer, max int) (*Table, error) {
	if max <= 0 {
		max = DefaultMax
	}
	if err := fs.MkdirAll(scratchDir, 0o700); err != nil {
		return nil, errors.Wrap(err, "cache: create scratch directory")
	}
	return &Table{
		entries:  make(map[string]*entry),
		max:      max,
		fs:       fs,
		scratch:  scratchDir,
		sess:     sess,
		pathLock: newPathLock(),
	}, nil
}

// Size returns the number of currently-materialised entries.
func (t *Table) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Open materialises remotePath on first open (pulling its contents via
// CopyIn) or, if already materialised, increments its ref count and
// returns the existing scratch path. This implements the
// Absent -> Materialised(1) / Materialised(n) -> Materialised(n+1)
// transitions of spec.md §4.F's state machine.
func (t *Table) Open(ctx context.Context, remotePath string) (string, error) {
	t.pathLock.Lock(remotePath)
	defer t.pathLock.Unlock(remotePath)

	t.mu.Lock()
	if e, ok := t.entries[remotePath]; ok {
		e.refCount++
		local := e.localPath
		t.mu.Unlock()
		return local, nil
	}
	if len(t.entries) >= t.max {
		t.mu.Unlock()
		return "", ErrCacheFull
	}
	t.mu.Unlock()

	data, err := t.sess.CopyIn(ctx, remotePath)
	if err != nil {
		return "", errors.Wrap(err, "cache: materialise")
	}

	localPath := t.scratch + "/" + uuid.New().String()
	if err := afero.WriteFile(t.fs, localPath, data, 0o600); err != nil {
		return "", errors.Wrap(err, "cache: write scratch file")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Re-check under the lock: a concurrent Open for the same path would
	// have blocked on pathLock, so this can only happen if the table
	// filled up between our capacity check and now.
	if len(t.entries) >= t.max {
		_ = t.fs.Remove(localPath)
		return "", ErrCacheFull
	}
	t.entries[remotePath] = &entry{localPath: localPath, refCount: 1}
	return localPath, nil
}

// Close decrements remotePath's ref count. When it reaches zero, the
// scratch file's current contents are flushed back to the remote host
// via CopyOut and the entry is removed — the Materialised(1) -> Flushed
// -> Absent transition of spec.md §4.F. A failed flush still removes the
// entry (the scratch file's contents have nowhere safer to go, per
// spec.md §7) but the error is propagated to the caller.
func (t *Table) Close(ctx context.Context, remotePath string) error {
	t.pathLock.Lock(remotePath)
	defer t.pathLock.Unlock(remotePath)

	t.mu.Lock()
	e, ok := t.entries[remotePath]
	if !ok {
		t.mu.Unlock()
		return ErrNotCached
	}
	e.refCount--
	if e.refCount > 0 {
		t.mu.Unlock()
		return nil
	}
	localPath := e.localPath
	delete(t.entries, remotePath)
	t.mu.Unlock()

	data, err := afero.ReadFile(t.fs, localPath)
	if err != nil {
		_ = t.fs.Remove(localPath)
		return errors.Wrap(err, "cache: read scratch file for flush")
	}
	flushErr := t.sess.CopyOut(ctx, remotePath, data, 0o600)
	_ = t.fs.Remove(localPath)
	if flushErr != nil {
		return errors.Wrap(flushErr, "cache: flush to remote")
	}
	return nil
}
