// Package fsops implements the Operation Dispatcher (spec.md §4.F):
// FS satisfies cgofuse's FileSystemInterface by translating every
// kernel-facing callback into path translation (internal/pathtrans),
// remote metadata probes (internal/attr), fixed remote command
// templates (internal/remote), and whole-file cache materialisation
// (internal/cache), ported operation-for-operation from
// original_source/bbfs.c's fuse_operations table.
package fsops

import (
	"context"
	"errors"
	"io"
	"os"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/winfsp/cgofuse/fuse"

	"github.com/kuroni/rsshfs/internal/attr"
	"github.com/kuroni/rsshfs/internal/mountcfg"
	"github.com/kuroni/rsshfs/internal/pathtrans"
	"github.com/kuroni/rsshfs/internal/remote"
)

// sessioner is the subset of *remote.Session the dispatcher needs,
// narrowed to an interface so FS can be exercised without a live SSH
// connection (the same pattern internal/attr's execer uses).
type sessioner interface {
	Exec(ctx context.Context, command string) ([]byte, error)
}

// cacher is the subset of *cache.Table the dispatcher needs.
type cacher interface {
	Open(ctx context.Context, remotePath string) (string, error)
	Close(ctx context.Context, remotePath string) error
}

// FS implements fuse.FileSystemInterface over one mountcfg.Config. It
// carries no package-level state: every collaborator (session, cache,
// logger, remote root) is a field set at construction time, per
// spec.md §9's resolution of the "global mutable state" open question.
//
// FS does not defend against concurrent writers to the same path beyond
// what internal/cache already serialises (spec.md's "no concurrent-writer
// safety" non-goal, left unchanged).
type FS struct {
	fuse.FileSystemBase

	remoteRoot string
	logger     *logrus.Entry
	session    sessioner
	cache      cacher
	handles    *handleTable
}

// New builds a dispatcher bound to cfg. The caller mounts the returned
// FS via fuse.NewFileSystemHost.
func New(cfg *mountcfg.Config) *FS {
	return newFS(cfg.RemoteRoot, cfg.Log, cfg.Session, cfg.Cache)
}

func newFS(remoteRoot string, logger *logrus.Entry, session sessioner, cache cacher) *FS {
	return &FS{
		remoteRoot: remoteRoot,
		logger:     logger,
		session:    session,
		cache:      cache,
		handles:    newHandleTable(),
	}
}

func (fs *FS) full(path string) (string, error) {
	return pathtrans.Full(fs.remoteRoot, path)
}

func (fs *FS) log(op, path string) *logrus.Entry {
	return fs.logger.WithFields(logrus.Fields{"op": op, "path": path})
}

func (fs *FS) logErr(entry *logrus.Entry, err error) {
	if err != nil {
		entry.WithError(err).Debug("fsops: operation failed")
	}
}

// Init is invoked once the kernel has accepted the mount.
func (fs *FS) Init() {
	fs.logger.Info("fsops: mounted")
}

// Destroy is invoked when the mount is torn down. The session itself is
// owned and closed by the caller of fuse.FileSystemHost.Mount, not here,
// since Destroy has no way to report an error.
func (fs *FS) Destroy() {
	fs.logger.Info("fsops: unmounted")
}

// Getattr fills stat from the Remote Metadata Probe (4.D). fgetattr
// shares this dispatcher entry (cgofuse has no separate fgetattr slot;
// it always passes fh), but per spec.md §4.F and bb_fgetattr, a path
// other than "/" with an open file handle is answered from the local
// scratch file directly with a local fstat, skipping the remote probe
// entirely. "/" and any call without a live file handle keep going
// through the remote probe.
func (fs *FS) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	entry := fs.log("getattr", path)

	if fh != invalidHandle && path != "/" {
		if h, ok := fs.handles.get(fh); ok && h.kind == handleFile {
			fi, err := h.file.Stat()
			if err != nil {
				fs.logErr(entry, err)
				return errnoFor(err)
			}
			fillStatFromLocal(stat, fi)
			return 0
		}
	}

	remoteAbs, err := fs.full(path)
	if err != nil {
		fs.logErr(entry, err)
		return errnoFor(err)
	}

	rec, err := attr.Stat(context.Background(), fs.session, remoteAbs)
	if err != nil {
		fs.logErr(entry, err)
		return errnoFor(err)
	}
	fillStat(stat, rec)
	return 0
}

const invalidHandle = ^uint64(0)

func fillStat(stat *fuse.Stat_t, rec attr.Record) {
	*stat = fuse.Stat_t{}
	stat.Dev = rec.Dev
	stat.Ino = rec.Ino
	stat.Mode = rec.Mode
	stat.Nlink = rec.Nlink
	stat.Uid = rec.UID
	stat.Gid = rec.GID
	stat.Rdev = rec.Rdev
	stat.Size = rec.Size
	stat.Atim = fuse.Timespec{Sec: rec.Atime}
	stat.Mtim = fuse.Timespec{Sec: rec.Mtime}
	stat.Ctim = fuse.Timespec{Sec: rec.Ctime}
	stat.Blksize = rec.BlkSize
	stat.Blocks = rec.Blocks
}

// fillStatFromLocal populates stat from the local scratch file's
// os.FileInfo, pulling the raw fields out of its syscall.Stat_t the way
// backend/local/stat_unix.go does for the portable os.FileInfo it can't
// get Dev/Ino/Nlink/Uid/Gid/Rdev/Blocks from directly.
func fillStatFromLocal(stat *fuse.Stat_t, fi os.FileInfo) {
	*stat = fuse.Stat_t{}
	stat.Size = fi.Size()
	mtime := fi.ModTime()
	stat.Mtim = fuse.Timespec{Sec: mtime.Unix(), Nsec: int64(mtime.Nanosecond())}
	stat.Atim = stat.Mtim
	stat.Ctim = stat.Mtim

	si, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	stat.Dev = uint64(si.Dev)
	stat.Ino = si.Ino
	stat.Mode = si.Mode
	stat.Nlink = uint32(si.Nlink)
	stat.Uid = si.Uid
	stat.Gid = si.Gid
	stat.Rdev = uint64(si.Rdev)
	stat.Blksize = int64(si.Blksize)
	stat.Blocks = si.Blocks
	stat.Atim = fuse.Timespec{Sec: si.Atim.Sec, Nsec: si.Atim.Nsec}
	stat.Mtim = fuse.Timespec{Sec: si.Mtim.Sec, Nsec: si.Mtim.Nsec}
	stat.Ctim = fuse.Timespec{Sec: si.Ctim.Sec, Nsec: si.Ctim.Nsec}
}

// Statfs issues the fixed `stat -f` command template from spec.md
// §4.F's table: "stat -f -c \"%b %f %a %s\" -- <path>".
func (fs *FS) Statfs(path string, stat *fuse.Statfs_t) int {
	entry := fs.log("statfs", path)
	remoteAbs, err := fs.full(path)
	if err != nil {
		fs.logErr(entry, err)
		return errnoFor(err)
	}

	cmd := `stat -f -c "%b %f %a %s" -- ` + remote.ShellEscape(remoteAbs)
	out, err := fs.session.Exec(context.Background(), cmd)
	if err != nil {
		fs.logErr(entry, err)
		return errnoFor(err)
	}

	var blocks, bfree, bavail, bsize uint64
	if n := scanFields(string(out), &blocks, &bfree, &bavail, &bsize); n != 4 {
		entry.Debug("fsops: malformed statfs output")
		return -fuse.EIO
	}

	*stat = fuse.Statfs_t{}
	stat.Bsize = bsize
	stat.Frsize = bsize
	stat.Blocks = blocks
	stat.Bfree = bfree
	stat.Bavail = bavail
	return 0
}

// scanFields extracts consecutive decimal integers from s in order,
// filling dst and returning how many were found.
func scanFields(s string, dst ...*uint64) int {
	n := 0
	var cur uint64
	var has bool
	flush := func() {
		if has && n < len(dst) {
			*dst[n] = cur
			n++
		}
		cur, has = 0, false
	}
	for _, r := range s {
		if r >= '0' && r <= '9' {
			cur = cur*10 + uint64(r-'0')
			has = true
			continue
		}
		flush()
	}
	flush()
	return n
}

// Open materialises remoteAbs into the whole-file cache (4.E) and
// returns a file handle over the local scratch copy.
func (fs *FS) Open(path string, flags int) (int, uint64) {
	return fs.openFile(path)
}

// Create behaves like Open for a path that does not exist remotely yet:
// the remote file is created with the fixed `: >` template (the one
// attrops.go's Mknod uses for regular files), chmodded to mode, then
// materialised the same way Open does.
func (fs *FS) Create(path string, flags int, mode uint32) (int, uint64) {
	entry := fs.log("create", path)
	remoteAbs, err := fs.full(path)
	if err != nil {
		fs.logErr(entry, err)
		return errnoFor(err), invalidHandle
	}
	cmd := `sh -c ': > ` + remote.ShellEscape(remoteAbs) + `'`
	if _, err := fs.session.Exec(context.Background(), cmd); err != nil {
		fs.logErr(entry, err)
		return errnoFor(err), invalidHandle
	}
	if errc := fs.chmodRemote(remoteAbs, mode); errc != 0 {
		return errc, invalidHandle
	}
	return fs.openFile(path)
}

func (fs *FS) openFile(path string) (int, uint64) {
	entry := fs.log("open", path)
	remoteAbs, err := fs.full(path)
	if err != nil {
		fs.logErr(entry, err)
		return errnoFor(err), invalidHandle
	}

	localPath, err := fs.cache.Open(context.Background(), remoteAbs)
	if err != nil {
		fs.logErr(entry, err)
		return errnoFor(err), invalidHandle
	}

	f, err := os.OpenFile(localPath, os.O_RDWR, 0o600)
	if err != nil {
		fs.logErr(entry, err)
		_ = fs.cache.Close(context.Background(), remoteAbs)
		return errnoFor(err), invalidHandle
	}

	fh := fs.handles.store(&handle{kind: handleFile, remotePath: remoteAbs, file: f})
	return 0, fh
}

// Read reads from the materialised scratch file.
func (fs *FS) Read(path string, buff []byte, ofst int64, fh uint64) int {
	h, ok := fs.handles.get(fh)
	if !ok || h.kind != handleFile {
		return -fuse.EBADF
	}
	n, err := h.file.ReadAt(buff, ofst)
	if err != nil && n == 0 {
		if errors.Is(err, io.EOF) {
			return 0
		}
		return errnoFor(err)
	}
	return n
}

// Write writes into the materialised scratch file. The flush back to
// the remote host happens only on the last Release (4.E), not here.
func (fs *FS) Write(path string, buff []byte, ofst int64, fh uint64) int {
	h, ok := fs.handles.get(fh)
	if !ok || h.kind != handleFile {
		return -fuse.EBADF
	}
	n, err := h.file.WriteAt(buff, ofst)
	if err != nil {
		return errnoFor(err)
	}
	return n
}

// Flush fsyncs the scratch file without releasing the cache entry,
// ported from bb_flush.
func (fs *FS) Flush(path string, fh uint64) int {
	h, ok := fs.handles.get(fh)
	if !ok || h.kind != handleFile {
		return -fuse.EBADF
	}
	if err := h.file.Sync(); err != nil {
		return errnoFor(err)
	}
	return 0
}

// Release closes the scratch file and, if this was the last reference,
// flushes it back to the remote host and evicts the cache entry.
func (fs *FS) Release(path string, fh uint64) int {
	entry := fs.log("release", path)
	h, ok := fs.handles.remove(fh)
	if !ok || h.kind != handleFile {
		return -fuse.EBADF
	}
	_ = h.file.Close()
	if err := fs.cache.Close(context.Background(), h.remotePath); err != nil {
		fs.logErr(entry, err)
		return errnoFor(err)
	}
	return 0
}

// Fsync syncs the scratch file; datasync selects data-only sync when
// true, matching bb_fsync's use of fdatasync.
func (fs *FS) Fsync(path string, datasync bool, fh uint64) int {
	h, ok := fs.handles.get(fh)
	if !ok || h.kind != handleFile {
		return -fuse.EBADF
	}
	var err error
	if datasync {
		err = syscall.Fdatasync(int(h.file.Fd()))
	} else {
		err = h.file.Sync()
	}
	if err != nil {
		return errnoFor(err)
	}
	return 0
}

// Truncate resizes the remote file via the fixed `truncate -s` template
// when no handle is open, or the local scratch file directly when one
// is (ftruncate, per bb_ftruncate).
func (fs *FS) Truncate(path string, size int64, fh uint64) int {
	if fh != invalidHandle {
		if h, ok := fs.handles.get(fh); ok && h.kind == handleFile {
			if err := h.file.Truncate(size); err != nil {
				return errnoFor(err)
			}
			return 0
		}
	}

	entry := fs.log("truncate", path)
	remoteAbs, err := fs.full(path)
	if err != nil {
		fs.logErr(entry, err)
		return errnoFor(err)
	}
	cmd := "truncate -s " + strconv.FormatInt(size, 10) + " -- " + remote.ShellEscape(remoteAbs)
	if _, err := fs.session.Exec(context.Background(), cmd); err != nil {
		fs.logErr(entry, err)
		return errnoFor(err)
	}
	return 0
}

// Opendir lists remoteAbs via the fixed `ls -1a` template and caches the
// entry names for Readdir.
func (fs *FS) Opendir(path string) (int, uint64) {
	entry := fs.log("opendir", path)
	remoteAbs, err := fs.full(path)
	if err != nil {
		fs.logErr(entry, err)
		return errnoFor(err), invalidHandle
	}

	cmd := "ls -1a -- " + remote.ShellEscape(remoteAbs)
	out, err := fs.session.Exec(context.Background(), cmd)
	if err != nil {
		fs.logErr(entry, err)
		return errnoFor(err), invalidHandle
	}

	names := splitLines(string(out))
	fh := fs.handles.store(&handle{kind: handleDir, remotePath: remoteAbs, entries: names})
	return 0, fh
}

// Readdir fills names into fill until it signals saturation, returning
// -ENOMEM the instant it does, matching bb_readdir's literal
// "return -ENOMEM" on a full filler buffer, without resuming the scan
// on the next call. cgofuse does not inject "."/".." on its own (see
// the vendored cgofuse host_test.go's testfs.Readdir), so they are
// filled explicitly before the `ls -1a` entries, matching bb_readdir's
// own filler(buf, ".", NULL, 0) / filler(buf, "..", NULL, 0) calls.
func (fs *FS) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	h, ok := fs.handles.get(fh)
	if !ok || h.kind != handleDir {
		return -fuse.EBADF
	}
	if !fill(".", nil, 0) {
		return -fuse.ENOMEM
	}
	if !fill("..", nil, 0) {
		return -fuse.ENOMEM
	}
	for _, name := range h.entries {
		if name == "." || name == ".." {
			continue
		}
		if !fill(name, nil, 0) {
			return -fuse.ENOMEM
		}
	}
	return 0
}

func (fs *FS) Releasedir(path string, fh uint64) int {
	_, ok := fs.handles.remove(fh)
	if !ok {
		return -fuse.EBADF
	}
	return 0
}

func (fs *FS) Fsyncdir(path string, datasync bool, fh uint64) int {
	_, ok := fs.handles.get(fh)
	if !ok {
		return -fuse.EBADF
	}
	return 0
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
