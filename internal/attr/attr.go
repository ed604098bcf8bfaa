// Package attr implements the Remote Metadata Probe: turning the fixed
// `stat` command output described in spec.md §4.D/§6 into a structured
// attribute record, ported from original_source/bbfs.c's bb_getattr.
package attr

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/kuroni/rsshfs/internal/remote"
)

// ErrMalformedStat is returned when a stat command's output does not
// match the fixed field layout. No partial Record is ever produced.
var ErrMalformedStat = errors.New("attr: malformed stat output")

// Record is the structured status of a remote file, populated from the
// two fixed stat commands in spec.md §6.
type Record struct {
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	UID     uint32
	GID     uint32
	Rdev    uint64
	Size    int64
	Atime   int64
	Mtime   int64
	Ctime   int64
	Blocks  int64
	BlkSize int64
}

// execer is the subset of *remote.Session that Stat needs, so tests can
// supply a fake without spinning up SSH plumbing.
type execer interface {
	Exec(ctx context.Context, command string) ([]byte, error)
}

// Stat issues the two fixed stat commands from spec.md §6 against
// remoteAbs and parses their output. Any exec or parse failure returns
// (Record{}, error); the probe never reports success with a partially
// populated Record (spec.md §9's open question on this point).
func Stat(ctx context.Context, sess execer, remoteAbs string) (Record, error) {
	var rec Record

	out, err := sess.Exec(ctx, statCommand(remoteAbs))
	if err != nil {
		return Record{}, errors.Wrap(err, "attr: stat")
	}
	n, err := fmt.Sscanf(string(out), "%d %d %x %d %d %d %x %d %d %d %d %d",
		&rec.Dev, &rec.Ino, &rec.Mode, &rec.Nlink, &rec.UID, &rec.GID,
		&rec.Rdev, &rec.Size, &rec.Atime, &rec.Mtime, &rec.Ctime, &rec.Blocks)
	if err != nil || n != 12 {
		return Record{}, ErrMalformedStat
	}

	out, err = sess.Exec(ctx, statfsCommand(remoteAbs))
	if err != nil {
		return Record{}, errors.Wrap(err, "attr: statfs")
	}
	n, err = fmt.Sscanf(string(out), "%d", &rec.BlkSize)
	if err != nil || n != 1 {
		return Record{}, ErrMalformedStat
	}

	return rec, nil
}

// statCommand builds the fixed `stat -c` command from spec.md §4.D,
// field order: dev ino mode nlink uid gid rdev size atime mtime ctime
// blocks.
func statCommand(path string) string {
	return `stat -c "%d %i %f %h %u %g %t %s %X %Y %Z %b" -- ` + remote.ShellEscape(path)
}

// statfsCommand builds the fixed `stat -f` command from spec.md §4.D
// that reports the filesystem block size.
func statfsCommand(path string) string {
	return `stat -f -c "%s" -- ` + remote.ShellEscape(path)
}
