package fsops

import (
	"errors"
	"os"

	"github.com/winfsp/cgofuse/fuse"

	"github.com/kuroni/rsshfs/internal/attr"
	"github.com/kuroni/rsshfs/internal/cache"
	"github.com/kuroni/rsshfs/internal/pathtrans"
	"github.com/kuroni/rsshfs/internal/remote"
)

// errnoFor maps an internal sentinel error to the single negative
// cgofuse/fuse error code every dispatcher method returns, per spec.md
// §7 ("single negative error code", never a leaked Go error value).
// github.com/pkg/errors wraps implement Unwrap, so errors.Is sees
// through the cause chain to the sentinels below.
func errnoFor(err error) int {
	if err == nil {
		return 0
	}
	switch {
	case errors.Is(err, cache.ErrCacheFull):
		return -fuse.ENOSPC
	case errors.Is(err, cache.ErrNotCached):
		return -fuse.EIO
	case errors.Is(err, pathtrans.ErrPathTooLong):
		return -fuse.ENAMETOOLONG
	case errors.Is(err, remote.ErrOutputTooLarge):
		return -fuse.EIO
	case errors.Is(err, remote.ErrCopyFailed):
		return -fuse.EIO
	case errors.Is(err, remote.ErrCommandFailed):
		return -fuse.EIO
	case errors.Is(err, attr.ErrMalformedStat):
		return -fuse.EIO
	case os.IsNotExist(err):
		return -fuse.ENOENT
	case os.IsPermission(err):
		return -fuse.EACCES
	default:
		return -fuse.EIO
	}
}
