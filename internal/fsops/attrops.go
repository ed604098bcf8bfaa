package fsops

import (
	"context"
	"strconv"

	"github.com/winfsp/cgofuse/fuse"

	"github.com/kuroni/rsshfs/internal/remote"
)

// exec runs a fixed remote command template and maps any failure to a
// FUSE errno, logging under op.
func (fs *FS) exec(op, path, cmd string) int {
	entry := fs.log(op, path)
	if _, err := fs.session.Exec(context.Background(), cmd); err != nil {
		fs.logErr(entry, err)
		return errnoFor(err)
	}
	return 0
}

// Mkdir: "mkdir -m <octal-mode> -- <path>".
func (fs *FS) Mkdir(path string, mode uint32) int {
	remoteAbs, err := fs.full(path)
	if err != nil {
		return errnoFor(err)
	}
	cmd := "mkdir -m " + octal(mode) + " -- " + remote.ShellEscape(remoteAbs)
	return fs.exec("mkdir", path, cmd)
}

// Rmdir: "rmdir -- <path>".
func (fs *FS) Rmdir(path string) int {
	remoteAbs, err := fs.full(path)
	if err != nil {
		return errnoFor(err)
	}
	return fs.exec("rmdir", path, "rmdir -- "+remote.ShellEscape(remoteAbs))
}

// Unlink: "rm -f -- <path>".
func (fs *FS) Unlink(path string) int {
	remoteAbs, err := fs.full(path)
	if err != nil {
		return errnoFor(err)
	}
	return fs.exec("unlink", path, "rm -f -- "+remote.ShellEscape(remoteAbs))
}

// Rename: "mv -T -- <old> <new>".
func (fs *FS) Rename(oldpath string, newpath string) int {
	oldAbs, err := fs.full(oldpath)
	if err != nil {
		return errnoFor(err)
	}
	newAbs, err := fs.full(newpath)
	if err != nil {
		return errnoFor(err)
	}
	cmd := "mv -T -- " + remote.ShellEscape(oldAbs) + " " + remote.ShellEscape(newAbs)
	return fs.exec("rename", oldpath, cmd)
}

// Link: "ln -- <old> <new>".
func (fs *FS) Link(oldpath string, newpath string) int {
	oldAbs, err := fs.full(oldpath)
	if err != nil {
		return errnoFor(err)
	}
	newAbs, err := fs.full(newpath)
	if err != nil {
		return errnoFor(err)
	}
	cmd := "ln -- " + remote.ShellEscape(oldAbs) + " " + remote.ShellEscape(newAbs)
	return fs.exec("link", oldpath, cmd)
}

// Symlink: "ln -s -- <target> <link>". target is left unresolved and
// unescaped-against-root, matching symlink(2) semantics where the
// target string is stored verbatim.
func (fs *FS) Symlink(target string, newpath string) int {
	linkAbs, err := fs.full(newpath)
	if err != nil {
		return errnoFor(err)
	}
	cmd := "ln -s -- " + remote.ShellEscape(target) + " " + remote.ShellEscape(linkAbs)
	return fs.exec("symlink", newpath, cmd)
}

// Readlink: "readlink -- <path>".
func (fs *FS) Readlink(path string) (int, string) {
	remoteAbs, err := fs.full(path)
	if err != nil {
		return errnoFor(err), ""
	}
	entry := fs.log("readlink", path)
	out, err := fs.session.Exec(context.Background(), "readlink -- "+remote.ShellEscape(remoteAbs))
	if err != nil {
		fs.logErr(entry, err)
		return errnoFor(err), ""
	}
	return 0, trimTrailingNewline(string(out))
}

// Chmod: "chmod <octal-mode> -- <path>".
func (fs *FS) Chmod(path string, mode uint32) int {
	remoteAbs, err := fs.full(path)
	if err != nil {
		return errnoFor(err)
	}
	return fs.chmodRemote(remoteAbs, mode)
}

func (fs *FS) chmodRemote(remoteAbs string, mode uint32) int {
	cmd := "chmod " + octal(mode) + " -- " + remote.ShellEscape(remoteAbs)
	return fs.exec("chmod", remoteAbs, cmd)
}

// Chown: "chown <uid>:<gid> -- <path>".
func (fs *FS) Chown(path string, uid uint32, gid uint32) int {
	remoteAbs, err := fs.full(path)
	if err != nil {
		return errnoFor(err)
	}
	cmd := "chown " + strconv.FormatUint(uint64(uid), 10) + ":" + strconv.FormatUint(uint64(gid), 10) +
		" -- " + remote.ShellEscape(remoteAbs)
	return fs.exec("chown", path, cmd)
}

// Utimens: "touch -h -d @<epoch> -- <path>", applied once per distinct
// timestamp in tmsp (atime, then mtime) when they differ, per spec.md
// §4.F's table.
func (fs *FS) Utimens(path string, tmsp []fuse.Timespec) int {
	remoteAbs, err := fs.full(path)
	if err != nil {
		return errnoFor(err)
	}
	if len(tmsp) == 0 {
		return 0
	}
	seen := make(map[int64]bool, len(tmsp))
	for _, ts := range tmsp {
		if seen[ts.Sec] {
			continue
		}
		seen[ts.Sec] = true
		cmd := "touch -h -d @" + strconv.FormatInt(ts.Sec, 10) + " -- " + remote.ShellEscape(remoteAbs)
		if errc := fs.exec("utimens", path, cmd); errc != 0 {
			return errc
		}
	}
	return 0
}

// Mknod creates a device node with "mknod -- <path> <p|c|b> <major>
// <minor>", or a plain regular file with "sh -c ': > <path>'" when mode
// carries no device bits, matching bb_mknod's fallback to creat(2) for
// S_IFREG.
func (fs *FS) Mknod(path string, mode uint32, dev uint64) int {
	remoteAbs, err := fs.full(path)
	if err != nil {
		return errnoFor(err)
	}

	var cmd string
	switch mode & fuse.S_IFMT {
	case fuse.S_IFCHR:
		cmd = mknodCmd(remoteAbs, "c", dev)
	case fuse.S_IFBLK:
		cmd = mknodCmd(remoteAbs, "b", dev)
	case fuse.S_IFIFO:
		cmd = "mknod -- " + remote.ShellEscape(remoteAbs) + " p"
	default:
		cmd = `sh -c ': > ` + remote.ShellEscape(remoteAbs) + `'`
	}
	if errc := fs.exec("mknod", path, cmd); errc != 0 {
		return errc
	}
	return fs.chmodRemote(remoteAbs, mode)
}

func mknodCmd(remoteAbs, kind string, dev uint64) string {
	major, minor := unpackDev(dev)
	return "mknod -- " + remote.ShellEscape(remoteAbs) + " " + kind + " " +
		strconv.FormatUint(major, 10) + " " + strconv.FormatUint(minor, 10)
}

// unpackDev splits a packed device number the same way Linux's
// makedev/major/minor macros do.
func unpackDev(dev uint64) (major, minor uint64) {
	major = (dev >> 8) & 0xfff
	minor = (dev & 0xff) | ((dev >> 12) & 0xfff00)
	return major, minor
}

// Access: "test -<r|w|x|e> -- <path>" checked via exit status only, no
// output parsed.
func (fs *FS) Access(path string, mask uint32) int {
	remoteAbs, err := fs.full(path)
	if err != nil {
		return errnoFor(err)
	}

	flag := "e"
	switch {
	case mask&fuse.W_OK != 0:
		flag = "w"
	case mask&fuse.R_OK != 0:
		flag = "r"
	case mask&fuse.X_OK != 0:
		flag = "x"
	}
	cmd := "test -" + flag + " -- " + remote.ShellEscape(remoteAbs)
	return fs.exec("access", path, cmd)
}

func octal(mode uint32) string {
	return strconv.FormatUint(uint64(mode&0o7777), 8)
}

func trimTrailingNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
