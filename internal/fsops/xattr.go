package fsops

import (
	"context"

	"github.com/winfsp/cgofuse/fuse"

	"github.com/kuroni/rsshfs/internal/remote"
)

// Setxattr: "setfattr -n <name> -v <value> -- <path>".
func (fs *FS) Setxattr(path string, name string, value []byte, flags int) int {
	remoteAbs, err := fs.full(path)
	if err != nil {
		return errnoFor(err)
	}
	cmd := "setfattr -n " + remote.ShellEscape(name) + " -v " + remote.ShellEscape(string(value)) +
		" -- " + remote.ShellEscape(remoteAbs)
	return fs.exec("setxattr", path, cmd)
}

// Getxattr: "getfattr --only-values -n <name> -- <path>".
func (fs *FS) Getxattr(path string, name string) (int, []byte) {
	remoteAbs, err := fs.full(path)
	if err != nil {
		return errnoFor(err), nil
	}
	entry := fs.log("getxattr", path)
	cmd := "getfattr --only-values -n " + remote.ShellEscape(name) + " -- " + remote.ShellEscape(remoteAbs)
	out, err := fs.session.Exec(context.Background(), cmd)
	if err != nil {
		fs.logErr(entry, err)
		return errnoFor(err), nil
	}
	return 0, out
}

// Listxattr: "getfattr -d --absolute-names -- <path>", one "name=value"
// line per attribute; only the names are surfaced to fill.
func (fs *FS) Listxattr(path string, fill func(name string) bool) int {
	remoteAbs, err := fs.full(path)
	if err != nil {
		return errnoFor(err)
	}
	entry := fs.log("listxattr", path)
	cmd := "getfattr -d --absolute-names -- " + remote.ShellEscape(remoteAbs)
	out, err := fs.session.Exec(context.Background(), cmd)
	if err != nil {
		fs.logErr(entry, err)
		return errnoFor(err)
	}
	for _, line := range splitLines(string(out)) {
		name := line
		for i := 0; i < len(line); i++ {
			if line[i] == '=' {
				name = line[:i]
				break
			}
		}
		if name == "" {
			continue
		}
		if !fill(name) {
			return -fuse.ENOMEM
		}
	}
	return 0
}

// Removexattr: "setfattr -x <name> -- <path>".
func (fs *FS) Removexattr(path string, name string) int {
	remoteAbs, err := fs.full(path)
	if err != nil {
		return errnoFor(err)
	}
	cmd := "setfattr -x " + remote.ShellEscape(name) + " -- " + remote.ShellEscape(remoteAbs)
	return fs.exec("removexattr", path, cmd)
}
