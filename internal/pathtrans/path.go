// Package pathtrans implements the Path Translator (spec.md §4.A):
// composing a remote absolute path from a mount's remote root and a
// mount-relative path delivered by the kernel-facing collaborator.
package pathtrans

import (
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/pkg/errors"
)

// PathMax bounds the length of a translated remote path. spec.md §4.A
// treats overlong concatenations as "truncated and treated as an error
// only by the operation that then attempts to use them"; this package
// takes the stricter reading and reports the error here, at translation
// time, rather than letting a truncated path reach the remote host.
const PathMax = 4096

// ErrPathTooLong is returned when the composed remote path would exceed
// PathMax.
var ErrPathTooLong = errors.New("pathtrans: remote path exceeds maximum length")

// Full composes the remote absolute path for a mount-relative path
// beneath remoteRoot. mountRelative always begins with "/" (spec.md
// §4.A). Unlike bare string concatenation (bb_fullpath in
// original_source/bbfs.c), Full uses securejoin.SecureJoin so that a
// mount-relative path containing ".." segments cannot walk outside
// remoteRoot.
func Full(remoteRoot, mountRelative string) (string, error) {
	// Check the lexical join first: SecureJoin probes each component on
	// the local filesystem, where an overlong path fails with a system
	// error rather than ErrPathTooLong.
	if len(filepath.Join(remoteRoot, filepath.Clean("/"+mountRelative))) > PathMax {
		return "", ErrPathTooLong
	}
	joined, err := securejoin.SecureJoin(remoteRoot, mountRelative)
	if err != nil {
		return "", errors.Wrap(err, "pathtrans: join")
	}
	if len(joined) > PathMax {
		return "", ErrPathTooLong
	}
	return joined, nil
}
