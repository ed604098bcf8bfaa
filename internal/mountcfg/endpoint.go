// Package mountcfg implements Session & Lifecycle (spec.md §4.G):
// parsing the "user@host:/remote/root" endpoint, refusing to run as
// root, authenticating, dialling the remote host, and constructing the
// cache table that the rest of the module is handed explicitly.
package mountcfg

import (
	"regexp"

	"github.com/pkg/errors"
)

// ErrMalformedEndpoint is returned when an endpoint string does not
// match user@host:/remote/root.
var ErrMalformedEndpoint = errors.New("mountcfg: endpoint must be user@host:/remote/root")

var endpointRe = regexp.MustCompile(`^([^@]+)@([^:]+):(/.*)$`)

// Endpoint is a parsed "user@host:/remote/root" connection string.
type Endpoint struct {
	User       string
	Host       string
	RemoteRoot string
}

// ParseEndpoint parses "user@host:/remote/root", mirroring
// original_source/bbfs.c's sscanf(remoteAddress, "%[^@]@%[^:]:%s", ...)
// with a regexp instead of scanf's field-width-free parsing.
func ParseEndpoint(s string) (Endpoint, error) {
	m := endpointRe.FindStringSubmatch(s)
	if m == nil {
		return Endpoint{}, ErrMalformedEndpoint
	}
	return Endpoint{User: m[1], Host: m[2], RemoteRoot: m[3]}, nil
}
