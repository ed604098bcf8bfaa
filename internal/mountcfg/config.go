package mountcfg

import (
	"net"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"

	"github.com/kuroni/rsshfs/internal/cache"
	"github.com/kuroni/rsshfs/internal/remote"
)

// ErrRootNotPermitted is returned by New when invoked with effective
// uid 0, porting original_source/bbfs.c's bb_usage root check verbatim.
var ErrRootNotPermitted = errors.New("mountcfg: refusing to run as root")

// Config threads every shared collaborator explicitly (spec.md §9's
// "global mutable state" open question: there is no package-level
// singleton anywhere in this module). A Config is built once by New and
// handed to fsops.New.
type Config struct {
	RemoteRoot string
	Log        *logrus.Entry
	Session    *remote.Session
	Cache      *cache.Table
}

// Options configures New.
type Options struct {
	Endpoint    Endpoint
	KeyFile     string
	KeyPass     string
	ScratchDir  string
	CacheMax    int
	Log         *logrus.Logger
	GeteuidFunc func() int // overridable for tests; defaults to os.Geteuid
}

// New authenticates to Options.Endpoint with a PEM private key
// (spec.md §4.G: the one supported authentication mechanism), dials the
// host, and constructs the cache table backed by the local filesystem.
// It refuses to proceed when running as root.
func New(opts Options) (*Config, error) {
	geteuid := opts.GeteuidFunc
	if geteuid == nil {
		geteuid = os.Geteuid
	}
	if geteuid() == 0 {
		return nil, ErrRootNotPermitted
	}

	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	entry := log.WithFields(logrus.Fields{
		"remote_host": opts.Endpoint.Host,
		"remote_root": opts.Endpoint.RemoteRoot,
	})

	signer, err := remote.LoadPrivateKey(opts.KeyFile, opts.KeyPass)
	if err != nil {
		return nil, errors.Wrap(err, "mountcfg: load private key")
	}

	sshConfig := &ssh.ClientConfig{
		User:            opts.Endpoint.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	addr := opts.Endpoint.Host
	if !hasPort(addr) {
		addr += ":22"
	}

	sess, err := remote.Dial(addr, sshConfig, entry)
	if err != nil {
		return nil, errors.Wrap(err, "mountcfg: dial remote host")
	}

	scratch := opts.ScratchDir
	if scratch == "" {
		scratch = os.TempDir() + "/rsshfs-cache"
	}
	table, err := cache.NewTable(afero.NewOsFs(), scratch, sess, opts.CacheMax)
	if err != nil {
		sess.Close()
		return nil, errors.Wrap(err, "mountcfg: create cache table")
	}

	return &Config{
		RemoteRoot: opts.Endpoint.RemoteRoot,
		Log:        entry,
		Session:    sess,
		Cache:      table,
	}, nil
}

// Close tears down the remote session.
func (c *Config) Close() error {
	return c.Session.Close()
}

func hasPort(addr string) bool {
	_, _, err := net.SplitHostPort(addr)
	return err == nil
}
