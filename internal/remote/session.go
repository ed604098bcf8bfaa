package remote

import (
	"context"
	"io"
	"io/ioutil"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// MaxCommandOutput bounds how much output Exec will read from a single
// remote command before giving up. spec.md leaves the teacher's
// fixed-size command buffer as a latent truncation bug; this package
// resolves it by declaring an explicit maximum and treating overflow as
// an error instead of silently truncating.
const MaxCommandOutput = 64 * 1024

// Sentinel errors. Every failure inside Exec/CopyIn/CopyOut collapses to
// one of these at the package boundary, per spec.md §4.B/§4.C/§7, except
// an already-cancelled context, whose ctx.Err() is returned as is.
var (
	ErrCommandFailed  = errors.New("remote: command failed")
	ErrOutputTooLarge = errors.New("remote: command output exceeded buffer")
	ErrCopyFailed     = errors.New("remote: copy failed")
)

// Session is a single authenticated, exclusively-owned channel to a
// remote host. All operations on a Session are serialised by mu: spec.md
// §5 requires mutually-exclusive access to the session for the duration
// of one command or copy.
type Session struct {
	mu     sync.Mutex
	client sshClient
	log    logrus.FieldLogger
}

// Dial connects to addr, authenticates with config, and returns a ready
// Session. The caller owns the returned Session and must call Close.
func Dial(addr string, config *ssh.ClientConfig, log logrus.FieldLogger) (*Session, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	client, err := dial("tcp", addr, config, log)
	if err != nil {
		return nil, err
	}
	return &Session{client: client, log: log}, nil
}

// Close tears down the underlying connection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Close()
}

// Exec runs command on the remote host over a fresh channel, captures
// its standard output into a buffer bounded by MaxCommandOutput, and
// always closes the channel. This is the Remote Command Channel
// (spec.md §4.B), ported from original_source/bbfs.c's ssh_execute.
func (s *Session) Exec(ctx context.Context, command string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.client.NewSession()
	if err != nil {
		return nil, errors.Wrap(ErrCommandFailed, err.Error())
	}
	defer session.Close()

	var stderr stderrBuffer
	session.SetStderr(&stderr)

	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(ErrCommandFailed, err.Error())
	}

	if err := session.Start(command); err != nil {
		return nil, errors.Wrap(ErrCommandFailed, err.Error())
	}

	out, readErr := readBounded(stdout, MaxCommandOutput)

	waitErr := session.Wait()
	if readErr != nil {
		return nil, readErr
	}
	if waitErr != nil {
		s.log.WithFields(logrus.Fields{
			"command": command,
			"stderr":  stderr.String(),
		}).Debug("remote: command exited with error")
		return nil, errors.Wrap(ErrCommandFailed, waitErr.Error())
	}
	return out, nil
}

// readBounded reads from r until EOF, returning ErrOutputTooLarge if
// more than max bytes are produced.
func readBounded(r io.Reader, max int) ([]byte, error) {
	limited := io.LimitReader(r, int64(max)+1)
	buf, err := ioutil.ReadAll(limited)
	if err != nil {
		return nil, errors.Wrap(ErrCommandFailed, err.Error())
	}
	if len(buf) > max {
		return nil, ErrOutputTooLarge
	}
	return buf, nil
}

type stderrBuffer struct {
	data []byte
}

func (b *stderrBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *stderrBuffer) String() string {
	return string(b.data)
}
