package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession implements sshSession against in-memory buffers, used by
// Exec/CopyIn/CopyOut tests in place of a real *ssh.Session. Modelled on
// backend/sftp/sftp_internal_test.go's mockSSHClient.
type fakeSession struct {
	stdout  *bytes.Buffer
	stdin   *bytes.Buffer
	stderr  io.Writer
	started string
	waitErr error
	closed  bool
}

func (s *fakeSession) StdinPipe() (io.WriteCloser, error) {
	return nopWriteCloser{s.stdin}, nil
}
func (s *fakeSession) StdoutPipe() (io.Reader, error) { return s.stdout, nil }
func (s *fakeSession) SetStderr(wr io.Writer)         { s.stderr = wr }
func (s *fakeSession) Start(cmd string) error         { s.started = cmd; return nil }
func (s *fakeSession) Wait() error                    { return s.waitErr }
func (s *fakeSession) Close() error                   { s.closed = true; return nil }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type fakeClient struct {
	sessions []*fakeSession
	next     int
	closed   bool
}

func (c *fakeClient) Close() error { c.closed = true; return nil }
func (c *fakeClient) NewSession() (sshSession, error) {
	if c.next >= len(c.sessions) {
		return nil, errors.New("no more fake sessions")
	}
	s := c.sessions[c.next]
	c.next++
	return s, nil
}

func newTestSession(sessions ...*fakeSession) (*Session, *fakeClient) {
	c := &fakeClient{sessions: sessions}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Session{client: c, log: logger}, c
}

func TestExecSuccess(t *testing.T) {
	fs := &fakeSession{stdout: bytes.NewBufferString("hello\n"), stdin: &bytes.Buffer{}}
	s, _ := newTestSession(fs)

	out, err := s.Exec(context.Background(), "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
	assert.Equal(t, "echo hello", fs.started)
	assert.True(t, fs.closed)
}

func TestExecCommandFailure(t *testing.T) {
	fs := &fakeSession{stdout: bytes.NewBufferString(""), stdin: &bytes.Buffer{}, waitErr: errors.New("exit 1")}
	s, _ := newTestSession(fs)

	_, err := s.Exec(context.Background(), "false")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCommandFailed))
}

func TestExecOutputTooLarge(t *testing.T) {
	big := bytes.Repeat([]byte("x"), MaxCommandOutput+1)
	fs := &fakeSession{stdout: bytes.NewBuffer(big), stdin: &bytes.Buffer{}}
	s, _ := newTestSession(fs)

	_, err := s.Exec(context.Background(), "cat big")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutputTooLarge))
}

func TestExecContextCancelled(t *testing.T) {
	s, _ := newTestSession()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Exec(ctx, "echo hi")
	require.Error(t, err)
}
