package remote

import (
	"io"
	"net"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// sshClientInternal implements sshClient on top of golang.org/x/crypto/ssh.
type sshClientInternal struct {
	client *ssh.Client
	log    logrus.FieldLogger
}

// dial connects to addr and performs the SSH handshake using config.
func dial(network, addr string, config *ssh.ClientConfig, log logrus.FieldLogger) (sshClient, error) {
	conn, err := net.DialTimeout(network, addr, config.Timeout)
	if err != nil {
		return nil, errors.Wrap(err, "remote: dial")
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		return nil, errors.Wrap(err, "remote: ssh handshake")
	}
	client := ssh.NewClient(c, chans, reqs)
	log.WithFields(logrus.Fields{
		"local":  client.LocalAddr(),
		"remote": client.RemoteAddr(),
	}).Debug("remote: connected")
	return &sshClientInternal{client: client, log: log}, nil
}

func (c *sshClientInternal) Close() error {
	return c.client.Close()
}

func (c *sshClientInternal) NewSession() (sshSession, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return &sshSessionInternal{Session: session}, nil
}

// sshSessionInternal wraps *ssh.Session to satisfy sshSession.
type sshSessionInternal struct {
	*ssh.Session
}

func (s *sshSessionInternal) SetStderr(wr io.Writer) {
	s.Session.Stderr = wr
}

var _ sshClient = (*sshClientInternal)(nil)
var _ sshSession = (*sshSessionInternal)(nil)
