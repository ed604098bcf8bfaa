// Package remote implements the authenticated SSH channel the rest of
// the module uses to reach the remote host: short command execution
// (the Remote Command Channel) and whole-file transfer over the SCP
// subprotocol (the Remote Copy Channel).
package remote

import "io"

// sshClient abstracts over the internal golang.org/x/crypto/ssh client
// so that Session's command and copy logic never touches *ssh.Client
// directly. There is only one production implementation
// (sshClientInternal); the interface exists so tests can supply a fake.
type sshClient interface {
	// Close shuts down the underlying connection.
	Close() error

	// NewSession opens a new sshSession for this client. A session is
	// one remote execution of a program; the contract throughout this
	// package is one command per session.
	NewSession() (sshSession, error)
}

// sshSession abstracts over *ssh.Session.
type sshSession interface {
	// StdinPipe returns a pipe connected to the remote command's stdin.
	StdinPipe() (io.WriteCloser, error)

	// StdoutPipe returns a pipe connected to the remote command's stdout.
	StdoutPipe() (io.Reader, error)

	// SetStderr directs the remote command's stderr to wr.
	SetStderr(wr io.Writer)

	// Start runs cmd on the remote host without waiting for it to finish.
	Start(cmd string) error

	// Wait blocks until the command started by Start has exited.
	Wait() error

	// Close closes the session. Safe to call after Wait.
	Close() error
}
