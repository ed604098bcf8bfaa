package remote

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSCPRoundTrip drives scpSend and scpReceive against each other over
// a pair of in-memory pipes, exercising the protocol framing both
// CopyOut and CopyIn rely on without needing a real SSH server. Unlike
// bytes.Buffer, io.Pipe blocks a reader until a matching write arrives,
// which the ack/data handshake here depends on.
func TestSCPRoundTrip(t *testing.T) {
	sinkToSourceR, sinkToSourceW := io.Pipe()
	sourceToSinkR, sourceToSinkW := io.Pipe()

	payload := []byte("hello world")
	done := make(chan error, 1)
	go func() {
		done <- scpSend(sinkToSourceW, sourceToSinkR, "b.txt", payload, 0o644)
	}()

	got, err := scpReceive(sourceToSinkW, sinkToSourceR)
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, payload, got)
}

func TestShellEscape(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"", ""},
		{"/this/is/harmless", "/this/is/harmless"},
		{"$(rm -rf /)", "\\$\\(rm\\ -rf\\ /\\)"},
	} {
		assert.Equal(t, tc.want, ShellEscape(tc.in))
	}
}

func TestCopyOutSendsRequestedMode(t *testing.T) {
	fs := &fakeSession{stdout: &bytes.Buffer{}, stdin: &bytes.Buffer{}}
	s, _ := newTestSession(fs)

	// scpWaitAck needs at least one ack byte queued for each round trip;
	// pre-seed the "remote" acks this push will consume.
	fs.stdout.Write([]byte{0, 0, 0})

	err := s.CopyOut(context.Background(), "/root/b.txt", []byte("data"), os.FileMode(0o644))
	require.NoError(t, err)
	assert.Contains(t, fs.started, "scp -t")
	assert.Contains(t, fs.stdin.String(), "C0644 4 b.txt\n")
}
