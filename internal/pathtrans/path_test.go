package pathtrans

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullJoinsUnderRoot(t *testing.T) {
	got, err := Full("/home/alice", "/docs/report.txt")
	require.NoError(t, err)
	assert.Equal(t, "/home/alice/docs/report.txt", got)
}

func TestFullConfinesEscapeAttempt(t *testing.T) {
	got, err := Full("/home/alice", "/../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "/home/alice"))
}

func TestFullRootItself(t *testing.T) {
	got, err := Full("/home/alice", "/")
	require.NoError(t, err)
	assert.Equal(t, "/home/alice", got)
}

func TestFullTooLong(t *testing.T) {
	_, err := Full("/home/alice", "/"+strings.Repeat("a", PathMax))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPathTooLong)
}
