package attr

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecer struct {
	outputs []string
	calls   []string
	err     error
}

func (f *fakeExecer) Exec(ctx context.Context, command string) ([]byte, error) {
	f.calls = append(f.calls, command)
	if f.err != nil {
		return nil, f.err
	}
	idx := len(f.calls) - 1
	if idx >= len(f.outputs) {
		return nil, fmt.Errorf("no more fake outputs")
	}
	return []byte(f.outputs[idx]), nil
}

func TestStatRoundTrip(t *testing.T) {
	want := Record{
		Dev: 64768, Ino: 123456, Mode: 0100644, Nlink: 1,
		UID: 1000, GID: 1000, Rdev: 0, Size: 10,
		Atime: 1000, Mtime: 2000, Ctime: 3000, Blocks: 8, BlkSize: 4096,
	}
	line1 := fmt.Sprintf("%d %d %x %d %d %d %x %d %d %d %d %d\n",
		want.Dev, want.Ino, want.Mode, want.Nlink, want.UID, want.GID,
		want.Rdev, want.Size, want.Atime, want.Mtime, want.Ctime, want.Blocks)
	line2 := fmt.Sprintf("%d\n", want.BlkSize)

	fe := &fakeExecer{outputs: []string{line1, line2}}
	got, err := Stat(context.Background(), fe, "/root/a.txt")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	require.Len(t, fe.calls, 2)
	assert.Contains(t, fe.calls[0], `stat -c "%d %i %f %h %u %g %t %s %X %Y %Z %b"`)
	assert.Contains(t, fe.calls[1], `stat -f -c "%s"`)
}

func TestStatMalformedShortFieldCount(t *testing.T) {
	// 11 tokens instead of 12.
	fe := &fakeExecer{outputs: []string{"1 2 3 4 5 6 7 8 9 10 11\n", "4096\n"}}
	got, err := Stat(context.Background(), fe, "/root/a.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedStat)
	assert.Equal(t, Record{}, got)
}

func TestStatExecFailure(t *testing.T) {
	fe := &fakeExecer{err: fmt.Errorf("boom")}
	_, err := Stat(context.Background(), fe, "/root/a.txt")
	require.Error(t, err)
}
