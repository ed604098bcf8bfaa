package fsops

import (
	"context"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/winfsp/cgofuse/fuse"
)

type fakeSession struct {
	commands []string
	outputs  map[string]string
	err      error
}

func newFakeSession() *fakeSession {
	return &fakeSession{outputs: make(map[string]string)}
}

func (f *fakeSession) Exec(ctx context.Context, command string) ([]byte, error) {
	f.commands = append(f.commands, command)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.outputs[command]), nil
}

func (f *fakeSession) lastCommand() string {
	if len(f.commands) == 0 {
		return ""
	}
	return f.commands[len(f.commands)-1]
}

type fakeCache struct {
	dir    string
	opened map[string]bool
}

func newFakeCache(t *testing.T) *fakeCache {
	t.Helper()
	dir := t.TempDir()
	return &fakeCache{dir: dir, opened: make(map[string]bool)}
}

func (c *fakeCache) Open(ctx context.Context, remotePath string) (string, error) {
	local := c.dir + "/scratch"
	if !c.opened[remotePath] {
		if err := os.WriteFile(local, nil, 0o600); err != nil {
			return "", err
		}
	}
	c.opened[remotePath] = true
	return local, nil
}

func (c *fakeCache) Close(ctx context.Context, remotePath string) error {
	delete(c.opened, remotePath)
	return nil
}

func newTestFS(t *testing.T) (*FS, *fakeSession) {
	t.Helper()
	sess := newFakeSession()
	cache := newFakeCache(t)
	logger := logrus.New()
	logger.SetOutput(discardWriter{})
	fs := newFS("/srv/root", logger.WithField("test", true), sess, cache)
	return fs, sess
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestMkdirIssuesFixedTemplate(t *testing.T) {
	fs, sess := newTestFS(t)
	errc := fs.Mkdir("/docs", 0o755)
	require.Equal(t, 0, errc)
	assert.Equal(t, "mkdir -m 755 -- /srv/root/docs", sess.lastCommand())
}

func TestRmdirIssuesFixedTemplate(t *testing.T) {
	fs, sess := newTestFS(t)
	require.Equal(t, 0, fs.Rmdir("/docs"))
	assert.Equal(t, "rmdir -- /srv/root/docs", sess.lastCommand())
}

func TestUnlinkIssuesFixedTemplate(t *testing.T) {
	fs, sess := newTestFS(t)
	require.Equal(t, 0, fs.Unlink("/docs/a.txt"))
	assert.Equal(t, "rm -f -- /srv/root/docs/a.txt", sess.lastCommand())
}

func TestRenameIssuesFixedTemplate(t *testing.T) {
	fs, sess := newTestFS(t)
	require.Equal(t, 0, fs.Rename("/a.txt", "/b.txt"))
	assert.Equal(t, "mv -T -- /srv/root/a.txt /srv/root/b.txt", sess.lastCommand())
}

func TestChmodIssuesFixedTemplate(t *testing.T) {
	fs, sess := newTestFS(t)
	require.Equal(t, 0, fs.Chmod("/a.txt", 0o644))
	assert.Equal(t, "chmod 644 -- /srv/root/a.txt", sess.lastCommand())
}

func TestChownIssuesFixedTemplate(t *testing.T) {
	fs, sess := newTestFS(t)
	require.Equal(t, 0, fs.Chown("/a.txt", 1000, 1000))
	assert.Equal(t, "chown 1000:1000 -- /srv/root/a.txt", sess.lastCommand())
}

func TestTruncateWithoutHandleIssuesFixedTemplate(t *testing.T) {
	fs, sess := newTestFS(t)
	require.Equal(t, 0, fs.Truncate("/a.txt", 42, invalidHandle))
	assert.Equal(t, "truncate -s 42 -- /srv/root/a.txt", sess.lastCommand())
}

func TestAccessPicksWritePermission(t *testing.T) {
	fs, sess := newTestFS(t)
	require.Equal(t, 0, fs.Access("/a.txt", fuse.W_OK))
	assert.Equal(t, "test -w -- /srv/root/a.txt", sess.lastCommand())
}

func TestReadlinkReturnsTrimmedTarget(t *testing.T) {
	fs, sess := newTestFS(t)
	sess.outputs["readlink -- /srv/root/link"] = "/srv/root/target\n"
	errc, target := fs.Readlink("/link")
	require.Equal(t, 0, errc)
	assert.Equal(t, "/srv/root/target", target)
}

func TestOpendirReaddirFillsDotEntriesOnce(t *testing.T) {
	fs, sess := newTestFS(t)
	sess.outputs["ls -1a -- /srv/root/docs"] = ".\n..\na.txt\nb.txt\n"

	errc, fh := fs.Opendir("/docs")
	require.Equal(t, 0, errc)

	var seen []string
	fill := func(name string, stat *fuse.Stat_t, ofst int64) bool {
		seen = append(seen, name)
		return true
	}
	require.Equal(t, 0, fs.Readdir("/docs", fill, 0, fh))
	assert.Equal(t, []string{".", "..", "a.txt", "b.txt"}, seen)

	require.Equal(t, 0, fs.Releasedir("/docs", fh))
}

func TestReaddirStopsOnFullFiller(t *testing.T) {
	fs, sess := newTestFS(t)
	sess.outputs["ls -1a -- /srv/root/docs"] = "a.txt\nb.txt\nc.txt\n"

	_, fh := fs.Opendir("/docs")
	count := 0
	fill := func(name string, stat *fuse.Stat_t, ofst int64) bool {
		count++
		return count < 2
	}
	errc := fs.Readdir("/docs", fill, 0, fh)
	assert.Equal(t, -fuse.ENOMEM, errc)
	assert.Equal(t, 2, count)
}

func TestOpenWriteReleaseFlushesThroughCache(t *testing.T) {
	fs, _ := newTestFS(t)

	errc, fh := fs.Open("/a.txt", os.O_RDWR)
	require.Equal(t, 0, errc)

	n := fs.Write("/a.txt", []byte("hello"), 0, fh)
	assert.Equal(t, 5, n)

	buf := make([]byte, 5)
	got := fs.Read("/a.txt", buf, 0, fh)
	assert.Equal(t, 5, got)
	assert.Equal(t, "hello", string(buf))

	require.Equal(t, 0, fs.Release("/a.txt", fh))
}

func TestReadUnknownHandleReturnsEBADF(t *testing.T) {
	fs, _ := newTestFS(t)
	buf := make([]byte, 4)
	assert.Equal(t, -fuse.EBADF, fs.Read("/a.txt", buf, 0, 9999))
}

func TestMknodRegularFileUsesShellTruncate(t *testing.T) {
	fs, sess := newTestFS(t)
	require.Equal(t, 0, fs.Mknod("/a.txt", 0o100644, 0))
	assert.Contains(t, sess.commands, "sh -c ': > /srv/root/a.txt'")
}

func TestSetxattrGetxattrRoundTrip(t *testing.T) {
	fs, sess := newTestFS(t)
	sess.outputs["getfattr --only-values -n user.note -- /srv/root/a.txt"] = "hi"

	require.Equal(t, 0, fs.Setxattr("/a.txt", "user.note", []byte("hi"), 0))
	assert.Equal(t, "setfattr -n user.note -v hi -- /srv/root/a.txt", sess.lastCommand())

	errc, value := fs.Getxattr("/a.txt", "user.note")
	require.Equal(t, 0, errc)
	assert.Equal(t, "hi", string(value))
}
