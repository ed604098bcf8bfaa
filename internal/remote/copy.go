package remote

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// CopyIn pulls the whole contents of remotePath using the SCP
// subprotocol (`scp -f`), the Go equivalent of original_source/bbfs.c's
// scp_receive over libssh's ssh_scp_* calls. It is the Remote Copy
// Channel's pull direction (spec.md §4.C).
func (s *Session) CopyIn(ctx context.Context, remotePath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.client.NewSession()
	if err != nil {
		return nil, errors.Wrap(ErrCopyFailed, err.Error())
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(ErrCopyFailed, err.Error())
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(ErrCopyFailed, err.Error())
	}

	cmd := "scp -f -- " + ShellEscape(remotePath)
	if err := session.Start(cmd); err != nil {
		return nil, errors.Wrap(ErrCopyFailed, err.Error())
	}

	data, err := scpReceive(stdin, stdout)
	if err != nil {
		return nil, errors.Wrap(ErrCopyFailed, err.Error())
	}
	if err := session.Wait(); err != nil {
		return nil, errors.Wrap(ErrCopyFailed, err.Error())
	}
	return data, nil
}

// CopyOut pushes data to remotePath using the SCP subprotocol
// (`scp -t`), mirroring scp_write_remote. It is the Remote Copy
// Channel's push direction (spec.md §4.C). The remote file is created
// (or overwritten) with the permission bits of mode; internal/cache
// passes 0600 (owner read/write, as bbfs.c does with S_IRUSR|S_IWUSR).
func (s *Session) CopyOut(ctx context.Context, remotePath string, data []byte, mode os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.client.NewSession()
	if err != nil {
		return errors.Wrap(ErrCopyFailed, err.Error())
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return errors.Wrap(ErrCopyFailed, err.Error())
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return errors.Wrap(ErrCopyFailed, err.Error())
	}

	cmd := "scp -t -- " + ShellEscape(remotePath)
	if err := session.Start(cmd); err != nil {
		return errors.Wrap(ErrCopyFailed, err.Error())
	}

	name := remotePath
	if idx := lastSlash(name); idx >= 0 {
		name = name[idx+1:]
	}
	if err := scpSend(stdin, stdout, name, data, mode.Perm()); err != nil {
		return errors.Wrap(ErrCopyFailed, err.Error())
	}
	if err := session.Wait(); err != nil {
		return errors.Wrap(ErrCopyFailed, err.Error())
	}
	return nil
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

// scpReceive drives the "sink" side of the SCP protocol to pull a
// single file: send the initial zero-ack, read the C<mode> <size>
// <name> control line, ack, read exactly size bytes, read the trailing
// status byte, ack.
func scpReceive(w io.Writer, r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)

	if err := scpAck(w); err != nil {
		return nil, err
	}

	line, err := readSCPLine(br)
	if err != nil {
		return nil, err
	}
	var mode uint32
	var size int64
	var name string
	if _, err := fmt.Sscanf(line, "C%o %d %s", &mode, &size, &name); err != nil {
		return nil, errors.Wrap(err, "remote: malformed scp header")
	}

	if err := scpAck(w); err != nil {
		return nil, err
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, errors.Wrap(err, "remote: scp payload read")
	}

	status := make([]byte, 1)
	if _, err := io.ReadFull(br, status); err != nil {
		return nil, errors.Wrap(err, "remote: scp trailing status")
	}
	if status[0] != 0 {
		return nil, errors.New("remote: scp reported transfer error")
	}

	if err := scpAck(w); err != nil {
		return nil, err
	}

	return buf, nil
}

// scpSend drives the "source" side of the SCP protocol to push a single
// file: read the initial ack, send the C<mode> <size> <name> control
// line, wait for ack, write the payload and trailing zero byte, wait for
// the final ack.
func scpSend(w io.Writer, r io.Reader, name string, data []byte, mode os.FileMode) error {
	br := bufio.NewReader(r)

	if err := scpWaitAck(br); err != nil {
		return err
	}

	header := fmt.Sprintf("C%04o %d %s\n", mode, len(data), name)
	if _, err := io.WriteString(w, header); err != nil {
		return errors.Wrap(err, "remote: scp header write")
	}
	if err := scpWaitAck(br); err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "remote: scp payload write")
	}
	if _, err := w.Write([]byte{0}); err != nil {
		return errors.Wrap(err, "remote: scp trailing byte write")
	}
	if err := scpWaitAck(br); err != nil {
		return err
	}
	return nil
}

// readSCPLine reads one newline-terminated SCP control line (a "C<mode>
// <size> <name>" header), excluding the trailing newline.
func readSCPLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", errors.Wrap(err, "remote: scp header read")
	}
	return line[:len(line)-1], nil
}

func scpAck(w io.Writer) error {
	_, err := w.Write([]byte{0})
	return errors.Wrap(err, "remote: scp ack write")
}

func scpWaitAck(r *bufio.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return errors.Wrap(err, "remote: scp ack read")
	}
	if b != 0 {
		msg, _ := r.ReadString('\n')
		return errors.Errorf("remote: scp error: %s", msg)
	}
	return nil
}
