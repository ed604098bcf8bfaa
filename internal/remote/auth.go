package remote

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// LoadPrivateKey parses a PEM-encoded private key file, ported from the
// key-file branch of backend/sftp/sftp.go's NewFs. It is the single
// authentication mechanism spec.md §4.G allows ("public key ... the one
// user-facing authentication mechanism"); ssh-agent and password auth
// are deliberately not supported here (see DESIGN.md).
func LoadPrivateKey(path, passphrase string) (ssh.Signer, error) {
	key, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "remote: read private key file")
	}
	if passphrase == "" {
		signer, err := ssh.ParsePrivateKey(key)
		return signer, errors.Wrap(err, "remote: parse private key")
	}
	signer, err := ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	return signer, errors.Wrap(err, "remote: parse private key with passphrase")
}
