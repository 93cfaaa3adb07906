package encryption

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
)

// ageHeader is the first line of every age file.
var ageHeader = []byte("age-encryption.org/v1\n")

// AgeSealer implements Sealer with an X25519 identity kept in a key file on
// the device. Only the device owner can read the key file.
type AgeSealer struct {
	identity  *age.X25519Identity
	recipient age.Recipient
}

var _ Sealer = (*AgeSealer)(nil)

// GenerateKey creates a new X25519 identity at path. It refuses to overwrite
// an existing key, since that would make sealed data unreadable.
func GenerateKey(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("key already exists at %s", path)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(identity.String()+"\n"), 0600); err != nil {
		return fmt.Errorf("writing key: %w", err)
	}
	return nil
}

// LoadAgeSealer reads the X25519 identity at path.
func LoadAgeSealer(path string) (*AgeSealer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing key: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities found in key file")
	}

	x, ok := identities[0].(*age.X25519Identity)
	if !ok {
		return nil, fmt.Errorf("key file does not hold an X25519 identity")
	}
	return NewAgeSealer(x), nil
}

// NewAgeSealer creates a sealer for an in-memory identity.
func NewAgeSealer(identity *age.X25519Identity) *AgeSealer {
	return &AgeSealer{identity: identity, recipient: identity.Recipient()}
}

func (s *AgeSealer) Seal(plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.recipient)
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("encrypting data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *AgeSealer) Open(sealed []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(sealed), s.identity)
	if err != nil {
		return nil, fmt.Errorf("creating decrypted reader: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decrypting data: %w", err)
	}
	return plain, nil
}

func (s *AgeSealer) IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, ageHeader)
}
