package encryption

import (
	"bytes"
	"fmt"
)

// testHeader is prepended by TestSealer so sealed values differ from
// plaintext while staying deterministic and reversible.
var testHeader = []byte("FAVENC\x00\x00")

// TestSealer is a deterministic Sealer for tests. It requires no keys.
type TestSealer struct{}

var _ Sealer = TestSealer{}

func (TestSealer) Seal(plaintext []byte) ([]byte, error) {
	return append(bytes.Clone(testHeader), plaintext...), nil
}

func (TestSealer) Open(sealed []byte) ([]byte, error) {
	if !bytes.HasPrefix(sealed, testHeader) {
		return nil, fmt.Errorf("invalid test encryption header")
	}
	return bytes.Clone(sealed[len(testHeader):]), nil
}

func (TestSealer) IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, testHeader)
}
