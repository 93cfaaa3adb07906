package encryption

import (
	"fmt"

	"favsync/internal/config"
	"favsync/internal/fav"
)

// Sealer encrypts and decrypts values stored on the device.
type Sealer interface {
	// Seal encrypts plaintext.
	Seal(plaintext []byte) ([]byte, error)

	// Open decrypts data produced by Seal.
	Open(sealed []byte) ([]byte, error)

	// IsSealed reports whether data looks like Seal output. Values written
	// before encryption was enabled are read as plaintext.
	IsSealed(data []byte) bool
}

// SealedPort wraps a StoragePort so every value is encrypted at rest.
type SealedPort struct {
	inner  fav.StoragePort
	sealer Sealer
}

// NewSealedPort creates a SealedPort over inner.
func NewSealedPort(inner fav.StoragePort, sealer Sealer) *SealedPort {
	return &SealedPort{inner: inner, sealer: sealer}
}

func (p *SealedPort) Get(key string) ([]byte, error) {
	data, err := p.inner.Get(key)
	if err != nil || data == nil {
		return data, err
	}
	if !p.sealer.IsSealed(data) {
		return data, nil
	}
	plain, err := p.sealer.Open(data)
	if err != nil {
		return nil, fmt.Errorf("decrypting %s: %w", key, err)
	}
	return plain, nil
}

func (p *SealedPort) Set(key string, value []byte) error {
	sealed, err := p.sealer.Seal(value)
	if err != nil {
		return fmt.Errorf("encrypting %s: %w", key, err)
	}
	return p.inner.Set(key, sealed)
}

func (p *SealedPort) Remove(key string) error {
	return p.inner.Remove(key)
}

// Compile-time check that SealedPort implements fav.StoragePort
var _ fav.StoragePort = (*SealedPort)(nil)

// WrapPortFromConfig returns inner sealed with the configured age key, or
// inner unchanged when encryption is disabled.
func WrapPortFromConfig(cfg config.EncryptionConfig, inner fav.StoragePort) (fav.StoragePort, error) {
	if !cfg.Enabled {
		return inner, nil
	}
	sealer, err := LoadAgeSealer(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading local encryption key: %w", err)
	}
	return NewSealedPort(inner, sealer), nil
}
