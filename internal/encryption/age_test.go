package encryption

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"favsync/internal/config"
	"favsync/internal/localstore"
	"favsync/internal/model"
)

func newTestKey(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keys", "local.key")
	if err := GenerateKey(path); err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	return path
}

func TestGenerateKey(t *testing.T) {
	t.Parallel()
	path := newTestKey(t)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("key file not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("key permissions = %v, want 0600", info.Mode().Perm())
	}

	if err := GenerateKey(path); err == nil {
		t.Error("GenerateKey() over an existing key expected error")
	}
}

func TestAgeSealer_RoundTrip(t *testing.T) {
	t.Parallel()
	sealer, err := LoadAgeSealer(newTestKey(t))
	if err != nil {
		t.Fatalf("LoadAgeSealer() error = %v", err)
	}

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "json list", input: []byte(`[{"itemId":"a","addedAt":"2024-01-15T10:30:00Z"}]`)},
		{name: "empty", input: []byte{}},
		{name: "large", input: bytes.Repeat([]byte("x"), 100000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := sealer.Seal(tt.input)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if !sealer.IsSealed(sealed) {
				t.Error("IsSealed() = false for sealed data")
			}
			if len(tt.input) > 0 && bytes.Contains(sealed, tt.input) {
				t.Error("sealed data contains plaintext")
			}

			got, err := sealer.Open(sealed)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if !bytes.Equal(got, tt.input) {
				t.Errorf("Open() returned %d bytes, want %d", len(got), len(tt.input))
			}
		})
	}
}

func TestAgeSealer_WrongKeyFails(t *testing.T) {
	t.Parallel()
	a, _ := LoadAgeSealer(newTestKey(t))
	b, _ := LoadAgeSealer(newTestKey(t))

	sealed, err := a.Seal([]byte("secret"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if _, err := b.Open(sealed); err == nil {
		t.Error("Open() with a different key expected error")
	}
}

func TestSealedPort_EncryptsAtRest(t *testing.T) {
	t.Parallel()
	inner := localstore.NewMemoryPort()
	port := NewSealedPort(inner, TestSealer{})

	store := localstore.NewStore(port, nil)
	if _, err := store.Append(model.LocalFavoriteRecord{ItemID: "52772"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	raw, _ := inner.Get(localstore.StorageKey)
	if !bytes.HasPrefix(raw, testHeader) {
		t.Errorf("stored value is not sealed: %q", raw)
	}

	records, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 1 || records[0].ItemID != "52772" {
		t.Errorf("Load() = %+v, want [52772]", records)
	}
}

func TestSealedPort_ReadsLegacyPlaintext(t *testing.T) {
	t.Parallel()
	inner := localstore.NewMemoryPort()
	inner.Set(localstore.StorageKey, []byte(`[{"itemId":"a","addedAt":"2024-01-15T10:30:00Z"}]`))

	records, err := localstore.NewStore(NewSealedPort(inner, TestSealer{}), nil).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 1 || records[0].ItemID != "a" {
		t.Errorf("Load() = %+v, want [a]", records)
	}
}

func TestWrapPortFromConfig(t *testing.T) {
	t.Parallel()
	inner := localstore.NewMemoryPort()

	t.Run("disabled returns inner", func(t *testing.T) {
		port, err := WrapPortFromConfig(config.EncryptionConfig{}, inner)
		if err != nil {
			t.Fatalf("WrapPortFromConfig() error = %v", err)
		}
		if port != inner {
			t.Error("expected inner port when encryption is disabled")
		}
	})

	t.Run("enabled seals with age", func(t *testing.T) {
		port, err := WrapPortFromConfig(config.EncryptionConfig{Enabled: true, KeyPath: newTestKey(t)}, inner)
		if err != nil {
			t.Fatalf("WrapPortFromConfig() error = %v", err)
		}
		if err := port.Set("k", []byte("v")); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		raw, _ := inner.Get("k")
		if !bytes.HasPrefix(raw, ageHeader) {
			t.Errorf("stored value is not an age file: %q", raw)
		}
	})

	t.Run("missing key fails", func(t *testing.T) {
		_, err := WrapPortFromConfig(config.EncryptionConfig{Enabled: true, KeyPath: "/nonexistent/key"}, inner)
		if err == nil {
			t.Error("WrapPortFromConfig() expected error for missing key")
		}
	})
}
