package localstore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"favsync/internal/fav"
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// FilePort is a filesystem-backed StoragePort. Each key is one file:
//
//	<root>/
//	  favorites-store
//	  favorites-session
//
// Writes go to a temp file in the same directory and are renamed into place,
// so readers never see a partially written value.
type FilePort struct {
	root string
}

// NewFilePort creates a FilePort rooted at root, creating the directory.
func NewFilePort(root string) (*FilePort, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("failed to create local store directory: %w", err)
	}
	return &FilePort{root: root}, nil
}

func (p *FilePort) Get(key string) ([]byte, error) {
	path, err := p.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

func (p *FilePort) Set(key string, value []byte) error {
	path, err := p.path(key)
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(p.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(value); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

func (p *FilePort) Remove(key string) error {
	path, err := p.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

func (p *FilePort) path(key string) (string, error) {
	if !validKey.MatchString(key) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid storage key: %q", key)
	}
	return filepath.Join(p.root, key), nil
}

// Compile-time check that FilePort implements fav.StoragePort
var _ fav.StoragePort = (*FilePort)(nil)
