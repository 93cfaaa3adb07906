package localstore

import (
	"fmt"

	"favsync/internal/config"
	"favsync/internal/fav"
)

// NewPortFromConfig creates a StoragePort based on the local config type.
func NewPortFromConfig(cfg config.LocalConfig) (fav.StoragePort, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryPort(), nil
	case "file", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("file local store requires path to be set")
		}
		return NewFilePort(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown local store type: %s", cfg.Type)
	}
}
