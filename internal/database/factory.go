package database

import (
	"fmt"
	"os"
	"path/filepath"

	"favsync/internal/config"
	"favsync/internal/fav"
)

// NewStoreFromConfig opens the SQLite favorites database in cfg.DataDir.
func NewStoreFromConfig(cfg config.RemoteConfig, ids fav.IDGenerator) (*SQLiteStore, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir required for sqlite remote")
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return NewSQLiteStore(filepath.Join(cfg.DataDir, "favorites.db"), ids)
}
