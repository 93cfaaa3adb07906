package database

import (
	"context"
	"database/sql"
	"fmt"

	"favsync/internal/database/migrations"
	"favsync/internal/fav"
	"favsync/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements fav.RemoteStore on a SQLite database. The
// (owner_id, item_id) unique index makes every put create-if-absent, also
// across processes sharing the database file.
type SQLiteStore struct {
	db      *sql.DB
	queries *queries
	ids     fav.IDGenerator
	path    string
}

// NewSQLiteStore opens the database at path, applies pending migrations and
// returns a store. path can be a file path or ":memory:".
func NewSQLiteStore(path string, ids fav.IDGenerator) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}

	if ids == nil {
		ids = fav.UUIDGenerator{}
	}
	return &SQLiteStore{
		db:      db,
		queries: &queries{db: db},
		ids:     ids,
		path:    path,
	}, nil
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	// _busy_timeout applies to every pooled connection: wait for other
	// writers instead of failing with SQLITE_BUSY.
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// Every new connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

func (s *SQLiteStore) List(ctx context.Context, ownerID string) ([]model.FavoriteRecord, error) {
	records, err := s.queries.listFavorites(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing favorites for %s: %w", ownerID, err)
	}
	return records, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec model.FavoriteRecord) (model.FavoriteRecord, error) {
	stored, err := s.Commit(ctx, rec.OwnerID, fav.Batch{Puts: []model.FavoriteRecord{rec}})
	if err != nil {
		return model.FavoriteRecord{}, err
	}
	return stored[0], nil
}

// Commit applies the batch in one transaction: deletes first, then puts.
func (s *SQLiteStore) Commit(ctx context.Context, ownerID string, b fav.Batch) ([]model.FavoriteRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := s.queries.withTx(tx)

	for _, itemID := range b.DeleteItemIDs {
		if err := qtx.deleteFavorite(ctx, ownerID, itemID); err != nil {
			return nil, fmt.Errorf("deleting favorite %s: %w", itemID, err)
		}
	}

	stored := make([]model.FavoriteRecord, 0, len(b.Puts))
	for _, rec := range b.Puts {
		rec.OwnerID = ownerID
		rec.ID = s.ids.New()
		if err := qtx.insertFavorite(ctx, rec); err != nil {
			return nil, fmt.Errorf("inserting favorite %s: %w", rec.ItemID, err)
		}
		// On conflict this is the record that was already there.
		got, err := qtx.getFavorite(ctx, ownerID, rec.ItemID)
		if err != nil {
			return nil, fmt.Errorf("reading favorite %s: %w", rec.ItemID, err)
		}
		stored = append(stored, got)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return stored, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Compile-time check that SQLiteStore implements fav.RemoteStore
var _ fav.RemoteStore = (*SQLiteStore)(nil)
