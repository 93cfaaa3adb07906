package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"favsync/internal/model"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds the statements of the favorites table.
type queries struct {
	db dbtx
}

func (q *queries) withTx(tx *sql.Tx) *queries {
	return &queries{db: tx}
}

const insertFavorite = `
INSERT INTO favorites (id, owner_id, item_id, added_at, item_snapshot)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (owner_id, item_id) DO NOTHING`

// insertFavorite creates rec unless the owner already has the item.
func (q *queries) insertFavorite(ctx context.Context, rec model.FavoriteRecord) error {
	snapshot, err := encodeSnapshot(rec.Snapshot)
	if err != nil {
		return err
	}
	addedAt, err := encodeTime(rec.AddedAt)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, insertFavorite,
		rec.ID, rec.OwnerID, rec.ItemID, addedAt, snapshot)
	return err
}

const getFavorite = `
SELECT id, owner_id, item_id, added_at, item_snapshot
FROM favorites
WHERE owner_id = ? AND item_id = ?`

func (q *queries) getFavorite(ctx context.Context, ownerID, itemID string) (model.FavoriteRecord, error) {
	return scanFavorite(q.db.QueryRowContext(ctx, getFavorite, ownerID, itemID))
}

const listFavorites = `
SELECT id, owner_id, item_id, added_at, item_snapshot
FROM favorites
WHERE owner_id = ?
ORDER BY added_at DESC, id`

func (q *queries) listFavorites(ctx context.Context, ownerID string) ([]model.FavoriteRecord, error) {
	rows, err := q.db.QueryContext(ctx, listFavorites, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []model.FavoriteRecord{}
	for rows.Next() {
		rec, err := scanFavorite(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

const deleteFavorite = `DELETE FROM favorites WHERE owner_id = ? AND item_id = ?`

func (q *queries) deleteFavorite(ctx context.Context, ownerID, itemID string) error {
	_, err := q.db.ExecContext(ctx, deleteFavorite, ownerID, itemID)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFavorite(row scanner) (model.FavoriteRecord, error) {
	var (
		rec      model.FavoriteRecord
		addedAt  string
		snapshot sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.OwnerID, &rec.ItemID, &addedAt, &snapshot); err != nil {
		return model.FavoriteRecord{}, err
	}
	t, err := time.Parse(timeLayout, addedAt)
	if err != nil {
		return model.FavoriteRecord{}, fmt.Errorf("decoding added_at of %s: %w", rec.ItemID, err)
	}
	rec.AddedAt = t

	if snapshot.Valid {
		var s model.ItemSnapshot
		if err := json.Unmarshal([]byte(snapshot.String), &s); err != nil {
			return model.FavoriteRecord{}, fmt.Errorf("decoding snapshot of %s: %w", rec.ItemID, err)
		}
		rec.Snapshot = &s
	}
	return rec, nil
}

// timeLayout is fixed width, so text order in UTC is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func encodeTime(t time.Time) (string, error) {
	t = t.UTC()
	if y := t.Year(); y < 0 || y > 9999 {
		return "", fmt.Errorf("added_at %v is outside years 0-9999", t)
	}
	return t.Format(timeLayout), nil
}

func encodeSnapshot(s *model.ItemSnapshot) (sql.NullString, error) {
	if s == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding snapshot: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
