package fav

import (
	"context"

	"favsync/internal/model"
)

// StoragePort is the narrow device key-value API the local tier is built on.
// Implementations need not be safe for concurrent read-modify-write; the
// LocalStore serializes access.
type StoragePort interface {
	// Get returns the value stored under key, or nil if there is none.
	Get(key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(key string, value []byte) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error
}

// LocalStore is the device-local favorites list used while anonymous.
// Every method is a complete read-modify-write critical section.
type LocalStore interface {
	// Load returns the stored records in the order they were added.
	// Malformed data is treated as an empty list.
	Load() ([]model.LocalFavoriteRecord, error)

	// Append adds rec unless a record for the same item already exists.
	// It reports whether the list changed.
	Append(rec model.LocalFavoriteRecord) (bool, error)

	// RemoveByItemID deletes every record for itemID.
	RemoveByItemID(itemID string) error

	// Clear removes the whole list.
	Clear() error
}

// Batch is a set of writes applied atomically to one owner's collection.
type Batch struct {
	// Puts are created if no record for the same item exists; otherwise the
	// existing record wins and is left untouched.
	Puts []model.FavoriteRecord

	// DeleteItemIDs removes every record matching each item id.
	DeleteItemIDs []string
}

// RemoteStore is the per-owner favorites collection.
type RemoteStore interface {
	// List returns the owner's records ordered by AddedAt descending.
	List(ctx context.Context, ownerID string) ([]model.FavoriteRecord, error)

	// Put creates rec if the owner has no record for rec.ItemID and returns
	// the stored record (the pre-existing one on conflict). The store assigns
	// the record id.
	Put(ctx context.Context, rec model.FavoriteRecord) (model.FavoriteRecord, error)

	// Commit applies b atomically. It returns the stored record for each put,
	// in the order of b.Puts.
	Commit(ctx context.Context, ownerID string, b Batch) ([]model.FavoriteRecord, error)
}

// IdentityProvider exposes the authentication state.
type IdentityProvider interface {
	// Subscribe replays the current identity and then every change.
	Subscribe(fn func(model.Identity)) (cancel func())

	// Current returns the latest identity without subscribing.
	Current() model.Identity
}

// ItemLookup supplies display metadata for an item. It returns nil, nil when
// the item is unknown.
type ItemLookup interface {
	GetByID(ctx context.Context, itemID string) (*model.ItemSnapshot, error)
}
