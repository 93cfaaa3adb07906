package model

import "time"

// LocalIDPrefix prefixes the synthesized id of records that only exist in the
// device-local tier.
const LocalIDPrefix = "local_"

// FavoriteRecord is the tier-agnostic form of a favorited item.
type FavoriteRecord struct {
	ID       string        `json:"id"`                // Remote-assigned, or LocalIDPrefix+ItemID
	ItemID   string        `json:"itemId"`            // Unique per owner scope
	OwnerID  string        `json:"ownerId,omitempty"` // Empty for local-only records
	AddedAt  time.Time     `json:"addedAt"`           // Immutable once created
	Snapshot *ItemSnapshot `json:"itemSnapshot,omitempty"`
}

// IsLocal reports whether the record has not been persisted remotely.
func (r FavoriteRecord) IsLocal() bool {
	return r.OwnerID == ""
}

// LocalFavoriteRecord is the persisted form while the user is anonymous.
type LocalFavoriteRecord struct {
	ItemID  string    `json:"itemId"`
	AddedAt time.Time `json:"addedAt"` // ISO-8601 on the wire
}

// ToFavorite maps a local record into the tier-agnostic form. The id is
// derived from the item id so reloading the same local data is stable.
func (l LocalFavoriteRecord) ToFavorite() FavoriteRecord {
	return FavoriteRecord{
		ID:      LocalIDPrefix + l.ItemID,
		ItemID:  l.ItemID,
		AddedAt: l.AddedAt,
	}
}

// ItemSnapshot is denormalized display data. It may be stale or missing and
// never decides membership.
type ItemSnapshot struct {
	Name      string `json:"name,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Category  string `json:"category,omitempty"`
}

// Identity is either anonymous (OwnerID == "") or an authenticated owner.
type Identity struct {
	OwnerID string `json:"ownerId,omitempty"`
}

// Anonymous is the identity used when no account is signed in.
var Anonymous = Identity{}

// Authenticated returns the identity for the given owner.
func Authenticated(ownerID string) Identity {
	return Identity{OwnerID: ownerID}
}

// IsAuthenticated reports whether an owner is signed in.
func (i Identity) IsAuthenticated() bool {
	return i.OwnerID != ""
}

func (i Identity) String() string {
	if !i.IsAuthenticated() {
		return "none"
	}
	return "authenticated(" + i.OwnerID + ")"
}

// MergeResult describes one successful migration of local favorites into the
// remote tier.
type MergeResult struct {
	OwnerID  string
	Migrated int
	At       time.Time
}
