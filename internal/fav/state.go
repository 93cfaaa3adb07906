package fav

import (
	"slices"

	"favsync/internal/broadcast"
	"favsync/internal/model"
)

// State is the single authoritative in-memory favorites snapshot, ordered
// most-recently-added first. Published snapshots are never mutated; every
// change produces a new slice.
type State struct {
	subject *broadcast.Subject[[]model.FavoriteRecord]
}

// NewState creates an empty State.
func NewState() *State {
	return &State{subject: broadcast.New([]model.FavoriteRecord{})}
}

// Subscribe replays the current snapshot to fn and then every change.
// fn must treat the slice as read-only.
func (s *State) Subscribe(fn func([]model.FavoriteRecord)) (cancel func()) {
	return s.subject.Subscribe(fn)
}

// Current returns a copy of the current snapshot.
func (s *State) Current() []model.FavoriteRecord {
	return slices.Clone(s.subject.Latest())
}

// Contains reports whether itemID is in the current snapshot.
func (s *State) Contains(itemID string) bool {
	return indexOf(s.subject.Latest(), itemID) >= 0
}

// Replace swaps in a new snapshot. The caller's slice is copied.
func (s *State) Replace(records []model.FavoriteRecord) {
	s.subject.Publish(slices.Clone(records))
}

// ApplyAdd prepends rec after a confirmed write. Adding an item that is
// already present publishes nothing.
func (s *State) ApplyAdd(rec model.FavoriteRecord) {
	if s.Contains(rec.ItemID) {
		return
	}
	s.subject.Update(func(cur []model.FavoriteRecord) []model.FavoriteRecord {
		if indexOf(cur, rec.ItemID) >= 0 {
			return cur
		}
		next := make([]model.FavoriteRecord, 0, len(cur)+1)
		next = append(next, rec)
		return append(next, cur...)
	})
}

// ApplyRemove drops every record for itemID after a confirmed delete.
func (s *State) ApplyRemove(itemID string) {
	if !s.Contains(itemID) {
		return
	}
	s.subject.Update(func(cur []model.FavoriteRecord) []model.FavoriteRecord {
		return slices.DeleteFunc(slices.Clone(cur), func(r model.FavoriteRecord) bool {
			return r.ItemID == itemID
		})
	})
}

func indexOf(records []model.FavoriteRecord, itemID string) int {
	return slices.IndexFunc(records, func(r model.FavoriteRecord) bool {
		return r.ItemID == itemID
	})
}
