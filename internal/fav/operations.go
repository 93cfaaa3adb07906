package fav

import (
	"context"

	"favsync/internal/broadcast"
	"favsync/internal/model"
)

// IsFavorite calls fn with the membership of itemID now and every time it
// flips. Repeated snapshots with the same membership are not delivered.
// fn runs under the same rules as Subscribe callbacks, so a toggle control
// may call Toggle from it.
func (e *Engine) IsFavorite(itemID string, fn func(bool)) (cancel func()) {
	return broadcast.Distinct[[]model.FavoriteRecord](e.view, func(records []model.FavoriteRecord) bool {
		return indexOf(records, itemID) >= 0
	}, fn)
}

// Contains reports whether itemID is currently a favorite.
func (e *Engine) Contains(itemID string) bool {
	return e.state.Contains(itemID)
}

// Add favorites itemID in the tier that matches the current identity.
// Adding an item that is already a favorite is a no-op. snapshot is optional
// display data stored alongside remote records.
func (e *Engine) Add(ctx context.Context, itemID string, snapshot *model.ItemSnapshot) error {
	if itemID == "" {
		return ErrEmptyItemID
	}
	return e.do(ctx, func(ctx context.Context) error {
		return e.add(ctx, e.identity.Current(), itemID, snapshot)
	})
}

// Remove unfavorites itemID in the tier that matches the current identity.
func (e *Engine) Remove(ctx context.Context, itemID string) error {
	if itemID == "" {
		return ErrEmptyItemID
	}
	return e.do(ctx, func(ctx context.Context) error {
		return e.remove(ctx, e.identity.Current(), itemID)
	})
}

// Toggle flips the favorite status of itemID and returns the new status.
// Concurrent toggles of the same item are serialized.
func (e *Engine) Toggle(ctx context.Context, itemID string, snapshot *model.ItemSnapshot) (bool, error) {
	if itemID == "" {
		return false, ErrEmptyItemID
	}
	var now bool
	err := e.do(ctx, func(ctx context.Context) error {
		id := e.identity.Current()
		if e.state.Contains(itemID) {
			return e.remove(ctx, id, itemID)
		}
		if err := e.add(ctx, id, itemID, snapshot); err != nil {
			return err
		}
		now = true
		return nil
	})
	if err != nil {
		return e.state.Contains(itemID), err
	}
	return now, nil
}

func (e *Engine) add(ctx context.Context, id model.Identity, itemID string, snapshot *model.ItemSnapshot) error {
	if e.state.Contains(itemID) {
		e.logger.Debug("item already a favorite", "item", itemID)
		return nil
	}

	now := e.clock.Now()
	var rec model.FavoriteRecord

	if id.IsAuthenticated() {
		stored, err := e.remote.Put(ctx, model.FavoriteRecord{
			ItemID:   itemID,
			OwnerID:  id.OwnerID,
			AddedAt:  now,
			Snapshot: snapshot,
		})
		e.metrics.wrote("add", TierRemote, err)
		if err != nil {
			return &TierError{Tier: TierRemote, Op: "add", Err: err}
		}
		rec = stored
	} else {
		local := model.LocalFavoriteRecord{ItemID: itemID, AddedAt: now}
		_, err := e.local.Append(local)
		e.metrics.wrote("add", TierLocal, err)
		if err != nil {
			return &TierError{Tier: TierLocal, Op: "add", Err: err}
		}
		rec = local.ToFavorite()
		rec.Snapshot = snapshot
	}

	e.state.ApplyAdd(rec)
	e.logger.Debug("favorite added", "item", itemID, "identity", id.String())
	return nil
}

func (e *Engine) remove(ctx context.Context, id model.Identity, itemID string) error {
	if id.IsAuthenticated() {
		_, err := e.remote.Commit(ctx, id.OwnerID, Batch{DeleteItemIDs: []string{itemID}})
		e.metrics.wrote("remove", TierRemote, err)
		if err != nil {
			return &TierError{Tier: TierRemote, Op: "remove", Err: err}
		}
	} else {
		err := e.local.RemoveByItemID(itemID)
		e.metrics.wrote("remove", TierLocal, err)
		if err != nil {
			return &TierError{Tier: TierLocal, Op: "remove", Err: err}
		}
	}

	e.state.ApplyRemove(itemID)
	e.logger.Debug("favorite removed", "item", itemID, "identity", id.String())
	return nil
}
