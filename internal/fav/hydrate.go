package fav

import (
	"context"
	"slices"
	"sync"

	"favsync/internal/model"
)

const hydrateConcurrency = 4

// Hydrate returns a copy of records with display snapshots refreshed from the
// item lookup. Lookup failures and unknown items keep whatever snapshot the
// record already had. Membership is never changed.
func (e *Engine) Hydrate(ctx context.Context, records []model.FavoriteRecord) []model.FavoriteRecord {
	out := slices.Clone(records)
	if e.lookup == nil || len(out) == 0 {
		return out
	}

	sem := make(chan struct{}, hydrateConcurrency)
	var wg sync.WaitGroup
	for i := range out {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			snap, err := e.lookup.GetByID(ctx, out[i].ItemID)
			if err != nil {
				e.logger.Debug("item lookup failed", "item", out[i].ItemID, "error", err)
				return
			}
			if snap != nil {
				out[i].Snapshot = snap
			}
		}(i)
	}
	wg.Wait()

	return out
}
