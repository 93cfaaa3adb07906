package fav

import (
	"context"
	"errors"
	"slices"
	"sync"

	"favsync/internal/broadcast"
	"favsync/internal/model"
	"favsync/internal/queue"
)

// Engine keeps the favorites snapshot consistent across the local and remote
// tiers. Initialization (one run per identity emission) and every mutating
// call execute on a single FIFO lane, so a mutation never observes a tier
// state older than the identity changes that preceded it.
type Engine struct {
	local    LocalStore
	remote   RemoteStore
	identity IdentityProvider
	lookup   ItemLookup
	logger   Logger
	clock    Clock
	metrics  *Metrics

	state  *State
	lane   *queue.Runner
	notify *broadcast.Dispatcher

	// Consumer-facing streams, published only from the notify goroutine.
	view   *broadcast.Subject[[]model.FavoriteRecord]
	merges *broadcast.Subject[model.MergeResult]

	// merged is the per-session merge latch. Only touched on the lane.
	merged bool

	startOnce    sync.Once
	stopIdentity func()
	stopMetrics  func()
	stopForward  func()
}

// NewEngine creates an Engine. lookup and metrics may be nil.
func NewEngine(local LocalStore, remote RemoteStore, identity IdentityProvider, lookup ItemLookup, logger Logger, clock Clock, metrics *Metrics) *Engine {
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	e := &Engine{
		local:    local,
		remote:   remote,
		identity: identity,
		lookup:   lookup,
		logger:   logger,
		clock:    clock,
		metrics:  metrics,
		state:    NewState(),
		lane:     queue.NewRunner(64),
		notify:   broadcast.NewDispatcher(),
		view:     broadcast.New([]model.FavoriteRecord{}),
		merges:   broadcast.NewFeed[model.MergeResult](),
	}
	e.stopMetrics = e.state.Subscribe(func(records []model.FavoriteRecord) {
		e.metrics.observeSnapshot(len(records))
	})

	// The view already holds the empty initial snapshot, so skip the replay.
	replayed := false
	e.stopForward = e.state.Subscribe(func(records []model.FavoriteRecord) {
		if !replayed {
			replayed = true
			return
		}
		e.notify.Post(func() { e.view.Publish(records) })
	})
	return e
}

// Start subscribes to the identity stream. Every emission, including the
// replayed current identity, schedules one initialization run.
func (e *Engine) Start(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	e.startOnce.Do(func() {
		e.stopIdentity = e.identity.Subscribe(func(id model.Identity) {
			if _, err := e.lane.Submit(ctx, func(ctx context.Context) error {
				e.initialize(ctx, id)
				return nil
			}); err != nil {
				e.logger.Warn("initialization not scheduled", "identity", id.String(), "error", err)
			}
		})
	})
}

// Sync waits until all initialization and mutation work queued so far has
// completed. Notifications for that work may still be in flight; use Flush to
// wait for them as well. Sync may be called from a notification callback.
func (e *Engine) Sync(ctx context.Context) error {
	return e.do(ctx, func(context.Context) error { return nil })
}

// Flush is Sync followed by a wait until every notification produced by that
// work has been delivered. It must not be called from a notification callback,
// which would wait for itself.
func (e *Engine) Flush(ctx context.Context) error {
	if err := e.Sync(ctx); err != nil {
		return err
	}
	if err := e.notify.Flush(ctx); err != nil {
		if errors.Is(err, broadcast.ErrDispatcherClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// Close stops listening for identity changes, drains queued work and delivers
// the remaining notifications. It must not be called from a notification
// callback.
func (e *Engine) Close() error {
	if e.stopIdentity != nil {
		e.stopIdentity()
	}
	err := e.lane.Close()
	e.stopMetrics()
	e.stopForward()
	e.notify.Close()
	return err
}

// Subscribe replays the current snapshot and then every change.
//
// Callbacks run on a notification goroutine, never on the work lane, so they
// may call Add, Remove, Toggle, Sync and Snapshot. They must not subscribe to
// the engine, or call Flush or Close. A snapshot delivered to a callback can
// lag behind Snapshot while later changes are still being delivered.
func (e *Engine) Subscribe(fn func([]model.FavoriteRecord)) (cancel func()) {
	return e.view.Subscribe(fn)
}

// Snapshot returns a copy of the current favorites.
func (e *Engine) Snapshot() []model.FavoriteRecord {
	return e.state.Current()
}

// MergeCompleted calls fn once for every successful merge that happens after
// subscribing. fn runs under the same rules as Subscribe callbacks.
func (e *Engine) MergeCompleted(fn func(model.MergeResult)) (cancel func()) {
	return e.merges.Subscribe(fn)
}

// initialize decides which tier governs the snapshot for id and publishes it.
// It never fails: read errors degrade to the best data available.
func (e *Engine) initialize(ctx context.Context, id model.Identity) {
	if !id.IsAuthenticated() {
		e.state.Replace(e.localFavorites())
		return
	}

	remote, err := e.remote.List(ctx, id.OwnerID)
	if err != nil {
		e.metrics.readFailed(TierRemote)
		e.logger.Warn("loading remote favorites failed, using local favorites", "owner", id.OwnerID, "error", err)
		e.state.Replace(e.localFavorites())
		return
	}

	locals, err := e.local.Load()
	if err != nil {
		e.metrics.readFailed(TierLocal)
		e.logger.Warn("loading local favorites failed", "error", err)
		locals = nil
	}

	if len(locals) == 0 || e.merged {
		e.state.Replace(remote)
		return
	}

	snapshot, result := e.merge(ctx, id.OwnerID, locals, remote)
	e.state.Replace(snapshot)
	if result != nil {
		r := *result
		e.notify.Post(func() { e.merges.Publish(r) })
	}
}

// merge migrates local favorites missing from the remote tier in one atomic
// batch. On failure the local tier is left untouched so the next identity
// emission can retry, and the remote list is returned unchanged.
func (e *Engine) merge(ctx context.Context, ownerID string, locals []model.LocalFavoriteRecord, remote []model.FavoriteRecord) ([]model.FavoriteRecord, *model.MergeResult) {
	present := make(map[string]bool, len(remote))
	for _, r := range remote {
		present[r.ItemID] = true
	}

	var pending []model.FavoriteRecord
	for _, l := range locals {
		if present[l.ItemID] {
			continue // remote wins
		}
		present[l.ItemID] = true
		pending = append(pending, model.FavoriteRecord{
			ItemID:  l.ItemID,
			OwnerID: ownerID,
			AddedAt: l.AddedAt,
		})
	}

	if len(pending) == 0 {
		e.logger.Debug("no local favorites to merge", "owner", ownerID, "local", len(locals))
		return remote, nil
	}

	stored, err := e.remote.Commit(ctx, ownerID, Batch{Puts: pending})
	if err != nil {
		e.metrics.mergeFailed()
		e.logger.Error("merging local favorites failed, keeping them for retry", "owner", ownerID, "pending", len(pending), "error", err)
		return remote, nil
	}

	if err := e.local.Clear(); err != nil {
		e.logger.Warn("clearing local favorites after merge failed", "error", err)
	}
	e.merged = true
	e.metrics.mergeSucceeded(len(stored))
	e.logger.Info("local favorites merged", "owner", ownerID, "migrated", len(stored))

	merged := make([]model.FavoriteRecord, 0, len(remote)+len(stored))
	merged = append(merged, remote...)
	merged = append(merged, stored...)
	sortNewestFirst(merged)

	return merged, &model.MergeResult{OwnerID: ownerID, Migrated: len(stored), At: e.clock.Now()}
}

// localFavorites maps the local tier into records, newest first. Failures
// yield an empty list.
func (e *Engine) localFavorites() []model.FavoriteRecord {
	locals, err := e.local.Load()
	if err != nil {
		e.metrics.readFailed(TierLocal)
		e.logger.Warn("loading local favorites failed", "error", err)
		return []model.FavoriteRecord{}
	}

	seen := make(map[string]bool, len(locals))
	records := make([]model.FavoriteRecord, 0, len(locals))
	for _, l := range locals {
		if seen[l.ItemID] {
			continue
		}
		seen[l.ItemID] = true
		records = append(records, l.ToFavorite())
	}
	sortNewestFirst(records)
	return records
}

func (e *Engine) do(ctx context.Context, job queue.Job) error {
	err := e.lane.Do(ctx, job)
	if errors.Is(err, queue.ErrClosed) {
		return ErrClosed
	}
	return err
}

func sortNewestFirst(records []model.FavoriteRecord) {
	slices.SortStableFunc(records, func(a, b model.FavoriteRecord) int {
		return b.AddedAt.Compare(a.AddedAt)
	})
}
