package fav_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"favsync/internal/fav"
	"favsync/internal/identity"
	"favsync/internal/localstore"
	"favsync/internal/lookup"
	"favsync/internal/model"
	"favsync/internal/remote"
	"favsync/internal/testutil"
)

var (
	t1 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	t2 = t1.Add(time.Hour)
	t3 = t1.Add(2 * time.Hour)
)

type harness struct {
	port     *testutil.FailingPort
	local    *localstore.Store
	mem      *remote.MemoryStore
	remote   *testutil.FailingRemote
	identity *identity.Stream
	lookup   *lookup.MemoryLookup
	clock    *testutil.StubClock
	registry *prometheus.Registry
	engine   *fav.Engine
}

// newHarness wires an engine over in-memory tiers. Call start to subscribe it
// to the identity stream.
func newHarness(t *testing.T, initial model.Identity) *harness {
	t.Helper()

	h := &harness{
		port:     testutil.NewFailingPort(localstore.NewMemoryPort()),
		mem:      remote.NewMemoryStore(testutil.NewStubIDGenerator()),
		identity: identity.NewStream(initial),
		lookup:   lookup.NewMemoryLookup(),
		clock:    testutil.NewStubClock(t3.Add(time.Hour)),
		registry: prometheus.NewRegistry(),
	}
	h.local = localstore.NewStore(h.port, nil)
	h.remote = testutil.NewFailingRemote(h.mem)
	h.engine = fav.NewEngine(h.local, h.remote, h.identity, h.lookup, nil, h.clock, fav.NewMetrics(h.registry))
	t.Cleanup(func() { h.engine.Close() })
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	h.engine.Start(context.Background())
	h.sync(t)
}

// sync waits for queued work and for delivery of its notifications.
func (h *harness) sync(t *testing.T) {
	t.Helper()
	require.NoError(t, h.engine.Flush(context.Background()))
}

func (h *harness) login(t *testing.T, owner string) {
	t.Helper()
	require.NoError(t, h.identity.Login(owner))
	h.sync(t)
}

func (h *harness) logout(t *testing.T) {
	t.Helper()
	require.NoError(t, h.identity.Logout())
	h.sync(t)
}

func (h *harness) seedLocal(t *testing.T, itemID string, at time.Time) {
	t.Helper()
	_, err := h.local.Append(model.LocalFavoriteRecord{ItemID: itemID, AddedAt: at})
	require.NoError(t, err)
}

func (h *harness) seedRemote(t *testing.T, owner, itemID string, at time.Time) model.FavoriteRecord {
	t.Helper()
	rec, err := h.mem.Put(context.Background(), model.FavoriteRecord{ItemID: itemID, OwnerID: owner, AddedAt: at})
	require.NoError(t, err)
	return rec
}

func (h *harness) localItems(t *testing.T) []string {
	t.Helper()
	records, err := h.local.Load()
	require.NoError(t, err)
	var ids []string
	for _, r := range records {
		ids = append(ids, r.ItemID)
	}
	return ids
}

func itemIDs(records []model.FavoriteRecord) []string {
	var ids []string
	for _, r := range records {
		ids = append(ids, r.ItemID)
	}
	return ids
}

func TestEngine_AnonymousRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.Anonymous)
	h.start(t)

	require.NoError(t, h.engine.Add(ctx, "a", nil))
	assert.Equal(t, []string{"a"}, h.localItems(t))

	snap := h.engine.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "local_a", snap[0].ID)
	assert.True(t, snap[0].IsLocal())

	require.NoError(t, h.engine.Remove(ctx, "a"))
	assert.Empty(t, h.localItems(t))
	assert.Empty(t, h.engine.Snapshot())
	assert.Zero(t, h.remote.PutCalls()+h.remote.CommitCalls(), "remote tier untouched")
}

func TestEngine_InitialAnonymousSnapshotIsNewestFirst(t *testing.T) {
	h := newHarness(t, model.Anonymous)
	h.seedLocal(t, "a", t1)
	h.seedLocal(t, "b", t2)
	h.start(t)

	assert.Equal(t, []string{"b", "a"}, itemIDs(h.engine.Snapshot()))
}

func TestEngine_MergeKeepsLocalAddOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.Anonymous)
	h.clock.SetStep(time.Minute)
	h.start(t)

	require.NoError(t, h.engine.Add(ctx, "a", nil))
	require.NoError(t, h.engine.Add(ctx, "b", nil))
	require.NoError(t, h.engine.Add(ctx, "c", nil))
	assert.Equal(t, []string{"c", "b", "a"}, itemIDs(h.engine.Snapshot()))

	h.login(t, "user-1")

	stored, err := h.mem.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, itemIDs(stored))
	assert.Equal(t, []string{"c", "b", "a"}, itemIDs(h.engine.Snapshot()))
	assert.True(t, stored[0].AddedAt.After(stored[1].AddedAt))
}

func TestEngine_AddIsIdempotent(t *testing.T) {
	ctx := context.Background()

	t.Run("anonymous", func(t *testing.T) {
		h := newHarness(t, model.Anonymous)
		h.start(t)

		require.NoError(t, h.engine.Add(ctx, "a", nil))
		require.NoError(t, h.engine.Add(ctx, "a", nil))

		assert.Equal(t, []string{"a"}, h.localItems(t))
		assert.Len(t, h.engine.Snapshot(), 1)
	})

	t.Run("authenticated", func(t *testing.T) {
		h := newHarness(t, model.Authenticated("user-1"))
		h.start(t)

		require.NoError(t, h.engine.Add(ctx, "a", nil))
		require.NoError(t, h.engine.Add(ctx, "a", nil))

		assert.Equal(t, 1, h.mem.Len("user-1"))
		assert.Equal(t, 1, h.remote.PutCalls())
		assert.Len(t, h.engine.Snapshot(), 1)
	})
}

func TestEngine_AuthenticatedAddStoresSnapshot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.Authenticated("user-1"))
	h.start(t)

	snap := &model.ItemSnapshot{Name: "Teriyaki Chicken Casserole"}
	require.NoError(t, h.engine.Add(ctx, "52772", snap))

	records, err := h.mem.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, snap, records[0].Snapshot)
	assert.Equal(t, records, h.engine.Snapshot())
	assert.Empty(t, h.localItems(t))
}

func TestEngine_MergeCorrectness(t *testing.T) {
	h := newHarness(t, model.Anonymous)
	h.seedLocal(t, "a", t1)
	h.seedLocal(t, "b", t2)
	remoteB := h.seedRemote(t, "user-1", "b", t3)
	h.start(t)

	var results []model.MergeResult
	cancel := h.engine.MergeCompleted(func(r model.MergeResult) { results = append(results, r) })
	defer cancel()

	h.login(t, "user-1")

	records, err := h.mem.List(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, itemIDs(records))
	assert.True(t, records[0].AddedAt.Equal(t3), "remote b keeps its time")
	assert.Equal(t, remoteB.ID, records[0].ID)
	assert.True(t, records[1].AddedAt.Equal(t1), "migrated a keeps its local time")
	assert.Equal(t, "user-1", records[1].OwnerID)

	assert.Empty(t, h.localItems(t))
	assert.Equal(t, records, h.engine.Snapshot())

	require.Len(t, results, 1)
	assert.Equal(t, model.MergeResult{OwnerID: "user-1", Migrated: 1, At: h.clock.Peek()}, results[0])
}

func TestEngine_MergeRunsOncePerSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.Anonymous)
	h.seedLocal(t, "a", t1)
	h.start(t)

	merges := 0
	cancel := h.engine.MergeCompleted(func(model.MergeResult) { merges++ })
	defer cancel()

	h.login(t, "user-1")
	require.Equal(t, 1, merges)
	commits := h.remote.CommitCalls()

	// New anonymous favorites after the merge stay local on the next login.
	h.logout(t)
	require.NoError(t, h.engine.Add(ctx, "c", nil))
	h.login(t, "user-1")

	assert.Equal(t, 1, merges)
	assert.Equal(t, commits, h.remote.CommitCalls(), "no additional remote writes")
	assert.Equal(t, []string{"c"}, h.localItems(t))
	assert.Equal(t, []string{"a"}, itemIDs(h.engine.Snapshot()))
}

func TestEngine_MergeFailureIsSafe(t *testing.T) {
	h := newHarness(t, model.Anonymous)
	h.seedLocal(t, "a", t1)
	h.seedLocal(t, "b", t2)
	h.seedRemote(t, "user-1", "b", t3)
	h.start(t)

	merges := 0
	cancel := h.engine.MergeCompleted(func(model.MergeResult) { merges++ })
	defer cancel()

	h.remote.FailCommitTimes(1, errors.New("deadline exceeded"))
	h.login(t, "user-1")

	assert.Equal(t, []string{"a", "b"}, h.localItems(t), "local favorites untouched")
	assert.Equal(t, []string{"b"}, itemIDs(h.engine.Snapshot()), "remote-only fallback")
	assert.Zero(t, merges)
	assert.Equal(t, 1, h.mem.Len("user-1"))

	// The latch stayed unset, so the next authenticated emission retries.
	h.logout(t)
	h.login(t, "user-1")

	assert.Empty(t, h.localItems(t))
	assert.Equal(t, []string{"b", "a"}, itemIDs(h.engine.Snapshot()))
	assert.Equal(t, 1, merges)

	err := promtestutil.GatherAndCompare(h.registry, strings.NewReader(`
# HELP favsync_merge_failures_total Merge batch commits that failed and left local favorites in place.
# TYPE favsync_merge_failures_total counter
favsync_merge_failures_total 1
# HELP favsync_merges_total Successful migrations of local favorites into the remote tier.
# TYPE favsync_merges_total counter
favsync_merges_total 1
`), "favsync_merges_total", "favsync_merge_failures_total")
	assert.NoError(t, err)
}

func TestEngine_NothingToMergeLeavesLocalAlone(t *testing.T) {
	h := newHarness(t, model.Anonymous)
	h.seedLocal(t, "b", t2)
	h.seedRemote(t, "user-1", "b", t3)
	h.start(t)

	merges := 0
	cancel := h.engine.MergeCompleted(func(model.MergeResult) { merges++ })
	defer cancel()

	h.login(t, "user-1")

	assert.Zero(t, h.remote.CommitCalls())
	assert.Zero(t, merges)
	assert.Equal(t, []string{"b"}, h.localItems(t))
	assert.Equal(t, []string{"b"}, itemIDs(h.engine.Snapshot()))
}

func TestEngine_RemoteReadFailureFallsBackToLocal(t *testing.T) {
	h := newHarness(t, model.Anonymous)
	h.seedLocal(t, "a", t1)
	h.seedRemote(t, "user-1", "z", t3)
	h.remote.FailListTimes(1, errors.New("unavailable"))
	h.start(t)

	h.login(t, "user-1")

	assert.Equal(t, []string{"a"}, itemIDs(h.engine.Snapshot()))
	assert.Equal(t, []string{"a"}, h.localItems(t))
	assert.Zero(t, h.remote.CommitCalls())
}

func TestEngine_LogoutShowsLocalTier(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.Authenticated("user-1"))
	h.start(t)
	require.NoError(t, h.engine.Add(ctx, "r", nil))

	h.logout(t)

	assert.Empty(t, h.engine.Snapshot())
	assert.Equal(t, 1, h.mem.Len("user-1"))
}

func TestEngine_Toggle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.Authenticated("user-1"))
	h.start(t)

	now, err := h.engine.Toggle(ctx, "a", nil)
	require.NoError(t, err)
	assert.True(t, now)
	assert.True(t, h.engine.Contains("a"))

	now, err = h.engine.Toggle(ctx, "a", nil)
	require.NoError(t, err)
	assert.False(t, now)
	assert.False(t, h.engine.Contains("a"))
	assert.Zero(t, h.mem.Len("user-1"))
}

func TestEngine_ConcurrentTogglesAreSerialized(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.Anonymous)
	h.start(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.Toggle(ctx, "a", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.False(t, h.engine.Contains("a"))
	assert.Empty(t, h.localItems(t))
}

func TestEngine_IsFavoriteIsDistinct(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.Anonymous)
	h.start(t)

	var got []bool
	cancel := h.engine.IsFavorite("a", func(v bool) { got = append(got, v) })
	defer cancel()

	require.NoError(t, h.engine.Add(ctx, "b", nil))
	require.NoError(t, h.engine.Add(ctx, "a", nil))
	require.NoError(t, h.engine.Add(ctx, "c", nil))
	require.NoError(t, h.engine.Remove(ctx, "b"))
	require.NoError(t, h.engine.Remove(ctx, "a"))
	h.sync(t)

	assert.Equal(t, []bool{false, true, false}, got)
}

func TestEngine_CallbacksMayMutate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.Anonymous)
	h.start(t)

	done := make(chan error, 1)
	cancel := h.engine.IsFavorite("a", func(on bool) {
		if !on {
			return
		}
		now, err := h.engine.Toggle(ctx, "b", nil)
		if err == nil && !now {
			err = errors.New("toggle left b unfavorited")
		}
		if err == nil {
			err = h.engine.Sync(ctx)
		}
		done <- err
	})
	defer cancel()

	require.NoError(t, h.engine.Add(ctx, "a", nil))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Toggle from an IsFavorite callback did not return")
	}
	assert.True(t, h.engine.Contains("b"))
	assert.ElementsMatch(t, []string{"a", "b"}, h.localItems(t))
}

func TestEngine_SnapshotAndMergeCallbacksMayMutate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.Anonymous)
	h.seedLocal(t, "a", t1)
	h.start(t)

	// A consumer that drops "x" whenever it shows up.
	stopSnapshots := h.engine.Subscribe(func(records []model.FavoriteRecord) {
		for _, r := range records {
			if r.ItemID == "x" {
				assert.NoError(t, h.engine.Remove(ctx, "x"))
			}
		}
	})
	defer stopSnapshots()

	merged := make(chan error, 1)
	stopMerges := h.engine.MergeCompleted(func(model.MergeResult) {
		merged <- h.engine.Remove(ctx, "a")
	})
	defer stopMerges()

	require.NoError(t, h.engine.Add(ctx, "x", nil))
	h.login(t, "user-1")

	select {
	case err := <-merged:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Remove from a MergeCompleted callback did not return")
	}
	h.sync(t)

	assert.False(t, h.engine.Contains("x"))
	assert.False(t, h.engine.Contains("a"))
	assert.Zero(t, h.mem.Len("user-1"))
}

func TestEngine_TierErrorsSurface(t *testing.T) {
	ctx := context.Background()

	t.Run("remote add", func(t *testing.T) {
		h := newHarness(t, model.Authenticated("user-1"))
		h.start(t)
		h.remote.FailPutTimes(1, errors.New("permission denied"))

		err := h.engine.Add(ctx, "a", nil)
		require.Error(t, err)
		assert.True(t, fav.IsTierError(err, fav.TierRemote))
		assert.Empty(t, h.engine.Snapshot())
	})

	t.Run("remote remove", func(t *testing.T) {
		h := newHarness(t, model.Authenticated("user-1"))
		h.start(t)
		require.NoError(t, h.engine.Add(ctx, "a", nil))
		h.remote.FailCommitTimes(1, errors.New("permission denied"))

		err := h.engine.Remove(ctx, "a")
		require.Error(t, err)
		assert.True(t, fav.IsTierError(err, fav.TierRemote))
		assert.True(t, h.engine.Contains("a"))
	})

	t.Run("local add", func(t *testing.T) {
		h := newHarness(t, model.Anonymous)
		h.start(t)
		quota := errors.New("quota exceeded")
		h.port.FailSets(quota)

		err := h.engine.Add(ctx, "a", nil)
		require.Error(t, err)
		assert.True(t, fav.IsTierError(err, fav.TierLocal))
		assert.ErrorIs(t, err, quota)
		assert.Empty(t, h.engine.Snapshot())
	})

	t.Run("toggle reports unchanged state", func(t *testing.T) {
		h := newHarness(t, model.Anonymous)
		h.start(t)
		h.port.FailSets(errors.New("quota exceeded"))

		now, err := h.engine.Toggle(ctx, "a", nil)
		require.Error(t, err)
		assert.False(t, now)
	})
}

func TestEngine_RejectsEmptyItemID(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.Anonymous)
	h.start(t)

	assert.ErrorIs(t, h.engine.Add(ctx, "", nil), fav.ErrEmptyItemID)
	assert.ErrorIs(t, h.engine.Remove(ctx, ""), fav.ErrEmptyItemID)
	_, err := h.engine.Toggle(ctx, "", nil)
	assert.ErrorIs(t, err, fav.ErrEmptyItemID)
}

func TestEngine_ClosedEngineRejectsWork(t *testing.T) {
	h := newHarness(t, model.Anonymous)
	h.start(t)
	require.NoError(t, h.engine.Close())

	assert.ErrorIs(t, h.engine.Add(context.Background(), "a", nil), fav.ErrClosed)
	assert.ErrorIs(t, h.engine.Sync(context.Background()), fav.ErrClosed)
	assert.ErrorIs(t, h.engine.Flush(context.Background()), fav.ErrClosed)
}

func TestEngine_MutationAfterLoginSeesMergedState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.Anonymous)
	h.seedLocal(t, "a", t1)
	h.start(t)

	// Login enqueues initialization; the add queued right after it must run
	// against the merged, authenticated state.
	require.NoError(t, h.identity.Login("user-1"))
	require.NoError(t, h.engine.Add(ctx, "b", nil))

	assert.Equal(t, 2, h.mem.Len("user-1"))
	assert.Empty(t, h.localItems(t))
	assert.Equal(t, []string{"b", "a"}, itemIDs(h.engine.Snapshot()))
}

func TestEngine_Hydrate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.Anonymous)
	h.start(t)
	h.lookup.Add("a", model.ItemSnapshot{Name: "Arrabiata"})

	records := []model.FavoriteRecord{
		{ID: "local_a", ItemID: "a"},
		{ID: "local_b", ItemID: "b", Snapshot: &model.ItemSnapshot{Name: "stale"}},
	}

	got := h.engine.Hydrate(ctx, records)
	require.Len(t, got, 2)
	assert.Equal(t, "Arrabiata", got[0].Snapshot.Name)
	assert.Equal(t, "stale", got[1].Snapshot.Name, "unknown items keep their snapshot")
	assert.Nil(t, records[0].Snapshot, "input is not modified")

	h.lookup.Fail(errors.New("offline"))
	got = h.engine.Hydrate(ctx, records)
	assert.Nil(t, got[0].Snapshot)
	assert.Equal(t, "stale", got[1].Snapshot.Name)
}
