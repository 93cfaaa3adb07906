package testutil

import (
	"context"
	"sync"

	"favsync/internal/fav"
	"favsync/internal/model"
)

// FailingRemote wraps a RemoteStore and fails a configured number of calls
// per method before delegating. It counts every call.
type FailingRemote struct {
	inner fav.RemoteStore

	mu                         sync.Mutex
	listFails, putFails        int
	commitFails                int
	listErr, putErr, commitErr error
	listCalls, putCalls        int
	commitCalls                int
}

// NewFailingRemote wraps inner. No calls fail until configured.
func NewFailingRemote(inner fav.RemoteStore) *FailingRemote {
	return &FailingRemote{inner: inner}
}

// FailListTimes makes the next n List calls return err.
func (f *FailingRemote) FailListTimes(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listFails, f.listErr = n, err
}

// FailPutTimes makes the next n Put calls return err.
func (f *FailingRemote) FailPutTimes(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putFails, f.putErr = n, err
}

// FailCommitTimes makes the next n Commit calls return err.
func (f *FailingRemote) FailCommitTimes(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commitFails, f.commitErr = n, err
}

func (f *FailingRemote) ListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *FailingRemote) PutCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.putCalls
}

func (f *FailingRemote) CommitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commitCalls
}

func (f *FailingRemote) List(ctx context.Context, ownerID string) ([]model.FavoriteRecord, error) {
	if err := f.record(&f.listCalls, &f.listFails, f.listErr); err != nil {
		return nil, err
	}
	return f.inner.List(ctx, ownerID)
}

func (f *FailingRemote) Put(ctx context.Context, rec model.FavoriteRecord) (model.FavoriteRecord, error) {
	if err := f.record(&f.putCalls, &f.putFails, f.putErr); err != nil {
		return model.FavoriteRecord{}, err
	}
	return f.inner.Put(ctx, rec)
}

func (f *FailingRemote) Commit(ctx context.Context, ownerID string, b fav.Batch) ([]model.FavoriteRecord, error) {
	if err := f.record(&f.commitCalls, &f.commitFails, f.commitErr); err != nil {
		return nil, err
	}
	return f.inner.Commit(ctx, ownerID, b)
}

func (f *FailingRemote) record(calls, fails *int, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	*calls++
	if *fails > 0 {
		*fails--
		return err
	}
	return nil
}

// PutBatch returns a batch creating one record per item id.
func PutBatch(itemIDs ...string) fav.Batch {
	var b fav.Batch
	for _, id := range itemIDs {
		b.Puts = append(b.Puts, model.FavoriteRecord{ItemID: id})
	}
	return b
}

var _ fav.RemoteStore = (*FailingRemote)(nil)
