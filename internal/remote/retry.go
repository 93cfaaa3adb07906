package remote

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"favsync/internal/fav"
	"favsync/internal/model"
)

// Retrying wraps a RemoteStore and retries failed calls with exponential
// backoff. Puts are create-if-absent and deletes are idempotent, so repeating
// a call whose response was lost is safe.
type Retrying struct {
	inner    fav.RemoteStore
	attempts int
	interval time.Duration
	logger   fav.Logger
}

// NewRetrying creates a decorator making at most attempts calls per
// operation, starting at interval between them.
func NewRetrying(inner fav.RemoteStore, attempts int, interval time.Duration, logger fav.Logger) *Retrying {
	if logger == nil {
		logger = fav.NewNopLogger()
	}
	return &Retrying{inner: inner, attempts: attempts, interval: interval, logger: logger}
}

func (r *Retrying) List(ctx context.Context, ownerID string) ([]model.FavoriteRecord, error) {
	var out []model.FavoriteRecord
	err := r.retry(ctx, "list", func() error {
		var err error
		out, err = r.inner.List(ctx, ownerID)
		return err
	})
	return out, err
}

func (r *Retrying) Put(ctx context.Context, rec model.FavoriteRecord) (model.FavoriteRecord, error) {
	var out model.FavoriteRecord
	err := r.retry(ctx, "put", func() error {
		var err error
		out, err = r.inner.Put(ctx, rec)
		return err
	})
	return out, err
}

func (r *Retrying) Commit(ctx context.Context, ownerID string, b fav.Batch) ([]model.FavoriteRecord, error) {
	var out []model.FavoriteRecord
	err := r.retry(ctx, "commit", func() error {
		var err error
		out, err = r.inner.Commit(ctx, ownerID, b)
		return err
	})
	return out, err
}

func (r *Retrying) retry(ctx context.Context, op string, fn func() error) error {
	if r.attempts <= 1 {
		return fn()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.interval
	b.MaxInterval = 10 * r.interval
	b.MaxElapsedTime = 0

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrInvalidOwner) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.attempts-1)), ctx),
		func(err error, wait time.Duration) {
			r.logger.Debug("remote call failed, retrying", "op", op, "attempt", attempt, "wait", wait, "error", err)
		})
}

// Compile-time check that Retrying implements fav.RemoteStore
var _ fav.RemoteStore = (*Retrying)(nil)
