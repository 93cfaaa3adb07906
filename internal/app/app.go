package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"favsync/internal/broadcast"
	"favsync/internal/config"
	"favsync/internal/connectivity"
	"favsync/internal/encryption"
	"favsync/internal/fav"
	"favsync/internal/identity"
	"favsync/internal/localstore"
	"favsync/internal/lookup"
	"favsync/internal/model"
	"favsync/internal/remote"
)

// FavApp is the application layer between the CLI and the sync engine.
// It constructs all dependencies from config, exposes high-level operations,
// and releases resources on Close.
type FavApp struct {
	cfg        *config.Config
	local      *localstore.Store
	identity   *identity.Stream
	lookup     fav.ItemLookup
	engine     *fav.Engine
	monitor    *connectivity.Monitor
	statusFile *connectivity.StatusFile
	registry   *prometheus.Registry
	op         *Operation
	logger     fav.Logger
	logFile    *os.File
	closeStore func() error
}

// Options tune a FavApp beyond what the config file holds.
type Options struct {
	// LogLevel is the minimum level written to the log; defaults to Info.
	LogLevel slog.Leveler
}

// NewFavApp creates a fully wired FavApp from the given config and waits for
// the initial snapshot. operation names the CLI command being run.
// The caller must call Close when done.
func NewFavApp(ctx context.Context, cfg *config.Config, operation, itemID string, opts Options) (*FavApp, error) {
	level := opts.LogLevel
	if level == nil {
		level = slog.LevelInfo
	}
	sessionID := uuid.New().String()[:8]
	slogger, logFile, err := newLogger(cfg.LogDir, sessionID, level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	a := &FavApp{
		cfg:      cfg,
		op:       NewOperation(operation, itemID, time.Now()),
		logger:   logger,
		logFile:  logFile,
		registry: prometheus.NewRegistry(),
	}
	if err := a.wire(ctx); err != nil {
		logFile.Close()
		return nil, err
	}
	return a, nil
}

func (a *FavApp) wire(ctx context.Context) error {
	cfg := a.cfg

	port, err := localstore.NewPortFromConfig(cfg.Local)
	if err != nil {
		return fmt.Errorf("creating local storage: %w", err)
	}
	port, err = encryption.WrapPortFromConfig(cfg.Encryption, port)
	if err != nil {
		return err
	}
	a.local = localstore.NewStore(port, a.logger)
	a.identity = identity.NewPersistentStream(port, a.logger)

	store, closeStore, err := remote.NewStoreFromConfig(ctx, cfg.Remote, a.logger)
	if err != nil {
		return fmt.Errorf("creating remote store: %w", err)
	}
	a.closeStore = closeStore

	if cfg.Lookup.BaseURL != "" {
		timeout, err := cfg.Lookup.TimeoutDuration()
		if err != nil {
			closeStore()
			return fmt.Errorf("lookup timeout: %w", err)
		}
		a.lookup = lookup.NewHTTPLookup(cfg.Lookup.BaseURL, timeout)
	}

	var source connectivity.Source = connectivity.AlwaysOnline{}
	if cfg.Connectivity.StatusFile != "" {
		a.statusFile = connectivity.NewStatusFile(cfg.Connectivity.StatusFile, a.logger)
		source = a.statusFile
	}
	a.monitor = connectivity.NewMonitor(source, a.logger)

	a.engine = fav.NewEngine(a.local, store, a.identity, a.lookup, a.logger, fav.RealClock{}, fav.NewMetrics(a.registry))
	a.engine.Start(ctx)
	if err := a.engine.Sync(ctx); err != nil {
		a.engine.Close()
		closeStore()
		return fmt.Errorf("initializing favorites: %w", err)
	}
	return nil
}

// Favorites returns the current snapshot, with display data refreshed from
// the item lookup when hydrate is set.
func (a *FavApp) Favorites(ctx context.Context, hydrate bool) ([]model.FavoriteRecord, error) {
	if err := a.op.Record(a.engine.Sync(ctx)); err != nil {
		return nil, err
	}
	records := a.engine.Snapshot()
	if hydrate {
		records = a.engine.Hydrate(ctx, records)
	}
	return records, nil
}

// Add favorites itemID, storing its display data when the lookup knows it.
func (a *FavApp) Add(ctx context.Context, itemID string) error {
	return a.op.Record(a.engine.Add(ctx, itemID, a.snapshot(ctx, itemID)))
}

// Remove unfavorites itemID.
func (a *FavApp) Remove(ctx context.Context, itemID string) error {
	return a.op.Record(a.engine.Remove(ctx, itemID))
}

// Toggle flips itemID and returns whether it is now a favorite.
func (a *FavApp) Toggle(ctx context.Context, itemID string) (bool, error) {
	now, err := a.engine.Toggle(ctx, itemID, a.snapshot(ctx, itemID))
	return now, a.op.Record(err)
}

// Login signs ownerID in and waits for initialization. It returns the merge
// result when local favorites were migrated.
func (a *FavApp) Login(ctx context.Context, ownerID string) (*model.MergeResult, error) {
	var result *model.MergeResult
	cancel := a.engine.MergeCompleted(func(r model.MergeResult) { result = &r })
	defer cancel()

	if err := a.op.Record(a.identity.Login(ownerID)); err != nil {
		return nil, err
	}
	if err := a.op.Record(a.engine.Flush(ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

// Logout returns to the anonymous identity.
func (a *FavApp) Logout(ctx context.Context) error {
	if err := a.op.Record(a.identity.Logout()); err != nil {
		return err
	}
	return a.op.Record(a.engine.Sync(ctx))
}

// Status describes the session.
type Status struct {
	Identity  string `json:"identity" yaml:"identity"`
	Offline   bool   `json:"offline" yaml:"offline"`
	Favorites int    `json:"favorites" yaml:"favorites"`
	Pending   int    `json:"pendingLocal" yaml:"pendingLocal"` // local records awaiting merge
	Remote    string `json:"remote" yaml:"remote"`
	Encrypted bool   `json:"encrypted" yaml:"encrypted"`
}

// Status reports the identity, connectivity and tier counts.
func (a *FavApp) Status(ctx context.Context) (Status, error) {
	if err := a.op.Record(a.engine.Sync(ctx)); err != nil {
		return Status{}, err
	}
	locals, err := a.local.Load()
	if err != nil {
		a.logger.Warn("loading local favorites failed", "error", err)
	}
	return Status{
		Identity:  a.identity.Current().String(),
		Offline:   a.monitor.Offline(),
		Favorites: len(a.engine.Snapshot()),
		Pending:   len(locals),
		Remote:    a.cfg.Remote.Type,
		Encrypted: a.cfg.Encryption.Enabled,
	}, nil
}

// WatchHandlers receive watch events. All calls happen on the goroutine
// running Watch. Nil handlers are skipped.
type WatchHandlers struct {
	Snapshot     func([]model.FavoriteRecord)
	Merge        func(model.MergeResult)
	Connectivity func(offline bool)
}

// Watch reports snapshot, merge and connectivity changes until ctx is done.
// When refresh is positive the current identity is re-emitted on that
// interval, so changes made by other processes are picked up.
func (a *FavApp) Watch(ctx context.Context, refresh time.Duration, h WatchHandlers) error {
	snapshots, stopSnapshots := broadcast.Chan[[]model.FavoriteRecord](a.engine, 16)
	defer stopSnapshots()
	merges, stopMerges := broadcast.Chan[model.MergeResult](broadcast.SourceFunc[model.MergeResult](a.engine.MergeCompleted), 4)
	defer stopMerges()
	offline, stopOffline := broadcast.Chan[bool](a.monitor, 4)
	defer stopOffline()

	if a.statusFile != nil {
		if err := a.statusFile.Start(ctx, a.monitor.Notify); err != nil {
			return fmt.Errorf("watching connectivity: %w", err)
		}
	}

	var tick <-chan time.Time
	if refresh > 0 {
		ticker := time.NewTicker(refresh)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-tick:
			a.identity.Refresh()
		case records := <-snapshots:
			if h.Snapshot != nil {
				h.Snapshot(records)
			}
		case r := <-merges:
			if h.Merge != nil {
				h.Merge(r)
			}
		case v := <-offline:
			if h.Connectivity != nil {
				h.Connectivity(v)
			}
		}
	}
}

// Registry exposes the engine metrics for a /metrics endpoint.
func (a *FavApp) Registry() *prometheus.Registry {
	return a.registry
}

// snapshot looks up display data for itemID. Failures are logged and yield nil.
func (a *FavApp) snapshot(ctx context.Context, itemID string) *model.ItemSnapshot {
	if a.lookup == nil || itemID == "" {
		return nil
	}
	s, err := a.lookup.GetByID(ctx, itemID)
	if err != nil {
		a.logger.Debug("item lookup failed", "item", itemID, "error", err)
		return nil
	}
	return s
}

// Close drains queued work, logs the operation outcome and closes all
// resources.
func (a *FavApp) Close() error {
	var firstErr error

	if err := a.engine.Close(); err != nil {
		firstErr = fmt.Errorf("closing engine: %w", err)
	}
	if err := a.closeStore(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing remote store: %w", err)
	}

	a.logger.Info("operation finished",
		"operation", a.op.Name,
		"item", a.op.ItemID,
		"status", a.op.Status,
		"duration", time.Since(a.op.StartedAt).Truncate(time.Millisecond))

	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
