// Package connectivity reports whether the device is online. It is advisory
// only: the favorites engine never consults it.
package connectivity

import (
	"sync"

	"favsync/internal/broadcast"
	"favsync/internal/fav"
)

// Source reports the platform's current connectivity.
type Source interface {
	Online() (bool, error)
}

// AlwaysOnline is the Source used when no connectivity signal is configured.
type AlwaysOnline struct{}

func (AlwaysOnline) Online() (bool, error) { return true, nil }

// Monitor is a two-state online/offline machine. The initial state is read
// from the Source on first use; afterwards only Notify changes it.
type Monitor struct {
	source Source
	logger fav.Logger

	once    sync.Once
	offline *broadcast.Subject[bool]
}

// NewMonitor creates a Monitor reading its initial state from source.
func NewMonitor(source Source, logger fav.Logger) *Monitor {
	if source == nil {
		source = AlwaysOnline{}
	}
	if logger == nil {
		logger = fav.NewNopLogger()
	}
	return &Monitor{source: source, logger: logger}
}

func (m *Monitor) init() {
	m.once.Do(func() {
		online, err := m.source.Online()
		if err != nil {
			m.logger.Warn("reading connectivity failed, assuming online", "error", err)
			online = true
		}
		m.offline = broadcast.New(!online)
	})
}

// Subscribe calls fn with true while offline: once with the current state
// and again on every transition.
func (m *Monitor) Subscribe(fn func(offline bool)) (cancel func()) {
	m.init()
	return broadcast.Distinct(m.offline, func(v bool) bool { return v }, fn)
}

// Offline reports the current state.
func (m *Monitor) Offline() bool {
	m.init()
	return m.offline.Latest()
}

// Notify records a connectivity-changed notification. Repeating the current
// state is not a transition and reaches no subscriber.
func (m *Monitor) Notify(online bool) {
	m.init()
	if m.offline.Latest() != !online {
		m.logger.Info("connectivity changed", "online", online)
	}
	m.offline.Publish(!online)
}
