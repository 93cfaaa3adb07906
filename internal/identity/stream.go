// Package identity provides the authentication state consumed by the
// favorites engine.
package identity

import (
	"encoding/json"
	"fmt"

	"favsync/internal/broadcast"
	"favsync/internal/fav"
	"favsync/internal/model"
)

// SessionKey is the StoragePort key holding the signed-in owner.
const SessionKey = "favorites-session"

// Stream is a replaying identity source. When backed by a StoragePort the
// signed-in owner survives restarts.
type Stream struct {
	subject *broadcast.Subject[model.Identity]
	port    fav.StoragePort
	logger  fav.Logger
}

// NewStream creates an in-memory stream starting at initial.
func NewStream(initial model.Identity) *Stream {
	return &Stream{
		subject: broadcast.New(initial),
		logger:  fav.NewNopLogger(),
	}
}

// NewPersistentStream restores the session stored in port. A missing or
// unreadable session starts anonymous.
func NewPersistentStream(port fav.StoragePort, logger fav.Logger) *Stream {
	if logger == nil {
		logger = fav.NewNopLogger()
	}

	initial := model.Anonymous
	data, err := port.Get(SessionKey)
	switch {
	case err != nil:
		logger.Warn("reading session failed, starting anonymous", "error", err)
	case data != nil:
		if err := json.Unmarshal(data, &initial); err != nil {
			logger.Warn("session data is malformed, starting anonymous", "error", err)
			initial = model.Anonymous
		}
	}

	return &Stream{
		subject: broadcast.New(initial),
		port:    port,
		logger:  logger,
	}
}

// Subscribe replays the current identity and then every change.
func (s *Stream) Subscribe(fn func(model.Identity)) (cancel func()) {
	return s.subject.Subscribe(fn)
}

// Current returns the latest identity.
func (s *Stream) Current() model.Identity {
	return s.subject.Latest()
}

// Login signs ownerID in.
func (s *Stream) Login(ownerID string) error {
	if ownerID == "" {
		return fmt.Errorf("owner id is empty")
	}
	return s.Set(model.Authenticated(ownerID))
}

// Logout returns to the anonymous identity.
func (s *Stream) Logout() error {
	return s.Set(model.Anonymous)
}

// Set persists id and emits it to subscribers. The session is written before
// subscribers observe the change.
func (s *Stream) Set(id model.Identity) error {
	if s.port != nil {
		if err := s.persist(id); err != nil {
			return err
		}
	}
	s.logger.Info("identity changed", "identity", id.String())
	s.subject.Publish(id)
	return nil
}

// Refresh re-emits the current identity without changing it, so subscribers
// reload their view of it.
func (s *Stream) Refresh() {
	s.subject.Update(func(cur model.Identity) model.Identity { return cur })
}

func (s *Stream) persist(id model.Identity) error {
	if !id.IsAuthenticated() {
		if err := s.port.Remove(SessionKey); err != nil {
			return fmt.Errorf("clearing session: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := s.port.Set(SessionKey, data); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

// Compile-time check that Stream implements fav.IdentityProvider
var _ fav.IdentityProvider = (*Stream)(nil)
