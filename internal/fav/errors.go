package fav

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyItemID is returned by mutating operations given an empty item id.
	ErrEmptyItemID = errors.New("item id is empty")

	// ErrClosed is returned by operations on an engine that has been closed.
	ErrClosed = errors.New("favorites engine closed")

	// ErrConflict is returned by remote stores when a concurrent writer
	// changed the owner's collection between read and commit.
	ErrConflict = errors.New("remote favorites changed concurrently")
)

// Tier names one of the two storage backends.
type Tier string

const (
	TierLocal  Tier = "local"
	TierRemote Tier = "remote"
)

// TierError reports a failed write to a tier during an explicit user action.
type TierError struct {
	Tier Tier
	Op   string
	Err  error
}

func (e *TierError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Tier, e.Op, e.Err)
}

func (e *TierError) Unwrap() error { return e.Err }

// IsTierError reports whether err is a tier write failure on the given tier.
func IsTierError(err error, tier Tier) bool {
	var te *TierError
	return errors.As(err, &te) && te.Tier == tier
}
