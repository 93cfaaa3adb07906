package app

import "time"

// Operation tracks the CLI command run by one FavApp session. It is logged
// when the app closes.
type Operation struct {
	Name      string
	ItemID    string
	Status    string // "success" or "error"
	StartedAt time.Time
}

// NewOperation creates an operation that has not failed yet.
func NewOperation(name, itemID string, now time.Time) *Operation {
	return &Operation{
		Name:      name,
		ItemID:    itemID,
		Status:    "success",
		StartedAt: now,
	}
}

// Record marks the operation failed when err is non-nil and returns err.
func (op *Operation) Record(err error) error {
	if err != nil {
		op.Status = "error"
	}
	return err
}

// Failed reports whether any recorded step failed.
func (op *Operation) Failed() bool {
	return op.Status == "error"
}
