package app

import "time"

// Operation tracks one CLI command for the session log. Status starts as
// "success" and is flipped to "error" by Fail.
type Operation struct {
	Name       string
	Parameters string
	Status     string // "success" or "error"
	Started    time.Time
}

// NewOperation creates an operation started at now.
func NewOperation(name, parameters string, now time.Time) *Operation {
	return &Operation{
		Name:       name,
		Parameters: parameters,
		Status:     "success",
		Started:    now,
	}
}

// Track marks the operation failed if err is non-nil and returns err.
func (op *Operation) Track(err error) error {
	if err != nil {
		op.Status = "error"
	}
	return err
}

// Failed returns true once an error was tracked.
func (op *Operation) Failed() bool {
	return op.Status == "error"
}

// Elapsed returns the time since the operation started.
func (op *Operation) Elapsed(now time.Time) time.Duration {
	return now.Sub(op.Started)
}
