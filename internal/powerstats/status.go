// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package powerstats

import "errors"

var (
	// ErrBadValue is returned when a caller supplied an invalid entity or rail id
	ErrBadValue = errors.New("bad value")

	// ErrFailedTransaction is returned when a provider could not supply data
	// for a valid id
	ErrFailedTransaction = errors.New("failed transaction")

	// ErrDuplicateEntity is returned when a provider registers an entity name
	// that is already known
	ErrDuplicateEntity = errors.New("duplicate power entity")
)

// Status is the outcome of a query. The zero value is StatusOK.
type Status int

const (
	StatusOK Status = iota
	StatusFailedTransaction
	StatusBadValue
)

// Merge combines two statuses of the same call. StatusBadValue dominates
// StatusFailedTransaction, and StatusOK never overrides an error.
func (s Status) Merge(other Status) Status {
	switch {
	case s == StatusBadValue || other == StatusBadValue:
		return StatusBadValue
	case s == StatusFailedTransaction || other == StatusFailedTransaction:
		return StatusFailedTransaction
	default:
		return StatusOK
	}
}

// Err returns the sentinel error for the status, nil for StatusOK
func (s Status) Err() error {
	switch s {
	case StatusBadValue:
		return ErrBadValue
	case StatusFailedTransaction:
		return ErrFailedTransaction
	default:
		return nil
	}
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusBadValue:
		return "BAD_VALUE"
	case StatusFailedTransaction:
		return "FAILED_TRANSACTION"
	default:
		return "UNKNOWN"
	}
}

// StatusFromError maps an error returned by a query back to its Status.
// Errors that wrap neither sentinel are reported as StatusFailedTransaction.
func StatusFromError(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrBadValue):
		return StatusBadValue
	default:
		return StatusFailedTransaction
	}
}
