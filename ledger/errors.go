package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlreadyCheckedIn means the user already has a record for the target date.
	// It is an expected outcome, not a failure of the ledger.
	ErrAlreadyCheckedIn = errors.New("already checked in")
	// ErrUserNotFound means the user id does not refer to a known user.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidDate is returned for future check-in dates and out of range months.
	ErrInvalidDate = errors.New("invalid attendance date")
	// ErrStorageUnavailable is a transient storage failure; callers may retry.
	ErrStorageUnavailable = errors.New("attendance storage unavailable")
	// ErrTimeout is returned when the caller's context expired during a storage call.
	ErrTimeout = errors.New("attendance storage timeout")
	// ErrInvariantViolation means more than one record exists for a (user, date) pair.
	ErrInvariantViolation = errors.New("attendance invariant violated")

	// ErrDuplicate is returned by Store.Insert when the (user, date) key already exists.
	ErrDuplicate = errors.New("duplicate attendance record")
)

// Error carries the kind of a ledger failure together with the ids a caller
// needs to decide between retrying and displaying the outcome.
type Error struct {
	Kind     error
	UserID   uint
	Date     string
	RecordID uint
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	fmt.Fprintf(&b, " (user=%d", e.UserID)
	if e.Date != "" {
		fmt.Fprintf(&b, " date=%s", e.Date)
	}
	if e.RecordID != 0 {
		fmt.Fprintf(&b, " record=%d", e.RecordID)
	}
	b.WriteString(")")
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsRetryable reports whether err is a transient infrastructure failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrTimeout)
}

// storageKind maps a raw store error onto the ledger taxonomy.
func storageKind(err error) error {
	switch {
	case errors.Is(err, ErrInvariantViolation):
		return ErrInvariantViolation
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrTimeout
	default:
		return ErrStorageUnavailable
	}
}
