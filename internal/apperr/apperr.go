// Package apperr defines the failure taxonomy shared by every room and
// attachment operation.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"

	"gorm.io/gorm"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindConflict
	KindStorage
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindStorage:
		return "storage"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Reasons carried on NotFound so an expired-but-unpurged room can be told
// apart from one that never existed.
const (
	ReasonNotFound = "not_found"
	ReasonExpired  = "expired"
	ReasonTooLarge = "too_large"
)

// Error is a classified failure. Op names the operation that failed
// ("room.get", "attachment.upload", ...).
type Error struct {
	Kind   Kind
	Op     string
	Reason string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func NotFound(op, reason, msg string) error {
	if reason == "" {
		reason = ReasonNotFound
	}
	return &Error{Kind: KindNotFound, Op: op, Reason: reason, Msg: msg}
}

func Validation(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg}
}

func TooLarge(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Reason: ReasonTooLarge, Msg: msg}
}

func Conflict(op, msg string) error {
	return &Error{Kind: KindConflict, Op: op, Msg: msg}
}

func Storage(op string, err error) error {
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

func Transient(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ReasonOf returns the reason of the first *Error in err's chain.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

func Is(err error, k Kind) bool { return err != nil && KindOf(err) == k }

// FromStore classifies an error coming back from the durable store or the
// blob store. Already-classified errors pass through untouched.
func FromStore(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Error{Kind: KindNotFound, Op: op, Reason: ReasonNotFound, Err: err}
	}
	if IsNetwork(err) {
		return Transient(op, err)
	}
	return Storage(op, err)
}

// IsNetwork reports connectivity-class failures: timeouts, refused or reset
// connections, and context deadlines.
func IsNetwork(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}
