// Copyright 2025 James Ross

// Package joberr classifies errors raised while dispatching a job so the
// job engine can decide between retry, immediate failure, or a forced
// catalog/handle refresh without string-matching error messages.
package joberr

import (
	"errors"
	"fmt"
	"time"
)

// Class names the retry behavior a classified error implies.
type Class int

const (
	// ClassTransient is a network or dependency blip; retry with backoff.
	ClassTransient Class = iota
	// ClassFlood means the remote side asked us to slow down; retry after
	// the carried duration.
	ClassFlood
	// ClassHandleInvalid means a cached content handle (tg_file_id) no
	// longer resolves; the delivery pipeline must fall back to a fresh
	// spool-and-upload and invalidate the cached handle.
	ClassHandleInvalid
	// ClassNotFound means the referenced catalog item or storage object
	// is gone; fail the job without retry.
	ClassNotFound
	// ClassDenied means the user's access no longer permits the request;
	// fail the job without retry.
	ClassDenied
	// ClassInvariant is a programmer/data error that retrying cannot fix.
	ClassInvariant
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassFlood:
		return "flood"
	case ClassHandleInvalid:
		return "handle_invalid"
	case ClassNotFound:
		return "not_found"
	case ClassDenied:
		return "denied"
	case ClassInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Retryable reports whether the job engine should requeue on this class.
func (c Class) Retryable() bool {
	switch c {
	case ClassTransient, ClassFlood, ClassHandleInvalid:
		return true
	default:
		return false
	}
}

// Error wraps an underlying error with a retry class.
type Error struct {
	Class      Class
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Class.String()
	}
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func Transient(err error) error {
	return &Error{Class: ClassTransient, Err: err}
}

func Flood(retryAfter time.Duration, err error) error {
	return &Error{Class: ClassFlood, RetryAfter: retryAfter, Err: err}
}

func HandleInvalid(err error) error {
	return &Error{Class: ClassHandleInvalid, Err: err}
}

func NotFound(err error) error {
	return &Error{Class: ClassNotFound, Err: err}
}

func Denied(err error) error {
	return &Error{Class: ClassDenied, Err: err}
}

func Invariant(err error) error {
	return &Error{Class: ClassInvariant, Err: err}
}

// Classify extracts the Class of err, defaulting to ClassTransient for
// unclassified errors so unknown failures still get a bounded retry.
func Classify(err error) Class {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ClassTransient
}

// RetryAfter returns the carried retry-after duration, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var ce *Error
	if errors.As(err, &ce) && ce.Class == ClassFlood {
		return ce.RetryAfter, true
	}
	return 0, false
}
