package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrWriteForbidden means the sender may not write to the destination.
	ErrWriteForbidden = errors.New("write forbidden")
	// ErrBanned means the sender is banned from the destination.
	ErrBanned = errors.New("banned")
)

// Class is the failure classification decided before any retry.
type Class int

const (
	ClassNone Class = iota
	ClassPermissionDenied
	ClassBanned
	ClassTransient
	ClassFallback
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassPermissionDenied:
		return "permission_denied"
	case ClassBanned:
		return "banned"
	case ClassTransient:
		return "transient"
	case ClassFallback:
		return "fallback"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Terminal reports whether a retry with another send mode is pointless.
func (c Class) Terminal() bool {
	return c == ClassPermissionDenied || c == ClassBanned
}

// Classify maps a client error onto a Class.
// Nil maps to ClassNone; anything not marked as a permission failure is transient.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrBanned):
		return ClassBanned
	case errors.Is(err, ErrWriteForbidden):
		return ClassPermissionDenied
	default:
		return ClassTransient
	}
}

// Stage names the step of a delivery that failed.
type Stage string

const (
	StagePrimary  Stage = "primary"
	StageDownload Stage = "download"
	StageFallback Stage = "fallback"
)

// DeliveryError is the only error type returned by Dispatcher.Deliver.
type DeliveryError struct {
	Class Class
	Stage Stage
	Peer  Peer
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %d (%s, %s): %v", e.Peer.ChatID, e.Stage, e.Class, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// ClassOf extracts the Class carried by err, classifying raw errors on the fly.
func ClassOf(err error) Class {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Class
	}
	return Classify(err)
}
