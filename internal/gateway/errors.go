package gateway

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a strategy could not produce a response
type ErrorKind int

const (
	// KindNetwork is a transport-level fetch failure. Non-2xx responses are not errors.
	KindNetwork ErrorKind = iota + 1
	// KindStore is a backend failure while reading a store
	KindStore
	// KindNotCached means the strategy needed a cache entry and found none
	KindNotCached
	// KindSynthesis means the offline response could not be built
	KindSynthesis
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindStore:
		return "store"
	case KindNotCached:
		return "not-cached"
	case KindSynthesis:
		return "synthesis"
	default:
		return "unknown"
	}
}

// Error is returned by strategies and the origin
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or 0
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return 0
}
