package polycache

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityExceeded: a single value is larger than CapacityBytes.
	ErrCapacityExceeded = errors.New("polycache: value exceeds byte capacity")
	// ErrEvictionBlocked: the strategy found no victim while over capacity.
	// The triggering mutation was rolled back.
	ErrEvictionBlocked = errors.New("polycache: eviction blocked")
	// ErrEnforcementRunaway: the eviction loop hit its iteration cap without
	// restoring capacity. The manager halts until Resume.
	ErrEnforcementRunaway = errors.New("polycache: eviction enforcement runaway")
	ErrHalted             = errors.New("polycache: halted after enforcement runaway")
	ErrClosed             = errors.New("polycache: closed")
	ErrStoreRejected      = errors.New("polycache: backing store rejected write")
	ErrNilSnapshot        = errors.New("polycache: nil snapshot")
	// ErrInvalidSnapshot: the snapshot was not produced by TakeSnapshot.
	ErrInvalidSnapshot = errors.New("polycache: invalid snapshot")
)

type CapacityError struct {
	Key   string
	Size  int64
	Limit int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("set %q: size %d exceeds capacity %d bytes", e.Key, e.Size, e.Limit)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

// PersistError reports a backing-store failure. The in-memory mutation it
// belongs to has been applied; only durability is in question. A failed
// restore is the exception: nothing was applied.
type PersistError struct {
	Key string
	Op  string // "set", "delete", "flush", "restore"
	Err error
}

func (e *PersistError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persist %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
