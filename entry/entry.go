// Package entry defines the resident record kept by polycache for every key,
// and the read-only table view handed to eviction strategies and write policies.
package entry

import "time"

// Entry is one resident cache record. The value itself is held by the manager;
// Raw is its encoded form and is what gets persisted, sized and deep-copied.
//
// Entries are owned by the manager and only mutated under its lock.
type Entry struct {
	Raw  []byte
	Size int64

	CreatedAt  time.Time
	LastAccess time.Time
	Frequency  uint64
	TTL        time.Duration // 0 => no expiry

	// Dirty is set while the value is newer than the backing store copy.
	Dirty bool

	// Logical stamps from the manager's tick counter. Every stamp is unique,
	// which gives strategies a total order without relying on clock resolution.
	InsertSeq uint64
	AccessSeq uint64
}

// Expired reports whether the entry's TTL has elapsed at now.
func (e *Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.CreatedAt) >= e.TTL
}

// Clone returns a deep copy; Raw is not shared with the receiver.
func (e *Entry) Clone() *Entry {
	cp := *e
	if e.Raw != nil {
		cp.Raw = append([]byte(nil), e.Raw...)
	}
	return &cp
}

// Table is a read-only view over the resident entries.
// Implementations must not be retained past the call they were passed to.
type Table interface {
	Len() int
	// Range calls fn for every entry until fn returns false.
	Range(fn func(key string, e *Entry) bool)
}
