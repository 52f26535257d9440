package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// StoreKey returns the backing-store key for a user key. The "store:<ns>:"
// keyspace is owned by polycache.
func StoreKey(ns, key string) string {
	return "store:" + ns + ":" + key
}

// Redact returns a short stable digest of k (first 8 bytes of SHA-256, hex),
// for logging keys without leaking them.
func Redact(k string) string {
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}
