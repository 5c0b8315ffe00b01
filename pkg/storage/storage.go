// Package storage defines the narrow key/value persistence contract that the
// state manager, memory store, and vector engine write through. The core
// prescribes no specific engine; adapters live in subpackages.
package storage

import "context"

// Store is the interface that all persistence adapters must implement.
//
// Get reports absence as a (nil, nil) result so that callers can distinguish
// "record absent" from "operation failed" without string-matching errors.
type Store interface {
	// Put stores value under key, replacing any existing value.
	Put(ctx context.Context, key, value []byte) error

	// Get returns the value stored under key, or (nil, nil) if absent.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Delete removes the value stored under key. Deleting an absent key is
	// not an error.
	Delete(ctx context.Context, key []byte) error
}

// Scanner is an optional capability interface for adapters that support
// ordered prefix scans. The memory store requires it for per-agent
// retrieval; all bundled adapters implement it.
type Scanner interface {
	// ScanPrefix invokes fn for every key/value pair whose key starts with
	// prefix, in ascending key order. Returning an error from fn stops the
	// scan and propagates the error.
	ScanPrefix(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error
}

// ScanningStore combines the base contract with prefix scanning.
type ScanningStore interface {
	Store
	Scanner
}
