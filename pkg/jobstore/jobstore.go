package jobstore

import (
	"context"
	"errors"
	"time"
)

// Status tracks the lifecycle of a dispatched transcription job. The
// dispatcher only ever writes StatusQueued; later pipeline stages own the
// remaining transitions.
type Status string

const (
	StatusQueued Status = "QUEUED"
)

var (
	// ErrAlreadyExists signals that a record with the same fingerprint was
	// persisted first. The conditional insert makes this the authoritative
	// duplicate signal.
	ErrAlreadyExists = errors.New("job record already exists")
	// ErrNotFound signals that no record exists for the fingerprint.
	ErrNotFound = errors.New("job record not found")
	// ErrUnavailable wraps transient backend faults (timeouts, connection
	// loss). Callers should surface these for redelivery, never treat them
	// as an answer about duplication.
	ErrUnavailable = errors.New("job store unavailable")
)

// Record is the durable row tracking one dispatched transcription job,
// keyed by the event fingerprint.
type Record struct {
	Fingerprint          string
	BucketName           string
	InputObjectKey       string
	InputObjectETag      string
	InputObjectSize      int64
	SourceEventTimestamp string
	TranscribeJobID      string
	CreatedAt            time.Time
	LastUpdatedAt        time.Time
	Status               Status
}

// Store is the persistence surface the dispatch coordinator consumes.
type Store interface {
	// Exists reports whether a record for the fingerprint is already
	// persisted. Read-after-write consistent with prior Put calls.
	Exists(ctx context.Context, fingerprint string) (bool, error)
	// Put inserts a new record iff no record with the same fingerprint
	// exists; returns ErrAlreadyExists when a concurrent writer won.
	Put(ctx context.Context, rec Record) error
	// Get fetches the record for a fingerprint, or ErrNotFound.
	Get(ctx context.Context, fingerprint string) (Record, error)
	Close()
}
