package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Scope selects which event fields feed the fingerprint.
type Scope string

const (
	// ScopeBucketKeyETag binds job identity to the object's location and
	// content tag: re-uploading the same bytes under a new key dispatches
	// a new job. This is the default, key-addressed behavior.
	ScopeBucketKeyETag Scope = "bucket-key-etag"
	// ScopeContent binds identity to the content tag alone, deduplicating
	// re-uploads of identical bytes regardless of key.
	ScopeContent Scope = "content"
)

// Fingerprinter derives the deduplication key for a storage event.
// Deterministic and side-effect free: equal inputs always produce equal
// keys, any differing field a different key.
type Fingerprinter struct {
	Scope Scope
	// Hashed switches from the literal joined form to a sha256 over
	// length-delimited fields, which cannot be collided by field values
	// containing the join separator.
	Hashed bool
}

// Key returns the fingerprint for the (bucket, key, etag) triple.
func (f Fingerprinter) Key(bucket, key, etag string) string {
	fields := []string{bucket, key, etag}
	if f.Scope == ScopeContent {
		fields = []string{etag}
	}
	if f.Hashed {
		h := sha256.New()
		for _, field := range fields {
			fmt.Fprintf(h, "%d:%s", len(field), field)
		}
		return hex.EncodeToString(h.Sum(nil))
	}
	joined := fields[0]
	for _, field := range fields[1:] {
		joined += "-" + field
	}
	return joined
}

// ForEvent returns the fingerprint for a decoded storage event.
func (f Fingerprinter) ForEvent(ev StorageEvent) string {
	return f.Key(ev.BucketName, ev.ObjectKey, ev.ObjectETag)
}
