package jobstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func testRecord(fp string) Record {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return Record{
		Fingerprint:          fp,
		BucketName:           "media",
		InputObjectKey:       "media-input/a.mp4",
		InputObjectETag:      "abc123",
		InputObjectSize:      1024,
		SourceEventTimestamp: "2024-01-01T00:00:00Z",
		TranscribeJobID:      "job-1",
		CreatedAt:            now,
		LastUpdatedAt:        now,
		Status:               StatusQueued,
	}
}

func TestMemoryStorePutThenExists(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	ok, err := store.Exists(ctx, "fp")
	if err != nil {
		t.Fatalf("Exists returned error: %v", err)
	}
	if ok {
		t.Fatal("expected fingerprint to be absent")
	}

	if err := store.Put(ctx, testRecord("fp")); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	ok, err = store.Exists(ctx, "fp")
	if err != nil {
		t.Fatalf("Exists returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected fingerprint to be present after Put")
	}

	rec, err := store.Get(ctx, "fp")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if rec.Status != StatusQueued {
		t.Fatalf("unexpected status: %s", rec.Status)
	}
}

func TestMemoryStoreConditionalInsert(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	first := testRecord("fp")
	first.TranscribeJobID = "winner"
	if err := store.Put(ctx, first); err != nil {
		t.Fatalf("first Put returned error: %v", err)
	}

	second := testRecord("fp")
	second.TranscribeJobID = "loser"
	if err := store.Put(ctx, second); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	rec, err := store.Get(ctx, "fp")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if rec.TranscribeJobID != "winner" {
		t.Fatalf("losing write overwrote the record: %s", rec.TranscribeJobID)
	}
}

func TestMemoryStoreConcurrentPutSingleWinner(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	results := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := testRecord("fp")
			rec.TranscribeJobID = fmt.Sprintf("job-%d", i)
			results[i] = store.Put(ctx, rec)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyExists):
		default:
			t.Fatalf("unexpected Put error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning Put, got %d", wins)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one record, got %d", store.Len())
	}
}

func TestMemoryStoreGetNotFound(t *testing.T) {
	store := NewMemory()
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
