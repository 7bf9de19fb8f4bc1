package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/transcribeflow/pkg/jobstore"
)

// Submitter starts an asynchronous transcription job for the object at
// bucket/key and returns its job identifier. Every call yields a fresh
// identifier, duplicate or not.
type Submitter interface {
	StartJob(ctx context.Context, bucket, key string) (string, error)
}

// InputChecker reports whether the input object still exists. Optional
// guard against notifications for objects deleted before dispatch.
type InputChecker interface {
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// Outcome classifies a successfully handled event.
type Outcome string

const (
	// OutcomeSubmitted means a job was started and its record persisted.
	OutcomeSubmitted Outcome = "submitted"
	// OutcomeDuplicate means a record already existed; nothing was
	// submitted. Duplicates are an expected, non-error result.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeConflict means a job was started but a concurrent dispatch
	// recorded its own job first. The extra external job runs untracked;
	// the event itself is considered handled.
	OutcomeConflict Outcome = "conflict"
)

// Coordinator turns storage events into at-most-one recorded transcription
// job per fingerprint. The existence check avoids needless submissions in
// the common case; the store's conditional insert is what actually
// guarantees a single record when dispatches race.
type Coordinator struct {
	store         jobstore.Store
	submitter     Submitter
	inputChecker  InputChecker
	fingerprinter Fingerprinter
	logger        *zap.Logger
	now           func() time.Time
}

// CoordinatorParams collects the coordinator's dependencies. InputChecker
// and Now are optional.
type CoordinatorParams struct {
	Store         jobstore.Store
	Submitter     Submitter
	InputChecker  InputChecker
	Fingerprinter Fingerprinter
	Logger        *zap.Logger
	Now           func() time.Time
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(p CoordinatorParams) *Coordinator {
	now := p.Now
	if now == nil {
		now = time.Now
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:         p.Store,
		submitter:     p.Submitter,
		inputChecker:  p.InputChecker,
		fingerprinter: p.Fingerprinter,
		logger:        logger,
		now:           now,
	}
}

// Dispatch handles one decoded storage event. Errors are classified by
// Terminal; a failed submission never leaves a record behind.
func (c *Coordinator) Dispatch(ctx context.Context, ev StorageEvent) (Outcome, error) {
	fp := c.fingerprinter.ForEvent(ev)

	exists, err := c.store.Exists(ctx, fp)
	if err != nil {
		// Never treat an unavailable store as "not a duplicate"; the
		// event is redelivered instead.
		return "", fmt.Errorf("check for existing job: %w", err)
	}
	if exists {
		c.logger.Info("duplicate storage event, job already recorded",
			zap.String("fingerprint", fp),
			zap.String("object_key", ev.ObjectKey),
		)
		return OutcomeDuplicate, nil
	}

	if c.inputChecker != nil {
		ok, err := c.inputChecker.Exists(ctx, ev.BucketName, ev.ObjectKey)
		if err != nil {
			return "", fmt.Errorf("verify input object: %w", err)
		}
		if !ok {
			return "", fmt.Errorf("input object %s/%s no longer exists", ev.BucketName, ev.ObjectKey)
		}
	}

	jobID, err := c.submitter.StartJob(ctx, ev.BucketName, ev.ObjectKey)
	if err != nil {
		return "", &SubmissionError{Err: err}
	}

	now := c.now().UTC()
	rec := jobstore.Record{
		Fingerprint:          fp,
		BucketName:           ev.BucketName,
		InputObjectKey:       ev.ObjectKey,
		InputObjectETag:      ev.ObjectETag,
		InputObjectSize:      ev.ObjectSize,
		SourceEventTimestamp: ev.EventTimestamp,
		TranscribeJobID:      jobID,
		CreatedAt:            now,
		LastUpdatedAt:        now,
		Status:               jobstore.StatusQueued,
	}
	if err := c.store.Put(ctx, rec); err != nil {
		if errors.Is(err, jobstore.ErrAlreadyExists) {
			// Both dispatches passed the existence check before either
			// wrote. The losing job runs to completion with no tracking
			// row; redelivering would submit a third one.
			c.logger.Warn("lost record race after submission, external job is untracked",
				zap.String("fingerprint", fp),
				zap.String("job_id", jobID),
			)
			return OutcomeConflict, nil
		}
		return "", &OrphanedJobError{Fingerprint: fp, JobID: jobID, Err: err}
	}

	c.logger.Info("transcription job dispatched",
		zap.String("fingerprint", fp),
		zap.String("job_id", jobID),
		zap.String("bucket", ev.BucketName),
		zap.String("object_key", ev.ObjectKey),
		zap.Int64("object_size", ev.ObjectSize),
	)
	return OutcomeSubmitted, nil
}
