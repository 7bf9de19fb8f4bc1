package dispatch

import (
	"errors"
	"fmt"
)

// SubmissionError marks a failed job-start call. No record exists for the
// fingerprint at this point, so redelivery retries the submission cleanly.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit transcription job: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// OrphanedJobError records the worst-case fault: the external job was
// submitted but the record write failed with something other than a
// conflict, leaving the job running with no tracking row. Redelivery would
// submit yet another job, so this is terminal and needs manual
// reconciliation.
type OrphanedJobError struct {
	Fingerprint string
	JobID       string
	Err         error
}

func (e *OrphanedJobError) Error() string {
	return fmt.Sprintf("transcription job %s submitted but record write failed for fingerprint %s: %v", e.JobID, e.Fingerprint, e.Err)
}

func (e *OrphanedJobError) Unwrap() error {
	return e.Err
}

// Terminal reports whether redelivering the message can never help:
// malformed messages and orphaned-job faults. Everything else (store
// unavailability, submission failures) is safe to retry because no record
// has been written yet.
func Terminal(err error) bool {
	var decodeErr *DecodeError
	var orphanErr *OrphanedJobError
	return errors.As(err, &decodeErr) || errors.As(err, &orphanErr)
}
