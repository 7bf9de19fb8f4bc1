package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/transcribeflow/pkg/jobstore"
	"github.com/your-org/transcribeflow/pkg/metrics"
)

type published struct {
	key     []byte
	value   []byte
	headers map[string]string
}

type fakePublisher struct {
	msgs []published
}

func (p *fakePublisher) Publish(ctx context.Context, key, value []byte, headers map[string]string) error {
	p.msgs = append(p.msgs, published{key: key, value: value, headers: headers})
	return nil
}

func newTestRunner(retry, deadLetter Publisher) (*Runner, *metrics.Dispatch) {
	m := metrics.NewDispatchWith(prometheus.NewRegistry())
	return NewRunner(RunnerParams{
		Retry:      retry,
		DeadLetter: deadLetter,
		Metrics:    m,
		Logger:     zap.NewNop(),
	}), m
}

func sourceMessage(attempts string) kafkago.Message {
	msg := kafkago.Message{
		Topic: "transcribeflow.storage-events",
		Key:   []byte("media-input/a.mp4"),
		Value: []byte(`{"Records": []}`),
	}
	if attempts != "" {
		msg.Headers = []kafkago.Header{{Key: "attempts", Value: []byte(attempts)}}
	}
	return msg
}

func TestRouteOrphanedJobToDeadLetter(t *testing.T) {
	retry := &fakePublisher{}
	dlq := &fakePublisher{}
	runner, _ := newTestRunner(retry, dlq)

	res := Result{
		MessageID: "m1",
		Err: &OrphanedJobError{
			Fingerprint: "media-media-input/a.mp4-abc123",
			JobID:       "job-9",
			Err:         errors.New("write timeout"),
		},
	}
	require.NoError(t, runner.route(context.Background(), sourceMessage(""), res))

	require.Len(t, dlq.msgs, 1)
	assert.Empty(t, retry.msgs, "orphaned jobs must never be redelivered")

	got := dlq.msgs[0]
	assert.Equal(t, "orphaned-job", got.headers["reason"])
	assert.Equal(t, "job-9", got.headers["job_id"])
	assert.Equal(t, "media-media-input/a.mp4-abc123", got.headers["fingerprint"])
	assert.Equal(t, "transcribeflow.storage-events", got.headers["origin_topic"])
	assert.Equal(t, []byte("media-input/a.mp4"), got.key)
	assert.Equal(t, []byte(`{"Records": []}`), got.value)
}

func TestRouteDecodeFailureToDeadLetter(t *testing.T) {
	retry := &fakePublisher{}
	dlq := &fakePublisher{}
	runner, _ := newTestRunner(retry, dlq)

	res := Result{MessageID: "m1", Err: &DecodeError{Err: errors.New("notification has no records")}}
	require.NoError(t, runner.route(context.Background(), sourceMessage(""), res))

	require.Len(t, dlq.msgs, 1)
	assert.Empty(t, retry.msgs)
	assert.Equal(t, "decode-failure", dlq.msgs[0].headers["reason"])
}

func TestRouteRetryableFailureToRetryTopic(t *testing.T) {
	retry := &fakePublisher{}
	dlq := &fakePublisher{}
	runner, _ := newTestRunner(retry, dlq)

	res := Result{
		MessageID: "m1",
		Err:       fmt.Errorf("check for existing job: %w", jobstore.ErrUnavailable),
	}
	require.NoError(t, runner.route(context.Background(), sourceMessage(""), res))

	require.Len(t, retry.msgs, 1)
	assert.Empty(t, dlq.msgs)

	got := retry.msgs[0]
	assert.Equal(t, "retryable-failure", got.headers["reason"])
	assert.Equal(t, "1", got.headers["attempts"])
	assert.Equal(t, []byte(`{"Records": []}`), got.value, "the original message must be republished intact")
}

func TestRouteRetriesExhaustedToDeadLetter(t *testing.T) {
	retry := &fakePublisher{}
	dlq := &fakePublisher{}
	runner, _ := newTestRunner(retry, dlq)

	res := Result{MessageID: "m1", Err: &SubmissionError{Err: errors.New("service throttled")}}

	// Second failed delivery still goes back to the retry topic.
	require.NoError(t, runner.route(context.Background(), sourceMessage("1"), res))
	require.Len(t, retry.msgs, 1)
	assert.Equal(t, "2", retry.msgs[0].headers["attempts"])
	assert.Empty(t, dlq.msgs)

	// The third failed delivery exhausts the cap.
	require.NoError(t, runner.route(context.Background(), sourceMessage("2"), res))
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "retries-exhausted", dlq.msgs[0].headers["reason"])
	assert.Equal(t, "3", dlq.msgs[0].headers["attempts"])
	require.Len(t, retry.msgs, 1, "an exhausted message must not be requeued")
}

func TestAttemptCountIgnoresGarbageHeader(t *testing.T) {
	msg := sourceMessage("not-a-number")
	if got := attemptCount(msg); got != 0 {
		t.Fatalf("attemptCount = %d, want 0 for an unparsable header", got)
	}
	if got := attemptCount(sourceMessage("")); got != 0 {
		t.Fatalf("attemptCount = %d, want 0 for a first delivery", got)
	}
}

func TestObserveCountsEachOutcomeAndFailureClass(t *testing.T) {
	runner, m := newTestRunner(&fakePublisher{}, &fakePublisher{})

	runner.observe(Result{Outcome: OutcomeSubmitted})
	runner.observe(Result{Outcome: OutcomeDuplicate})
	runner.observe(Result{Outcome: OutcomeConflict})
	runner.observe(Result{Err: &DecodeError{Err: errors.New("bad payload")}})
	runner.observe(Result{Err: &OrphanedJobError{Fingerprint: "fp", JobID: "job-1", Err: errors.New("down")}})
	runner.observe(Result{Err: fmt.Errorf("check for existing job: %w", jobstore.ErrUnavailable)})
	runner.observe(Result{Err: &SubmissionError{Err: errors.New("throttled")}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Submitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Duplicates))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Conflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecodeFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrphanedJobs))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RetryableFailures))
}
