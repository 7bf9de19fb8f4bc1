package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/your-org/transcribeflow/pkg/kafka"
	"github.com/your-org/transcribeflow/pkg/metrics"
)

// attemptsHeader counts how many failed deliveries a message has had. It
// rides along on every republished message and caps redelivery the way the
// source queue's max receive count would.
const attemptsHeader = "attempts"

// Publisher is the producing side the runner routes failed messages to.
type Publisher interface {
	Publish(ctx context.Context, key []byte, value []byte, headers map[string]string) error
}

// Runner is the intake loop: it consumes notification messages from Kafka,
// feeds them through the coordinator one batch at a time, routes failed
// messages, and then commits the batch. One batch is in flight per process;
// throughput scales by adding consumer-group members.
type Runner struct {
	consumer    *kafka.Consumer
	retry       Publisher
	deadLetter  Publisher
	coordinator *Coordinator
	metrics     *metrics.Dispatch
	logger      *zap.Logger
	batchSize   int
	batchWait   time.Duration
	maxAttempts int
}

// RunnerParams collects the runner's dependencies.
type RunnerParams struct {
	Consumer    *kafka.Consumer
	Retry       Publisher
	DeadLetter  Publisher
	Coordinator *Coordinator
	Metrics     *metrics.Dispatch
	Logger      *zap.Logger
	BatchSize   int
	BatchWait   time.Duration
	// MaxAttempts is the delivery count after which a retryable message
	// is dead-lettered instead of requeued.
	MaxAttempts int
}

// NewRunner constructs a Runner.
func NewRunner(p RunnerParams) *Runner {
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = 5
	}
	batchWait := p.BatchWait
	if batchWait <= 0 {
		batchWait = time.Second
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Runner{
		consumer:    p.Consumer,
		retry:       p.Retry,
		deadLetter:  p.DeadLetter,
		coordinator: p.Coordinator,
		metrics:     p.Metrics,
		logger:      p.Logger,
		batchSize:   batchSize,
		batchWait:   batchWait,
		maxAttempts: maxAttempts,
	}
}

// Run consumes until the context is cancelled. Individual message failures
// never abort the loop; they are routed and the batch is committed.
func (r *Runner) Run(ctx context.Context) error {
	for {
		batch, err := r.consumer.FetchBatch(ctx, r.batchSize, r.batchWait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error("fetch batch failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if err := r.handleBatch(ctx, batch); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error("handle batch failed", zap.Error(err))
		}
	}
}

func (r *Runner) handleBatch(ctx context.Context, batch []kafkago.Message) error {
	r.metrics.BatchSize.Observe(float64(len(batch)))

	msgs := make([]Message, 0, len(batch))
	for _, m := range batch {
		msgs = append(msgs, Message{
			ID:   fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset),
			Body: m.Value,
		})
	}

	results := r.coordinator.ProcessBatch(ctx, msgs)
	for i, res := range results {
		r.observe(res)
		if !res.Failed() {
			continue
		}
		if err := r.route(ctx, batch[i], res); err != nil {
			// Leave the batch uncommitted so the transport redelivers it.
			return fmt.Errorf("route failed message %s: %w", res.MessageID, err)
		}
	}

	if err := r.consumer.Commit(ctx, batch...); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// route republishes a failed message: terminal failures and exhausted
// retries go to the dead-letter topic, everything else to the retry topic
// with an incremented attempt count.
func (r *Runner) route(ctx context.Context, msg kafkago.Message, res Result) error {
	headers := map[string]string{
		"origin_topic": msg.Topic,
		"error":        res.Err.Error(),
	}

	var orphan *OrphanedJobError
	if errors.As(res.Err, &orphan) {
		headers["reason"] = "orphaned-job"
		headers["job_id"] = orphan.JobID
		headers["fingerprint"] = orphan.Fingerprint
		return r.deadLetter.Publish(ctx, msg.Key, msg.Value, headers)
	}
	if Terminal(res.Err) {
		headers["reason"] = "decode-failure"
		return r.deadLetter.Publish(ctx, msg.Key, msg.Value, headers)
	}

	attempts := attemptCount(msg) + 1
	headers[attemptsHeader] = strconv.Itoa(attempts)
	if attempts >= r.maxAttempts {
		headers["reason"] = "retries-exhausted"
		return r.deadLetter.Publish(ctx, msg.Key, msg.Value, headers)
	}
	headers["reason"] = "retryable-failure"
	return r.retry.Publish(ctx, msg.Key, msg.Value, headers)
}

// attemptCount reads the failed-delivery count carried on a republished
// message; first deliveries have none.
func attemptCount(msg kafkago.Message) int {
	for _, h := range msg.Headers {
		if h.Key != attemptsHeader {
			continue
		}
		if n, err := strconv.Atoi(string(h.Value)); err == nil {
			return n
		}
	}
	return 0
}

func (r *Runner) observe(res Result) {
	if res.Err != nil {
		var decodeErr *DecodeError
		var orphanErr *OrphanedJobError
		switch {
		case errors.As(res.Err, &decodeErr):
			r.metrics.DecodeFailures.Inc()
		case errors.As(res.Err, &orphanErr):
			r.metrics.OrphanedJobs.Inc()
		default:
			r.metrics.RetryableFailures.Inc()
		}
		return
	}
	switch res.Outcome {
	case OutcomeSubmitted:
		r.metrics.Submitted.Inc()
	case OutcomeDuplicate:
		r.metrics.Duplicates.Inc()
	case OutcomeConflict:
		r.metrics.Conflicts.Inc()
	}
}
