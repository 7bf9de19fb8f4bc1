package kafka

import (
	"context"
	"errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Consumer wraps a consumer-group kafka-go Reader with explicit commits,
// so messages are only acknowledged after their batch has been handled.
type Consumer struct {
	reader *kafkago.Reader
}

type ConsumerConfig struct {
	Brokers []string
	// Topics are consumed as one group subscription, so a worker can
	// drain its retry topic alongside the main events topic.
	Topics   []string
	GroupID  string
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration
}

// NewConsumer constructs a Consumer from the given configuration.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	minBytes := cfg.MinBytes
	if minBytes <= 0 {
		minBytes = 1
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = time.Second
	}
	return &Consumer{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupTopics: cfg.Topics,
			GroupID:     cfg.GroupID,
			MinBytes:    minBytes,
			MaxBytes:    maxBytes,
			MaxWait:     maxWait,
		}),
	}
}

// FetchBatch blocks for the first message, then drains up to max messages
// for at most wait before returning. Offsets are not committed.
func (c *Consumer) FetchBatch(ctx context.Context, max int, wait time.Duration) ([]kafkago.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	msgs := []kafkago.Message{first}
	if max <= 1 {
		return msgs, nil
	}

	drainCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	for len(msgs) < max {
		msg, err := c.reader.FetchMessage(drainCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				break
			}
			// Partial batch is still usable; the fetch error will
			// resurface on the next blocking fetch.
			break
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Commit acknowledges the given messages.
func (c *Consumer) Commit(ctx context.Context, msgs ...kafkago.Message) error {
	return c.reader.CommitMessages(ctx, msgs...)
}

// Close shuts down the reader and leaves the consumer group.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
