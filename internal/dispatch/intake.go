package dispatch

import (
	"context"

	"go.uber.org/zap"
)

// Message is one raw transport message from the notification queue.
type Message struct {
	ID   string
	Body []byte
}

// Result reports the handling of a single message. Err is nil for
// submitted, duplicate, and conflict outcomes.
type Result struct {
	MessageID string
	Outcome   Outcome
	Err       error
}

// Failed reports whether the message needs routing (retry or dead-letter).
func (r Result) Failed() bool {
	return r.Err != nil
}

// ProcessBatch decodes and dispatches each message in order. Failures are
// isolated per message: one malformed or failing message never stops the
// rest of the batch. The returned slice has one entry per input message in
// the same order.
func (c *Coordinator) ProcessBatch(ctx context.Context, msgs []Message) []Result {
	results := make([]Result, 0, len(msgs))
	for _, msg := range msgs {
		results = append(results, c.processOne(ctx, msg))
	}
	return results
}

func (c *Coordinator) processOne(ctx context.Context, msg Message) Result {
	ev, err := DecodeStorageEvent(msg.Body)
	if err != nil {
		c.logger.Error("dropping undecodable message",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return Result{MessageID: msg.ID, Err: err}
	}

	outcome, err := c.Dispatch(ctx, ev)
	if err != nil {
		c.logger.Error("dispatch failed",
			zap.String("message_id", msg.ID),
			zap.String("object_key", ev.ObjectKey),
			zap.Bool("terminal", Terminal(err)),
			zap.Error(err),
		)
		return Result{MessageID: msg.ID, Err: err}
	}
	return Result{MessageID: msg.ID, Outcome: outcome}
}
