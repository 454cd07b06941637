package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Outcome records how a call was settled.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeMatched
	OutcomeRemoteError
	OutcomeTimeout
	OutcomeConnectionReplaced
	OutcomeConnectionLost
	OutcomeCancelled
	OutcomeNotConnected
	OutcomeWriteFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeMatched:
		return "matched"
	case OutcomeRemoteError:
		return "remote_error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeConnectionReplaced:
		return "connection_replaced"
	case OutcomeConnectionLost:
		return "connection_lost"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeNotConnected:
		return "not_connected"
	case OutcomeWriteFailed:
		return "write_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Call is one request awaiting its reply. It moves from pending to settled
// exactly once; later settlement attempts are no-ops.
type Call struct {
	id      int64
	msgType string
	gen     uint64
	sentAt  time.Time
	broker  *Broker

	// guarded by broker.mu while registered
	timer *time.Timer

	// written once before done is closed
	outcome   Outcome
	result    json.RawMessage
	err       error
	done      chan struct{}
	closeOnce sync.Once
}

func newCall(b *Broker, msgType string) *Call {
	return &Call{
		msgType: msgType,
		sentAt:  time.Now(),
		broker:  b,
		done:    make(chan struct{}),
	}
}

// ID is the correlation id, or 0 if the call failed before one was assigned.
func (c *Call) ID() int64 { return c.id }

// Type is the request's message type.
func (c *Call) Type() string { return c.msgType }

// Generation is the connection generation the request was written to.
func (c *Call) Generation() uint64 { return c.gen }

// Done is closed once the call is settled.
func (c *Call) Done() <-chan struct{} { return c.done }

// Outcome returns OutcomePending until the call is settled.
func (c *Call) Outcome() Outcome {
	select {
	case <-c.done:
		return c.outcome
	default:
		return OutcomePending
	}
}

// Result blocks until the call is settled.
func (c *Call) Result() (json.RawMessage, error) {
	<-c.done
	return c.result, c.err
}

// Wait blocks until the call is settled or ctx ends. When ctx ends first the
// call is cancelled and the returned error matches both ErrCancelled and
// ctx.Err().
func (c *Call) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		c.broker.settle(c, OutcomeCancelled, nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err()))
		<-c.done
	}
	return c.result, c.err
}

func (c *Call) finish(outcome Outcome, result json.RawMessage, err error) {
	c.closeOnce.Do(func() {
		c.outcome = outcome
		c.result = result
		c.err = err
		close(c.done)
	})
}
