// Package broker correlates requests written to the remote executor with
// the replies that come back on the same socket.
//
// Many calls may be outstanding at once. Each gets a correlation id from a
// per-broker counter, and replies are matched purely by id, in whatever
// order they arrive. A call settles exactly once: on its reply, on its
// deadline, when its connection is replaced or lost, or on cancellation.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/entrhq/browsermcp/pkg/logging"
	"github.com/entrhq/browsermcp/pkg/metrics"
	"github.com/entrhq/browsermcp/pkg/transport"
	"github.com/entrhq/browsermcp/pkg/wire"
)

const (
	// DefaultTimeout applies when a call does not set its own.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxID is where the id counter wraps back to 1.
	DefaultMaxID int64 = math.MaxInt32
)

// Transport is the connection owner the broker writes through.
// *transport.Listener satisfies it.
type Transport interface {
	Current() (transport.Conn, error)
	OnMessage(handler func(gen uint64, data []byte))
	OnDisconnect(handler func(gen uint64, cause error))
}

// Options configures a Broker.
type Options struct {
	// DefaultTimeout for calls that pass a zero timeout
	DefaultTimeout time.Duration

	// MaxID bounds correlation ids (default DefaultMaxID)
	MaxID int64

	// Logger receives settlement and discard events
	Logger *logging.Logger
}

// Broker allocates ids, tracks pending calls, and settles them.
type Broker struct {
	transport      Transport
	defaultTimeout time.Duration
	maxID          int64
	logger         *logging.Logger

	// mu guards lastID, pending and every registered call's timer
	mu      sync.Mutex
	lastID  int64
	pending map[int64]*Call
}

// New creates a broker and subscribes it to t's frames and disconnects.
func New(t Transport, opts Options) *Broker {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	if opts.MaxID <= 0 {
		opts.MaxID = DefaultMaxID
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	b := &Broker{
		transport:      t,
		defaultTimeout: opts.DefaultTimeout,
		maxID:          opts.MaxID,
		logger:         opts.Logger,
		pending:        make(map[int64]*Call),
	}
	t.OnMessage(b.handleFrame)
	t.OnDisconnect(b.handleDisconnect)
	return b
}

// CallOption adjusts a single Invoke.
type CallOption func(*callConfig)

type callConfig struct {
	timeout time.Duration
}

// WithTimeout overrides the default deadline for one call.
func WithTimeout(d time.Duration) CallOption {
	return func(c *callConfig) {
		c.timeout = d
	}
}

// Invoke sends a request and waits for its result. If ctx ends first the call
// is cancelled. Every failure is returned as an error.
func (b *Broker) Invoke(ctx context.Context, msgType string, payload any, opts ...CallOption) (json.RawMessage, error) {
	cfg := callConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return b.Send(msgType, payload, cfg.timeout).Wait(ctx)
}

// Send writes a request and returns without waiting for the reply. A zero
// timeout uses the broker default. When no executor is connected the
// returned call is already settled with ErrNotConnected.
func (b *Broker) Send(msgType string, payload any, timeout time.Duration) *Call {
	if timeout <= 0 {
		timeout = b.defaultTimeout
	}
	call := newCall(b, msgType)

	conn, err := b.transport.Current()
	if err != nil {
		b.finishUnregistered(call, OutcomeNotConnected, err)
		return call
	}

	b.mu.Lock()
	id, ok := b.allocateID()
	if !ok {
		b.mu.Unlock()
		b.finishUnregistered(call, OutcomeWriteFailed, ErrNoFreeID)
		return call
	}
	data, err := wire.EncodeRequest(id, msgType, payload)
	if err != nil {
		b.mu.Unlock()
		b.finishUnregistered(call, OutcomeWriteFailed, fmt.Errorf("broker: %w", err))
		return call
	}
	call.id = id
	call.gen = conn.Generation()
	b.pending[id] = call
	call.timer = time.AfterFunc(timeout, func() {
		b.settle(call, OutcomeTimeout, nil, fmt.Errorf("%w after %v (%s #%d)", ErrTimeout, timeout, msgType, id))
	})
	depth := len(b.pending)
	b.mu.Unlock()

	metrics.SetPending(depth)

	// The call is registered before the write so a fast reply always finds it.
	if err := conn.Write(data); err != nil {
		outcome := OutcomeWriteFailed
		switch {
		case errors.Is(err, ErrConnectionReplaced):
			outcome = OutcomeConnectionReplaced
		case errors.Is(err, ErrConnectionLost):
			outcome = OutcomeConnectionLost
		default:
			err = fmt.Errorf("broker: write %s #%d: %w", msgType, id, err)
		}
		b.settle(call, outcome, nil, err)
	}
	return call
}

// Cancel settles a pending call with ErrCancelled. It reports false when no
// call with that id is pending.
func (b *Broker) Cancel(id int64) bool {
	b.mu.Lock()
	call := b.pending[id]
	b.mu.Unlock()
	if call == nil {
		return false
	}
	return b.settle(call, OutcomeCancelled, nil, ErrCancelled)
}

// Pending returns the number of unsettled calls.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// allocateID returns the next id not attached to a pending call. Caller holds mu.
func (b *Broker) allocateID() (int64, bool) {
	for i := int64(0); i < b.maxID; i++ {
		b.lastID++
		if b.lastID < 1 || b.lastID > b.maxID {
			b.lastID = 1
		}
		if _, busy := b.pending[b.lastID]; !busy {
			return b.lastID, true
		}
	}
	return 0, false
}

// settle removes call from the pending table and completes it. Only the
// first settlement of a registered call has any effect.
func (b *Broker) settle(call *Call, outcome Outcome, result json.RawMessage, err error) bool {
	b.mu.Lock()
	if b.pending[call.id] != call {
		b.mu.Unlock()
		return false
	}
	delete(b.pending, call.id)
	if call.timer != nil {
		call.timer.Stop()
	}
	depth := len(b.pending)
	call.finish(outcome, result, err)
	b.mu.Unlock()

	b.record(call, outcome, err)
	metrics.SetPending(depth)
	return true
}

func (b *Broker) finishUnregistered(call *Call, outcome Outcome, err error) {
	call.finish(outcome, nil, err)
	b.record(call, outcome, err)
}

func (b *Broker) record(call *Call, outcome Outcome, err error) {
	elapsed := time.Since(call.sentAt)
	metrics.RecordCall(call.msgType, outcome.String(), elapsed)

	if err != nil && outcome != OutcomeRemoteError {
		b.logger.Debugf("%s #%d settled %s after %v: %v", call.msgType, call.id, outcome, elapsed, err)
		return
	}
	b.logger.Debugf("%s #%d settled %s after %v", call.msgType, call.id, outcome, elapsed)
}

func (b *Broker) handleFrame(gen uint64, data []byte) {
	resp, ok := wire.DecodeResponse(data)
	if !ok {
		metrics.RecordMalformedFrame()
		b.logger.Warnf("discarding frame from generation %d: %v (%d bytes)", gen, wire.ErrMalformedFrame, len(data))
		return
	}

	b.mu.Lock()
	call := b.pending[resp.ID]
	b.mu.Unlock()

	if call == nil {
		b.logger.Debugf("discarding reply #%d: no pending call", resp.ID)
		return
	}
	if call.gen != gen {
		b.logger.Debugf("discarding reply #%d from generation %d, call belongs to %d", resp.ID, gen, call.gen)
		return
	}

	if resp.IsError() {
		b.settle(call, OutcomeRemoteError, nil, &RemoteError{ID: resp.ID, Type: call.msgType, Message: resp.Error})
		return
	}
	b.settle(call, OutcomeMatched, resp.Result, nil)
}

func (b *Broker) handleDisconnect(gen uint64, cause error) {
	outcome := OutcomeConnectionLost
	if errors.Is(cause, ErrConnectionReplaced) {
		outcome = OutcomeConnectionReplaced
	}

	b.mu.Lock()
	var affected []*Call
	for _, call := range b.pending {
		if call.gen == gen {
			affected = append(affected, call)
		}
	}
	b.mu.Unlock()

	if len(affected) > 0 {
		b.logger.Infof("settling %d pending call(s) on generation %d: %v", len(affected), gen, cause)
	}
	for _, call := range affected {
		b.settle(call, outcome, nil, cause)
	}
}
