package executor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/entrhq/browsermcp/pkg/backoff"
	"github.com/entrhq/browsermcp/pkg/logging"
	"github.com/entrhq/browsermcp/pkg/wire"
)

// ErrReplaced is returned by Run when the server closed this executor's
// socket because another executor connected. Reconnecting would only evict
// the newer one.
var ErrReplaced = errors.New("executor: replaced by a newer connection")

const defaultWriteTimeout = 10 * time.Second

// ClientOptions configures a Client.
type ClientOptions struct {
	// URL of the browsermcp endpoint, e.g. ws://127.0.0.1:9222/
	URL string

	// Backoff between reconnect attempts (jitter is recommended)
	Backoff backoff.Config

	// MaxRetries bounds consecutive failed dials (0 retries forever)
	MaxRetries int

	// WriteTimeout bounds a single reply write
	WriteTimeout time.Duration

	// Dialer overrides websocket.DefaultDialer
	Dialer *websocket.Dialer

	Logger *logging.Logger
}

// Client keeps one socket to the server and answers its requests.
type Client struct {
	handler Handler
	opts    ClientOptions
	logger  *logging.Logger
	rng     *rand.Rand
}

// NewClient creates a client that answers requests with handler.
func NewClient(handler Handler, opts ClientOptions) *Client {
	if opts.Backoff.InitialDelay <= 0 {
		opts.Backoff = backoff.Config{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2,
			MaxDelay:     10 * time.Second,
			Jitter:       true,
		}
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	return &Client{
		handler: handler,
		opts:    opts,
		logger:  opts.Logger,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run connects and serves until ctx ends, the socket is replaced, or
// MaxRetries consecutive dials fail.
func (c *Client) Run(ctx context.Context) error {
	failures := 0
	for {
		ws, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			if c.opts.MaxRetries > 0 && failures >= c.opts.MaxRetries {
				return fmt.Errorf("executor: dial %s: giving up after %d attempts: %w", c.opts.URL, failures, err)
			}
			delay := backoff.NextDelay(c.opts.Backoff, failures, c.rng)
			c.logger.Warnf("dial %s failed (attempt %d), retrying in %s: %v", c.opts.URL, failures, delay, err)
			if err := backoff.Sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}

		failures = 0
		c.logger.Infof("connected to %s", c.opts.URL)
		err = c.serve(ctx, ws)

		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case websocket.IsCloseError(err, websocket.ClosePolicyViolation):
			c.logger.Warnf("server replaced this executor, not reconnecting")
			return ErrReplaced
		default:
			c.logger.Warnf("connection closed, reconnecting: %v", err)
		}
	}
}

// serve reads requests until the socket fails. Each request runs on its
// own goroutine; replies may be written in any order.
func (c *Client) serve(ctx context.Context, ws *websocket.Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ws.SetReadLimit(wire.MaxFrameSize)

	var (
		writeMu  sync.Mutex
		inflight sync.WaitGroup
	)
	defer inflight.Wait()

	stop := context.AfterFunc(connCtx, func() {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = ws.Close()
	})
	defer stop()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			cancel()
			_ = ws.Close()
			return err
		}

		req, ok := wire.DecodeRequest(data)
		if !ok {
			c.logger.Warnf("dropping malformed request frame (%d bytes)", len(data))
			continue
		}

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			reply := c.answer(connCtx, req)

			writeMu.Lock()
			defer writeMu.Unlock()
			_ = ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, reply); err != nil {
				c.logger.Warnf("reply to %d (%s) not sent: %v", req.ID, req.Type, err)
			}
		}()
	}
}

// answer runs the handler and encodes its reply. Handler panics become
// error replies.
func (c *Client) answer(ctx context.Context, req wire.Request) (frame []byte) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("handler panic on %s: %v", req.Type, r)
			frame, _ = wire.EncodeResponse(req.ID, nil, fmt.Sprintf("executor panic: %v", r))
		}
	}()

	result, err := c.handler.Handle(ctx, req)
	if err != nil {
		c.logger.Debugf("%d %s failed after %s: %v", req.ID, req.Type, time.Since(start), err)
		frame, _ = wire.EncodeResponse(req.ID, nil, err.Error())
		return frame
	}

	frame, err = wire.EncodeResponse(req.ID, result, "")
	if err != nil {
		frame, _ = wire.EncodeResponse(req.ID, nil, err.Error())
		return frame
	}
	c.logger.Debugf("%d %s done in %s", req.ID, req.Type, time.Since(start))
	return frame
}
