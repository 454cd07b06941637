package main

import (
	"context"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// eofWatchTransport closes done the first time a read from the agent fails,
// which for stdio means stdin was closed.
type eofWatchTransport struct {
	mcp.Transport
	done chan<- struct{}
	once sync.Once
}

func newEOFWatchTransport(inner mcp.Transport, done chan<- struct{}) *eofWatchTransport {
	return &eofWatchTransport{Transport: inner, done: done}
}

func (t *eofWatchTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	conn, err := t.Transport.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &eofWatchConn{Connection: conn, notify: t.notify}, nil
}

func (t *eofWatchTransport) notify() {
	t.once.Do(func() { close(t.done) })
}

type eofWatchConn struct {
	mcp.Connection
	notify func()
}

func (c *eofWatchConn) Read(ctx context.Context) (jsonrpc.Message, error) {
	msg, err := c.Connection.Read(ctx)
	if err != nil && ctx.Err() == nil {
		c.notify()
	}
	return msg, err
}

// startExitWatchdog calls exit(0) once timeout has passed after closed is
// closed, unless the returned cancel runs first.
func startExitWatchdog(closed <-chan struct{}, timeout time.Duration, exit func(int)) (cancel func()) {
	stop := make(chan struct{})
	go func() {
		select {
		case <-closed:
		case <-stop:
			return
		}

		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			exit(0)
		case <-stop:
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}
