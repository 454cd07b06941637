// Package transport owns the single logical WebSocket connection to the
// remote browser executor.
//
// Every accepted socket gets the next generation number and becomes current.
// A newer socket supersedes the current one, which is closed with
// ErrConnectionReplaced. A current socket that drops reports ErrConnectionLost.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/netutil"

	"github.com/entrhq/browsermcp/pkg/logging"
	"github.com/entrhq/browsermcp/pkg/metrics"
	"github.com/entrhq/browsermcp/pkg/port"
	"github.com/entrhq/browsermcp/pkg/wire"
)

const (
	// maxBindRounds bounds reclaim-then-bind retries when another process
	// grabs the port between the reclaim and our bind.
	maxBindRounds = 3

	defaultWriteTimeout = 10 * time.Second

	// HTTP timeouts for requests that are not upgraded. The upgrader clears
	// deadlines on hijacked executor sockets.
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 10 * time.Second
	idleTimeout       = 30 * time.Second
)

// Reclaimer frees a port before it is bound.
type Reclaimer interface {
	EnsureAvailable(ctx context.Context, port int) error
}

// Options configures a Listener.
type Options struct {
	// Host is the interface to bind (default 127.0.0.1)
	Host string

	// MaxConnections caps simultaneously open sockets, including HTTP probes (0 = unlimited).
	// Probe sockets are closed after one response so they never hold a slot while idle.
	MaxConnections int

	// WriteTimeout bounds a single frame write
	WriteTimeout time.Duration

	// Reclaimer frees the port before binding; nil skips reclaiming
	Reclaimer Reclaimer

	// Logger receives connection lifecycle events
	Logger *logging.Logger

	// Metrics is served at /metrics when set
	Metrics http.Handler
}

// Listener accepts executor sockets and tracks the current one.
type Listener struct {
	opts     Options
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu           sync.Mutex
	current      *Connection
	generation   uint64
	onMessage    func(gen uint64, data []byte)
	onDisconnect func(gen uint64, cause error)
	closed       bool

	ln     net.Listener
	server *http.Server
	conns  sync.WaitGroup
}

// New creates a Listener. Call Start to bind it.
func New(opts Options) *Listener {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	return &Listener{
		opts:   opts,
		logger: opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 64 << 10,
			// The executor runs inside a browser extension whose origin is
			// not an http(s) URL; the listener only binds loopback by default.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// OnMessage registers the handler for frames read from the current connection.
func (l *Listener) OnMessage(handler func(gen uint64, data []byte)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onMessage = handler
}

// OnDisconnect registers the handler invoked exactly once per connection
// generation when it stops being current.
func (l *Listener) OnDisconnect(handler func(gen uint64, cause error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onDisconnect = handler
}

// Start reclaims listenPort and begins serving. Port 0 binds an ephemeral port.
func (l *Listener) Start(ctx context.Context, listenPort int) error {
	l.mu.Lock()
	if l.server != nil {
		l.mu.Unlock()
		return errors.New("transport: already started")
	}
	l.mu.Unlock()

	addr := net.JoinHostPort(l.opts.Host, strconv.Itoa(listenPort))

	var ln net.Listener
	for round := 1; ; round++ {
		if l.opts.Reclaimer != nil {
			if err := l.opts.Reclaimer.EnsureAvailable(ctx, listenPort); err != nil {
				return fmt.Errorf("transport: reclaim port %d: %w", listenPort, err)
			}
		}

		var err error
		ln, err = net.Listen("tcp", addr)
		if err == nil {
			break
		}
		if !port.IsAddrInUse(err) || round >= maxBindRounds {
			return fmt.Errorf("transport: listen on %s: %w", addr, err)
		}
		l.logger.Warnf("port %d taken again before bind (round %d/%d), reclaiming", listenPort, round, maxBindRounds)
	}

	if l.opts.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, l.opts.MaxConnections)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", l.handleHealth)
	if l.opts.Metrics != nil {
		mux.Handle("/metrics", l.opts.Metrics)
	}
	mux.HandleFunc("/", l.handleUpgrade)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
	}
	// Keep-alive probes would pin LimitListener slots and starve executor upgrades.
	srv.SetKeepAlivesEnabled(false)

	l.mu.Lock()
	l.ln = ln
	l.server = srv
	l.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Errorf("serve: %v", err)
		}
	}()

	l.logger.Infof("listening for executor on ws://%s/", ln.Addr())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Current returns the current connection or ErrNotConnected.
func (l *Listener) Current() (Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return nil, ErrNotConnected
	}
	return l.current, nil
}

// Send writes data to the current connection.
func (l *Listener) Send(data []byte) error {
	conn, err := l.Current()
	if err != nil {
		return err
	}
	return conn.Write(data)
}

// Connected reports whether an executor is connected.
func (l *Listener) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current != nil
}

// Generation returns the generation of the most recently accepted socket.
func (l *Listener) Generation() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generation
}

// Close stops accepting, closes the current connection with
// ErrConnectionLost, and waits for connection goroutines or ctx.
func (l *Listener) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	srv := l.server
	cur := l.current
	l.current = nil
	onDisconnect := l.onDisconnect
	l.mu.Unlock()

	if cur != nil {
		cur.close(ErrConnectionLost)
		metrics.RecordConnection(metrics.EventLost, cur.gen)
		if onDisconnect != nil {
			onDisconnect(cur.gen, ErrConnectionLost)
		}
	}

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		l.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (l *Listener) handleHealth(w http.ResponseWriter, _ *http.Request) {
	l.mu.Lock()
	status := struct {
		Connected  bool   `json:"connected"`
		Generation uint64 `json:"generation"`
	}{Connected: l.current != nil, Generation: l.generation}
	l.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

func (l *Listener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "browsermcp executor endpoint: WebSocket upgrade required", http.StatusUpgradeRequired)
		return
	}

	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Warnf("upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	ws.SetReadLimit(wire.MaxFrameSize)

	conn, ok := l.accept(ws)
	if !ok {
		return
	}
	l.logger.Infof("executor connected from %s (generation %d, id %s)", r.RemoteAddr, conn.gen, conn.id)
	l.readLoop(conn)
}

// accept makes ws the current connection and retires the previous one.
func (l *Listener) accept(ws *websocket.Conn) (*Connection, bool) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		_ = ws.Close()
		return nil, false
	}
	l.generation++
	conn := newConnection(ws, l.generation, l.opts.WriteTimeout)
	prev := l.current
	l.current = conn
	onDisconnect := l.onDisconnect
	l.conns.Add(1)
	l.mu.Unlock()

	metrics.RecordConnection(metrics.EventAccepted, conn.gen)

	if prev != nil {
		prev.close(ErrConnectionReplaced)
		metrics.RecordConnection(metrics.EventReplaced, conn.gen)
		l.logger.Infof("generation %d replaced by generation %d", prev.gen, conn.gen)
		if onDisconnect != nil {
			onDisconnect(prev.gen, ErrConnectionReplaced)
		}
	}
	return conn, true
}

func (l *Listener) readLoop(conn *Connection) {
	defer l.conns.Done()

	for {
		msgType, data, err := conn.ws.ReadMessage()
		if err != nil {
			if conn.Err() == nil {
				l.logger.Debugf("generation %d read ended: %v", conn.gen, err)
			}
			break
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		l.mu.Lock()
		isCurrent := l.current == conn
		handler := l.onMessage
		l.mu.Unlock()

		if !isCurrent {
			l.logger.Debugf("dropping frame from retired generation %d", conn.gen)
			continue
		}
		if handler != nil {
			handler(conn.gen, data)
		}
	}

	conn.close(ErrConnectionLost)

	l.mu.Lock()
	wasCurrent := l.current == conn
	if wasCurrent {
		l.current = nil
	}
	onDisconnect := l.onDisconnect
	l.mu.Unlock()

	if wasCurrent {
		metrics.RecordConnection(metrics.EventLost, conn.gen)
		l.logger.Warnf("executor disconnected (generation %d)", conn.gen)
		if onDisconnect != nil {
			onDisconnect(conn.gen, ErrConnectionLost)
		}
	}
}
