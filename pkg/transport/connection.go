package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrNotConnected is returned when no executor is connected.
	ErrNotConnected = errors.New("transport: no executor connected")

	// ErrConnectionReplaced is the close cause of a connection superseded by a
	// newer executor socket.
	ErrConnectionReplaced = errors.New("transport: connection replaced by a newer executor")

	// ErrConnectionLost is the close cause of a connection that dropped while it
	// was still current, or that was closed by shutdown.
	ErrConnectionLost = errors.New("transport: executor connection lost")
)

// Conn is the view of a connection that the broker writes through.
type Conn interface {
	// Generation identifies the socket; it increases with every accepted socket.
	Generation() uint64

	// Write sends one text frame.
	Write(data []byte) error
}

// Connection is one accepted executor socket.
type Connection struct {
	id           string
	gen          uint64
	ws           *websocket.Conn
	writeTimeout time.Duration
	connectedAt  time.Time

	writeMu sync.Mutex

	mu        sync.Mutex
	cause     error
	closeOnce sync.Once
}

func newConnection(ws *websocket.Conn, gen uint64, writeTimeout time.Duration) *Connection {
	return &Connection{
		id:           uuid.NewString(),
		gen:          gen,
		ws:           ws,
		writeTimeout: writeTimeout,
		connectedAt:  time.Now(),
	}
}

// Generation is the sequence number assigned when the socket was accepted.
func (c *Connection) Generation() uint64 { return c.gen }

// ID is a unique identifier used in logs.
func (c *Connection) ID() string { return c.id }

// ConnectedAt reports when the socket was accepted.
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// Err returns the close cause, or nil while the connection is open.
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// Write sends data as a single text frame. Writes are serialized; once the
// connection is closed every write fails with the close cause.
func (c *Connection) Write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.Err(); err != nil {
		return err
	}
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		if cause := c.Err(); cause != nil {
			return cause
		}
		return fmt.Errorf("transport: write to generation %d: %w", c.gen, err)
	}
	return nil
}

// close records cause and closes the socket. Only the first cause sticks.
func (c *Connection) close(cause error) bool {
	closed := false
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.cause = cause
		c.mu.Unlock()

		code, reason := websocket.CloseGoingAway, "server shutting down"
		if errors.Is(cause, ErrConnectionReplaced) {
			code, reason = websocket.ClosePolicyViolation, "replaced by a newer connection"
		}
		// WriteControl and Close are safe to call concurrently with a writer.
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(time.Second))
		_ = c.ws.Close()
		closed = true
	})
	return closed
}
