package wire

import (
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws/wsutil"

	"github.com/xraph/aegis/id"
)

// Connection is one open WebSocket watching a client.
type Connection struct {
	// ID uniquely identifies this connection.
	ID id.ID

	// ClientID is the client whose notifications this socket receives.
	ClientID id.ClientID

	// Codec is the negotiated wire format.
	Codec Codec

	// ConnectedAt records when the connection was established.
	ConnectedAt time.Time

	conn         net.Conn
	writeTimeout time.Duration
	wmu          sync.Mutex
}

// NewConnection wraps conn, identified by connID, for clientID.
func NewConnection(connID id.ID, conn net.Conn, clientID id.ClientID, codec Codec, writeTimeout time.Duration) *Connection {
	return &Connection{
		ID:           connID,
		ClientID:     clientID,
		Codec:        codec,
		ConnectedAt:  time.Now().UTC(),
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// WriteFrame encodes frame with the connection's codec and writes it as a
// text or binary message. Writes are serialised.
func (c *Connection) WriteFrame(frame *Frame) error {
	data, err := c.Codec.Encode(frame)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)) //nolint:errcheck // best effort
	}
	if c.Codec.Binary() {
		return wsutil.WriteServerBinary(c.conn, data)
	}
	return wsutil.WriteServerText(c.conn, data)
}

// Close closes the underlying socket.
func (c *Connection) Close() error { return c.conn.Close() }

// ──────────────────────────────────────────────────
// Connection manager
// ──────────────────────────────────────────────────

// ConnectionManager tracks open connections.
type ConnectionManager struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewConnectionManager creates an empty connection manager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{conns: make(map[string]*Connection)}
}

// Add registers a connection.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.conns[conn.ID.String()] = conn
	cm.mu.Unlock()
}

// Remove unregisters a connection.
func (cm *ConnectionManager) Remove(connID string) {
	cm.mu.Lock()
	delete(cm.conns, connID)
	cm.mu.Unlock()
}

// Get returns a connection by ID.
func (cm *ConnectionManager) Get(connID string) (*Connection, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	c, ok := cm.conns[connID]
	return c, ok
}

// Count returns the number of open connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.conns)
}

// ForClient returns the open connections watching clientID.
func (cm *ConnectionManager) ForClient(clientID id.ClientID) []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	want := clientID.String()
	var out []*Connection
	for _, c := range cm.conns {
		if c.ClientID.String() == want {
			out = append(out, c)
		}
	}
	return out
}

// CloseAll closes every tracked socket.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for _, c := range cm.conns {
		_ = c.Close() //nolint:errcheck // shutting down
	}
}
