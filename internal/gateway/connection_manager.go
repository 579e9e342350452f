package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/geocontest/internal/protocol"
	"github.com/rs/zerolog/log"
)

// CoreSink is where the gateway hands decoded connection events. The core
// reactor implements it.
type CoreSink interface {
	Connected(token string)
	Disconnected(token string)
	HandleFrame(token string, data []byte)
}

// ConnectionConfig holds the websocket transport tuning.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns the default websocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			// Clients connect from app webviews; origin is not meaningful.
			return true
		},
	}
}

// ConnectionManager is the session registry and broadcast hub in one: it
// enforces at most one live connection per bearer token, and fans encoded
// messages out to every live session.
type ConnectionManager struct {
	sessions map[string]*Connection
	mu       sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	core     CoreSink
}

// Connection is one live session bound to a token.
type Connection struct {
	ID    string
	Token string
	Conn  *websocket.Conn
	Send  chan []byte

	manager     *ConnectionManager
	ConnectedAt time.Time
}

// NewConnectionManager creates the registry/hub. The core sink is attached
// with SetCore during wiring, before any route is served; the manager and the
// core reference each other so one side has to come second.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		sessions: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// SetCore attaches the inbound sink. Must be called before serving.
func (cm *ConnectionManager) SetCore(core CoreSink) {
	cm.core = core
}

// reserve claims the token before the upgrade so two handshakes racing on the
// same token cannot both pass the uniqueness check. A nil map entry marks a
// reservation whose connection is still being established.
func (cm *ConnectionManager) reserve(token string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, exists := cm.sessions[token]; exists {
		return false
	}
	cm.sessions[token] = nil
	return true
}

func (cm *ConnectionManager) release(token string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if c, ok := cm.sessions[token]; ok && c == nil {
		delete(cm.sessions, token)
	}
}

func (cm *ConnectionManager) bind(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.sessions[conn.Token] = conn

	log.Debug().
		Str("connection_id", conn.ID).
		Str("token", conn.Token).
		Int("total_connections", len(cm.sessions)).
		Msg("session registered")
}

// unregister removes the session and frees its token. Idempotent: only the
// call that still finds this exact connection in the registry tears it down,
// so the read and write pumps can both call it safely.
func (cm *ConnectionManager) unregister(conn *Connection) {
	cm.mu.Lock()
	cur, ok := cm.sessions[conn.Token]
	removed := ok && cur == conn
	if removed {
		delete(cm.sessions, conn.Token)
		close(conn.Send)
	}
	cm.mu.Unlock()

	if removed {
		log.Info().
			Str("connection_id", conn.ID).
			Str("token", conn.Token).
			Msg("session unregistered")
		cm.core.Disconnected(conn.Token)
	}
}

// snapshot copies the live sessions so fan-out never holds the lock while
// touching sockets.
func (cm *ConnectionManager) snapshot(excludeToken string) []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]*Connection, 0, len(cm.sessions))
	for token, conn := range cm.sessions {
		if conn == nil || token == excludeToken {
			continue
		}
		out = append(out, conn)
	}
	return out
}

// SendToAll delivers the envelope to every live session. The payload is
// marshaled once; a slow or closed session is dropped without aborting the
// remaining fan-out.
func (cm *ConnectionManager) SendToAll(env protocol.Envelope) {
	cm.deliver(cm.snapshot(""), env)
}

// SendToAllExcept is SendToAll minus the named token's session.
func (cm *ConnectionManager) SendToAllExcept(token string, env protocol.Envelope) {
	cm.deliver(cm.snapshot(token), env)
}

// SendToOne delivers to a single token. A token with no live session is a
// silent no-op; the session is already gone.
func (cm *ConnectionManager) SendToOne(token string, env protocol.Envelope) {
	cm.mu.RLock()
	conn := cm.sessions[token]
	cm.mu.RUnlock()
	if conn == nil {
		return
	}
	cm.deliver([]*Connection{conn}, env)
}

func (cm *ConnectionManager) deliver(conns []*Connection, env protocol.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("type", string(env.Type)).Msg("failed to marshal outbound envelope")
		return
	}

	// Sends happen under the read lock: unregister closes Send under the
	// write lock, so a frame can never hit a closed channel. Anything already
	// replaced in the registry is skipped.
	var stalled []*Connection
	cm.mu.RLock()
	for _, conn := range conns {
		if cm.sessions[conn.Token] != conn {
			continue
		}
		select {
		case conn.Send <- data:
		default:
			stalled = append(stalled, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range stalled {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("token", conn.Token).
			Msg("send buffer full, closing connection")
		cm.unregister(conn)
		conn.Conn.Close()
	}
}

// Stats reports connection counts for the stats endpoint.
func (cm *ConnectionManager) Stats() (total int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for _, conn := range cm.sessions {
		if conn != nil {
			total++
		}
	}
	return total
}

// writePump owns all writes on the socket: outbound frames plus pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.manager.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write frame")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump forwards inbound frames to the core in arrival order.
func (c *Connection) readPump() {
	defer func() {
		c.manager.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close")
			}
			break
		}
		c.manager.core.HandleFrame(c.Token, message)
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}

func newConnection(cm *ConnectionManager, token string, ws *websocket.Conn) *Connection {
	return &Connection{
		ID:          uuid.New().String(),
		Token:       token,
		Conn:        ws,
		Send:        make(chan []byte, cm.config.SendBuffer),
		manager:     cm,
		ConnectedAt: time.Now(),
	}
}
