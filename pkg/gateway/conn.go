package gateway

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teamforge/collab/pkg/auth"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Sized for a max-length
	// content plus the event envelope.
	maxMessageSize = 8192

	// Outbound buffer per connection. A consumer that falls this far
	// behind starts losing broadcasts instead of stalling the room.
	sendBufferSize = 32
)

type wsConn struct {
	conn     *websocket.Conn
	id       string
	identity auth.Identity
	gateway  *Gateway
	out      chan *OutEvent
	done     chan struct{}
	once     sync.Once
	logger   *slog.Logger
}

func (c *wsConn) ID() string {
	return c.id
}

func (c *wsConn) Identity() auth.Identity {
	return c.identity
}

func (c *wsConn) send(event *OutEvent) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.out <- event:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSlowConsumer
	}
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *wsConn) readLoop() {
	defer func() {
		c.gateway.Disconnect(c)
		c.conn.Close()
		c.logger.Debug("exited read loop", slog.String("conn.id", c.id))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		mt, r, err := c.conn.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug(fmt.Sprintf("expected close: %v", err))
				return
			}
			if websocket.IsUnexpectedCloseError(err) {
				c.logger.Error(fmt.Sprintf("unexpected close: %v", err))
				return
			}
			c.logger.Error(fmt.Sprintf("NextReader: %v", err))
			return
		}

		event, err := decodeInEvent(mt, r)
		if err != nil {
			c.logger.Error(fmt.Sprintf("decodeInEvent: %v", err))
			c.gateway.sendError(c, ErrInvalidRequest)
			continue
		}

		// events from a single connection are handled in the order
		// received
		c.gateway.dispatch(c, event)
	}
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	var err error
	defer func() {
		ticker.Stop()
		if err != nil {
			c.conn.Close()
		}
		c.logger.Debug("exited write loop", slog.String("conn.id", c.id))
	}()

	for {
		select {
		case event := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = c.conn.WriteJSON(event); err != nil {
				c.logger.Error(fmt.Sprintf("WriteJSON: %v", err))
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error(fmt.Sprintf("WritePing: %v", err))
				return
			}
		}
	}
}

// ConnFactory creates a connection from an upgraded handshake request.
// It returns false when the connection could not be created; the factory
// is responsible for writing the response in that case.
type ConnFactory interface {
	NewConn(w http.ResponseWriter, r *http.Request, g *Gateway, identity auth.Identity) (Conn, bool)
}

type WSConnFactory struct {
	upgrader websocket.Upgrader
}

func NewWSConnFactory(opts ...WSConnFactoryOpt) *WSConnFactory {
	f := &WSConnFactory{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type WSConnFactoryOpt func(*WSConnFactory)

func WithUpgrader(upgrader *websocket.Upgrader) WSConnFactoryOpt {
	return func(f *WSConnFactory) {
		f.upgrader = *upgrader
	}
}

func (f *WSConnFactory) NewConn(w http.ResponseWriter, r *http.Request, g *Gateway, identity auth.Identity) (Conn, bool) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, false
	}
	return &wsConn{
		conn:     conn,
		id:       uuid.New().String(),
		identity: identity,
		gateway:  g,
		out:      make(chan *OutEvent, sendBufferSize),
		done:     make(chan struct{}),
		logger:   g.logger,
	}, true
}
