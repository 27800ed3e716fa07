package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/teamforge/collab/pkg/auth"
	"github.com/teamforge/collab/pkg/membership"
	"github.com/teamforge/collab/pkg/message"
)

// Conn is an open bidirectional channel to one client process. The identity
// is attached at handshake time and is immutable for the connection's
// lifetime. A user can have multiple connections.
type Conn interface {
	// ID returns the unique identifier of the connection.
	ID() string
	// Identity returns the authenticated user behind the connection.
	Identity() auth.Identity
	// send enqueues an outbound event. It never blocks: it returns
	// ErrConnClosed after close and ErrSlowConsumer when the outbound
	// buffer is full.
	send(*OutEvent) error
	// close initiates the closing of the connection. It is idempotent.
	close()
	readLoop()
	writeLoop()
}

// Authenticator resolves the identity attached to a handshake request.
// Verification of the identity itself happens upstream; the gateway only
// needs the result. Authenticate must be safe to call concurrently.
type Authenticator interface {
	// Authenticate returns the identity for the request. On failure it
	// writes the response status and returns false.
	Authenticate(w http.ResponseWriter, r *http.Request) (auth.Identity, bool)
}

// Gateway owns the lifecycle of every connection: it registers new
// connections, decodes inbound events, dispatches them through the event
// router, and guarantees outbound writes reach a connection only while it
// is registered.
type Gateway struct {
	mu    sync.RWMutex
	conns map[string]Conn

	rooms    *RoomRegistry
	presence *PresenceTracker
	router   *EventRouter

	store message.Store
	gate  *membership.Gate

	authenticator Authenticator
	connFactory   ConnFactory

	logger  *slog.Logger
	baseCtx context.Context

	opTimeout    time.Duration
	historyLimit int

	wg           sync.WaitGroup
	closeTimeout time.Duration
}

func New(store message.Store, gate *membership.Gate, authenticator Authenticator, opts ...Option) *Gateway {
	g := &Gateway{
		conns:         make(map[string]Conn),
		rooms:         NewRoomRegistry(),
		store:         store,
		gate:          gate,
		authenticator: authenticator,
		logger:        slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})),
		baseCtx:       context.Background(),
		opTimeout:     5 * time.Second,
		historyLimit:  50,
		closeTimeout:  10 * time.Second,
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.presence == nil {
		g.presence = NewPresenceTracker(DefaultTypingTTL)
	}
	if g.connFactory == nil {
		g.connFactory = NewWSConnFactory()
	}

	g.router = NewEventRouter(g.logger)
	g.router.On(EventJoinProject, g.handleJoinProject)
	g.router.On(EventSendMessage, g.handleSendMessage)
	g.router.On(EventTypingStart, g.handleTypingStart)
	g.router.On(EventTypingStop, g.handleTypingStop)
	g.router.On(EventPing, g.handlePing)

	return g
}

type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func WithBaseContext(ctx context.Context) Option {
	return func(g *Gateway) {
		g.baseCtx = ctx
	}
}

// WithOpTimeout bounds store appends and history reads so a stalled store
// surfaces as an error event instead of hanging the connection.
func WithOpTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.opTimeout = d
		}
	}
}

func WithHistoryLimit(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.historyLimit = n
		}
	}
}

func WithTypingTTL(d time.Duration) Option {
	return func(g *Gateway) {
		g.presence = NewPresenceTracker(d)
	}
}

func WithConnFactory(f ConnFactory) Option {
	return func(g *Gateway) {
		g.connFactory = f
	}
}

// ServeHTTP upgrades the request to a websocket connection and registers it.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := g.authenticator.Authenticate(w, r)
	if !ok {
		return
	}
	conn, ok := g.connFactory.NewConn(w, r, g, identity)
	if !ok {
		return
	}
	g.Connect(conn)
}

// Connect registers the connection and starts its pumps.
func (g *Gateway) Connect(c Conn) {
	g.mu.Lock()
	g.conns[c.ID()] = c
	g.mu.Unlock()

	g.presence.SetOnline(c.Identity().UserID, c.ID())

	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		c.readLoop()
	}()
	go func() {
		defer g.wg.Done()
		c.writeLoop()
	}()

	g.logger.Info("connection registered",
		slog.String("conn.id", c.ID()), slog.String("user.id", c.Identity().UserID))
}

// Disconnect deregisters the connection, removes it from every room it
// belonged to and clears its presence and typing entries. It is idempotent:
// calling it again for the same connection is a no-op.
func (g *Gateway) Disconnect(c Conn) {
	g.mu.Lock()
	_, ok := g.conns[c.ID()]
	if ok {
		delete(g.conns, c.ID())
	}
	g.mu.Unlock()
	if !ok {
		return
	}

	left := g.rooms.RemoveAll(c.ID())
	g.presence.ClearOnline(c.ID())
	for _, projectID := range left {
		g.presence.StopTyping(projectID, c.Identity().UserID)
	}

	c.close()

	g.logger.Info("connection deregistered",
		slog.String("conn.id", c.ID()), slog.String("user.id", c.Identity().UserID))
}

// dispatch runs one inbound event through the router and reports failures
// back to the sender only. Errors never close the connection and never
// affect other members of a room.
func (g *Gateway) dispatch(c Conn, event *InEvent) {
	err := g.router.Dispatch(c, event)
	if err == nil {
		return
	}
	g.sendError(c, err)
}

func (g *Gateway) sendError(c Conn, err error) {
	payload := ErrorPayload{Code: CodeInternal, Message: "internal error"}
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, message.ErrInvalidMessage):
		payload = ErrorPayload{Code: CodeInvalidRequest, Message: err.Error()}
	case errors.Is(err, membership.ErrProjectNotFound):
		// a missing project is a caller mistake, not an authorization state
		payload = ErrorPayload{Code: CodeInvalidRequest, Message: err.Error()}
	case errors.Is(err, membership.ErrUnauthorized):
		payload = ErrorPayload{Code: CodeUnauthorized, Message: "not authorized to act on this project"}
	case errors.Is(err, ErrPersistenceFailed):
		payload = ErrorPayload{Code: CodePersistenceFailed, Message: "message could not be persisted"}
	default:
		g.logger.Error("event handler failed", slog.String("conn.id", c.ID()),
			slog.String("error", err.Error()))
	}

	if err := c.send(&OutEvent{Type: EventError, Body: payload}); err != nil {
		g.logger.Debug("drop error event", slog.String("conn.id", c.ID()))
	}
}

// broadcast delivers the event to every connection in the room at the
// moment of dispatch, minus the excluded connection ids. A failed delivery
// to one recipient never aborts delivery to the others.
func (g *Gateway) broadcast(projectID string, event *OutEvent, exclude ...string) {
	for _, c := range g.rooms.MembersOf(projectID) {
		if contains(exclude, c.ID()) {
			continue
		}
		if err := c.send(event); err != nil {
			g.logger.Warn("drop broadcast",
				slog.String("conn.id", c.ID()),
				slog.String("event.type", event.Type),
				slog.String("error", err.Error()))
		}
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// opContext bounds a single store or oracle operation.
func (g *Gateway) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(g.baseCtx, g.opTimeout)
}

// Close disconnects every connection and waits for the pumps to drain or
// until the close timeout.
func (g *Gateway) Close() {
	g.mu.RLock()
	conns := make([]Conn, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.RUnlock()

	for _, c := range conns {
		g.Disconnect(c)
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(g.closeTimeout)
	defer timer.Stop()
	select {
	case <-done:
		g.logger.Info("gateway closed gracefully")
	case <-timer.C:
		g.logger.Info("gateway closed with timeout")
	}
}
