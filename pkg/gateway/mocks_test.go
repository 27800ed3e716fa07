package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/teamforge/collab/pkg/auth"
	"github.com/teamforge/collab/pkg/membership"
	"github.com/teamforge/collab/pkg/message"
)

type mockConn struct {
	id       string
	identity auth.Identity
	mu       sync.Mutex
	sent     []*OutEvent
	closed   bool
	done     chan struct{}
}

func newMockConn(id, userID string) *mockConn {
	return &mockConn{
		id:       id,
		identity: auth.Identity{UserID: userID, Name: "User " + userID},
		done:     make(chan struct{}),
	}
}

func (c *mockConn) ID() string {
	return c.id
}

func (c *mockConn) Identity() auth.Identity {
	return c.identity
}

func (c *mockConn) send(event *OutEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	c.sent = append(c.sent, event)
	return nil
}

func (c *mockConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

func (c *mockConn) readLoop() {
	<-c.done
}

func (c *mockConn) writeLoop() {
	<-c.done
}

func (c *mockConn) events(eventType string) []*OutEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*OutEvent
	for _, e := range c.sent {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (c *mockConn) lastError() (ErrorPayload, bool) {
	errs := c.events(EventError)
	if len(errs) == 0 {
		return ErrorPayload{}, false
	}
	payload, ok := errs[len(errs)-1].Body.(ErrorPayload)
	return payload, ok
}

// memStore is an in-memory message.Store. Timestamps are strictly
// increasing so ordering assertions are deterministic.
type memStore struct {
	mu        sync.Mutex
	messages  []message.Message
	seq       int
	appendErr error
}

func newMemStore() *memStore {
	return &memStore{}
}

func (s *memStore) Append(ctx context.Context, input message.CreateInput) (*message.Message, error) {
	input.Normalize()
	if err := input.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return nil, s.appendErr
	}

	s.seq++
	msg := message.Message{
		ID:        fmt.Sprintf("m%d", s.seq),
		ProjectID: input.ProjectID,
		Sender:    input.Sender,
		Content:   input.Content,
		Kind:      input.Kind,
		CreatedAt: time.Unix(0, int64(s.seq)).UTC(),
	}
	s.messages = append(s.messages, msg)
	return &msg, nil
}

func (s *memStore) ListRecent(ctx context.Context, projectID string, limit int) ([]message.Message, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []message.Message
	for _, msg := range s.messages {
		if msg.ProjectID == projectID {
			matched = append(matched, msg)
		}
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return append([]message.Message(nil), matched...), nil
}

func (s *memStore) MarkRead(ctx context.Context, messageID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages[i].ReadBy = append(s.messages[i].ReadBy,
				message.ReadReceipt{UserID: userID, ReadAt: time.Now().UTC()})
			return nil
		}
	}
	return message.ErrMessageNotFound
}

func (s *memStore) byProject(projectID string) []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []message.Message
	for _, msg := range s.messages {
		if msg.ProjectID == projectID {
			matched = append(matched, msg)
		}
	}
	return matched
}

func (s *memStore) failAppends(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendErr = err
}

// staticOracle answers membership from fixed rosters.
type staticOracle struct {
	mu       sync.Mutex
	projects map[string]map[string]struct{}
	delay    time.Duration
}

func newStaticOracle() *staticOracle {
	return &staticOracle{projects: make(map[string]map[string]struct{})}
}

func (o *staticOracle) addMember(projectID, userID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	roster := o.projects[projectID]
	if roster == nil {
		roster = make(map[string]struct{})
		o.projects[projectID] = roster
	}
	roster[userID] = struct{}{}
}

func (o *staticOracle) removeMember(projectID, userID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.projects[projectID], userID)
}

func (o *staticOracle) IsParticipant(ctx context.Context, projectID, userID string) (bool, error) {
	if o.delay > 0 {
		select {
		case <-time.After(o.delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	roster, ok := o.projects[projectID]
	if !ok {
		return false, membership.ErrProjectNotFound
	}
	_, ok = roster[userID]
	return ok, nil
}

type stubAuthenticator struct {
	identity auth.Identity
	ok       bool
}

func (a *stubAuthenticator) Authenticate(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	if !a.ok {
		w.WriteHeader(http.StatusUnauthorized)
	}
	return a.identity, a.ok
}
