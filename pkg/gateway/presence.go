package gateway

import (
	"sync"
	"time"
)

// DefaultTypingTTL is the inactivity window after which a typing entry is
// treated as expired. Clients re-announce while the user keeps typing, so a
// crashed client can leave an entry behind at most this long.
const DefaultTypingTTL = 5 * time.Second

// PresenceTracker is ephemeral per-process bookkeeping of who is online and
// who is typing in which project. Nothing here is persisted; state is empty
// at process start and entries are removed the moment their connection
// goes away.
type PresenceTracker struct {
	mu     sync.RWMutex
	online map[string]string
	typing map[string]map[string]time.Time
	ttl    time.Duration
	now    func() time.Time
}

func NewPresenceTracker(ttl time.Duration) *PresenceTracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &PresenceTracker{
		online: make(map[string]string),
		typing: make(map[string]map[string]time.Time),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (t *PresenceTracker) SetOnline(userID, connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.online[connID] = userID
}

// ClearOnline removes the presence entry keyed by the connection and
// returns the user it belonged to. It is safe to call for an unknown
// connection.
func (t *PresenceTracker) ClearOnline(connID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	userID, ok := t.online[connID]
	delete(t.online, connID)
	return userID, ok
}

func (t *PresenceTracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, u := range t.online {
		if u == userID {
			return true
		}
	}
	return false
}

func (t *PresenceTracker) StartTyping(projectID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	users := t.typing[projectID]
	if users == nil {
		users = make(map[string]time.Time)
		t.typing[projectID] = users
	}
	users[userID] = t.now()
}

// StopTyping removes the typing entry and reports whether one was active.
func (t *PresenceTracker) StopTyping(projectID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	users, ok := t.typing[projectID]
	if !ok {
		return false
	}
	at, ok := users[userID]
	if !ok {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.typing, projectID)
	}
	return t.now().Sub(at) < t.ttl
}

// TypingUsers returns the users currently typing in the project. Entries
// past the inactivity window are expired and pruned on the way out.
func (t *PresenceTracker) TypingUsers(projectID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	users, ok := t.typing[projectID]
	if !ok {
		return nil
	}

	now := t.now()
	var active []string
	for userID, at := range users {
		if now.Sub(at) >= t.ttl {
			delete(users, userID)
			continue
		}
		active = append(active, userID)
	}
	if len(users) == 0 {
		delete(t.typing, projectID)
	}
	return active
}
