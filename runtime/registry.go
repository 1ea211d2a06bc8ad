package runtime

import (
	"conversation-engine/contract"
	"sync"
)

type session struct {
	userID string
	sink   contract.EventSink
}

// Registry tracks the live sessions of connected users.
// A user may hold several sessions, each with its own sink.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]session             // map session -> user and sink
	users    map[string]map[string]struct{} // map user -> sessions
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]session),
		users:    make(map[string]map[string]struct{}),
	}
}

// GetSinksForUsers resolves the users into the sinks of all their live sessions.
// Users without a session are skipped, the same user listed twice is only served once.
func (r *Registry) GetSinksForUsers(userIDs []string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sinks []contract.EventSink
	seen := make(map[string]struct{}, len(userIDs))
	for _, userID := range userIDs {
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		for sessionID := range r.users[userID] {
			sinks = append(sinks, r.sessions[sessionID].sink)
		}
	}
	return sinks
}

// Subscribe registers a session of the user. Subscribing an existing session id replaces it.
func (r *Registry) Subscribe(sessionID, userID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, ok := r.sessions[sessionID]; ok {
		r.detach(sessionID, previous.userID)
	}
	r.sessions[sessionID] = session{userID: userID, sink: sink}
	if _, ok := r.users[userID]; !ok {
		r.users[userID] = make(map[string]struct{})
	}
	r.users[userID][sessionID] = struct{}{}
}

// Unsubscribe removes the session and leaves no empty user entry behind.
func (r *Registry) Unsubscribe(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(r.sessions, sessionID)
	r.detach(sessionID, s.userID)
}

func (r *Registry) detach(sessionID, userID string) {
	if sessions, ok := r.users[userID]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(r.users, userID)
		}
	}
}
