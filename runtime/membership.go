package runtime

import (
	"conversation-engine/domain/conversation"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type Set map[uuid.UUID]struct{}

// MembershipIndex maps users to the conversations they are active in.
// It is derived from conversation states and can be rebuilt from the event log at any time.
type MembershipIndex struct {
	mu    sync.RWMutex
	users map[string]Set
}

func NewMembershipIndex() *MembershipIndex {
	return &MembershipIndex{users: make(map[string]Set)}
}

// Sync aligns the index with the participants of one conversation state.
func (m *MembershipIndex) Sync(c *conversation.Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID, p := range c.Participants {
		conversations, ok := m.users[userID]
		if p.Active() {
			if !ok {
				conversations = make(Set)
				m.users[userID] = conversations
			}
			conversations[c.ID] = struct{}{}
			continue
		}
		if ok {
			delete(conversations, c.ID)
			if len(conversations) == 0 {
				delete(m.users, userID)
			}
		}
	}
}

// ConversationsOf returns the conversations the user is an active member of, sorted.
func (m *MembershipIndex) ConversationsOf(userID string) []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make([]uuid.UUID, 0, len(m.users[userID]))
	for id := range m.users[userID] {
		res = append(res, id)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].String() < res[j].String() })
	return res
}
