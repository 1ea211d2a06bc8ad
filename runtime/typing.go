package runtime

import (
	"context"
	"conversation-engine/domain"
	"sync"
	"time"

	"github.com/google/uuid"
)

type typingKey struct {
	conversation uuid.UUID
	user         string
}

// TypingLimiter keeps the last accepted typing notification per user and conversation in memory.
type TypingLimiter struct {
	mu       sync.Mutex
	last     map[typingKey]time.Time
	cooldown time.Duration
	now      func() time.Time
}

func NewTypingLimiter(cooldown time.Duration, now func() time.Time) *TypingLimiter {
	if cooldown <= 0 {
		cooldown = domain.TypingCooldown
	}
	if now == nil {
		now = time.Now
	}
	return &TypingLimiter{last: make(map[typingKey]time.Time), cooldown: cooldown, now: now}
}

// Allow accepts the notification when the previous accepted one is at least one cooldown old.
func (l *TypingLimiter) Allow(_ context.Context, id uuid.UUID, userID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := typingKey{conversation: id, user: userID}
	if last, ok := l.last[key]; ok && now.Sub(last) < l.cooldown {
		return false, nil
	}
	l.last[key] = now
	l.sweep(now)
	return true, nil
}

// sweep drops expired entries once the map grows, they cannot block anything anymore.
func (l *TypingLimiter) sweep(now time.Time) {
	if len(l.last) < 1024 {
		return
	}
	for key, last := range l.last {
		if now.Sub(last) >= l.cooldown {
			delete(l.last, key)
		}
	}
}
