package redis

import (
	"context"
	"conversation-engine/domain"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// typingKeyPrefix typing:{conversation_id}:{user_id}
const typingKeyPrefix = "typing:"

// TypingLimiter shares the typing cooldown between engine instances.
// The key expires after one cooldown, so its presence means the user is still cooling down.
type TypingLimiter struct {
	rdb      *redis.Client
	cooldown time.Duration
}

func NewTypingLimiter(rdb *redis.Client, cooldown time.Duration) *TypingLimiter {
	if cooldown <= 0 {
		cooldown = domain.TypingCooldown
	}
	return &TypingLimiter{rdb: rdb, cooldown: cooldown}
}

func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func buildTypingKey(id uuid.UUID, userID string) string {
	return fmt.Sprintf("%s%s:%s", typingKeyPrefix, id, userID)
}

func (l *TypingLimiter) Allow(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, buildTypingKey(id, userID), time.Now().Unix(), l.cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check typing cooldown: %w", err)
	}
	return ok, nil
}
