package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"compat-assistant/internal/domain"
	"compat-assistant/internal/domain/ports/repository"
)

var _ repository.ChatBindingRepository = (*ChatBindingRepo)(nil)

// ChatBindingRepo keeps chat-to-session bindings in Redis so a chat resumes
// its conversation after a restart. Bindings expire with the sessions.
type ChatBindingRepo struct {
	client RedisClient
	ttl    time.Duration
}

func NewChatBindingRepo(client RedisClient, ttl time.Duration) *ChatBindingRepo {
	return &ChatBindingRepo{client: client, ttl: ttl}
}

func bindingKey(chatID int64) string {
	return fmt.Sprintf("chat_binding:%d", chatID)
}

func (r *ChatBindingRepo) SetBinding(ctx context.Context, chatID int64, sessionID string) error {
	return r.client.Set(ctx, bindingKey(chatID), sessionID, r.ttl)
}

func (r *ChatBindingRepo) GetBinding(ctx context.Context, chatID int64) (string, error) {
	id, err := r.client.Get(ctx, bindingKey(chatID))
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return id, nil
}
