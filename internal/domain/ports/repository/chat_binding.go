package repository

import (
	"context"
)

// ChatBindingRepository remembers which session an external chat (a
// Telegram chat, for one) is talking in. Get returns domain.ErrNotFound for
// unbound chats.
type ChatBindingRepository interface {
	GetBinding(ctx context.Context, chatID int64) (sessionID string, err error)
	SetBinding(ctx context.Context, chatID int64, sessionID string) error
}
