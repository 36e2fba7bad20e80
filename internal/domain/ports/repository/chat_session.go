package repository

import (
	"context"

	"compat-assistant/internal/domain/model"
)

// -----------------------------
// Chat Sessions
// -----------------------------

// ChatSessionRepository persists sessions and their append-only timelines.
// Implementations return domain.ErrNotFound for unknown ids.
type ChatSessionRepository interface {
	// Save upserts the session header (title, timestamps). Messages are written by SaveMessage.
	Save(ctx context.Context, qx Tx, session *model.ChatSession) error
	// SaveMessage appends msg and advances the owning session's last activity.
	SaveMessage(ctx context.Context, qx Tx, msg *model.Message) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.ChatSession, error)
	// ListSummaries returns every session summary in no particular order.
	ListSummaries(ctx context.Context, qx Tx) ([]model.SessionSummary, error)
	// CountUserMessagesByDomain counts user queries per classified domain.
	CountUserMessagesByDomain(ctx context.Context, qx Tx) (map[model.Domain]int, error)
}
