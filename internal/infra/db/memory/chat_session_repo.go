// Package memory is the process-local storage backend. Nothing survives a
// restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v4"

	"compat-assistant/internal/domain"
	"compat-assistant/internal/domain/model"
	"compat-assistant/internal/domain/ports/repository"
)

// Compile-time checks
var (
	_ repository.ChatSessionRepository = (*ChatSessionRepo)(nil)
	_ repository.ProfileRepository     = (*ProfileRepo)(nil)
	_ repository.TransactionManager    = (*TxManager)(nil)
	_ repository.ChatBindingRepository = (*ChatBindingRepo)(nil)
)

type ChatSessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]*model.ChatSession
}

func NewChatSessionRepo() *ChatSessionRepo {
	return &ChatSessionRepo{sessions: make(map[string]*model.ChatSession)}
}

func (r *ChatSessionRepo) Save(_ context.Context, _ repository.Tx, s *model.ChatSession) error {
	if s == nil || s.ID == "" {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[s.ID]; ok {
		cur.Title = s.Title
		cur.Touch(s.LastActivityAt)
		return nil
	}
	header := *s
	header.Messages = nil
	r.sessions[s.ID] = &header
	return nil
}

func (r *ChatSessionRepo) SaveMessage(_ context.Context, _ repository.Tx, msg *model.Message) error {
	if msg == nil || msg.ID == "" {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[msg.SessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", msg.SessionID, domain.ErrNotFound)
	}
	for _, m := range s.Messages {
		if m.ID == msg.ID {
			return domain.ErrAlreadyExists
		}
	}
	s.Messages = append(s.Messages, msg.Clone())
	s.Touch(msg.CreatedAt)
	return nil
}

func (r *ChatSessionRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.ChatSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.Clone(), nil
}

func (r *ChatSessionRepo) ListSummaries(_ context.Context, _ repository.Tx) ([]model.SessionSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.SessionSummary, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Summary())
	}
	return out, nil
}

func (r *ChatSessionRepo) CountUserMessagesByDomain(_ context.Context, _ repository.Tx) (map[model.Domain]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[model.Domain]int)
	for _, s := range r.sessions {
		for _, m := range s.Messages {
			if m.IsUser() {
				counts[m.Domain]++
			}
		}
	}
	return counts, nil
}

// ProfileRepo holds the single shared profile.
type ProfileRepo struct {
	mu      sync.RWMutex
	profile *model.UserProfile
}

func NewProfileRepo() *ProfileRepo { return &ProfileRepo{} }

func (r *ProfileRepo) Get(_ context.Context) (*model.UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.profile == nil {
		return nil, domain.ErrNotFound
	}
	p := r.profile.Clone()
	return &p, nil
}

func (r *ProfileRepo) Save(_ context.Context, p *model.UserProfile) error {
	if p == nil {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := p.Clone()
	r.profile = &cp
	return nil
}

// TxManager runs fn directly; the memory backend has no transactions.
type TxManager struct{}

func NewTxManager() *TxManager { return &TxManager{} }

func (*TxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// ChatBindingRepo keeps chat-to-session bindings for the process lifetime.
type ChatBindingRepo struct {
	mu       sync.RWMutex
	bindings map[int64]string
}

func NewChatBindingRepo() *ChatBindingRepo {
	return &ChatBindingRepo{bindings: make(map[int64]string)}
}

func (r *ChatBindingRepo) GetBinding(_ context.Context, chatID int64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bindings[chatID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return id, nil
}

func (r *ChatBindingRepo) SetBinding(_ context.Context, chatID int64, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[chatID] = sessionID
	return nil
}
