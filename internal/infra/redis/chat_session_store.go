package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v4"

	"compat-assistant/internal/domain"
	"compat-assistant/internal/domain/model"
	"compat-assistant/internal/domain/ports/repository"
)

var (
	_ repository.ChatSessionRepository = (*ChatSessionStore)(nil)
	_ repository.TransactionManager    = (*TxManager)(nil)
)

const (
	sessionIndexKey  = "chat_sessions"
	domainCountsKey  = "chat_stats:queries_by_domain"
	maxWatchAttempts = 5
)

// sessionHeader is everything about a session except its messages, kept
// under one key so listing never touches message lists.
type sessionHeader struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	CreatedAt          time.Time `json:"created_at"`
	LastActivityAt     time.Time `json:"last_activity_at"`
	MessageCount       int       `json:"message_count"`
	LastMessagePreview string    `json:"last_message_preview"`
}

func (h sessionHeader) summary() model.SessionSummary {
	return model.SessionSummary{
		ID:                 h.ID,
		Title:              h.Title,
		LastMessagePreview: h.LastMessagePreview,
		MessageCount:       h.MessageCount,
		CreatedAt:          h.CreatedAt,
		LastActivityAt:     h.LastActivityAt,
	}
}

// ChatSessionStore keeps sessions in Redis: a JSON header per session, a
// list of JSON messages, and a sorted set of ids scored by last activity.
// Session keys never expire.
type ChatSessionStore struct {
	client *redClient
}

func NewChatSessionStore(client *redClient) *ChatSessionStore {
	return &ChatSessionStore{client: client}
}

func headerKey(id string) string   { return "chat_session:" + id }
func messagesKey(id string) string { return "chat_session:" + id + ":messages" }

func (s *ChatSessionStore) Save(ctx context.Context, _ repository.Tx, session *model.ChatSession) error {
	if session == nil || session.ID == "" {
		return domain.ErrInvalidArgument
	}
	key := headerKey(session.ID)
	return s.update(ctx, key, func(h *sessionHeader, exists bool) (func(redis.Pipeliner), error) {
		if !exists {
			*h = sessionHeader{ID: session.ID, CreatedAt: session.CreatedAt, LastActivityAt: session.LastActivityAt}
		}
		h.Title = session.Title
		if session.LastActivityAt.After(h.LastActivityAt) {
			h.LastActivityAt = session.LastActivityAt
		}
		return func(p redis.Pipeliner) {}, nil
	})
}

func (s *ChatSessionStore) SaveMessage(ctx context.Context, _ repository.Tx, msg *model.Message) error {
	if msg == nil || msg.ID == "" {
		return domain.ErrInvalidArgument
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	key := headerKey(msg.SessionID)
	return s.update(ctx, key, func(h *sessionHeader, exists bool) (func(redis.Pipeliner), error) {
		if !exists {
			return nil, fmt.Errorf("session %s: %w", msg.SessionID, domain.ErrNotFound)
		}
		h.MessageCount++
		h.LastMessagePreview = model.Preview(msg.Text, model.PreviewLength)
		if msg.CreatedAt.After(h.LastActivityAt) {
			h.LastActivityAt = msg.CreatedAt
		}
		return func(p redis.Pipeliner) {
			p.RPush(ctx, messagesKey(msg.SessionID), data)
			if msg.IsUser() {
				p.HIncrBy(ctx, domainCountsKey, string(msg.Domain), 1)
			}
		}, nil
	})
}

// update applies fn to the header under WATCH so concurrent writers to the
// same session retry instead of losing updates.
func (s *ChatSessionStore) update(ctx context.Context, key string, fn func(h *sessionHeader, exists bool) (func(redis.Pipeliner), error)) error {
	txf := func(tx *redis.Tx) error {
		var h sessionHeader
		exists := true
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			exists = false
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &h); err != nil {
				return fmt.Errorf("decode session header: %w", err)
			}
		}

		extra, err := fn(&h, exists)
		if err != nil {
			return err
		}
		data, err := json.Marshal(h)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, 0)
			p.ZAdd(ctx, sessionIndexKey, &redis.Z{Score: float64(h.LastActivityAt.UnixNano()), Member: h.ID})
			extra(p)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchAttempts; i++ {
		err := s.client.cli.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update %s: too much contention", key)
}

func (s *ChatSessionStore) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.ChatSession, error) {
	raw, err := s.client.cli.Get(ctx, headerKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var h sessionHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("decode session header: %w", err)
	}

	items, err := s.client.cli.LRange(ctx, messagesKey(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	session := &model.ChatSession{
		ID:             h.ID,
		Title:          h.Title,
		Messages:       make([]model.Message, 0, len(items)),
		CreatedAt:      h.CreatedAt,
		LastActivityAt: h.LastActivityAt,
	}
	for _, item := range items {
		var m model.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		session.Messages = append(session.Messages, m)
	}
	return session, nil
}

// ListSummaries also prunes index entries whose header is gone.
func (s *ChatSessionStore) ListSummaries(ctx context.Context, _ repository.Tx) ([]model.SessionSummary, error) {
	ids, err := s.client.cli.ZRevRange(ctx, sessionIndexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []model.SessionSummary{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = headerKey(id)
	}
	vals, err := s.client.cli.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]model.SessionSummary, 0, len(ids))
	var stale []interface{}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var h sessionHeader
		if err := json.Unmarshal([]byte(str), &h); err != nil {
			return nil, fmt.Errorf("decode session header: %w", err)
		}
		out = append(out, h.summary())
	}
	if len(stale) > 0 {
		_ = s.client.cli.ZRem(ctx, sessionIndexKey, stale...).Err()
	}
	return out, nil
}

func (s *ChatSessionStore) CountUserMessagesByDomain(ctx context.Context, _ repository.Tx) (map[model.Domain]int, error) {
	raw, err := s.client.cli.HGetAll(ctx, domainCountsKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[model.Domain]int, len(raw))
	for k, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("bad count for %s: %w", k, err)
		}
		out[model.Domain(k)] = n
	}
	return out, nil
}

// TxManager runs fn directly. Each store write is atomic on its own.
type TxManager struct{}

func NewTxManager() *TxManager { return &TxManager{} }

func (*TxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}
