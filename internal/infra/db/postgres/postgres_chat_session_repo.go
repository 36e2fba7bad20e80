// File: internal/infra/db/postgres/postgres_chat_session_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"compat-assistant/internal/domain"
	"compat-assistant/internal/domain/model"
	"compat-assistant/internal/domain/ports/repository"
	"compat-assistant/internal/infra/security"
)

var _ repository.ChatSessionRepository = (*ChatSessionRepo)(nil)

// ChatSessionRepo stores sessions in chat_sessions and their timelines in
// chat_messages. When an encryption service is set, message text is sealed
// at rest.
type ChatSessionRepo struct {
	pool          *pgxpool.Pool
	encryptionSvc *security.EncryptionService
}

func NewChatSessionRepo(pool *pgxpool.Pool, encryptionSvc *security.EncryptionService) *ChatSessionRepo {
	return &ChatSessionRepo{pool: pool, encryptionSvc: encryptionSvc}
}

func (r *ChatSessionRepo) Save(ctx context.Context, qx repository.Tx, s *model.ChatSession) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO chat_sessions (id, title, created_at, last_activity_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
  title = EXCLUDED.title,
  last_activity_at = GREATEST(chat_sessions.last_activity_at, EXCLUDED.last_activity_at);`
	if _, err := ex.Exec(ctx, q, s.ID, s.Title, s.CreatedAt, s.LastActivityAt); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// SaveMessage inserts the message and advances the session in one statement.
func (r *ChatSessionRepo) SaveMessage(ctx context.Context, qx repository.Tx, m *model.Message) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}

	text, encrypted, err := r.seal(m.ID, m.Text)
	if err != nil {
		return err
	}
	var trace []byte
	if m.Trace != nil {
		if trace, err = json.Marshal(m.Trace); err != nil {
			return fmt.Errorf("encode trace: %w", err)
		}
	}

	const q = `
WITH ins AS (
  INSERT INTO chat_messages (id, session_id, seq, sender, text, encrypted, domain, trace, created_at)
  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
  RETURNING session_id, created_at
)
UPDATE chat_sessions s
   SET message_count = s.message_count + 1,
       last_activity_at = GREATEST(s.last_activity_at, ins.created_at)
  FROM ins
 WHERE s.id = ins.session_id;`
	_, err = ex.Exec(ctx, q,
		m.ID, m.SessionID, m.Seq, string(m.Sender), text, encrypted, string(m.Domain), trace, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("save message: %w", mapPgError(err))
	}
	return nil
}

func (r *ChatSessionRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.ChatSession, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}

	const qs = `SELECT id, title, created_at, last_activity_at FROM chat_sessions WHERE id = $1;`
	var s model.ChatSession
	if err := ex.QueryRow(ctx, qs, id).Scan(&s.ID, &s.Title, &s.CreatedAt, &s.LastActivityAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	const qm = `
SELECT id, seq, sender, text, encrypted, domain, trace, created_at
  FROM chat_messages
 WHERE session_id = $1
 ORDER BY seq ASC;`
	rows, err := ex.Query(ctx, qm, id)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	s.Messages = make([]model.Message, 0, 8)
	for rows.Next() {
		var (
			m         model.Message
			sender    string
			dom       string
			encrypted bool
			trace     []byte
		)
		if err := rows.Scan(&m.ID, &m.Seq, &sender, &m.Text, &encrypted, &dom, &trace, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.SessionID = s.ID
		m.Sender = model.Sender(sender)
		m.Domain = model.Domain(dom)
		if m.Text, err = r.open(m.ID, m.Text, encrypted); err != nil {
			return nil, err
		}
		if len(trace) > 0 {
			var tr model.ExplanationTrace
			if err := json.Unmarshal(trace, &tr); err != nil {
				return nil, fmt.Errorf("decode trace: %w", err)
			}
			m.Trace = &tr
		}
		s.Messages = append(s.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return &s, nil
}

func (r *ChatSessionRepo) ListSummaries(ctx context.Context, qx repository.Tx) ([]model.SessionSummary, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT s.id, s.title, s.created_at, s.last_activity_at, s.message_count,
       m.id, m.text, m.encrypted
  FROM chat_sessions s
  LEFT JOIN LATERAL (
        SELECT id, text, encrypted
          FROM chat_messages
         WHERE session_id = s.id
         ORDER BY seq DESC
         LIMIT 1
  ) m ON TRUE;`
	rows, err := ex.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	out := make([]model.SessionSummary, 0)
	for rows.Next() {
		var (
			sum       model.SessionSummary
			lastID    *string
			lastText  *string
			encrypted *bool
		)
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.CreatedAt, &sum.LastActivityAt, &sum.MessageCount, &lastID, &lastText, &encrypted); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		if lastID != nil && lastText != nil {
			text, err := r.open(*lastID, *lastText, encrypted != nil && *encrypted)
			if err != nil {
				return nil, err
			}
			sum.LastMessagePreview = model.Preview(text, model.PreviewLength)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (r *ChatSessionRepo) CountUserMessagesByDomain(ctx context.Context, qx repository.Tx) (map[model.Domain]int, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	const q = `SELECT domain, COUNT(*) FROM chat_messages WHERE sender = 'user' GROUP BY domain;`
	rows, err := ex.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("count queries: %w", err)
	}
	defer rows.Close()

	out := make(map[model.Domain]int)
	for rows.Next() {
		var dom string
		var n int
		if err := rows.Scan(&dom, &n); err != nil {
			return nil, err
		}
		out[model.Domain(dom)] = n
	}
	return out, rows.Err()
}

func (r *ChatSessionRepo) seal(id, text string) (string, bool, error) {
	if r.encryptionSvc == nil {
		return text, false, nil
	}
	sealed, err := r.encryptionSvc.Seal(id, text)
	if err != nil {
		return "", false, fmt.Errorf("encrypt message: %w", err)
	}
	return sealed, true, nil
}

func (r *ChatSessionRepo) open(id, text string, encrypted bool) (string, error) {
	if !encrypted {
		return text, nil
	}
	if r.encryptionSvc == nil {
		return "", fmt.Errorf("message %s is encrypted but no key is configured", id)
	}
	plain, err := r.encryptionSvc.Open(id, text)
	if err != nil {
		return "", fmt.Errorf("decrypt message %s: %w", id, err)
	}
	return plain, nil
}
