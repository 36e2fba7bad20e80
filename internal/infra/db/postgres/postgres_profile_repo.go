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
)

var _ repository.ProfileRepository = (*ProfileRepo)(nil)

// ProfileRepo keeps the single shared profile as one JSONB row.
type ProfileRepo struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

func (r *ProfileRepo) Get(ctx context.Context) (*model.UserProfile, error) {
	const q = `SELECT data FROM user_profile WHERE id = 1;`
	var data []byte
	if err := r.pool.QueryRow(ctx, q).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var p model.UserProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

func (r *ProfileRepo) Save(ctx context.Context, p *model.UserProfile) error {
	if p == nil {
		return domain.ErrInvalidArgument
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	const q = `
INSERT INTO user_profile (id, data, updated_at)
VALUES (1, $1, NOW())
ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW();`
	if _, err := r.pool.Exec(ctx, q, data); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}
