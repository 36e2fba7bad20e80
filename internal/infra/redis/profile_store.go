package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"compat-assistant/internal/domain"
	"compat-assistant/internal/domain/model"
	"compat-assistant/internal/domain/ports/repository"
)

var _ repository.ProfileRepository = (*ProfileStore)(nil)

const profileKey = "chat_profile"

// ProfileStore keeps the shared profile as one JSON value without expiry.
type ProfileStore struct {
	client *redClient
}

func NewProfileStore(client *redClient) *ProfileStore {
	return &ProfileStore{client: client}
}

func (s *ProfileStore) Get(ctx context.Context) (*model.UserProfile, error) {
	raw, err := s.client.Get(ctx, profileKey)
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var p model.UserProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

func (s *ProfileStore) Save(ctx context.Context, p *model.UserProfile) error {
	if p == nil {
		return domain.ErrInvalidArgument
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return s.client.Set(ctx, profileKey, data, 0)
}
