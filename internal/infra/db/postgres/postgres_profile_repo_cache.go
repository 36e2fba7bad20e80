package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"compat-assistant/internal/domain/model"
	"compat-assistant/internal/domain/ports/repository"
	"compat-assistant/internal/infra/metrics"
	red "compat-assistant/internal/infra/redis"
)

var _ repository.ProfileRepository = (*profileRepoCacheDecorator)(nil)

const profileCacheKey = "profile:shared"

// profileRepoCacheDecorator serves profile reads from Redis. The profile is
// read on every reply, writes are rare.
type profileRepoCacheDecorator struct {
	inner repository.ProfileRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewProfileRepoCacheDecorator(inner repository.ProfileRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.ProfileRepository {
	return &profileRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: logger}
}

func (d *profileRepoCacheDecorator) Get(ctx context.Context) (*model.UserProfile, error) {
	val, err := d.cache.Get(ctx, profileCacheKey)
	if err == nil {
		var p model.UserProfile
		if json.Unmarshal([]byte(val), &p) == nil {
			metrics.IncCacheRequest("profile", "hit")
			return &p, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		d.log.Warn().Err(err).Msg("profile cache read failed")
	}

	metrics.IncCacheRequest("profile", "miss")
	p, err := d.inner.Get(ctx)
	if err != nil {
		return nil, err
	}
	if bytes, err := json.Marshal(p); err == nil {
		if err := d.cache.Set(ctx, profileCacheKey, bytes, d.ttl); err != nil {
			d.log.Warn().Err(err).Msg("profile cache write failed")
		}
	}
	return p, nil
}

// Save writes through and drops the cached copy.
func (d *profileRepoCacheDecorator) Save(ctx context.Context, p *model.UserProfile) error {
	if err := d.inner.Save(ctx, p); err != nil {
		return err
	}
	if err := d.cache.Del(ctx, profileCacheKey); err != nil {
		d.log.Warn().Err(err).Msg("profile cache invalidation failed")
	}
	return nil
}
