//go:build !integration

package postgres

import (
	"context"
	"time"

	"compat-assistant/internal/domain/model"
	red "compat-assistant/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerProfileRepo mocks the database repository that the profile decorator wraps.
type mockInnerProfileRepo struct {
	GetFunc  func(ctx context.Context) (*model.UserProfile, error)
	SaveFunc func(ctx context.Context, p *model.UserProfile) error
}

func (m *mockInnerProfileRepo) Get(ctx context.Context) (*model.UserProfile, error) {
	return m.GetFunc(ctx)
}
func (m *mockInnerProfileRepo) Save(ctx context.Context, p *model.UserProfile) error {
	return m.SaveFunc(ctx, p)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Close() error { return m.CloseFunc() }
