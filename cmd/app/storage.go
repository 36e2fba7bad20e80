package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"compat-assistant/internal/config"
	"compat-assistant/internal/domain/ports/repository"
	"compat-assistant/internal/infra/db/memory"
	pg "compat-assistant/internal/infra/db/postgres"
	red "compat-assistant/internal/infra/redis"
	"compat-assistant/internal/infra/security"
)

// storage is the repository set picked by storage.driver, plus the shared
// redis client when one is configured.
type storage struct {
	sessions   repository.ChatSessionRepository
	profiles   repository.ProfileRepository
	tm         repository.TransactionManager
	bindings   repository.ChatBindingRepository
	redis      red.RedisClient
	limiter    *red.SubmitLimiter
	collectors []func()
	closers    []func()
}

func (s *storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStorage(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*storage, error) {
	st := &storage{}

	if cfg.Redis.URL != "" {
		c, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		st.closers = append(st.closers, func() { _ = c.Close() })
		st.redis = c
		if cfg.Chat.SubmitLimit > 0 {
			st.limiter = red.NewSubmitLimiter(red.NewRateLimiter(c), cfg.Chat.SubmitLimit, cfg.Chat.SubmitWindow)
		}

		st.bindings = red.NewChatBindingRepo(c, cfg.Redis.TTL)

		if cfg.Storage.Driver == config.DriverRedis {
			st.sessions = red.NewChatSessionStore(c)
			st.profiles = red.NewProfileStore(c)
			st.tm = red.NewTxManager()
		}
	}

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		st.sessions = memory.NewChatSessionRepo()
		st.profiles = memory.NewProfileRepo()
		st.tm = memory.NewTxManager()
	case config.DriverPostgres:
		pool, err := pg.NewPgxPool(ctx, cfg.Database)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		st.closers = append(st.closers, pool.Close)
		st.collectors = append(st.collectors, func() { pg.ReportPoolStats(pool) })

		var encSvc *security.EncryptionService
		if cfg.Security.EncryptionKey != "" {
			encSvc, err = security.NewEncryptionService(cfg.Security.EncryptionKey)
			if err != nil {
				st.Close()
				return nil, fmt.Errorf("encryption: %w", err)
			}
			logger.Info().Msg("message text is encrypted at rest")
		}

		st.sessions = pg.NewChatSessionRepo(pool, encSvc)
		st.profiles = pg.NewProfileRepo(pool)
		if st.redis != nil {
			st.profiles = pg.NewProfileRepoCacheDecorator(st.profiles, st.redis, cfg.Redis.TTL, logger)
		}
		st.tm = pg.NewTxManager(pool)
	}
	if st.bindings == nil {
		st.bindings = memory.NewChatBindingRepo()
	}
	return st, nil
}
