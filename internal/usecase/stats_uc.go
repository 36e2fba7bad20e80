package usecase

import (
	"context"
	"fmt"

	"compat-assistant/internal/domain/model"
	"compat-assistant/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

// Overview is the statistics panel: session count and user queries per domain.
type Overview struct {
	Sessions        int                  `json:"sessions"`
	QueriesByDomain map[model.Domain]int `json:"queries_by_domain"`
	TotalQueries    int                  `json:"total_queries"`
}

type StatsUseCase interface {
	Totals(ctx context.Context) (*Overview, error)
}

type statsUC struct {
	sessions repository.ChatSessionRepository

	log *zerolog.Logger
}

func NewStatsUseCase(sessions repository.ChatSessionRepository, logger *zerolog.Logger) *statsUC {
	return &statsUC{sessions: sessions, log: logger}
}

// Totals reports every domain, including ones with no queries yet.
func (s *statsUC) Totals(ctx context.Context) (*Overview, error) {
	summaries, err := s.sessions.ListSummaries(ctx, repository.NoTX)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	counts, err := s.sessions.CountUserMessagesByDomain(ctx, repository.NoTX)
	if err != nil {
		return nil, fmt.Errorf("count queries: %w", err)
	}

	o := &Overview{Sessions: len(summaries), QueriesByDomain: make(map[model.Domain]int, len(model.Domains))}
	for _, d := range model.Domains {
		o.QueriesByDomain[d] = counts[d]
		o.TotalQueries += counts[d]
	}
	return o, nil
}
