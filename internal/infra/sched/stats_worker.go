package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"compat-assistant/internal/infra/metrics"
	"compat-assistant/internal/usecase"
)

// StatsWorker periodically publishes storage-wide session totals as gauges.
// Extra collectors (the database pool reporter, for one) run on the same tick.
type StatsWorker struct {
	interval   time.Duration
	statsUC    usecase.StatsUseCase
	collectors []func()
	log        *zerolog.Logger
}

func NewStatsWorker(interval time.Duration, statsUC usecase.StatsUseCase, logger *zerolog.Logger, collectors ...func()) *StatsWorker {
	statsLog := logger.With().Str("component", "StatsWorker").Logger()
	return &StatsWorker{
		interval:   interval,
		statsUC:    statsUC,
		collectors: collectors,
		log:        &statsLog,
	}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting stats worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.collect(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping stats worker")
			return ctx.Err()
		case <-ticker.C:
			w.collect(ctx)
		}
	}
}

func (w *StatsWorker) collect(ctx context.Context) {
	for _, fn := range w.collectors {
		fn()
	}
	o, err := w.statsUC.Totals(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("stats worker error")
		}
		return
	}
	metrics.SetSessionsTotal(o.Sessions)
	counts := make(map[string]int, len(o.QueriesByDomain))
	for d, n := range o.QueriesByDomain {
		counts[string(d)] = n
	}
	metrics.SetQueriesByDomain(counts)
	w.log.Debug().Int("sessions", o.Sessions).Int("queries", o.TotalQueries).Msg("stats collected")
}
