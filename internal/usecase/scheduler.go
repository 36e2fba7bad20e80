// File: internal/usecase/scheduler.go
package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Clock abstracts wall time and timers so tests can drive them by hand.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type systemClock struct{}

// SystemClock is the real clock backed by the time package.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Rand is the randomness the scheduler needs. *math/rand/v2.Rand satisfies it.
type Rand interface {
	Int64N(n int64) int64
}

// LatencyWindow bounds the simulated thinking delay.
type LatencyWindow struct {
	Min time.Duration
	Max time.Duration
}

func DefaultLatencyWindow() LatencyWindow {
	return LatencyWindow{Min: time.Second, Max: 2 * time.Second}
}

func (w LatencyWindow) pick(r Rand) time.Duration {
	if w.Max <= w.Min {
		return w.Min
	}
	return w.Min + time.Duration(r.Int64N(int64(w.Max-w.Min)+1))
}

// Job is the work run when a turn's timer fires. delay is the latency that
// was waited before it ran.
type Job func(delay time.Duration)

// ComposingFunc is told when a key starts or stops having pending work.
type ComposingFunc func(key string, composing bool)

// TurnScheduler runs jobs after a randomized delay, one timer per key at a
// time. Jobs for the same key run strictly in the order they were scheduled;
// different keys are independent. Scheduled jobs are never dropped or
// cancelled.
type TurnScheduler struct {
	clock  Clock
	window LatencyWindow
	log    *zerolog.Logger

	mu          sync.Mutex
	rnd         Rand
	lanes       map[string]*lane
	keyLocks    map[string]*keyLock
	pending     int
	drainers    []chan struct{}
	onComposing ComposingFunc
}

// lane exists for a key exactly while a timer is pending for it.
type lane struct {
	queue []Job
}

// keyLock orders one key's composing notifications. It is always taken
// before mu and lives only while someone holds or waits for it.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewTurnScheduler(clock Clock, rnd Rand, window LatencyWindow, logger *zerolog.Logger) *TurnScheduler {
	schedLog := logger.With().Str("component", "TurnScheduler").Logger()
	return &TurnScheduler{
		clock:    clock,
		window:   window,
		log:      &schedLog,
		rnd:      rnd,
		lanes:    make(map[string]*lane),
		keyLocks: make(map[string]*keyLock),
	}
}

func (s *TurnScheduler) lockKey(key string) *keyLock {
	s.mu.Lock()
	kl := s.keyLocks[key]
	if kl == nil {
		kl = &keyLock{}
		s.keyLocks[key] = kl
	}
	kl.refs++
	s.mu.Unlock()

	kl.mu.Lock()
	return kl
}

func (s *TurnScheduler) unlockKey(key string, kl *keyLock) {
	kl.mu.Unlock()

	s.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(s.keyLocks, key)
	}
	s.mu.Unlock()
}

// OnComposing installs the composing listener. Call it before scheduling.
func (s *TurnScheduler) OnComposing(fn ComposingFunc) {
	s.mu.Lock()
	s.onComposing = fn
	s.mu.Unlock()
}

// Schedule queues job for key. If key is idle its timer starts now,
// otherwise job waits until every earlier job for key has run.
func (s *TurnScheduler) Schedule(key string, job Job) {
	kl := s.lockKey(key)
	defer s.unlockKey(key, kl)

	s.mu.Lock()
	s.pending++
	if ln, busy := s.lanes[key]; busy {
		ln.queue = append(ln.queue, job)
		depth := len(ln.queue)
		s.mu.Unlock()
		s.log.Debug().Str("session_id", key).Int("queued", depth).Msg("turn queued behind pending reply")
		return
	}
	s.lanes[key] = &lane{}
	s.startLocked(key, job)
	cb := s.onComposing
	s.mu.Unlock()

	if cb != nil {
		cb(key, true)
	}
}

func (s *TurnScheduler) startLocked(key string, job Job) {
	delay := s.window.pick(s.rnd)
	s.log.Trace().Str("session_id", key).Dur("delay", delay).Msg("timer started")
	s.clock.AfterFunc(delay, func() { s.fire(key, job, delay) })
}

func (s *TurnScheduler) fire(key string, job Job, delay time.Duration) {
	s.run(key, job, delay)

	kl := s.lockKey(key)
	defer s.unlockKey(key, kl)

	s.mu.Lock()
	s.pending--
	ln := s.lanes[key]
	if ln != nil && len(ln.queue) > 0 {
		next := ln.queue[0]
		ln.queue = ln.queue[1:]
		s.startLocked(key, next)
		s.mu.Unlock()
		return
	}
	delete(s.lanes, key)
	if s.pending == 0 {
		for _, ch := range s.drainers {
			close(ch)
		}
		s.drainers = nil
	}
	cb := s.onComposing
	s.mu.Unlock()

	if cb != nil {
		cb(key, false)
	}
}

// run keeps the lane moving even if job panics.
func (s *TurnScheduler) run(key string, job Job, delay time.Duration) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error().Str("session_id", key).Interface("panic", rec).Msg("turn job panicked")
		}
	}()
	job(delay)
}

// IsComposing reports whether key has a reply pending.
func (s *TurnScheduler) IsComposing(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.lanes[key]
	return busy
}

// Pending is the number of jobs scheduled but not yet run, across all keys.
func (s *TurnScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Drain blocks until every scheduled job has run or ctx is done. It does not
// cancel anything.
func (s *TurnScheduler) Drain(ctx context.Context) error {
	s.mu.Lock()
	if s.pending == 0 {
		s.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	s.drainers = append(s.drainers, ch)
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
