//go:build !integration

package usecase

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"compat-assistant/internal/assistant"
	"compat-assistant/internal/domain/model"
	"compat-assistant/internal/infra/db/memory"
)

// -----------------------------
// Clock
// -----------------------------

// fakeClock only moves when Advance is called. Timers fire synchronously
// inside Advance, earliest first.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	seq     int
	f       func()
	stopped bool
}

func newFakeClock(start time.Time) *fakeClock { return &fakeClock{now: start} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward by d, firing every timer that comes due,
// including timers started by callbacks along the way.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		sort.SliceStable(c.timers, func(i, j int) bool {
			if !c.timers[i].at.Equal(c.timers[j].at) {
				return c.timers[i].at.Before(c.timers[j].at)
			}
			return c.timers[i].seq < c.timers[j].seq
		})
		var next *fakeTimer
		if len(c.timers) > 0 && !c.timers[0].at.After(target) {
			next = c.timers[0]
			c.timers = c.timers[1:]
			c.now = next.at
		}
		c.mu.Unlock()

		if next == nil {
			break
		}
		if !next.stopped {
			next.f()
		}
	}

	c.mu.Lock()
	c.now = target
	c.mu.Unlock()
}

// -----------------------------
// Randomness
// -----------------------------

// seqRand hands out the given values in order, then repeats the last one.
type seqRand struct {
	mu   sync.Mutex
	vals []int64
}

func (r *seqRand) Int64N(n int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := int64(0)
	if len(r.vals) > 0 {
		v = r.vals[0]
		if len(r.vals) > 1 {
			r.vals = r.vals[1:]
		}
	}
	if v >= n {
		return n - 1
	}
	return v
}

type firstRand struct{}

func (firstRand) IntN(int) int { return 0 }

// -----------------------------
// Harness
// -----------------------------

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

type harness struct {
	clock    *fakeClock
	sessions *memory.ChatSessionRepo
	profiles *memory.ProfileRepo
	sched    *TurnScheduler
	uc       *chatUC
}

var testWindow = LatencyWindow{Min: time.Second, Max: 2 * time.Second}

func testBank() *assistant.Bank {
	return assistant.NewBank("hello there", "which product do you mean?", map[model.Domain][]string{
		model.DomainOS:        {"os reply"},
		model.DomainDatabase:  {"database reply"},
		model.DomainWebServer: {"web server reply"},
	})
}

// newHarness builds an engine whose delays are Min plus the given offsets.
func newHarness(t *testing.T, seedGreeting bool, delays ...time.Duration) *harness {
	t.Helper()
	vals := make([]int64, len(delays))
	for i, d := range delays {
		vals[i] = int64(d)
	}
	clock := newFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	log := newTestLogger()
	h := &harness{
		clock:    clock,
		sessions: memory.NewChatSessionRepo(),
		profiles: memory.NewProfileRepo(),
		sched:    NewTurnScheduler(clock, &seqRand{vals: vals}, testWindow, log),
	}
	h.uc = NewChatUseCase(
		h.sessions, h.profiles, memory.NewTxManager(),
		assistant.NewClassifier(assistant.DefaultLexicon()),
		assistant.NewSynthesizer(testBank(), firstRand{}),
		h.sched, clock, ChatOptions{SeedGreeting: seedGreeting}, log,
	)
	return h
}

func (h *harness) newSession(t *testing.T) string {
	t.Helper()
	s, err := h.uc.CreateSession(context.Background(), "test")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s.ID
}

func (h *harness) messages(t *testing.T, id string) []model.Message {
	t.Helper()
	s, err := h.uc.GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	return s.Messages
}

// liveCount is the number of sessions the engine holds in memory.
func (h *harness) liveCount() int {
	h.uc.mu.Lock()
	defer h.uc.mu.Unlock()
	return len(h.uc.live)
}

// recorder collects events delivered to a subscriber.
type recorder struct {
	mu     sync.Mutex
	events []model.SessionEvent
}

func (r *recorder) listen(ev model.SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []model.SessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.SessionEvent(nil), r.events...)
}
