// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"compat-assistant/internal/assistant"
	"compat-assistant/internal/domain"
	"compat-assistant/internal/domain/model"
	"compat-assistant/internal/domain/ports/repository"
	"compat-assistant/internal/infra/logging"
	"compat-assistant/internal/infra/metrics"
)

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

// DefaultSessionTitle is used when a session is created without a title.
const DefaultSessionTitle = "New conversation"

// replyPersistTimeout bounds storage writes made from timer callbacks, which
// have no request context of their own.
const replyPersistTimeout = 10 * time.Second

// Listener receives session events in append order. It must not block and
// must not call Submit for the same session synchronously.
type Listener func(ev model.SessionEvent)

// SubmitResult reports what Submit did. Blank input is not an error, it is
// simply not accepted.
type SubmitResult struct {
	Accepted bool            `json:"accepted"`
	Message  *model.Message  `json:"message,omitempty"`
	State    model.TurnState `json:"state"`
}

// ChatUseCase is the conversation engine: the session history plus the
// per-turn lifecycle.
type ChatUseCase interface {
	CreateSession(ctx context.Context, title string) (*model.ChatSession, error)
	GetSession(ctx context.Context, sessionID string) (*model.ChatSession, error)
	ListSessions(ctx context.Context) ([]model.SessionSummary, error)
	Submit(ctx context.Context, sessionID, text string) (*SubmitResult, error)
	Subscribe(ctx context.Context, sessionID string, fn Listener) (unsubscribe func(), err error)
	IsComposing(sessionID string) bool
	GetProfile(ctx context.Context) (model.UserProfile, error)
	SetProfile(ctx context.Context, profile model.UserProfile) (model.UserProfile, error)
	// Close stops accepting submissions and waits for pending replies.
	Close(ctx context.Context) error
}

// SubmitLimiter decides whether a session may submit another turn now.
type SubmitLimiter interface {
	Allow(ctx context.Context, sessionID string) (bool, error)
}

type ChatOptions struct {
	SeedGreeting bool
	DevMode      bool
	// Limiter is optional; nil means unlimited.
	Limiter SubmitLimiter
}

type chatUC struct {
	sessions   repository.ChatSessionRepository
	profiles   repository.ProfileRepository
	tm         repository.TransactionManager
	classifier *assistant.Classifier
	synth      *assistant.Synthesizer
	sched      *TurnScheduler
	clock      Clock
	ids        *idGenerator
	opts       ChatOptions
	log        *zerolog.Logger

	mu     sync.Mutex
	live   map[string]*liveSession
	closed bool

	profileMu     sync.RWMutex
	profile       model.UserProfile
	profileLoaded bool
}

// liveSession is the in-process owner of one session's timeline. submitMu
// keeps a user message and its queued reply in the same order across
// concurrent submits. notifyMu serializes append+persist+notify so
// subscribers and storage see messages in timeline order; mu guards the
// session and listener set. refs, guarded by chatUC.mu, counts callers,
// subscribers and pending replies; at zero the session is dropped from
// memory and reloaded from storage on next use.
type liveSession struct {
	submitMu sync.Mutex
	notifyMu sync.Mutex
	refs     int

	mu        sync.Mutex
	session   *model.ChatSession
	listeners map[int]Listener
	nextID    int
}

func NewChatUseCase(
	sessions repository.ChatSessionRepository,
	profiles repository.ProfileRepository,
	tm repository.TransactionManager,
	classifier *assistant.Classifier,
	synth *assistant.Synthesizer,
	sched *TurnScheduler,
	clock Clock,
	opts ChatOptions,
	logger *zerolog.Logger,
) *chatUC {
	uc := &chatUC{
		sessions:   sessions,
		profiles:   profiles,
		tm:         tm,
		classifier: classifier,
		synth:      synth,
		sched:      sched,
		clock:      clock,
		ids:        newIDGenerator(clock),
		opts:       opts,
		log:        logger,
		live:       make(map[string]*liveSession),
	}
	sched.OnComposing(uc.publishComposing)
	return uc
}

func (c *chatUC) CreateSession(ctx context.Context, title string) (*model.ChatSession, error) {
	defer logging.TraceDuration(c.log, "ChatUC.CreateSession")()

	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultSessionTitle
	}

	now := c.clock.Now()
	s := model.NewChatSession(uuid.NewString(), title, now)
	if c.opts.SeedGreeting {
		s.Append(model.Message{
			ID:        c.ids.New(),
			Sender:    model.SenderAssistant,
			Text:      c.synth.Greeting(),
			CreatedAt: now,
			Domain:    model.DomainGeneral,
		})
	}

	err := c.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := c.sessions.Save(ctx, tx, s); err != nil {
			return err
		}
		for i := range s.Messages {
			if err := c.sessions.SaveMessage(ctx, tx, &s.Messages[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	metrics.IncSessionsCreated()
	logging.With(logging.WithSessID(ctx, s.ID), c.log).Info().Str("title", title).Msg("session created")
	return s.Clone(), nil
}

func (c *chatUC) GetSession(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	ls, err := c.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer c.release(ls)
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.session.Clone(), nil
}

// ListSessions returns summaries with the most recently active first.
func (c *chatUC) ListSessions(ctx context.Context) ([]model.SessionSummary, error) {
	stored, err := c.sessions.ListSummaries(ctx, repository.NoTX)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	byID := make(map[string]model.SessionSummary, len(stored))
	for _, s := range stored {
		byID[s.ID] = s
	}
	// live sessions are authoritative for anything this process touched
	c.mu.Lock()
	live := make([]*liveSession, 0, len(c.live))
	for _, ls := range c.live {
		live = append(live, ls)
	}
	c.mu.Unlock()
	for _, ls := range live {
		ls.mu.Lock()
		byID[ls.session.ID] = ls.session.Summary()
		ls.mu.Unlock()
	}

	out := make([]model.SessionSummary, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	SortSummaries(out)
	return out, nil
}

// SortSummaries orders by last activity, then creation time, then id, all descending.
func SortSummaries(s []model.SessionSummary) {
	sort.SliceStable(s, func(i, j int) bool {
		a, b := s[i], s[j]
		if !a.LastActivityAt.Equal(b.LastActivityAt) {
			return a.LastActivityAt.After(b.LastActivityAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

func (c *chatUC) Submit(ctx context.Context, sessionID, text string) (*SubmitResult, error) {
	defer logging.TraceDuration(c.log, "ChatUC.Submit")()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, domain.ErrClosed
	}

	ls, err := c.acquire(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IncTurnRejected("unknown_session")
		}
		return nil, err
	}
	defer c.release(ls)

	text = strings.TrimSpace(text)
	if text == "" {
		metrics.IncTurnRejected("empty")
		composing := c.sched.IsComposing(sessionID)
		ls.mu.Lock()
		state := ls.session.TurnState(composing)
		ls.mu.Unlock()
		return &SubmitResult{Accepted: false, State: state}, nil
	}

	log := logging.With(logging.WithSessID(ctx, sessionID), c.log)
	if c.opts.Limiter != nil {
		ok, err := c.opts.Limiter.Allow(ctx, sessionID)
		if err != nil {
			// fail open
			log.Warn().Err(err).Msg("rate limiter unavailable")
		} else if !ok {
			metrics.IncTurnRejected("rate_limited")
			return nil, domain.ErrRateLimited
		}
	}

	d := c.classifier.Classify(text)
	log.Debug().Str("domain", string(d)).Str("text", logging.Redact(text, c.opts.DevMode)).Msg("turn classified")

	ls.submitMu.Lock()
	stored := c.append(ctx, ls, model.Message{
		ID:        c.ids.New(),
		Sender:    model.SenderUser,
		Text:      text,
		CreatedAt: c.clock.Now(),
		Domain:    d,
	})
	c.retain(ls)
	c.sched.Schedule(sessionID, func(delay time.Duration) {
		defer c.release(ls)
		c.reply(ls, stored, delay)
	})
	ls.submitMu.Unlock()

	metrics.IncTurnSubmitted(string(d))
	log.Info().Str("message_id", stored.ID).Str("domain", string(d)).Msg("turn accepted")
	return &SubmitResult{Accepted: true, Message: &stored, State: model.TurnAwaitingSynthesis}, nil
}

// reply runs when the turn's timer fires. The profile is read now, not at
// submit time.
func (c *chatUC) reply(ls *liveSession, userMsg model.Message, delay time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), replyPersistTimeout)
	defer cancel()
	ctx = logging.WithSessID(ctx, userMsg.SessionID)

	var profile *model.UserProfile
	if p := c.currentProfile(ctx); !p.IsEmpty() {
		profile = &p
	}
	r := c.synth.Synthesize(userMsg.Domain, profile)

	stored := c.append(ctx, ls, model.Message{
		ID:        c.ids.New(),
		Sender:    model.SenderAssistant,
		Text:      r.Text,
		CreatedAt: c.clock.Now(),
		Domain:    userMsg.Domain,
		Trace:     r.Trace,
	})

	metrics.ObserveReply(string(stored.Domain), stored.Trace != nil)
	metrics.ObserveReplyDelay(delay)
	logging.With(ctx, c.log).Info().
		Str("message_id", stored.ID).
		Str("in_reply_to", userMsg.ID).
		Str("domain", string(stored.Domain)).
		Bool("traced", stored.Trace != nil).
		Dur("delay", delay).
		Msg("reply appended")
}

// append adds msg to the live timeline, persists it and notifies listeners.
// The live session stays authoritative when persistence fails.
func (c *chatUC) append(ctx context.Context, ls *liveSession, msg model.Message) model.Message {
	ls.notifyMu.Lock()
	defer ls.notifyMu.Unlock()

	ls.mu.Lock()
	stored := ls.session.Append(msg)
	listeners := ls.snapshotListeners()
	ls.mu.Unlock()

	toSave := stored.Clone()
	if err := c.sessions.SaveMessage(ctx, repository.NoTX, &toSave); err != nil {
		logging.With(ctx, c.log).Error().Err(err).Str("message_id", stored.ID).Msg("failed to persist message")
	}

	ev := model.SessionEvent{Type: model.EventMessage, SessionID: stored.SessionID}
	for _, l := range listeners {
		m := stored.Clone()
		ev.Message = &m
		l(ev)
	}
	return stored
}

func (c *chatUC) publishComposing(sessionID string, composing bool) {
	metrics.SetComposing(composing)

	c.mu.Lock()
	ls := c.live[sessionID]
	c.mu.Unlock()
	if ls == nil {
		return
	}

	ls.notifyMu.Lock()
	defer ls.notifyMu.Unlock()
	ls.mu.Lock()
	listeners := ls.snapshotListeners()
	ls.mu.Unlock()

	ev := model.SessionEvent{Type: model.EventComposing, SessionID: sessionID, Composing: composing}
	for _, l := range listeners {
		l(ev)
	}
}

func (c *chatUC) Subscribe(ctx context.Context, sessionID string, fn Listener) (func(), error) {
	if fn == nil {
		return nil, domain.ErrInvalidArgument
	}
	ls, err := c.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	ls.mu.Lock()
	id := ls.nextID
	ls.nextID++
	ls.listeners[id] = fn
	ls.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			ls.mu.Lock()
			delete(ls.listeners, id)
			ls.mu.Unlock()
			c.release(ls)
		})
	}, nil
}

func (c *chatUC) IsComposing(sessionID string) bool {
	return c.sched.IsComposing(sessionID)
}

func (c *chatUC) GetProfile(ctx context.Context) (model.UserProfile, error) {
	if err := c.ensureProfile(ctx); err != nil {
		return model.UserProfile{}, err
	}
	c.profileMu.RLock()
	defer c.profileMu.RUnlock()
	return c.profile.Clone(), nil
}

// SetProfile takes effect for the next reply whose timer fires, including
// replies already waiting.
func (c *chatUC) SetProfile(ctx context.Context, profile model.UserProfile) (model.UserProfile, error) {
	p := profile.Normalize()
	if err := c.profiles.Save(ctx, &p); err != nil {
		return model.UserProfile{}, fmt.Errorf("save profile: %w", err)
	}

	c.profileMu.Lock()
	c.profile = p.Clone()
	c.profileLoaded = true
	c.profileMu.Unlock()

	logging.With(ctx, c.log).Info().
		Bool("os", p.OperatingSystem != "").
		Bool("database", p.Database != "").
		Int("web_servers", len(p.WebServers)).
		Msg("profile updated")
	return p, nil
}

func (c *chatUC) ensureProfile(ctx context.Context) error {
	c.profileMu.RLock()
	loaded := c.profileLoaded
	c.profileMu.RUnlock()
	if loaded {
		return nil
	}

	p, err := c.profiles.Get(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		p = &model.UserProfile{IncludeInReasoning: model.DefaultReasoningFlags()}
	case err != nil:
		return fmt.Errorf("load profile: %w", err)
	}

	c.profileMu.Lock()
	if !c.profileLoaded {
		c.profile = p.Clone()
		c.profileLoaded = true
	}
	c.profileMu.Unlock()
	return nil
}

// currentProfile never fails: a storage error means replies go out without
// a trace rather than not at all.
func (c *chatUC) currentProfile(ctx context.Context) model.UserProfile {
	p, err := c.GetProfile(ctx)
	if err != nil {
		logging.With(ctx, c.log).Warn().Err(err).Msg("profile unavailable, replying without it")
		return model.UserProfile{}
	}
	return p
}

func (c *chatUC) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.log.Info().Int("pending", c.sched.Pending()).Msg("waiting for pending replies")
	return c.sched.Drain(ctx)
}

// acquire returns the live session with a reference held, reading it from
// storage when it is not in memory. Pair every acquire with release.
func (c *chatUC) acquire(ctx context.Context, sessionID string) (*liveSession, error) {
	c.mu.Lock()
	if ls, ok := c.live[sessionID]; ok {
		ls.refs++
		c.mu.Unlock()
		return ls, nil
	}
	c.mu.Unlock()

	s, err := c.sessions.FindByID(ctx, repository.NoTX, sessionID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ls, ok := c.live[sessionID]
	if !ok {
		ls = &liveSession{session: s, listeners: map[int]Listener{}}
		c.live[sessionID] = ls
	}
	ls.refs++
	return ls, nil
}

func (c *chatUC) retain(ls *liveSession) {
	c.mu.Lock()
	ls.refs++
	c.mu.Unlock()
}

// release drops a reference. The last one evicts the session from memory;
// everything it holds has already been written to storage.
func (c *chatUC) release(ls *liveSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ls.refs--
	if ls.refs > 0 {
		return
	}
	ls.mu.Lock()
	id := ls.session.ID
	ls.mu.Unlock()
	if c.live[id] == ls {
		delete(c.live, id)
	}
}

func (ls *liveSession) snapshotListeners() []Listener {
	ids := make([]int, 0, len(ls.listeners))
	for id := range ls.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, ls.listeners[id])
	}
	return out
}
