package model

import (
	"time"
	"unicode/utf8"
)

// PreviewLength is the rune budget of SessionSummary.LastMessagePreview.
const PreviewLength = 80

// ChatSession is the aggregate root for one conversation. Messages only ever
// grow by Append.
type ChatSession struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Messages       []Message `json:"messages"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// SessionSummary is the history-list view of a session.
type SessionSummary struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	LastMessagePreview string    `json:"last_message_preview"`
	MessageCount       int       `json:"message_count"`
	CreatedAt          time.Time `json:"created_at"`
	LastActivityAt     time.Time `json:"last_activity_at"`
}

func NewChatSession(id, title string, now time.Time) *ChatSession {
	return &ChatSession{
		ID:             id,
		Title:          title,
		Messages:       make([]Message, 0, 8),
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// Append adds m to the timeline and returns the stored copy. The message is
// bound to the session, numbered, and its timestamp is clamped so that
// creation times never go backwards.
func (s *ChatSession) Append(m Message) Message {
	m.SessionID = s.ID
	m.Seq = int64(len(s.Messages)) + 1
	if n := len(s.Messages); n > 0 {
		if last := s.Messages[n-1].CreatedAt; m.CreatedAt.Before(last) {
			m.CreatedAt = last
		}
	}
	s.Messages = append(s.Messages, m)
	s.Touch(m.CreatedAt)
	return m.Clone()
}

// Touch moves LastActivityAt forward; it never moves it back.
func (s *ChatSession) Touch(at time.Time) {
	if at.After(s.LastActivityAt) {
		s.LastActivityAt = at
	}
}

func (s *ChatSession) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// TurnState reports Completed once the latest user turn has its reply.
// Pending replies are tracked by the scheduler, not the session.
func (s *ChatSession) TurnState(composing bool) TurnState {
	if composing {
		return TurnAwaitingSynthesis
	}
	last, ok := s.LastMessage()
	if !ok || last.IsUser() {
		return TurnIdle
	}
	for _, m := range s.Messages {
		if m.IsUser() {
			return TurnCompleted
		}
	}
	return TurnIdle
}

func (s *ChatSession) Summary() SessionSummary {
	sum := SessionSummary{
		ID:             s.ID,
		Title:          s.Title,
		MessageCount:   len(s.Messages),
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
	}
	if last, ok := s.LastMessage(); ok {
		sum.LastMessagePreview = Preview(last.Text, PreviewLength)
	}
	return sum
}

// Clone deep-copies the session so callers can read it without locks.
func (s *ChatSession) Clone() *ChatSession {
	cp := *s
	cp.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		cp.Messages[i] = m.Clone()
	}
	return &cp
}

// Preview cuts text to at most n runes, marking the cut with an ellipsis.
func Preview(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	r := []rune(text)
	return string(r[:n-1]) + "…"
}
