package model

// TurnState is where a session's latest turn stands. Accepting and
// classifying input happen inside one Submit call, so only these states are
// ever observable.
type TurnState string

const (
	TurnIdle              TurnState = "idle"
	TurnAwaitingSynthesis TurnState = "awaiting_synthesis"
	TurnCompleted         TurnState = "completed"
)

// EventType distinguishes session notifications.
type EventType string

const (
	EventMessage   EventType = "message"
	EventComposing EventType = "composing"
)

// SessionEvent is pushed to subscribers whenever a message is appended or
// the composing flag flips.
type SessionEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Message   *Message  `json:"message,omitempty"`
	Composing bool      `json:"composing"`
}
