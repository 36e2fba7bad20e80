package model

import (
	"time"
)

// Domain is the topic a message was classified into.
type Domain string

const (
	DomainOS        Domain = "os"
	DomainDatabase  Domain = "database"
	DomainWebServer Domain = "webserver"
	DomainGeneral   Domain = "general"
)

// Domains lists every domain in a stable order (used by stats and metrics).
var Domains = []Domain{DomainOS, DomainDatabase, DomainWebServer, DomainGeneral}

func (d Domain) Valid() bool {
	switch d {
	case DomainOS, DomainDatabase, DomainWebServer, DomainGeneral:
		return true
	}
	return false
}

// Label is the human readable name used inside reply text.
func (d Domain) Label() string {
	switch d {
	case DomainOS:
		return "operating system"
	case DomainDatabase:
		return "database"
	case DomainWebServer:
		return "web server"
	default:
		return "general"
	}
}

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is one entry in a session timeline. It is never modified after it
// has been appended to a ChatSession.
type Message struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	Seq       int64             `json:"seq"`
	Sender    Sender            `json:"sender"`
	Text      string            `json:"text"`
	CreatedAt time.Time         `json:"created_at"`
	Domain    Domain            `json:"domain,omitempty"`
	Trace     *ExplanationTrace `json:"trace,omitempty"`
}

func (m Message) IsUser() bool { return m.Sender == SenderUser }

// Clone returns a copy that shares nothing mutable with m.
func (m Message) Clone() Message {
	if m.Trace != nil {
		t := m.Trace.Clone()
		m.Trace = &t
	}
	return m
}
