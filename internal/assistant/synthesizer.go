package assistant

import (
	"sync"

	"compat-assistant/internal/domain/model"
)

// Rand is the randomness the synthesizer needs. *math/rand/v2.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

// Reply is a synthesized assistant answer.
type Reply struct {
	Text  string
	Trace *model.ExplanationTrace
}

// Synthesizer picks reply text for a domain and, when a profile is known,
// explains the pick.
type Synthesizer struct {
	bank *Bank

	mu  sync.Mutex
	rnd Rand
}

func NewSynthesizer(bank *Bank, rnd Rand) *Synthesizer {
	return &Synthesizer{bank: bank, rnd: rnd}
}

// Synthesize never fails. General questions, and domains whose template set
// is empty, get the clarifying prompt without a trace.
func (s *Synthesizer) Synthesize(d model.Domain, profile *model.UserProfile) Reply {
	if d == model.DomainGeneral {
		return Reply{Text: s.bank.Clarify()}
	}
	candidates := s.bank.Templates(d)
	if len(candidates) == 0 {
		return Reply{Text: s.bank.Clarify()}
	}

	s.mu.Lock()
	idx := s.rnd.IntN(len(candidates))
	s.mu.Unlock()

	reply := Reply{Text: candidates[idx]}
	if !profile.IsEmpty() {
		tr := BuildTrace(d, *profile)
		reply.Trace = &tr
	}
	return reply
}

// Greeting is the text seeded into new sessions.
func (s *Synthesizer) Greeting() string { return s.bank.Greeting() }
