//go:build !integration

package assistant

import (
	"strings"
	"testing"

	"compat-assistant/internal/domain/model"
)

// fixedRand always picks the same index (clamped to n).
type fixedRand struct{ idx int }

func (r fixedRand) IntN(n int) int {
	if r.idx >= n {
		return n - 1
	}
	return r.idx
}

func testBank() *Bank {
	return NewBank("hello", "which product?", map[model.Domain][]string{
		model.DomainOS:        {"os-a", "os-b"},
		model.DomainDatabase:  {"db-a", "db-b", "db-c"},
		model.DomainWebServer: {"web-a"},
	})
}

func TestSynthesize(t *testing.T) {
	profile := &model.UserProfile{
		OperatingSystem:    "Ubuntu 22.04 LTS",
		IncludeInReasoning: model.DefaultReasoningFlags(),
	}

	t.Run("general gets the clarifying prompt without trace", func(t *testing.T) {
		s := NewSynthesizer(testBank(), fixedRand{})
		r := s.Synthesize(model.DomainGeneral, profile)
		if r.Text != "which product?" || r.Trace != nil {
			t.Errorf("unexpected reply %+v", r)
		}
	})

	t.Run("picks from the domain templates", func(t *testing.T) {
		s := NewSynthesizer(testBank(), fixedRand{idx: 2})
		r := s.Synthesize(model.DomainDatabase, nil)
		if r.Text != "db-c" {
			t.Errorf("expected db-c, got %q", r.Text)
		}
		if r.Trace != nil {
			t.Error("no profile should mean no trace")
		}
	})

	t.Run("text is one of the known templates", func(t *testing.T) {
		s := NewSynthesizer(testBank(), fixedRand{idx: 1})
		r := s.Synthesize(model.DomainOS, nil)
		if r.Text != "os-a" && r.Text != "os-b" {
			t.Errorf("unexpected text %q", r.Text)
		}
	})

	t.Run("non-empty profile attaches a full trace", func(t *testing.T) {
		s := NewSynthesizer(testBank(), fixedRand{})
		r := s.Synthesize(model.DomainWebServer, profile)
		if r.Trace == nil {
			t.Fatal("expected a trace")
		}
		if r.Trace.Len() != len(model.FilterStages) {
			t.Fatalf("expected %d steps, got %d", len(model.FilterStages), r.Trace.Len())
		}
		for i, st := range r.Trace.Steps {
			if st.Stage != model.FilterStages[i] {
				t.Errorf("step %d stage %s, want %s", i, st.Stage, model.FilterStages[i])
			}
		}
	})

	t.Run("empty profile pointer means no trace", func(t *testing.T) {
		s := NewSynthesizer(testBank(), fixedRand{})
		r := s.Synthesize(model.DomainOS, &model.UserProfile{IncludeInReasoning: model.DefaultReasoningFlags()})
		if r.Trace != nil {
			t.Error("empty profile should not produce a trace")
		}
	})

	t.Run("empty template set degrades to the clarifying prompt", func(t *testing.T) {
		bank := NewBank("hello", "which product?", map[model.Domain][]string{})
		s := NewSynthesizer(bank, fixedRand{})
		r := s.Synthesize(model.DomainOS, profile)
		if r.Text != "which product?" || r.Trace != nil {
			t.Errorf("unexpected fallback reply %+v", r)
		}
	})
}

func TestSynthesizeScenarioUbuntuMySQL(t *testing.T) {
	c := NewClassifier(DefaultLexicon())
	d := c.Classify("Is MySQL compatible with my setup?")
	if d != model.DomainDatabase {
		t.Fatalf("expected database, got %s", d)
	}

	profile := &model.UserProfile{
		OperatingSystem:    "Ubuntu 22.04 LTS",
		IncludeInReasoning: model.ReasoningFlags{OS: true},
	}
	r := NewSynthesizer(testBank(), fixedRand{}).Synthesize(d, profile)
	if r.Trace == nil {
		t.Fatal("expected a trace")
	}
	first := r.Trace.Steps[0].Description
	if !strings.Contains(first, "OS: Ubuntu 22.04 LTS") {
		t.Errorf("first step should mention the OS, got %q", first)
	}
	for _, st := range r.Trace.Steps {
		if strings.Contains(st.Description, "Database:") {
			t.Errorf("step %s mentions an unset database: %q", st.Stage, st.Description)
		}
	}
}
