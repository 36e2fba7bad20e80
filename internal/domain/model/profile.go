package model

import "strings"

// ReasoningFlags selects which profile fields may be quoted in explanations.
type ReasoningFlags struct {
	OS         bool `json:"os" yaml:"os"`
	Database   bool `json:"database" yaml:"database"`
	WebServers bool `json:"web_servers" yaml:"web_servers"`
}

// UserProfile is the user's declared configuration. An empty field means the
// axis is unconstrained.
type UserProfile struct {
	OperatingSystem    string         `json:"operating_system,omitempty" yaml:"operating_system"`
	Database           string         `json:"database,omitempty" yaml:"database"`
	WebServers         []string       `json:"web_servers,omitempty" yaml:"web_servers"`
	IncludeInReasoning ReasoningFlags `json:"include_in_reasoning" yaml:"include_in_reasoning"`
}

// DefaultReasoningFlags includes every field, which is what a freshly
// configured profile does.
func DefaultReasoningFlags() ReasoningFlags {
	return ReasoningFlags{OS: true, Database: true, WebServers: true}
}

// IsEmpty reports whether no axis is constrained. A nil profile is empty.
func (p *UserProfile) IsEmpty() bool {
	if p == nil {
		return true
	}
	return p.OperatingSystem == "" && p.Database == "" && len(p.WebServers) == 0
}

// Normalize trims values, drops blank web servers and removes duplicates
// while keeping the first-seen order.
func (p UserProfile) Normalize() UserProfile {
	out := UserProfile{
		OperatingSystem:    strings.TrimSpace(p.OperatingSystem),
		Database:           strings.TrimSpace(p.Database),
		IncludeInReasoning: p.IncludeInReasoning,
	}
	seen := make(map[string]struct{}, len(p.WebServers))
	for _, ws := range p.WebServers {
		ws = strings.TrimSpace(ws)
		if ws == "" {
			continue
		}
		key := strings.ToLower(ws)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out.WebServers = append(out.WebServers, ws)
	}
	return out
}

func (p UserProfile) Clone() UserProfile {
	if p.WebServers != nil {
		p.WebServers = append([]string(nil), p.WebServers...)
	}
	return p
}

// IncludedOS returns the OS if it is set and allowed in reasoning.
func (p UserProfile) IncludedOS() string {
	if !p.IncludeInReasoning.OS {
		return ""
	}
	return p.OperatingSystem
}

func (p UserProfile) IncludedDatabase() string {
	if !p.IncludeInReasoning.Database {
		return ""
	}
	return p.Database
}

func (p UserProfile) IncludedWebServers() []string {
	if !p.IncludeInReasoning.WebServers {
		return nil
	}
	return p.WebServers
}
