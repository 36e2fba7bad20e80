package telegram

import (
	"fmt"
	"strings"

	"compat-assistant/internal/domain/model"
	"compat-assistant/internal/usecase"
)

func helpText() string {
	var sb strings.Builder
	sb.WriteString("Ask me about OS, database or web server compatibility.\n\n")
	sb.WriteString("Commands:\n/new [title] - start a new conversation\n/profile - show your system profile\n/stats - usage totals (admin only)\n/help\n\nTry:\n")
	for _, qa := range model.DefaultQuickActions() {
		sb.WriteString("- " + qa.Text + "\n")
	}
	return sb.String()
}

// formatReply renders a message with its explanation trace as a numbered list.
func formatReply(m model.Message) string {
	if m.Trace == nil || len(m.Trace.Steps) == 0 {
		return m.Text
	}
	var sb strings.Builder
	sb.WriteString(m.Text)
	sb.WriteString("\n\nHow I got there:")
	for i, s := range m.Trace.Steps {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, s.Description)
	}
	return sb.String()
}

func formatProfile(p model.UserProfile) string {
	if p.IsEmpty() {
		return "No system profile is set."
	}
	line := func(label, value string, used bool) string {
		if value == "" {
			value = "any"
		}
		if !used {
			value += " (not used in answers)"
		}
		return label + ": " + value + "\n"
	}
	return line("OS", p.OperatingSystem, p.IncludeInReasoning.OS) +
		line("Database", p.Database, p.IncludeInReasoning.Database) +
		line("Web Servers", strings.Join(p.WebServers, ", "), p.IncludeInReasoning.WebServers)
}

func formatStats(o *usecase.Overview) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Sessions: %d\nQueries: %d\n", o.Sessions, o.TotalQueries)
	for _, d := range model.Domains {
		fmt.Fprintf(&sb, "  %s: %d\n", d.Label(), o.QueriesByDomain[d])
	}
	return sb.String()
}
