//go:build !integration

package assistant

import (
	"strings"
	"testing"

	"compat-assistant/internal/domain/model"
)

func TestBuildTraceOmitsExcludedFields(t *testing.T) {
	p := model.UserProfile{
		OperatingSystem: "Windows Server 2022",
		Database:        "MySQL 8.0",
		WebServers:      []string{"Microsoft IIS 10", "Tomcat 10"},
		IncludeInReasoning: model.ReasoningFlags{
			OS:         true,
			Database:   false,
			WebServers: true,
		},
	}
	tr := BuildTrace(model.DomainDatabase, p)

	if len(tr.Steps) != 6 {
		t.Fatalf("expected 6 steps, got %d", len(tr.Steps))
	}
	for _, st := range tr.Steps {
		if strings.Contains(st.Description, "MySQL 8.0") || strings.Contains(st.Description, "Database:") {
			t.Errorf("step %s mentions an excluded field: %q", st.Stage, st.Description)
		}
	}
	want := "Analyzed user profile configuration (OS: Windows Server 2022, Web Servers: Microsoft IIS 10, Tomcat 10)"
	if tr.Steps[0].Description != want {
		t.Errorf("first step = %q, want %q", tr.Steps[0].Description, want)
	}
}

func TestBuildTraceAllFlagsOff(t *testing.T) {
	p := model.UserProfile{OperatingSystem: "CentOS 8", Database: "Redis 7"}
	tr := BuildTrace(model.DomainOS, p)

	for _, st := range tr.Steps {
		if strings.Contains(st.Description, "CentOS 8") || strings.Contains(st.Description, "Redis 7") {
			t.Errorf("step %s leaks a field with its flag off: %q", st.Stage, st.Description)
		}
	}
	if !strings.Contains(tr.Steps[0].Description, "no profile fields") {
		t.Errorf("unexpected first step %q", tr.Steps[0].Description)
	}
}

func TestBuildTraceDependencies(t *testing.T) {
	tr := BuildTrace(model.DomainWebServer, model.UserProfile{Database: "PostgreSQL 15", IncludeInReasoning: model.DefaultReasoningFlags()})
	for _, st := range tr.Steps {
		want := st.Stage.Inputs()
		if len(st.DependsOn) != len(want) {
			t.Errorf("stage %s depends on %v, want %v", st.Stage, st.DependsOn, want)
		}
	}
}
