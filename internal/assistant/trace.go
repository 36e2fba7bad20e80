package assistant

import (
	"fmt"
	"strings"

	"compat-assistant/internal/domain/model"
)

// BuildTrace explains how a recommendation for d was narrowed down. It quotes
// only profile fields whose reasoning flag is on and never invents values.
func BuildTrace(d model.Domain, p model.UserProfile) model.ExplanationTrace {
	fields := includedFields(p)
	scope := "an unconstrained setup"
	if len(fields) > 0 {
		values := make([]string, 0, len(fields))
		for _, f := range fields {
			values = append(values, f.value)
		}
		scope = strings.Join(values, ", ")
	}

	profileDesc := "Analyzed user profile configuration (no profile fields included in reasoning)"
	if len(fields) > 0 {
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			parts = append(parts, f.label+": "+f.value)
		}
		profileDesc = fmt.Sprintf("Analyzed user profile configuration (%s)", strings.Join(parts, ", "))
	}

	descriptions := map[model.FilterStage]string{
		model.StageProfileMatch:        profileDesc,
		model.StageCompatibilityCheck:  fmt.Sprintf("Checked %s compatibility matrix against %s", d.Label(), scope),
		model.StagePerformanceFilter:   fmt.Sprintf("Applied performance optimization filters for workloads on %s", scope),
		model.StageSecurityFilter:      fmt.Sprintf("Verified security requirements and compliance standards for %s", scope),
		model.StagePreferenceWeighting: fmt.Sprintf("Applied user preference weighting (reliability > performance > cost) across %s", scope),
		model.StageFinalSelection:      fmt.Sprintf("Selected the %s recommendation that fits %s", d.Label(), scope),
	}

	steps := make([]model.FilterStep, 0, len(model.FilterStages))
	for _, stage := range model.FilterStages {
		steps = append(steps, model.FilterStep{
			Stage:       stage,
			Description: descriptions[stage],
			DependsOn:   stage.Inputs(),
		})
	}
	return model.ExplanationTrace{Steps: steps}
}

type profileField struct {
	label string
	value string
}

func includedFields(p model.UserProfile) []profileField {
	var out []profileField
	if v := p.IncludedOS(); v != "" {
		out = append(out, profileField{label: "OS", value: v})
	}
	if v := p.IncludedDatabase(); v != "" {
		out = append(out, profileField{label: "Database", value: v})
	}
	if ws := p.IncludedWebServers(); len(ws) > 0 {
		out = append(out, profileField{label: "Web Servers", value: strings.Join(ws, ", ")})
	}
	return out
}
