package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/deckhand/pkg/domain"
)

// Describe renders a command definition as a Markdown document: one table
// per stage followed by the pipeline chart.
func Describe(name string, def domain.CommandDefinition, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", name))
	sb.WriteString(fmt.Sprintf("%d stage(s).\n\n", len(def.Stages)))

	for i, stage := range def.Stages {
		sb.WriteString(fmt.Sprintf("## Stage %d: %s\n\n", i, stage.Name))
		if stage.LeaderElection {
			sb.WriteString("Runs leader election before its actions.\n\n")
		}
		if len(stage.Actions) == 0 {
			sb.WriteString("_No actions._\n\n")
			continue
		}
		sb.WriteString("| # | Action | Type | Value | Timeout | Retries |\n")
		sb.WriteString("|---|---|---|---|---|---|\n")
		for j, action := range stage.Actions {
			timeout := "-"
			if action.Timeout > 0 {
				timeout = action.TimeoutDuration().String()
			}
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | `%s` | %s | %d |\n",
				j+1, action.Name, action.Type.Normalize(), escapeCell(action.Value), timeout, action.Retries))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Pipeline\n\n```mermaid\n")
	sb.WriteString(GenerateMermaid(name, def, overlay))
	sb.WriteString("```\n")
	return sb.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "`", "'")
	return strings.ReplaceAll(s, "\n", " ")
}
