package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/deckhand/pkg/domain"
)

// Overlay marks progress of a staged request on the chart.
type Overlay struct {
	// CompletedStage is the last stage recorded for the request; -1 for none.
	CompletedStage int
}

// GenerateMermaid produces a Mermaid flowchart of a command pipeline.
// Stages become subgraphs chained in order; action shapes follow their type:
// - Infra: [[Subroutine]]
// - Hook: [/Parallelogram/]
// - Shell: [Rectangle]
// Addon hooks wrap the pipeline as ((Circles)).
func GenerateMermaid(name string, def domain.CommandDefinition, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	before := sanitizeMermaidID(name + "-AddonsBefore")
	after := sanitizeMermaidID(name + "-AddonsAfter")
	sb.WriteString(fmt.Sprintf("    %s((\"AddonsBefore\"))\n", before))

	prev := before
	for i, stage := range def.Stages {
		stageID := sanitizeMermaidID(fmt.Sprintf("%s-%d-%s", name, i, stage.Name))
		label := fmt.Sprintf("%d. %s", i, stage.Name)
		if stage.LeaderElection {
			label += " (leader election)"
		}
		sb.WriteString(fmt.Sprintf("    subgraph %s[\"%s\"]\n", stageID, escapeLabel(label)))
		for j, action := range stage.Actions {
			actionID := sanitizeMermaidID(fmt.Sprintf("%s-%d-%d-%s", name, i, j, action.Name))
			opener, closer := "[", "]"
			switch action.Type.Normalize() {
			case domain.ActionInfra:
				opener, closer = "[[", "]]"
			case domain.ActionHook:
				opener, closer = "[/", "/]"
			}
			text := action.Name
			if action.Timeout > 0 {
				text = fmt.Sprintf("%s <br/> ⏱️ %s", text, action.TimeoutDuration())
			}
			if action.Retries > 0 {
				text = fmt.Sprintf("%s <br/> ↻ %d", text, action.Retries)
			}
			sb.WriteString(fmt.Sprintf("        %s%s\"%s\"%s\n", actionID, opener, escapeLabel(text), closer))
		}
		sb.WriteString("    end\n")
		sb.WriteString(fmt.Sprintf("    %s --> %s\n", prev, stageID))
		prev = stageID
	}

	sb.WriteString(fmt.Sprintf("    %s((\"AddonsAfter\"))\n", after))
	sb.WriteString(fmt.Sprintf("    %s --> %s\n", prev, after))

	if overlay != nil && overlay.CompletedStage >= 0 {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text for contrast on either theme
		sb.WriteString("    classDef done fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef next fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		for i, stage := range def.Stages {
			stageID := sanitizeMermaidID(fmt.Sprintf("%s-%d-%s", name, i, stage.Name))
			switch {
			case i <= overlay.CompletedStage:
				sb.WriteString(fmt.Sprintf("    class %s done;\n", stageID))
			case i == overlay.CompletedStage+1:
				sb.WriteString(fmt.Sprintf("    class %s next;\n", stageID))
			}
		}
	}

	return sb.String()
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")
	return r.Replace(id)
}
