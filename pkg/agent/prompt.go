package agent

import (
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/recall/pkg/tools"
)

const defaultPreamble = "You are a helpful assistant with a long-term memory. Answer concisely and use tools when they help."

const selfSupplyInstruction = "When you call a tool, fill in every parameter yourself from the conversation. " +
	"Never ask the user to provide parameter values."

// SystemPrompt renders the preamble and a numbered catalog of tools with
// their parameters and usage examples.
func SystemPrompt(preamble string, catalog []tools.Tool) string {
	if strings.TrimSpace(preamble) == "" {
		preamble = defaultPreamble
	}
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(preamble))

	if len(catalog) == 0 {
		return sb.String()
	}

	sb.WriteString("\n\nUse tools when needed.\nYou have access to the following tools:\n")
	for i, t := range catalog {
		fmt.Fprintf(&sb, "\n%d. %s: %s\n", i+1, t.Name, t.Description)
		if len(t.Params) == 0 {
			sb.WriteString("   - Parameters: none\n")
		}
		for _, p := range t.Params {
			sb.WriteString("   - Parameter: " + describeParam(p) + "\n")
		}
		for _, ex := range t.Examples {
			fmt.Fprintf(&sb, "   - Example: %q\n", ex)
		}
	}
	sb.WriteString("\n" + selfSupplyInstruction + "\n")
	return sb.String()
}

func describeParam(p tools.Param) string {
	attrs := []string{string(p.Type)}
	if p.Required {
		attrs = append(attrs, "required")
	} else {
		attrs = append(attrs, "optional")
	}
	if len(p.Enum) > 0 {
		attrs = append(attrs, "one of "+strings.Join(p.Enum, "|"))
	}
	if p.Default != nil {
		attrs = append(attrs, fmt.Sprintf("default %v", p.Default))
	}
	out := fmt.Sprintf("%s (%s)", p.Name, strings.Join(attrs, ", "))
	if p.Description != "" {
		out += ": " + p.Description
	}
	return out
}
