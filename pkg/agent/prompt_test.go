package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Protocol-Lattice/recall/pkg/tools"
)

func TestSystemPromptListsToolsInOrder(t *testing.T) {
	recall := tools.Tool{
		Name:        "recall_memory",
		Description: "Search memory",
		Params: []tools.Param{
			{Name: "query", Type: tools.TypeString, Description: "What to look for", Required: true},
			{Name: "limit", Type: tools.TypeInteger, Default: 3},
		},
		Examples: []string{"What do you remember about Paris?"},
		Handler:  func(context.Context, tools.Args) (string, error) { return "", nil },
	}
	got := SystemPrompt("You are terse.", []tools.Tool{tools.Weather(), recall})

	want := `You are terse.

Use tools when needed.
You have access to the following tools:

1. get_weather: Get current weather for a location
   - Parameter: location (string, required): City name
   - Example: "What's the weather in San Francisco?"

2. recall_memory: Search memory
   - Parameter: query (string, required): What to look for
   - Parameter: limit (integer, optional, default 3)
   - Example: "What do you remember about Paris?"

When you call a tool, fill in every parameter yourself from the conversation. Never ask the user to provide parameter values.
`
	assert.Equal(t, want, got)
}

func TestSystemPromptWithoutTools(t *testing.T) {
	assert.Equal(t, defaultPreamble, SystemPrompt("", nil))
}
