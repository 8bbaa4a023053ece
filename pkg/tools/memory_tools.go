package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Protocol-Lattice/recall/pkg/memory"
	"github.com/Protocol-Lattice/recall/pkg/memory/store"
)

// TagsKey holds the comma-separated tags given to store_memory.
const TagsKey = "tags"

// DefaultRecallLimit is used when recall_memory is called without a limit.
const DefaultRecallLimit = 3

// MemoryTools exposes the memory service as store_memory and recall_memory.
func MemoryTools(svc *memory.Service, defaultLimit int) []Tool {
	if defaultLimit <= 0 {
		defaultLimit = DefaultRecallLimit
	}
	return []Tool{
		{
			Name:        "store_memory",
			Description: "Save a fact or note to long-term memory",
			Params: []Param{
				{Name: "content", Type: TypeString, Description: "Text to remember", Required: true},
				{Name: "tags", Type: TypeString, Description: "Optional comma-separated tags"},
			},
			Examples: []string{"Remember that my sister's birthday is on May 4th"},
			Handler: func(ctx context.Context, args Args) (string, error) {
				meta := store.Metadata{}
				if tags := cleanTags(args.String("tags")); tags != "" {
					meta[TagsKey] = tags
				}
				n, err := svc.Ingest(ctx, args.String("content"), meta)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Stored %d memory chunk(s).", n), nil
			},
		},
		{
			Name:        "recall_memory",
			Description: "Search long-term memory for notes related to a query",
			Params: []Param{
				{Name: "query", Type: TypeString, Description: "What to look for", Required: true},
				{Name: "limit", Type: TypeInteger, Description: "Maximum number of memories", Default: defaultLimit},
			},
			Examples: []string{"What do you remember about my sister?"},
			Handler: func(ctx context.Context, args Args) (string, error) {
				limit := int(args.Int("limit"))
				if limit <= 0 {
					return "", goerr.New("limit must be positive", goerr.V("limit", limit))
				}
				found, err := svc.Recall(ctx, args.String("query"), limit)
				if err != nil {
					return "", err
				}
				return FormatMemories(found), nil
			},
		},
	}
}

// FormatMemories renders recalled memories as a numbered list.
func FormatMemories(found []memory.Memory) string {
	if len(found) == 0 {
		return "No memories found."
	}
	var b strings.Builder
	for i, m := range found {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s (distance %.3f", i+1, strings.TrimSpace(m.Content), m.Distance)
		if tags := m.Tags.String(TagsKey); tags != "" {
			fmt.Fprintf(&b, ", tags: %s", tags)
		}
		b.WriteByte(')')
	}
	return b.String()
}

func cleanTags(raw string) string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return strings.Join(tags, ", ")
}
