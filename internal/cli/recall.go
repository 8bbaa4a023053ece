package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/Protocol-Lattice/recall/pkg/memory"
)

func recallCommand() *cli.Command {
	var (
		cfg   flagConfig
		limit int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of memories (0 uses the configured value)",
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "recall",
		Usage:     "Print the memories closest to a query",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if query == "" {
				return goerr.New("query is required")
			}

			ctx, rt, err := cfg.newRuntime(ctx, c.Root().ErrWriter)
			if err != nil {
				return err
			}
			defer rt.Close()

			n := int(limit)
			if n <= 0 {
				n = rt.conf.Recall.Limit
			}
			found, err := rt.memory.Recall(ctx, query, n)
			if err != nil {
				return err
			}
			printMemories(c, found)
			return nil
		},
	}
}

func printMemories(c *cli.Command, found []memory.Memory) {
	out := c.Root().Writer
	if len(found) == 0 {
		fmt.Fprintf(out, "No memories found.\n")
		return
	}
	for i, m := range found {
		fmt.Fprintf(out, "%d. [id=%d distance=%.4f", i+1, m.ID, m.Distance)
		if src := m.Tags.String(memory.SourceKey); src != "" {
			fmt.Fprintf(out, " source=%s", src)
		}
		fmt.Fprintf(out, "]\n%s\n", strings.TrimSpace(m.Content))
	}
}
