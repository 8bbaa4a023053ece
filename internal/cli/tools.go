package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/Protocol-Lattice/recall/pkg/agent"
)

func toolsCommand() *cli.Command {
	var cfg flagConfig

	return &cli.Command{
		Name:  "tools",
		Usage: "Print the tool catalog as the model sees it",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, rt, err := cfg.newRuntime(ctx, c.Root().ErrWriter)
			if err != nil {
				return err
			}
			defer rt.Close()

			registry, err := rt.newRegistry(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "%s", agent.SystemPrompt("", registry.Describe()))
			return nil
		},
	}
}
