package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/Protocol-Lattice/recall/pkg/agent"
)

func chatCommand() *cli.Command {
	var (
		cfg      flagConfig
		preamble string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "preamble",
			Usage:       "Text that opens the system prompt",
			Sources:     cli.EnvVars("RECALL_PREAMBLE"),
			Destination: &preamble,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive conversation with tool calling",
		Flags: flags,
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
			completer, err := rt.newCompleter(ctx)
			if err != nil {
				return err
			}
			conv, err := agent.New(completer, registry, nil, agent.Options{Preamble: preamble})
			if err != nil {
				return goerr.Wrap(err, "failed to create conversation")
			}

			in := c.Root().Reader
			if in == nil {
				in = os.Stdin
			}
			return chatLoop(ctx, conv, in, c.Root().Writer)
		},
	}
}

// chatLoop reads one turn per line until exit, end of input or ctx ends.
func chatLoop(ctx context.Context, conv *agent.Conversation, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	fmt.Fprintf(out, "Chat session started. Type 'exit' to quit.\n")

	for ctx.Err() == nil {
		fmt.Fprintf(out, "> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		res, err := conv.Turn(ctx, input)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			continue
		}
		for _, m := range res.Messages {
			fmt.Fprintf(out, "%s\n", m.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return goerr.Wrap(err, "failed to read input")
	}
	fmt.Fprintf(out, "Bye.\n")
	return nil
}
