package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/Protocol-Lattice/recall/pkg/document"
	"github.com/Protocol-Lattice/recall/pkg/memory/store"
	"github.com/Protocol-Lattice/recall/pkg/tools"
)

func ingestCommand() *cli.Command {
	var (
		cfg     flagConfig
		tags    string
		workers int64
		redact  bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "tags",
			Aliases:     []string{"t"},
			Usage:       "Comma-separated tags stored with every chunk",
			Destination: &tags,
		},
		&cli.IntFlag{
			Name:        "workers",
			Aliases:     []string{"w"},
			Usage:       "Documents ingested concurrently (0 uses the configured value)",
			Sources:     cli.EnvVars("RECALL_WORKERS"),
			Destination: &workers,
		},
		&cli.BoolFlag{
			Name:        "redact",
			Usage:       "Mask email addresses and phone numbers before embedding",
			Destination: &redact,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "ingest",
		Usage:     "Chunk, embed and store text, Markdown or PDF files",
		ArgsUsage: "<file>...",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			paths := c.Args().Slice()
			if len(paths) == 0 {
				return goerr.New("at least one file is required")
			}

			ctx, rt, err := cfg.newRuntime(ctx, c.Root().ErrWriter)
			if err != nil {
				return err
			}
			defer rt.Close()

			var (
				docs     []document.Document
				loadErrs []error
				redactor = document.NewRedactor()
			)
			for _, p := range paths {
				doc, err := document.Load(p)
				if err != nil {
					fmt.Fprintf(c.Root().Writer, "%s: %v\n", p, err)
					loadErrs = append(loadErrs, err)
					continue
				}
				if redact {
					var n int
					doc, n = redactor.Apply(doc)
					rt.logger.Info("redacted document", "document", doc.Name, "matches", n)
				}
				docs = append(docs, doc)
			}

			meta := store.Metadata{}
			if t := strings.TrimSpace(tags); t != "" {
				meta[tools.TagsKey] = t
			}
			n := int(workers)
			if n <= 0 {
				n = rt.conf.Tools.Workers
			}

			reports, ingestErr := rt.memory.IngestAll(ctx, docs, meta, n)
			total := 0
			for _, r := range reports {
				if r.Err != nil {
					fmt.Fprintf(c.Root().Writer, "%s: stored %d chunk(s) before failing: %v\n", r.Name, r.Chunks, r.Err)
				} else {
					fmt.Fprintf(c.Root().Writer, "%s: %d chunk(s)\n", r.Name, r.Chunks)
				}
				total += r.Chunks
			}
			fmt.Fprintf(c.Root().Writer, "Stored %d chunk(s) from %d document(s).\n", total, len(docs))

			if err := errors.Join(append(loadErrs, ingestErr)...); err != nil {
				return goerr.Wrap(err, "ingest incomplete")
			}
			return nil
		},
	}
}
