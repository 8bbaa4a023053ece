package cli

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/Protocol-Lattice/recall/internal/config"
	"github.com/Protocol-Lattice/recall/internal/logging"
	"github.com/Protocol-Lattice/recall/pkg/memory"
	"github.com/Protocol-Lattice/recall/pkg/memory/embed"
	"github.com/Protocol-Lattice/recall/pkg/memory/store"
	"github.com/Protocol-Lattice/recall/pkg/models"
	"github.com/Protocol-Lattice/recall/pkg/tools"
	"github.com/Protocol-Lattice/recall/pkg/tools/utcp"
)

// flagConfig holds values given on the command line. Non-empty values
// override the configuration file.
type flagConfig struct {
	configPath string
	logLevel   string
	storePath  string
	storeName  string
	embedder   string
	completer  string
}

// globalFlags returns flags shared by every command.
func globalFlags(cfg *flagConfig) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to a YAML configuration file",
			Sources:     cli.EnvVars("RECALL_CONFIG"),
			Destination: &cfg.configPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Sources:     cli.EnvVars("RECALL_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "store-path",
			Usage:       "SQLite database file",
			Sources:     cli.EnvVars("RECALL_STORE_PATH"),
			Destination: &cfg.storePath,
		},
		&cli.StringFlag{
			Name:        "store-name",
			Usage:       "Logical vector store name",
			Sources:     cli.EnvVars("RECALL_STORE_NAME"),
			Destination: &cfg.storeName,
		},
		&cli.StringFlag{
			Name:        "embedder",
			Usage:       "Embedding provider (hash, openai, ollama, gemini, fastembed)",
			Sources:     cli.EnvVars("RECALL_EMBEDDER"),
			Destination: &cfg.embedder,
		},
		&cli.StringFlag{
			Name:        "completer",
			Usage:       "Completion provider (offline, openai, anthropic, gemini, ollama)",
			Sources:     cli.EnvVars("RECALL_COMPLETER"),
			Destination: &cfg.completer,
		},
	}
}

// load reads the configuration file and applies flag overrides.
func (f *flagConfig) load() (config.Config, error) {
	conf, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	override := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	override(&conf.Log.Level, f.logLevel)
	override(&conf.Store.Path, f.storePath)
	override(&conf.Store.Name, f.storeName)
	override(&conf.Embedder.Provider, f.embedder)
	override(&conf.Completer.Provider, f.completer)
	if err := conf.Validate(); err != nil {
		return config.Config{}, err
	}
	return conf, nil
}

// runtime owns the resources a command needs. Close releases them in
// reverse order.
type runtime struct {
	conf    config.Config
	logger  *slog.Logger
	memory  *memory.Service
	closers []io.Closer
}

func (f *flagConfig) newRuntime(ctx context.Context, logOut io.Writer) (context.Context, *runtime, error) {
	conf, err := f.load()
	if err != nil {
		return ctx, nil, err
	}
	logger := logging.New(conf.Log.Level, logOut)
	logging.SetDefault(logger)
	ctx = logging.With(ctx, logger)
	rt := &runtime{conf: conf, logger: logger}

	embedder, err := newEmbedder(ctx, conf)
	if err != nil {
		return ctx, nil, err
	}
	if c, ok := embedder.(io.Closer); ok {
		rt.closers = append(rt.closers, c)
	}
	dimension := conf.Store.Dimension
	if d, ok := embedder.(embed.Dimensioner); ok && d.Dimensions() > 0 {
		dimension = d.Dimensions()
	}
	embedder = embed.Cached(embedder, conf.Embedder.CacheSize, conf.Embedder.CacheTTL)

	db, err := openDatabase(ctx, conf.Store)
	if err != nil {
		rt.Close()
		return ctx, nil, err
	}
	rt.closers = append(rt.closers, db)

	metric, err := store.ParseMetric(conf.Store.Metric)
	if err != nil {
		rt.Close()
		return ctx, nil, err
	}
	vs, err := db.OpenStore(ctx, conf.Store.Name, dimension, store.WithMetric(metric))
	if err != nil {
		rt.Close()
		return ctx, nil, err
	}
	rt.closers = append(rt.closers, vs)

	svc, err := memory.New(embedder, vs, memory.Options{
		ChunkSize:   conf.Chunk.Size,
		Overlap:     conf.Chunk.Overlap,
		MaxDistance: conf.Recall.MaxDistance,
	})
	if err != nil {
		rt.Close()
		return ctx, nil, err
	}
	rt.memory = svc

	records, err := svc.Store().Count(ctx)
	if err != nil {
		rt.Close()
		return ctx, nil, err
	}
	logger.Debug("runtime ready",
		"backend", conf.Store.Backend,
		"store", svc.Store().Name(),
		"dimension", dimension,
		"records", records,
		"embedder", conf.Embedder.Provider)
	return ctx, rt, nil
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			rt.logger.Warn("failed to release resource", "error", err)
		}
	}
	rt.closers = nil
}

func newEmbedder(ctx context.Context, conf config.Config) (embed.Embedder, error) {
	dimension := conf.Embedder.Dimension
	if dimension == 0 && conf.Embedder.Provider == "hash" {
		dimension = conf.Store.Dimension
	}
	e, err := embed.New(ctx, embed.Config{
		Provider:  conf.Embedder.Provider,
		Model:     conf.Embedder.Model,
		Dimension: dimension,
		CacheDir:  conf.Embedder.CacheDir,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedder")
	}
	return e, nil
}

func openDatabase(ctx context.Context, sc config.StoreConfig) (store.Opener, error) {
	var (
		db  store.Opener
		err error
	)
	switch sc.Backend {
	case "sqlite":
		db, err = store.OpenSQLite(ctx, sc.Path)
	case "postgres":
		db, err = store.OpenPostgres(ctx, sc.DSN)
	case "mongo":
		database := sc.Database
		if database == "" {
			database = "recall"
		}
		db, err = store.OpenMongo(ctx, sc.DSN, database)
	case "neo4j":
		db, err = store.OpenNeo4j(ctx, sc.DSN, sc.Username, sc.Password, sc.Database)
	case "memory":
		db = store.NewInMemoryDB()
	default:
		return nil, goerr.Wrap(config.ErrInvalidConfig, "unknown store backend", goerr.V("backend", sc.Backend))
	}
	if err != nil {
		return nil, err
	}
	return db, nil
}

// newRegistry builds the tool catalog: built-ins, memory tools, then any
// tools discovered through UTCP.
func (rt *runtime) newRegistry(ctx context.Context) (*tools.Registry, error) {
	registry, err := tools.NewRegistry(
		tools.Weather(),
		tools.Email(),
		tools.Clock(nil),
		tools.Calculator(),
	)
	if err != nil {
		return nil, err
	}
	for _, t := range tools.MemoryTools(rt.memory, rt.conf.Recall.Limit) {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}

	if path := rt.conf.Tools.UTCPProvidersFile; path != "" {
		client, err := utcp.Connect(ctx, path)
		if err != nil {
			return nil, err
		}
		if _, err := utcp.Import(ctx, registry, client, rt.conf.Tools.UTCPQuery, rt.conf.Tools.UTCPLimit); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (rt *runtime) newCompleter(ctx context.Context) (models.Completer, error) {
	c, err := models.New(ctx, models.Config{
		Provider:  rt.conf.Completer.Provider,
		Model:     rt.conf.Completer.Model,
		MaxTokens: rt.conf.Completer.MaxTokens,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create completer")
	}
	if closer, ok := c.(io.Closer); ok {
		rt.closers = append(rt.closers, closer)
	}
	return c, nil
}
