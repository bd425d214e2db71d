package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/changesmith/internal/aiconnectors"
	"github.com/changesmith/internal/api"
	"github.com/changesmith/internal/changeset"
	"github.com/changesmith/internal/codecontext"
	"github.com/changesmith/internal/config"
	"github.com/changesmith/internal/conversation"
	"github.com/changesmith/internal/database"
	"github.com/changesmith/internal/intent"
	"github.com/changesmith/internal/jobqueue"
	"github.com/changesmith/internal/llm"
	"github.com/changesmith/internal/logging"
	"github.com/changesmith/internal/parser"
	"github.com/changesmith/internal/providers"
	"github.com/changesmith/internal/retry"
	"github.com/changesmith/internal/secretscan"
	"github.com/changesmith/internal/stats"
	"github.com/changesmith/internal/threadstore"
	"github.com/changesmith/pkg/shared"
)

// ServeCommand returns the CLI command for starting the API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the Changesmith API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

	engine, tracker, queue, cleanup, err := buildEngine(c.Context, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if queue != nil {
		if err := queue.Start(c.Context); err != nil {
			return fmt.Errorf("failed to start job queue: %w", err)
		}
		defer func() {
			if err := queue.Stop(context.Background()); err != nil {
				log.Warn().Err(err).Msg("job queue did not stop cleanly")
			}
		}()
	}

	log.Info().Int("port", cfg.Server.Port).Str("repo", cfg.Host.Repo).Msg("Starting Changesmith API server")
	server := api.NewServer(cfg.Server, engine, tracker)
	return server.Start()
}

// buildEngine wires the full dependency graph from configuration: AI
// connector behind rate limiting and retries, host client behind an LRU
// content cache, context selector, changeset generator, intent classifier,
// thread store and optional job queue.
func buildEngine(ctx context.Context, cfg *config.Config) (*conversation.Engine, *stats.Tracker, *jobqueue.JobQueue, func(), error) {
	noop := func() {}

	connector, err := aiconnectors.NewConnector(ctx, aiconnectors.Options{
		Provider:    aiconnectors.Provider(cfg.AI.Provider),
		APIKey:      cfg.AI.APIKey,
		BaseURL:     cfg.AI.BaseURL,
		Model:       cfg.AI.Model,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
	})
	if err != nil {
		return nil, nil, nil, noop, fmt.Errorf("failed to create AI connector: %w", err)
	}
	client := llm.NewResilientClient(connector, retry.CompletionRetryConfig(), cfg.AI.RatePerSecond, cfg.AI.RateBurst)

	host, err := providers.New(shared.HostCredentials{
		Provider: cfg.Host.Provider,
		Repo:     cfg.Host.Repo,
		Token:    cfg.Host.Token,
		BaseURL:  cfg.Host.BaseURL,
	})
	if err != nil {
		return nil, nil, nil, noop, fmt.Errorf("failed to create host client: %w", err)
	}
	cachedHost, err := providers.NewCachedHost(host, 512)
	if err != nil {
		return nil, nil, nil, noop, err
	}

	var filter codecontext.SecretFilter
	if cfg.Context.ScanSecrets {
		scanner, err := secretscan.New()
		if err != nil {
			return nil, nil, nil, noop, fmt.Errorf("failed to initialize secret scanner: %w", err)
		}
		filter = scanner
	}

	selector := codecontext.NewSelector(cachedHost, filter, codecontext.Options{
		MaxFiles:     cfg.Context.MaxFiles,
		BudgetChars:  cfg.Context.BudgetChars,
		MaxFileBytes: cfg.Context.MaxFileBytes,
		FetchWorkers: cfg.Context.FetchWorkers,
	})

	generator := changeset.NewGenerator(client, parser.New())
	classifier := intent.NewClassifier(client, cfg.AI.ClassifierModel)

	tracker, err := stats.NewTracker(cfg.Store.Dir)
	if err != nil {
		return nil, nil, nil, noop, fmt.Errorf("failed to initialize activity tracker: %w", err)
	}

	var db *sql.DB
	cleanup := noop
	if cfg.Store.Backend == "postgres" || cfg.Queue.Enabled {
		db, err = database.NewDB(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, nil, noop, fmt.Errorf("failed to connect to database: %w", err)
		}
		cleanup = func() { db.Close() }
	}

	store, err := threadstore.NewFromConfig(cfg.Store, db)
	if err != nil {
		cleanup()
		return nil, nil, nil, noop, err
	}

	engine := conversation.NewEngine(store, cachedHost, generator, selector, classifier, tracker, cfg.Host.Repo)

	var queue *jobqueue.JobQueue
	if cfg.Queue.Enabled {
		queueURL, err := database.ResolveURL(cfg.Store.DatabaseURL)
		if err != nil {
			cleanup()
			return nil, nil, nil, noop, err
		}
		queue, err = jobqueue.NewJobQueue(queueURL, cfg.Queue.MaxWorkers, engine)
		if err != nil {
			cleanup()
			return nil, nil, nil, noop, fmt.Errorf("failed to create job queue: %w", err)
		}
		engine.SetAsyncSubmitter(queue.EnqueueSubmit)
	}

	return engine, tracker, queue, cleanup, nil
}
