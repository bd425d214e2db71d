package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/changesmith/internal/config"
)

// ConfigCommand groups the configuration subcommands: init writes a sample
// changesmith.toml, validate checks the effective configuration, show
// prints it with secrets masked.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write a sample configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   "changesmith.toml",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "validate",
				Usage:  "Validate the effective configuration",
				Action: runConfigValidate,
			},
			{
				Name:   "show",
				Usage:  "Print the effective configuration with secrets masked",
				Action: runConfigShow,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	outputPath := c.String("output")
	if err := config.InitConfig(outputPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	fmt.Printf("Created configuration file at %s\n", outputPath)
	return nil
}

func runConfigValidate(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	fmt.Println("Configuration is valid")
	return nil
}

func runConfigShow(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Printf("server.port           = %d\n", cfg.Server.Port)
	fmt.Printf("server.api_keys       = %d configured\n", len(cfg.Server.APIKeys))
	fmt.Printf("server.jwt_secret     = %s\n", maskSecret(cfg.Server.JWTSecret))
	fmt.Printf("ai.provider           = %s\n", cfg.AI.Provider)
	fmt.Printf("ai.model              = %s\n", cfg.AI.Model)
	fmt.Printf("ai.classifier_model   = %s\n", cfg.AI.ClassifierModel)
	fmt.Printf("ai.api_key            = %s\n", maskSecret(cfg.AI.APIKey))
	fmt.Printf("host.provider         = %s\n", cfg.Host.Provider)
	fmt.Printf("host.repo             = %s\n", cfg.Host.Repo)
	fmt.Printf("host.token            = %s\n", maskSecret(cfg.Host.Token))
	fmt.Printf("context.max_files     = %d\n", cfg.Context.MaxFiles)
	fmt.Printf("context.budget_chars  = %d\n", cfg.Context.BudgetChars)
	fmt.Printf("context.scan_secrets  = %t\n", cfg.Context.ScanSecrets)
	fmt.Printf("store.backend         = %s\n", cfg.Store.Backend)
	fmt.Printf("store.dir             = %s\n", cfg.Store.Dir)
	fmt.Printf("store.database_url    = %s\n", maskSecret(cfg.Store.DatabaseURL))
	fmt.Printf("queue.enabled         = %t\n", cfg.Queue.Enabled)
	fmt.Printf("log.level             = %s\n", cfg.Log.Level)
	return nil
}
