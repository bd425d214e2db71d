package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
)

// ConfigCheckResult holds the result of environment validation
type ConfigCheckResult struct {
	Missing  []string          // Required variables that are missing
	Present  map[string]string // Variables that are set (masked values)
	Warnings []string          // Non-fatal warnings
}

// CheckRequiredEnv validates that required environment variables are set.
// Everything can also come from the TOML config; this only flags the
// credentials that have no safe default.
func CheckRequiredEnv() *ConfigCheckResult {
	result := &ConfigCheckResult{
		Missing: []string{},
		Present: make(map[string]string),
	}

	requiredVars := []string{
		"CHANGESMITH_AI_API_KEY",
		"CHANGESMITH_HOST_TOKEN",
	}
	for _, v := range requiredVars {
		val := os.Getenv(v)
		if val == "" {
			result.Missing = append(result.Missing, v)
		} else {
			result.Present[v] = maskSecret(val)
		}
	}

	optionalVars := []string{
		"CHANGESMITH_STORE_DATABASE_URL",
		"CHANGESMITH_SERVER_JWT_SECRET",
	}
	for _, v := range optionalVars {
		if val := os.Getenv(v); val != "" {
			result.Present[v] = maskSecret(val)
		}
	}

	if os.Getenv("CHANGESMITH_QUEUE_ENABLED") == "true" &&
		os.Getenv("CHANGESMITH_STORE_DATABASE_URL") == "" {
		result.Warnings = append(result.Warnings,
			"CHANGESMITH_QUEUE_ENABLED is set without CHANGESMITH_STORE_DATABASE_URL")
	}

	return result
}

func maskSecret(val string) string {
	if len(val) <= 8 {
		return strings.Repeat("*", len(val))
	}
	return val[:4] + strings.Repeat("*", 4) + val[len(val)-4:]
}

// EnvCommand reports which required environment variables are configured.
func EnvCommand() *cli.Command {
	return &cli.Command{
		Name:  "env",
		Usage: "Check required environment variables",
		Action: func(c *cli.Context) error {
			result := CheckRequiredEnv()

			for name, masked := range result.Present {
				fmt.Printf("  %s = %s\n", name, masked)
			}
			for _, w := range result.Warnings {
				fmt.Printf("  warning: %s\n", w)
			}
			if len(result.Missing) > 0 {
				return fmt.Errorf("missing required variables: %s", strings.Join(result.Missing, ", "))
			}

			fmt.Println("Environment looks good")
			return nil
		},
	}
}
