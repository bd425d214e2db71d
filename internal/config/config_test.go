package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != 8811 {
		t.Errorf("expected default port 8811, got %d", cfg.Server.Port)
	}
	if cfg.AI.Provider != "openai" {
		t.Errorf("expected default ai provider openai, got %s", cfg.AI.Provider)
	}
	if cfg.Context.MaxFiles != 10 {
		t.Errorf("expected default max_files 10, got %d", cfg.Context.MaxFiles)
	}
	if cfg.Store.Backend != "file" {
		t.Errorf("expected default store backend file, got %s", cfg.Store.Backend)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "changesmith.toml")
	content := `
[server]
port = 9999

[host]
provider = "gitlab"
repo = "group/project"
token = "tok"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999 from file, got %d", cfg.Server.Port)
	}
	if cfg.Host.Provider != "gitlab" {
		t.Errorf("expected host provider gitlab, got %s", cfg.Host.Provider)
	}
	// Defaults survive a partial file.
	if cfg.AI.Model != "gpt-4o" {
		t.Errorf("expected default model to survive, got %s", cfg.AI.Model)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("CHANGESMITH_AI_MODEL", "gpt-4o-mini")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.AI.Model != "gpt-4o-mini" {
		t.Errorf("expected env override gpt-4o-mini, got %s", cfg.AI.Model)
	}
}

func TestValidate(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if err := Validate(cfg); err == nil {
		t.Error("expected validation error for empty credentials")
	}

	cfg.AI.APIKey = "k"
	cfg.Host.Repo = "owner/repo"
	cfg.Host.Token = "t"
	if err := Validate(cfg); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	cfg.Host.Provider = "sourcehut"
	if err := Validate(cfg); err == nil {
		t.Error("expected error for unsupported host provider")
	}

	cfg.Host.Provider = "github"
	cfg.Queue.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Error("expected error for queue without database_url")
	}
}

func TestInitConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "changesmith.toml")

	if err := InitConfig(path); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if err := InitConfig(path); err == nil {
		t.Error("expected error when config file already exists")
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if cfg.Host.Repo != "owner/repo" {
		t.Errorf("expected sample repo owner/repo, got %s", cfg.Host.Repo)
	}
}
