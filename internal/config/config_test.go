package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sentinelci/pr-sentinel/internal/config"
)

func TestMergePrioritizesLaterConfigs(t *testing.T) {
	base := config.Config{
		Store: config.StoreConfig{Path: "default.db"},
	}
	file := config.Config{
		Store: config.StoreConfig{Path: "file.db"},
	}
	final := config.Config{
		Store: config.StoreConfig{Path: "env.db"},
	}

	merged := config.Merge(base, file, final)

	if merged.Store.Path != "env.db" {
		t.Fatalf("expected env path to win, got %s", merged.Store.Path)
	}
}

func TestMergeKeepsBaseWhenOverlayEmpty(t *testing.T) {
	base := config.Config{
		LLM:     config.LLMConfig{Preferred: "groq"},
		Usage:   config.UsageConfig{MonthlyLimit: 50},
		Logging: config.LoggingConfig{Level: "debug"},
	}

	merged := config.Merge(base, config.Config{})

	if merged.LLM.Preferred != "groq" {
		t.Fatalf("expected preferred provider to survive, got %q", merged.LLM.Preferred)
	}
	if merged.Usage.MonthlyLimit != 50 {
		t.Fatalf("expected monthly limit to survive, got %d", merged.Usage.MonthlyLimit)
	}
	if merged.Logging.Level != "debug" {
		t.Fatalf("expected log level to survive, got %q", merged.Logging.Level)
	}
}

func TestMergeCombinesProviders(t *testing.T) {
	base := config.Config{
		Providers: map[string]config.ProviderConfig{
			"groq":   {Enabled: true, Model: "llama-3.3-70b-versatile"},
			"openai": {Enabled: false, Model: "gpt-4o"},
		},
	}
	overlay := config.Config{
		Providers: map[string]config.ProviderConfig{
			"openai": {Enabled: true, Model: "gpt-4o-mini"},
		},
	}

	merged := config.Merge(base, overlay)

	if !merged.Providers["groq"].Enabled {
		t.Fatal("expected base groq provider to survive")
	}
	if merged.Providers["openai"].Model != "gpt-4o-mini" {
		t.Fatalf("expected overlay openai model, got %s", merged.Providers["openai"].Model)
	}
}

func TestLoadReadsFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sentinel.yaml")
	if err := os.WriteFile(file, []byte("store:\n  path: file.db\n"), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("SENTINEL_STORE_PATH", "env.db")

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPaths: []string{dir},
		FileName:    "sentinel",
		EnvPrefix:   "SENTINEL",
	})
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}

	if cfg.Store.Path != "env.db" {
		t.Fatalf("expected env override, got %s", cfg.Store.Path)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(config.LoaderOptions{
		ConfigPaths: []string{t.TempDir()},
		FileName:    "nonexistent",
		EnvPrefix:   "SENTINEL",
	})
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}

	if cfg.LLM.Preferred != "groq" {
		t.Errorf("expected default preferred provider groq, got %s", cfg.LLM.Preferred)
	}
	if cfg.Providers["groq"].Model != "llama-3.3-70b-versatile" {
		t.Errorf("unexpected default groq model %s", cfg.Providers["groq"].Model)
	}
	if cfg.HTTP.Timeout != "60s" {
		t.Errorf("expected default http timeout 60s, got %s", cfg.HTTP.Timeout)
	}
	if cfg.HTTP.MaxRetries != 5 {
		t.Errorf("expected default max retries 5, got %d", cfg.HTTP.MaxRetries)
	}
	if cfg.Analysis.MaxFiles != 50 {
		t.Errorf("expected default analysis file cap 50, got %d", cfg.Analysis.MaxFiles)
	}
	if !cfg.Analysis.AutoFix {
		t.Error("expected auto-fix enabled by default")
	}
	if cfg.Semantic.Backend != "off" {
		t.Errorf("expected semantic backend off by default, got %s", cfg.Semantic.Backend)
	}
	if cfg.Semantic.Dimension != 384 {
		t.Errorf("expected default embedding dimension 384, got %d", cfg.Semantic.Dimension)
	}
	if cfg.Semantic.MinSimilarity != 0.75 {
		t.Errorf("expected default min similarity 0.75, got %f", cfg.Semantic.MinSimilarity)
	}
	if !cfg.Store.Enabled {
		t.Error("expected store enabled by default")
	}
	if cfg.GitHub.BaseURL != "https://api.github.com" {
		t.Errorf("unexpected default github base URL %s", cfg.GitHub.BaseURL)
	}
	if cfg.Usage.MonthlyLimit != 50 {
		t.Errorf("expected default monthly limit 50, got %d", cfg.Usage.MonthlyLimit)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadUnlimitedUsageFromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sentinel.yaml")
	if err := os.WriteFile(file, []byte("usage:\n  monthlyLimit: -1\n"), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPaths: []string{dir},
		FileName:    "sentinel",
		EnvPrefix:   "SENTINEL",
	})
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}

	if cfg.Usage.MonthlyLimit != -1 {
		t.Fatalf("expected unlimited usage, got %d", cfg.Usage.MonthlyLimit)
	}
}
