package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// LoaderOptions describes how configuration should be discovered.
type LoaderOptions struct {
	ConfigPaths []string
	FileName    string
	EnvPrefix   string
}

// Load returns the merged configuration from files and environment variables.
func Load(opts LoaderOptions) (Config, error) {
	v := viper.New()

	name := opts.FileName
	if name == "" {
		name = "sentinel"
	}

	configFile := locateConfigFile(name, opts.ConfigPaths)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(name)
	}

	prefix := opts.EnvPrefix
	if prefix == "" {
		prefix = "SENTINEL"
	}
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AllowEmptyEnv(true)

	setDefaults(v)

	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return expandEnvVars(cfg), nil
}

// expandEnvVars expands ${VAR} and $VAR syntax in configuration strings.
func expandEnvVars(cfg Config) Config {
	for name, provider := range cfg.Providers {
		provider.APIKey = expandEnvString(provider.APIKey)
		provider.Model = expandEnvString(provider.Model)
		provider.BaseURL = expandEnvString(provider.BaseURL)

		if provider.Timeout != nil {
			timeout := expandEnvString(*provider.Timeout)
			provider.Timeout = &timeout
		}
		if provider.InitialBackoff != nil {
			backoff := expandEnvString(*provider.InitialBackoff)
			provider.InitialBackoff = &backoff
		}
		if provider.MaxBackoff != nil {
			backoff := expandEnvString(*provider.MaxBackoff)
			provider.MaxBackoff = &backoff
		}

		cfg.Providers[name] = provider
	}

	cfg.HTTP.Timeout = expandEnvString(cfg.HTTP.Timeout)
	cfg.HTTP.InitialBackoff = expandEnvString(cfg.HTTP.InitialBackoff)
	cfg.HTTP.MaxBackoff = expandEnvString(cfg.HTTP.MaxBackoff)

	cfg.LLM.Preferred = expandEnvString(cfg.LLM.Preferred)
	cfg.Semantic.BaseURL = expandEnvString(cfg.Semantic.BaseURL)
	cfg.Semantic.Model = expandEnvString(cfg.Semantic.Model)
	cfg.Semantic.APIKey = expandEnvString(cfg.Semantic.APIKey)
	cfg.Store.Path = expandEnvString(cfg.Store.Path)
	cfg.Git.RepositoryDir = expandEnvString(cfg.Git.RepositoryDir)
	cfg.GitHub.Token = expandEnvString(cfg.GitHub.Token)
	cfg.GitHub.BaseURL = expandEnvString(cfg.GitHub.BaseURL)
	cfg.Logging.Level = expandEnvString(cfg.Logging.Level)
	cfg.Logging.Format = expandEnvString(cfg.Logging.Format)

	return cfg
}

// expandEnvString replaces ${VAR} or $VAR with environment variable values.
func expandEnvString(s string) string {
	if s == "" {
		return s
	}

	re := regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	re = regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return s
}

func locateConfigFile(name string, paths []string) string {
	searchPaths := append([]string{}, paths...)
	searchPaths = append(searchPaths, ".")
	for _, dir := range searchPaths {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name+".yaml")
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	// HTTP defaults
	v.SetDefault("http.timeout", "60s")
	v.SetDefault("http.maxRetries", 5)
	v.SetDefault("http.initialBackoff", "2s")
	v.SetDefault("http.maxBackoff", "32s")
	v.SetDefault("http.backoffMultiplier", 2.0)

	// Provider defaults
	v.SetDefault("llm.preferred", "groq")
	v.SetDefault("providers.groq.enabled", false)
	v.SetDefault("providers.groq.model", "llama-3.3-70b-versatile")
	v.SetDefault("providers.openai.enabled", false)
	v.SetDefault("providers.openai.model", "gpt-4o")
	v.SetDefault("providers.anthropic.enabled", false)
	v.SetDefault("providers.anthropic.model", "claude-3-5-sonnet-20241022")
	v.SetDefault("providers.gemini.enabled", false)
	v.SetDefault("providers.gemini.model", "gemini-2.5-flash")
	v.SetDefault("providers.ollama.enabled", false)
	v.SetDefault("providers.ollama.model", "llama3.2")
	v.SetDefault("providers.ollama.baseURL", "http://localhost:11434")
	v.SetDefault("providers.static.enabled", false)
	v.SetDefault("providers.static.model", "static-v1")

	// Analysis defaults
	v.SetDefault("analysis.maxFiles", 50)
	v.SetDefault("analysis.autoFix", true)
	v.SetDefault("risk.modelAdjustment", true)

	// Semantic defaults
	v.SetDefault("semantic.backend", "off")
	v.SetDefault("semantic.baseURL", "http://localhost:8100")
	v.SetDefault("semantic.dimension", 384)
	v.SetDefault("semantic.minSimilarity", 0.75)

	// Store defaults
	v.SetDefault("store.enabled", true)
	v.SetDefault("store.path", defaultStorePath())

	// GitHub defaults
	v.SetDefault("github.baseURL", "https://api.github.com")

	// Usage defaults: free tier allowance per calendar month
	v.SetDefault("usage.monthlyLimit", 50)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "human")
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./sentinel.db"
	}
	return filepath.Join(home, ".config", "sentinel", "sentinel.db")
}
