package config

// Config represents the full application configuration.
type Config struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	LLM       LLMConfig                 `yaml:"llm"`
	HTTP      HTTPConfig                `yaml:"http"`
	Rules     RulesConfig               `yaml:"rules"`
	Analysis  AnalysisConfig            `yaml:"analysis"`
	Risk      RiskConfig                `yaml:"risk"`
	Semantic  SemanticConfig            `yaml:"semantic"`
	Store     StoreConfig               `yaml:"store"`
	Git       GitConfig                 `yaml:"git"`
	GitHub    GitHubConfig              `yaml:"github"`
	Usage     UsageConfig               `yaml:"usage"`
	Logging   LoggingConfig             `yaml:"logging"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`

	// HTTP overrides (optional, use global HTTP config if not set)
	Timeout        *string `yaml:"timeout,omitempty"`
	MaxRetries     *int    `yaml:"maxRetries,omitempty"`
	InitialBackoff *string `yaml:"initialBackoff,omitempty"`
	MaxBackoff     *string `yaml:"maxBackoff,omitempty"`
}

// LLMConfig selects the provider chain order.
type LLMConfig struct {
	// Preferred is tried first; remaining enabled providers follow in
	// catalog order.
	Preferred string `yaml:"preferred"`
}

// HTTPConfig holds global HTTP client settings.
type HTTPConfig struct {
	Timeout           string  `yaml:"timeout"`
	MaxRetries        int     `yaml:"maxRetries"`
	InitialBackoff    string  `yaml:"initialBackoff"`
	MaxBackoff        string  `yaml:"maxBackoff"`
	BackoffMultiplier float64 `yaml:"backoffMultiplier"`
}

// RulesConfig configures the pattern rule engine.
type RulesConfig struct {
	// Enabled lists rule IDs to run. Empty means the full catalog.
	Enabled []string `yaml:"enabled"`
}

// AnalysisConfig bounds a single pipeline run.
type AnalysisConfig struct {
	// MaxFiles caps how many changed files one run will consider.
	MaxFiles int `yaml:"maxFiles"`

	// AutoFix toggles fix suggestions for critical and high findings.
	AutoFix bool `yaml:"autoFix"`
}

// RiskConfig configures the risk scorer.
type RiskConfig struct {
	// ModelAdjustment toggles the model-based score adjustment on top of
	// the heuristic score.
	ModelAdjustment bool `yaml:"modelAdjustment"`
}

// SemanticConfig configures the embedding backend.
type SemanticConfig struct {
	// Backend is "service", "openai", or "off".
	Backend       string  `yaml:"backend"`
	BaseURL       string  `yaml:"baseURL"`
	Model         string  `yaml:"model"`
	APIKey        string  `yaml:"apiKey"`
	Dimension     int     `yaml:"dimension"`
	MinSimilarity float64 `yaml:"minSimilarity"`
}

// StoreConfig configures the persistence layer.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// GitConfig locates the repository for local diff analysis.
type GitConfig struct {
	RepositoryDir string `yaml:"repositoryDir"`
}

// GitHubConfig configures the GitHub API client.
type GitHubConfig struct {
	Token   string `yaml:"token"`
	BaseURL string `yaml:"baseURL"`
}

// UsageConfig configures the monthly analysis quota.
type UsageConfig struct {
	// MonthlyLimit is the number of analyses allowed per calendar month.
	// -1 means unlimited.
	MonthlyLimit int `yaml:"monthlyLimit"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Format string `yaml:"format"` // json, human
}

// Merge combines multiple configuration instances, prioritising the latter ones.
func Merge(configs ...Config) Config {
	result := Config{}
	for _, cfg := range configs {
		result = merge(result, cfg)
	}
	return result
}

func merge(base, overlay Config) Config {
	result := base

	result.LLM = chooseLLM(base.LLM, overlay.LLM)
	result.HTTP = chooseHTTP(base.HTTP, overlay.HTTP)
	result.Rules = chooseRules(base.Rules, overlay.Rules)
	result.Analysis = chooseAnalysis(base.Analysis, overlay.Analysis)
	result.Risk = chooseRisk(base.Risk, overlay.Risk)
	result.Semantic = chooseSemantic(base.Semantic, overlay.Semantic)
	result.Store = chooseStore(base.Store, overlay.Store)
	result.Git = chooseGit(base.Git, overlay.Git)
	result.GitHub = chooseGitHub(base.GitHub, overlay.GitHub)
	result.Usage = chooseUsage(base.Usage, overlay.Usage)
	result.Logging = chooseLogging(base.Logging, overlay.Logging)
	result.Providers = mergeProviders(base.Providers, overlay.Providers)

	return result
}

func mergeProviders(base, overlay map[string]ProviderConfig) map[string]ProviderConfig {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	result := make(map[string]ProviderConfig, len(base)+len(overlay))
	for key, value := range base {
		result[key] = value
	}
	for key, value := range overlay {
		result[key] = value
	}
	return result
}

func chooseLLM(base, overlay LLMConfig) LLMConfig {
	if overlay.Preferred != "" {
		return overlay
	}
	return base
}

func chooseHTTP(base, overlay HTTPConfig) HTTPConfig {
	if overlay.Timeout != "" || overlay.MaxRetries != 0 || overlay.InitialBackoff != "" || overlay.MaxBackoff != "" || overlay.BackoffMultiplier != 0 {
		return overlay
	}
	return base
}

func chooseRules(base, overlay RulesConfig) RulesConfig {
	if len(overlay.Enabled) > 0 {
		return overlay
	}
	return base
}

func chooseAnalysis(base, overlay AnalysisConfig) AnalysisConfig {
	if overlay.MaxFiles != 0 || overlay.AutoFix {
		return overlay
	}
	return base
}

func chooseRisk(base, overlay RiskConfig) RiskConfig {
	if overlay.ModelAdjustment {
		return overlay
	}
	return base
}

func chooseSemantic(base, overlay SemanticConfig) SemanticConfig {
	if overlay.Backend != "" || overlay.BaseURL != "" || overlay.Model != "" || overlay.Dimension != 0 || overlay.MinSimilarity != 0 {
		return overlay
	}
	return base
}

func chooseStore(base, overlay StoreConfig) StoreConfig {
	if overlay.Enabled || overlay.Path != "" {
		return overlay
	}
	return base
}

func chooseGit(base, overlay GitConfig) GitConfig {
	if overlay.RepositoryDir != "" {
		return overlay
	}
	return base
}

func chooseGitHub(base, overlay GitHubConfig) GitHubConfig {
	if overlay.Token != "" || overlay.BaseURL != "" {
		return overlay
	}
	return base
}

func chooseUsage(base, overlay UsageConfig) UsageConfig {
	if overlay.MonthlyLimit != 0 {
		return overlay
	}
	return base
}

func chooseLogging(base, overlay LoggingConfig) LoggingConfig {
	if overlay.Level != "" || overlay.Format != "" {
		return overlay
	}
	return base
}
