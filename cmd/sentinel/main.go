package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/sentinelci/pr-sentinel/internal/adapter/ast"
	"github.com/sentinelci/pr-sentinel/internal/adapter/cli"
	"github.com/sentinelci/pr-sentinel/internal/adapter/embedding"
	githubadapter "github.com/sentinelci/pr-sentinel/internal/adapter/github"
	"github.com/sentinelci/pr-sentinel/internal/adapter/llm"
	"github.com/sentinelci/pr-sentinel/internal/adapter/llm/anthropic"
	"github.com/sentinelci/pr-sentinel/internal/adapter/llm/gemini"
	llmhttp "github.com/sentinelci/pr-sentinel/internal/adapter/llm/http"
	"github.com/sentinelci/pr-sentinel/internal/adapter/llm/ollama"
	"github.com/sentinelci/pr-sentinel/internal/adapter/llm/openai"
	"github.com/sentinelci/pr-sentinel/internal/adapter/llm/static"
	"github.com/sentinelci/pr-sentinel/internal/adapter/observability"
	"github.com/sentinelci/pr-sentinel/internal/adapter/output/markdown"
	"github.com/sentinelci/pr-sentinel/internal/adapter/repository"
	"github.com/sentinelci/pr-sentinel/internal/adapter/store/sqlite"
	"github.com/sentinelci/pr-sentinel/internal/config"
	"github.com/sentinelci/pr-sentinel/internal/redaction"
	"github.com/sentinelci/pr-sentinel/internal/store"
	"github.com/sentinelci/pr-sentinel/internal/usecase/analysis"
	"github.com/sentinelci/pr-sentinel/internal/usecase/dedup"
	"github.com/sentinelci/pr-sentinel/internal/usecase/pipeline"
	"github.com/sentinelci/pr-sentinel/internal/usecase/risk"
	"github.com/sentinelci/pr-sentinel/internal/usecase/rules"
	"github.com/sentinelci/pr-sentinel/internal/usecase/semantic"
	"github.com/sentinelci/pr-sentinel/internal/usecase/usage"
	"github.com/sentinelci/pr-sentinel/internal/version"
)

const defaultHTTPTimeout = 60 * time.Second

func main() {
	if err := run(); err != nil {
		// Redact API keys from URLs in error messages before logging
		log.Println(llmhttp.RedactURLSecrets(err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// Cancellable context with signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPaths: defaultConfigPaths(),
		FileName:    "sentinel",
		EnvPrefix:   "SENTINEL",
	})
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)

	providers := buildProviders(cfg, logger)
	var chain *llm.Chain
	if len(providers) > 0 {
		chain = llm.NewChain(providers, logger)
	}

	var analyzer *analysis.Orchestrator
	if chain != nil {
		analyzer = analysis.NewOrchestrator(chain, ast.NewAnalyzer(), logger)
		analyzer.SetTokenEstimator(llm.EstimateTokens)
	}

	// The heuristic score always runs; the model adjustment is opt-in.
	var riskGenerator risk.TextGenerator
	if cfg.Risk.ModelAdjustment && chain != nil {
		riskGenerator = chain
	}

	var index *semantic.Index
	if embedder := buildEmbedder(cfg.Semantic); embedder != nil {
		index = semantic.New(embedder, logger)
	}

	var analysisStore store.Store
	if cfg.Store.Enabled {
		storeDir := filepath.Dir(cfg.Store.Path)
		if err := os.MkdirAll(storeDir, 0o755); err != nil {
			logger.Warn("store directory creation failed, history disabled", "path", storeDir, "error", err)
		} else {
			sqliteStore, err := sqlite.NewStore(cfg.Store.Path)
			if err != nil {
				logger.Warn("store initialization failed, history disabled", "path", cfg.Store.Path, "error", err)
			} else {
				analysisStore = sqliteStore
				defer analysisStore.Close()
			}
		}
	}

	var quotaService *usage.Service
	if analysisStore != nil {
		quotaService = usage.NewService(analysisStore, cfg.Usage.MonthlyLimit)
	}

	application := &app{
		cfg:      cfg,
		logger:   logger,
		analyzer: analyzer,
		risk:     risk.NewScorer(riskGenerator, logger),
		index:    index,
		store:    analysisStore,
		usage:    quotaService,
		renderer: markdown.NewRenderer(),
	}

	deps := cli.Dependencies{
		Runner:        application,
		Store:         analysisStore,
		DefaultUser:   defaultUser(),
		MinSimilarity: cfg.Semantic.MinSimilarity,
		Version:       version.Value(),
	}
	if quotaService != nil {
		deps.Stats = quotaService
	}

	root := cli.NewRootCommand(deps)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, cli.ErrVersionRequested) {
			return nil
		}
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}

// app assembles a pipeline per request so the diff source can follow the
// command line: GitHub API for remote pull requests, the local clone for
// branch-against-branch analysis.
type app struct {
	cfg      config.Config
	logger   hclog.Logger
	analyzer *analysis.Orchestrator
	risk     *risk.Scorer
	index    *semantic.Index
	store    store.Store
	usage    *usage.Service
	renderer markdown.Renderer
}

func (a *app) Analyze(ctx context.Context, req cli.AnalyzeRequest) (pipeline.Result, error) {
	if req.Local {
		return a.analyzeLocal(ctx, req)
	}
	return a.analyzeGitHub(ctx, req)
}

func (a *app) analyzeGitHub(ctx context.Context, req cli.AnalyzeRequest) (pipeline.Result, error) {
	client, err := a.githubClient()
	if err != nil {
		return pipeline.Result{}, err
	}

	coordinator, err := a.coordinator(client, client)
	if err != nil {
		return pipeline.Result{}, err
	}

	return coordinator.Analyze(ctx, pipeline.Request{
		Repository: req.Repository,
		PRNumber:   req.PRNumber,
		UserID:     req.UserID,
	})
}

func (a *app) analyzeLocal(ctx context.Context, req cli.AnalyzeRequest) (pipeline.Result, error) {
	repoDir := req.RepoDir
	if repoDir == "" {
		repoDir = a.cfg.Git.RepositoryDir
	}
	if repoDir == "" {
		repoDir = "."
	}

	headRef := req.HeadRef
	if headRef == "" {
		branch, err := repository.NewSource(repoDir, req.BaseRef, "").CurrentBranch(ctx)
		if err != nil {
			return pipeline.Result{}, fmt.Errorf("resolve head branch: %w", err)
		}
		headRef = branch
	}

	repo := req.Repository
	if repo == "" {
		repo = repositoryName(repoDir)
	}

	source := repository.NewSource(repoDir, req.BaseRef, headRef)
	coordinator, err := a.coordinator(source, nil)
	if err != nil {
		return pipeline.Result{}, err
	}

	return coordinator.Analyze(ctx, pipeline.Request{
		Repository: repo,
		PRNumber:   req.PRNumber,
		UserID:     req.UserID,
	})
}

// Rerun replays a stored run. Reruns always go through the GitHub API
// because the stored run identifies a pull request, not a local branch.
func (a *app) Rerun(ctx context.Context, runID, userID string) (pipeline.Result, error) {
	client, err := a.githubClient()
	if err != nil {
		return pipeline.Result{}, err
	}

	coordinator, err := a.coordinator(client, client)
	if err != nil {
		return pipeline.Result{}, err
	}

	return coordinator.Rerun(ctx, runID, userID)
}

func (a *app) githubClient() (*githubadapter.Client, error) {
	token := a.cfg.GitHub.Token
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" {
		return nil, errors.New("github token is required: set github.token or GITHUB_TOKEN")
	}

	client := githubadapter.NewClient(token)
	if a.cfg.GitHub.BaseURL != "" {
		client.SetBaseURL(a.cfg.GitHub.BaseURL)
	}
	client.SetTimeout(llmhttp.ParseTimeout(nil, a.cfg.HTTP.Timeout, defaultHTTPTimeout))
	client.SetRetryConfig(llmhttp.BuildRetryConfig(config.ProviderConfig{}, a.cfg.HTTP))
	return client, nil
}

func (a *app) coordinator(source pipeline.DiffSource, notifier pipeline.Notifier) (*pipeline.Coordinator, error) {
	deps := pipeline.Deps{
		Source:    source,
		Rules:     rules.NewEngine(a.cfg.Rules.Enabled),
		Dedup:     dedup.New(),
		Risk:      a.risk,
		Store:     a.store,
		Renderer:  a.renderer,
		Sanitizer: redaction.NewSanitizer(),
		Logger:    a.logger,
		MaxFiles:  a.cfg.Analysis.MaxFiles,
		AutoFix:   a.cfg.Analysis.AutoFix,
	}
	if a.analyzer != nil {
		deps.Analyzer = a.analyzer
	}
	if a.index != nil {
		deps.Embedder = a.index
	}
	if a.usage != nil {
		deps.Usage = a.usage
	}
	if notifier != nil {
		deps.Notifier = notifier
	}
	return pipeline.New(deps)
}

// buildProviders returns the enabled text generation providers in chain
// order: the preferred provider first, then the rest of the catalog.
func buildProviders(cfg config.Config, logger hclog.Logger) []llm.TextGenerationProvider {
	catalog := []string{"groq", "openai", "anthropic", "gemini", "ollama", "static"}

	order := make([]string, 0, len(catalog))
	if cfg.LLM.Preferred != "" {
		order = append(order, cfg.LLM.Preferred)
	}
	for _, name := range catalog {
		if name != cfg.LLM.Preferred {
			order = append(order, name)
		}
	}

	var providers []llm.TextGenerationProvider
	for _, name := range order {
		pc, ok := cfg.Providers[name]
		if !ok || !pc.Enabled {
			continue
		}
		provider := buildProvider(name, pc, cfg.HTTP, logger)
		if provider == nil {
			continue
		}
		providers = append(providers, provider)
	}
	return providers
}

func buildProvider(name string, pc config.ProviderConfig, httpCfg config.HTTPConfig, logger hclog.Logger) llm.TextGenerationProvider {
	timeout := llmhttp.ParseTimeout(pc.Timeout, httpCfg.Timeout, defaultHTTPTimeout)
	retry := llmhttp.BuildRetryConfig(pc, httpCfg)
	httpLogger := llmhttp.NewHCLogger(logger.Named(name))

	switch name {
	case "groq":
		if pc.APIKey == "" {
			logger.Warn("provider enabled without API key, skipping", "provider", name)
			return nil
		}
		opts := []openai.Option{
			openai.WithTimeout(timeout),
			openai.WithRetryConfig(retry),
			openai.WithLogger(httpLogger),
		}
		if pc.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pc.BaseURL))
		}
		return openai.NewGroqClient(pc.APIKey, pc.Model, opts...)

	case "openai":
		if pc.APIKey == "" {
			logger.Warn("provider enabled without API key, skipping", "provider", name)
			return nil
		}
		opts := []openai.Option{
			openai.WithTimeout(timeout),
			openai.WithRetryConfig(retry),
			openai.WithLogger(httpLogger),
		}
		if pc.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pc.BaseURL))
		}
		return openai.NewClient(pc.APIKey, pc.Model, opts...)

	case "anthropic":
		if pc.APIKey == "" {
			logger.Warn("provider enabled without API key, skipping", "provider", name)
			return nil
		}
		opts := []anthropic.Option{
			anthropic.WithTimeout(timeout),
			anthropic.WithRetryConfig(retry),
			anthropic.WithLogger(httpLogger),
		}
		if pc.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(pc.BaseURL))
		}
		return anthropic.NewClient(pc.APIKey, pc.Model, opts...)

	case "gemini":
		if pc.APIKey == "" {
			logger.Warn("provider enabled without API key, skipping", "provider", name)
			return nil
		}
		opts := []gemini.Option{
			gemini.WithTimeout(timeout),
			gemini.WithRetryConfig(retry),
			gemini.WithLogger(httpLogger),
		}
		if pc.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(pc.BaseURL))
		}
		return gemini.NewClient(pc.APIKey, pc.Model, opts...)

	case "ollama":
		opts := []ollama.Option{
			ollama.WithTimeout(timeout),
			ollama.WithRetryConfig(retry),
			ollama.WithLogger(httpLogger),
		}
		if pc.BaseURL != "" {
			opts = append(opts, ollama.WithBaseURL(pc.BaseURL))
		}
		return ollama.NewClient(pc.Model, opts...)

	case "static":
		return static.NewProvider(pc.Model)

	default:
		logger.Warn("unknown provider in configuration, skipping", "provider", name)
		return nil
	}
}

func buildEmbedder(cfg config.SemanticConfig) semantic.Embedder {
	switch cfg.Backend {
	case "service":
		return embedding.NewServiceClient(cfg.BaseURL, cfg.Dimension)
	case "openai":
		if cfg.APIKey == "" {
			return nil
		}
		return embedding.NewOpenAIClient(cfg.APIKey, cfg.Model)
	default:
		return nil
	}
}

func repositoryName(repoDir string) string {
	abs, err := filepath.Abs(repoDir)
	if err != nil {
		return "unknown"
	}
	return filepath.Base(abs)
}

func defaultUser() string {
	if user := os.Getenv("SENTINEL_USER"); user != "" {
		return user
	}
	return "local"
}

func defaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "sentinel"))
	}
	return paths
}

// Compile-time interface compliance checks
var _ cli.Runner = (*app)(nil)
var _ pipeline.DiffSource = (*githubadapter.Client)(nil)
var _ pipeline.Notifier = (*githubadapter.Client)(nil)
var _ pipeline.DiffSource = (*repository.Source)(nil)
var _ pipeline.ModelAnalyzer = (*analysis.Orchestrator)(nil)
var _ pipeline.RiskScorer = (*risk.Scorer)(nil)
var _ pipeline.FindingEmbedder = (*semantic.Index)(nil)
var _ pipeline.QuotaService = (*usage.Service)(nil)
var _ pipeline.CommentRenderer = markdown.Renderer{}
var _ semantic.Embedder = (*embedding.ServiceClient)(nil)
var _ semantic.Embedder = (*embedding.OpenAIClient)(nil)
var _ llm.TextGenerationProvider = (*openai.Client)(nil)
var _ llm.TextGenerationProvider = (*anthropic.Client)(nil)
var _ llm.TextGenerationProvider = (*gemini.Client)(nil)
var _ llm.TextGenerationProvider = (*ollama.Client)(nil)
var _ llm.TextGenerationProvider = (*static.Provider)(nil)
