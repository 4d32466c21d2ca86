// Package cli wires the cobra command tree. Commands stay thin: flag
// parsing and output formatting here, semantics in the usecase layer.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	outjson "github.com/sentinelci/pr-sentinel/internal/adapter/output/json"
	"github.com/sentinelci/pr-sentinel/internal/adapter/output/markdown"
	"github.com/sentinelci/pr-sentinel/internal/adapter/output/sarif"
	"github.com/sentinelci/pr-sentinel/internal/domain"
	"github.com/sentinelci/pr-sentinel/internal/store"
	"github.com/sentinelci/pr-sentinel/internal/usecase/pipeline"
	"github.com/sentinelci/pr-sentinel/internal/usecase/semantic"
	"github.com/sentinelci/pr-sentinel/internal/usecase/usage"
)

// ErrVersionRequested indicates the user requested the CLI version and
// no further work should be done.
var ErrVersionRequested = errors.New("version requested")

// AnalyzeRequest carries everything one analysis invocation needs.
type AnalyzeRequest struct {
	Repository string
	PRNumber   int
	BaseRef    string
	HeadRef    string
	Local      bool
	RepoDir    string
	UserID     string
}

// Runner executes analyses. The host process chooses the diff source
// (GitHub API or local clone) per request.
type Runner interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (pipeline.Result, error)
	Rerun(ctx context.Context, runID, userID string) (pipeline.Result, error)
}

// StatsProvider reports quota consumption.
type StatsProvider interface {
	GetStats(ctx context.Context, userID string) (usage.Stats, error)
}

// Arguments encapsulates IO writers injected from the host process.
type Arguments struct {
	OutWriter io.Writer
	ErrWriter io.Writer
}

// Dependencies captures the collaborators for the CLI.
type Dependencies struct {
	Runner Runner
	Store  store.Store   // optional: history-backed commands degrade without it
	Stats  StatsProvider // optional

	Args          Arguments
	DefaultOutput string
	DefaultUser   string
	MinSimilarity float64
	Version       string
}

// NewRootCommand constructs the root cobra command.
func NewRootCommand(deps Dependencies) *cobra.Command {
	versionString := deps.Version
	if versionString == "" {
		versionString = "v0.0.0"
	}

	root := &cobra.Command{
		Use:   "sentinel",
		Short: "Automated pull request analysis",
	}
	root.SilenceUsage = true
	root.SilenceErrors = true

	outWriter := deps.Args.OutWriter
	if outWriter == nil {
		outWriter = os.Stdout
	}
	errWriter := deps.Args.ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}
	root.SetOut(outWriter)
	root.SetErr(errWriter)

	root.AddCommand(analyzeCommand(deps))
	root.AddCommand(rerunCommand(deps))
	root.AddCommand(runsCommand(deps))
	root.AddCommand(patternsCommand(deps))
	root.AddCommand(usageCommand(deps))

	var showVersion bool
	root.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "Show version and exit")
	versionHandler := func(cmd *cobra.Command, args []string) error {
		if showVersion {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), versionString)
			return ErrVersionRequested
		}
		return nil
	}
	root.PersistentPreRunE = versionHandler
	root.RunE = func(cmd *cobra.Command, args []string) error {
		if err := versionHandler(cmd, args); err != nil {
			return err
		}
		return cmd.Help()
	}

	return root
}

func analyzeCommand(deps Dependencies) *cobra.Command {
	var repository string
	var prNumber int
	var baseRef string
	var headRef string
	var local bool
	var repoDir string
	var userID string
	var outputDir string
	var formats []string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a pull request or a local branch diff",
		RunE: func(cmd *cobra.Command, args []string) error {
			if repository == "" && !local {
				return fmt.Errorf("--repo is required")
			}
			if !local && prNumber <= 0 {
				return fmt.Errorf("--pr must be a positive integer unless --local is set")
			}
			if userID == "" {
				userID = deps.DefaultUser
			}

			result, err := deps.Runner.Analyze(cmd.Context(), AnalyzeRequest{
				Repository: repository,
				PRNumber:   prNumber,
				BaseRef:    baseRef,
				HeadRef:    headRef,
				Local:      local,
				RepoDir:    repoDir,
				UserID:     userID,
			})
			if err != nil {
				var quotaErr *pipeline.QuotaError
				if errors.As(err, &quotaErr) {
					return fmt.Errorf("quota exceeded: %s", quotaErr.Reason)
				}
				return err
			}

			printResult(cmd.OutOrStdout(), result)
			return writeArtifacts(cmd, result, formats, outputDir)
		},
	}

	cmd.Flags().StringVar(&repository, "repo", "", "Repository in owner/name form (with --local, defaults to the directory name)")
	cmd.Flags().IntVar(&prNumber, "pr", 0, "Pull request number")
	cmd.Flags().StringVar(&baseRef, "base", "main", "Base reference for local analysis")
	cmd.Flags().StringVar(&headRef, "head", "", "Head reference for local analysis (defaults to the checked-out branch)")
	cmd.Flags().BoolVar(&local, "local", false, "Diff a local clone instead of the GitHub API")
	cmd.Flags().StringVar(&repoDir, "repo-dir", ".", "Local repository directory (with --local)")
	cmd.Flags().StringVar(&userID, "user", "", "User the analysis is billed to")
	if deps.DefaultOutput == "" {
		deps.DefaultOutput = "out"
	}
	cmd.Flags().StringVar(&outputDir, "output", deps.DefaultOutput, "Directory to write report artifacts")
	cmd.Flags().StringSliceVar(&formats, "format", []string{"markdown"}, "Report formats to write (markdown, json, sarif)")

	return cmd
}

func rerunCommand(deps Dependencies) *cobra.Command {
	var userID string
	var outputDir string
	var formats []string

	cmd := &cobra.Command{
		Use:   "rerun [run-id]",
		Short: "Re-execute a completed or failed run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				userID = deps.DefaultUser
			}
			result, err := deps.Runner.Rerun(cmd.Context(), args[0], userID)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result)
			return writeArtifacts(cmd, result, formats, outputDir)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User the analysis is billed to")
	if deps.DefaultOutput == "" {
		deps.DefaultOutput = "out"
	}
	cmd.Flags().StringVar(&outputDir, "output", deps.DefaultOutput, "Directory to write report artifacts")
	cmd.Flags().StringSliceVar(&formats, "format", []string{"markdown"}, "Report formats to write (markdown, json, sarif)")

	return cmd
}

func runsCommand(deps Dependencies) *cobra.Command {
	var repository string
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent analysis runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.Store == nil {
				return fmt.Errorf("run history requires the store to be enabled")
			}
			runs, err := deps.Store.ListRuns(cmd.Context(), repository, limit)
			if err != nil {
				return err
			}
			for _, run := range runs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s#%d  %s  risk=%d  %s\n",
					run.ID, run.Repository, run.PRNumber, run.Status, run.RiskScore,
					run.StartedAt.Format("2006-01-02 15:04"),
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repository, "repo", "", "Filter by repository")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")

	return cmd
}

func patternsCommand(deps Dependencies) *cobra.Command {
	var repository string
	var limit int
	var minSimilarity float64

	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Report recurring issue patterns across a repository's history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.Store == nil {
				return fmt.Errorf("pattern analysis requires the store to be enabled")
			}
			if repository == "" {
				return fmt.Errorf("--repo is required")
			}

			findings, err := deps.Store.ListFindingsByRepository(cmd.Context(), repository, limit)
			if err != nil {
				return err
			}

			threshold := minSimilarity
			if !cmd.Flags().Changed("min-similarity") {
				threshold = deps.MinSimilarity
			}
			report := semantic.AnalyzePatterns(findings, threshold)
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&repository, "repo", "", "Repository in owner/name form")
	cmd.Flags().IntVar(&limit, "limit", 200, "Maximum historical findings to analyze")
	cmd.Flags().Float64Var(&minSimilarity, "min-similarity", semantic.DefaultMinSimilarity, "Clustering similarity threshold")

	return cmd
}

func usageCommand(deps Dependencies) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show quota consumption for the current month",
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.Stats == nil {
				return fmt.Errorf("usage stats require the store to be enabled")
			}
			if userID == "" {
				userID = deps.DefaultUser
			}
			stats, err := deps.Stats.GetStats(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User to report on")

	return cmd
}

func printResult(out io.Writer, result pipeline.Result) {
	run := result.Run
	fmt.Fprintf(out, "Run %s: %s\n", run.ID, run.Status)
	fmt.Fprintf(out, "Risk score: %d/100 (%s)\n", run.RiskScore, domain.RiskLabel(run.RiskScore))
	fmt.Fprintf(out, "Findings: %d\n", len(result.Findings))

	counts := map[string]int{}
	for _, f := range result.Findings {
		counts[f.Severity]++
	}
	for _, severity := range []string{domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow, domain.SeverityInfo} {
		if counts[severity] > 0 {
			fmt.Fprintf(out, "  %s: %d\n", severity, counts[severity])
		}
	}

	if run.Summary != "" {
		fmt.Fprintf(out, "\n%s\n", run.Summary)
	}
	for _, skip := range skippedStages(result.Stages) {
		fmt.Fprintf(out, "skipped: %s\n", skip)
	}
}

func skippedStages(stages pipeline.Stages) []string {
	var skipped []string
	add := func(name, reason string, wasSkipped bool) {
		if wasSkipped {
			skipped = append(skipped, fmt.Sprintf("%s (%s)", name, reason))
		}
	}
	add("model analysis", stages.ModelAnalysis.Reason, stages.ModelAnalysis.Skipped)
	add("auto-fix", stages.AutoFix.Reason, stages.AutoFix.Skipped)
	add("embeddings", stages.Embeddings.Reason, stages.Embeddings.Skipped)
	add("risk scoring", stages.Risk.Reason, stages.Risk.Skipped)
	add("summary", stages.Summary.Reason, stages.Summary.Skipped)
	add("notification", stages.Notification.Reason, stages.Notification.Skipped)
	return skipped
}

func writeArtifacts(cmd *cobra.Command, result pipeline.Result, formats []string, outputDir string) error {
	now := func() string { return result.Run.StartedAt.UTC().Format("20060102T150405") }

	for _, format := range formats {
		var path string
		var err error
		switch format {
		case "markdown":
			path, err = markdown.NewWriter(now).Write(cmd.Context(), result.Run, result.Findings, outputDir)
		case "json":
			path, err = outjson.NewWriter(now).Write(cmd.Context(), result.Run, result.Findings, outputDir)
		case "sarif":
			path, err = sarif.NewWriter(now).Write(cmd.Context(), result.Run, result.Findings, outputDir)
		default:
			return fmt.Errorf("unknown format %q (expected markdown, json, or sarif)", format)
		}
		if err != nil {
			return fmt.Errorf("write %s report: %w", format, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	}
	return nil
}

func printJSON(out io.Writer, v interface{}) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
