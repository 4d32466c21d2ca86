// Package repository provides a diff source backed by a local git clone.
// It lets the CLI analyze changes between two refs without GitHub
// credentials, producing the same file change records as the API client.
package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	goGit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	formatdiff "github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/sentinelci/pr-sentinel/internal/domain"
)

// Source computes diffs between two refs of a local repository.
// The repo and pull request arguments on the port methods identify the
// analysis target for run records; the diff always comes from the
// configured refs.
type Source struct {
	repoDir string
	baseRef string
	headRef string
}

// NewSource creates a diff source for the repository at repoDir.
// repoDir may point anywhere inside a working tree.
func NewSource(repoDir, baseRef, headRef string) *Source {
	return &Source{repoDir: repoDir, baseRef: baseRef, headRef: headRef}
}

// GetDiff returns the file changes between the configured base and head refs.
func (s *Source) GetDiff(ctx context.Context, _ string, _ int) ([]domain.FileChange, error) {
	repo, err := s.open()
	if err != nil {
		return nil, err
	}

	baseCommit, err := resolveCommit(repo, s.baseRef)
	if err != nil {
		return nil, fmt.Errorf("resolve base ref: %w", err)
	}
	headCommit, err := resolveCommit(repo, s.headRef)
	if err != nil {
		return nil, fmt.Errorf("resolve head ref: %w", err)
	}

	patch, err := baseCommit.Patch(headCommit)
	if err != nil {
		return nil, fmt.Errorf("compute patch: %w", err)
	}

	changes := make([]domain.FileChange, 0, len(patch.FilePatches()))
	for _, fp := range patch.FilePatches() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path, status := filePathAndStatus(fp)
		if path == "" {
			continue
		}

		change := domain.FileChange{
			Filename: path,
			Status:   status,
			Language: domain.DetectLanguage(path),
		}

		if !fp.IsBinary() {
			patchText, err := encodeFilePatch(fp)
			if err != nil {
				return nil, fmt.Errorf("encode patch for %s: %w", path, err)
			}
			change.Patch = patchText
			change.Additions, change.Deletions = countChunkLines(fp)
		}

		if status != domain.FileStatusRemoved {
			// Best effort: analyzers degrade to patch-only context.
			if content, err := commitFileContent(headCommit, path); err == nil {
				change.FullContent = content
			}
		}

		changes = append(changes, change)
	}

	return changes, nil
}

// GetPullRequestSHAs resolves the configured refs to commit hashes.
func (s *Source) GetPullRequestSHAs(ctx context.Context, _ string, _ int) (string, string, error) {
	repo, err := s.open()
	if err != nil {
		return "", "", err
	}
	baseCommit, err := resolveCommit(repo, s.baseRef)
	if err != nil {
		return "", "", fmt.Errorf("resolve base ref: %w", err)
	}
	headCommit, err := resolveCommit(repo, s.headRef)
	if err != nil {
		return "", "", fmt.Errorf("resolve head ref: %w", err)
	}
	return baseCommit.Hash.String(), headCommit.Hash.String(), nil
}

// GetFileContent reads a file from the given ref, or from the head ref
// when ref is empty. Missing files yield an empty string without error.
func (s *Source) GetFileContent(ctx context.Context, _ string, path, ref string) (string, error) {
	repo, err := s.open()
	if err != nil {
		return "", err
	}
	if ref == "" {
		ref = s.headRef
	}
	commit, err := resolveCommit(repo, ref)
	if err != nil {
		return "", fmt.Errorf("resolve ref: %w", err)
	}
	content, err := commitFileContent(commit, path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("read %s at %s: %w", path, ref, err)
	}
	return content, nil
}

// CurrentBranch returns the name of the checked-out branch.
func (s *Source) CurrentBranch(ctx context.Context) (string, error) {
	repo, err := s.open()
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	if name := head.Name(); name.IsBranch() {
		return name.Short(), nil
	}
	return "", fmt.Errorf("detached HEAD")
}

func (s *Source) open() (*goGit.Repository, error) {
	repo, err := goGit.PlainOpenWithOptions(s.repoDir, &goGit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func resolveCommit(repo *goGit.Repository, ref string) (*object.Commit, error) {
	candidates := []string{
		ref,
		fmt.Sprintf("refs/heads/%s", ref),
		fmt.Sprintf("refs/remotes/origin/%s", ref),
	}

	var lastErr error
	for _, candidate := range candidates {
		hash, err := repo.ResolveRevision(plumbing.Revision(candidate))
		if err != nil {
			lastErr = err
			continue
		}
		return repo.CommitObject(*hash)
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("unable to resolve ref %s", ref)
}

// filePathAndStatus maps a file patch to its path and change status.
// Renames are reported as modifications of the new path.
func filePathAndStatus(fp formatdiff.FilePatch) (string, string) {
	from, to := fp.Files()
	switch {
	case from == nil && to != nil:
		return to.Path(), domain.FileStatusAdded
	case from != nil && to == nil:
		return from.Path(), domain.FileStatusRemoved
	case from != nil && to != nil:
		return to.Path(), domain.FileStatusModified
	default:
		return "", domain.FileStatusModified
	}
}

func countChunkLines(fp formatdiff.FilePatch) (additions, deletions int) {
	for _, chunk := range fp.Chunks() {
		content := strings.TrimSuffix(chunk.Content(), "\n")
		if content == "" {
			continue
		}
		lines := strings.Count(content, "\n") + 1
		switch chunk.Type() {
		case formatdiff.Add:
			additions += lines
		case formatdiff.Delete:
			deletions += lines
		}
	}
	return additions, deletions
}

func encodeFilePatch(fp formatdiff.FilePatch) (string, error) {
	var buf bytes.Buffer
	encoder := formatdiff.NewUnifiedEncoder(&buf, formatdiff.DefaultContextLines)
	if err := encoder.Encode(singlePatch{fp: fp}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func commitFileContent(commit *object.Commit, path string) (string, error) {
	file, err := commit.File(path)
	if err != nil {
		return "", err
	}
	return file.Contents()
}

// singlePatch adapts one FilePatch to the Patch interface the unified
// encoder expects.
type singlePatch struct {
	fp formatdiff.FilePatch
}

func (s singlePatch) FilePatches() []formatdiff.FilePatch {
	return []formatdiff.FilePatch{s.fp}
}

func (s singlePatch) Message() string {
	return ""
}
