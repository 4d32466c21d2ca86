package repository_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	goGit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/sentinelci/pr-sentinel/internal/adapter/repository"
	"github.com/sentinelci/pr-sentinel/internal/domain"
)

func TestSourceGetDiffBetweenBranches(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()

	_, worktree := initRepo(t, tmp)

	writeFile(t, tmp, "app.py", "def handler():\n    return 1\n")
	writeFile(t, tmp, "legacy.py", "old = True\n")
	addAll(t, worktree, "app.py", "legacy.py")
	commit(t, worktree, "initial")

	checkoutBranch(t, worktree, "feature")

	writeFile(t, tmp, "app.py", "def handler():\n    return compute()\n\ndef compute():\n    return 2\n")
	writeFile(t, tmp, "api.go", "package api\n")
	if err := os.Remove(filepath.Join(tmp, "legacy.py")); err != nil {
		t.Fatalf("remove error: %v", err)
	}
	addAll(t, worktree, "app.py", "api.go", "legacy.py")
	commit(t, worktree, "feature change")

	source := repository.NewSource(tmp, "master", "feature")
	changes, err := source.GetDiff(ctx, "local/repo", 0)
	if err != nil {
		t.Fatalf("GetDiff returned error: %v", err)
	}

	if len(changes) != 3 {
		t.Fatalf("expected 3 file changes, got %d: %+v", len(changes), changes)
	}

	byName := make(map[string]domain.FileChange, len(changes))
	for _, change := range changes {
		byName[change.Filename] = change
	}

	modified, ok := byName["app.py"]
	if !ok {
		t.Fatalf("missing app.py in changes: %+v", changes)
	}
	if modified.Status != domain.FileStatusModified {
		t.Errorf("app.py status = %s, want modified", modified.Status)
	}
	if modified.Language != "python" {
		t.Errorf("app.py language = %s, want python", modified.Language)
	}
	if modified.Additions != 4 || modified.Deletions != 1 {
		t.Errorf("app.py counts = +%d/-%d, want +4/-1", modified.Additions, modified.Deletions)
	}
	if !strings.Contains(modified.Patch, "compute()") {
		t.Errorf("app.py patch missing change: %s", modified.Patch)
	}
	if !strings.Contains(modified.FullContent, "def compute()") {
		t.Errorf("app.py full content not from head: %s", modified.FullContent)
	}

	added, ok := byName["api.go"]
	if !ok {
		t.Fatalf("missing api.go in changes: %+v", changes)
	}
	if added.Status != domain.FileStatusAdded {
		t.Errorf("api.go status = %s, want added", added.Status)
	}
	if added.Language != "go" {
		t.Errorf("api.go language = %s, want go", added.Language)
	}
	if added.Additions != 1 || added.Deletions != 0 {
		t.Errorf("api.go counts = +%d/-%d, want +1/-0", added.Additions, added.Deletions)
	}

	removed, ok := byName["legacy.py"]
	if !ok {
		t.Fatalf("missing legacy.py in changes: %+v", changes)
	}
	if removed.Status != domain.FileStatusRemoved {
		t.Errorf("legacy.py status = %s, want removed", removed.Status)
	}
	if removed.FullContent != "" {
		t.Errorf("removed file should not carry content, got %q", removed.FullContent)
	}
}

func TestSourceGetPullRequestSHAs(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()

	_, worktree := initRepo(t, tmp)
	writeFile(t, tmp, "main.go", "package main\n")
	addAll(t, worktree, "main.go")
	base := commit(t, worktree, "initial")

	checkoutBranch(t, worktree, "feature")
	writeFile(t, tmp, "main.go", "package main\n\nfunc main() {}\n")
	addAll(t, worktree, "main.go")
	head := commit(t, worktree, "change")

	source := repository.NewSource(tmp, "master", "feature")
	gotBase, gotHead, err := source.GetPullRequestSHAs(ctx, "local/repo", 0)
	if err != nil {
		t.Fatalf("GetPullRequestSHAs returned error: %v", err)
	}
	if gotBase != base.String() {
		t.Errorf("base SHA = %s, want %s", gotBase, base)
	}
	if gotHead != head.String() {
		t.Errorf("head SHA = %s, want %s", gotHead, head)
	}
}

func TestSourceGetFileContent(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()

	_, worktree := initRepo(t, tmp)
	writeFile(t, tmp, "config.yaml", "version: 1\n")
	addAll(t, worktree, "config.yaml")
	commit(t, worktree, "initial")

	checkoutBranch(t, worktree, "feature")
	writeFile(t, tmp, "config.yaml", "version: 2\n")
	addAll(t, worktree, "config.yaml")
	commit(t, worktree, "bump")

	source := repository.NewSource(tmp, "master", "feature")

	atBase, err := source.GetFileContent(ctx, "local/repo", "config.yaml", "master")
	if err != nil {
		t.Fatalf("GetFileContent(base) returned error: %v", err)
	}
	if atBase != "version: 1\n" {
		t.Errorf("base content = %q, want version 1", atBase)
	}

	atHead, err := source.GetFileContent(ctx, "local/repo", "config.yaml", "")
	if err != nil {
		t.Fatalf("GetFileContent(head) returned error: %v", err)
	}
	if atHead != "version: 2\n" {
		t.Errorf("head content = %q, want version 2", atHead)
	}

	missing, err := source.GetFileContent(ctx, "local/repo", "nope.txt", "")
	if err != nil {
		t.Fatalf("GetFileContent(missing) returned error: %v", err)
	}
	if missing != "" {
		t.Errorf("missing file content = %q, want empty", missing)
	}
}

func TestSourceCurrentBranch(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()

	_, worktree := initRepo(t, tmp)
	writeFile(t, tmp, "main.go", "package main\n")
	addAll(t, worktree, "main.go")
	commit(t, worktree, "initial")
	checkoutBranch(t, worktree, "work")

	source := repository.NewSource(tmp, "master", "work")
	branch, err := source.CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch returned error: %v", err)
	}
	if branch != "work" {
		t.Errorf("branch = %s, want work", branch)
	}
}

func TestSourceUnresolvableRef(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()

	_, worktree := initRepo(t, tmp)
	writeFile(t, tmp, "main.go", "package main\n")
	addAll(t, worktree, "main.go")
	commit(t, worktree, "initial")

	source := repository.NewSource(tmp, "no-such-branch", "master")
	if _, err := source.GetDiff(ctx, "local/repo", 0); err == nil {
		t.Fatal("expected error for unresolvable base ref")
	}
}

func initRepo(t *testing.T, dir string) (*goGit.Repository, *goGit.Worktree) {
	t.Helper()
	repo, err := goGit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("failed to init repo: %v", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatalf("failed to get worktree: %v", err)
	}
	return repo, worktree
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write file error: %v", err)
	}
}

func addAll(t *testing.T, worktree *goGit.Worktree, names ...string) {
	t.Helper()
	for _, name := range names {
		if _, err := worktree.Add(name); err != nil {
			t.Fatalf("add %s error: %v", name, err)
		}
	}
}

func commit(t *testing.T, worktree *goGit.Worktree, message string) plumbing.Hash {
	t.Helper()
	hash, err := worktree.Commit(message, &goGit.CommitOptions{
		Author: &object.Signature{
			Name:  "Test",
			Email: "test@example.com",
			When:  time.Unix(0, 0),
		},
	})
	if err != nil {
		t.Fatalf("commit error: %v", err)
	}
	return hash
}

func checkoutBranch(t *testing.T, worktree *goGit.Worktree, branch string) {
	t.Helper()
	err := worktree.Checkout(&goGit.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: true,
	})
	if err != nil {
		t.Fatalf("checkout error: %v", err)
	}
}
