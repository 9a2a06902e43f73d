// internal/remediation/git.go
package remediation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// GitConfirmer fingerprints a git worktree by its HEAD commit and status.
// A commit, an edit or a new untracked file all change the fingerprint,
// except for files under the ignored directories.
type GitConfirmer struct {
	path   string
	ignore []string
}

// NewGitConfirmer watches the repository containing path. Changes under
// ignore (report and request output written by the run itself) are not
// counted.
func NewGitConfirmer(path string, ignore ...string) *GitConfirmer {
	if path == "" {
		path = "."
	}
	var dirs []string
	for _, dir := range ignore {
		if dir != "" {
			dirs = append(dirs, dir)
		}
	}
	return &GitConfirmer{path: path, ignore: dirs}
}

func (g *GitConfirmer) Fingerprint(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	repo, err := git.PlainOpenWithOptions(g.path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("opening repository at %s: %w", g.path, err)
	}

	head := "unborn"
	ref, err := repo.Head()
	switch {
	case err == nil:
		head = ref.Hash().String()
	case !errors.Is(err, plumbing.ErrReferenceNotFound):
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("opening worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("reading worktree status: %w", err)
	}

	prefixes := g.ignoredPrefixes(wt.Filesystem.Root())
	for file := range status {
		for _, prefix := range prefixes {
			if strings.HasPrefix(file, prefix) {
				delete(status, file)
				break
			}
		}
	}
	return head + "\n" + status.String(), nil
}

// ignoredPrefixes returns the ignored directories as slash-separated
// prefixes relative to root. Directories outside the worktree are dropped.
func (g *GitConfirmer) ignoredPrefixes(root string) []string {
	root = resolve(root)
	var prefixes []string
	for _, dir := range g.ignore {
		rel, err := filepath.Rel(root, resolve(dir))
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		prefixes = append(prefixes, filepath.ToSlash(rel)+"/")
	}
	return prefixes
}

// resolve makes path absolute and follows symlinks as far as it exists.
func resolve(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	parent, base := filepath.Split(abs)
	if parent == abs || parent == "" {
		return abs
	}
	return filepath.Join(resolve(filepath.Clean(parent)), base)
}
