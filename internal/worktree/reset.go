package worktree

import (
	"fmt"
	"os/exec"
	"strings"
)

// Resetter restores a working copy to its last known-good state
type Resetter interface {
	Reset() error
}

// GitResetter hard-restores a git checkout: tracked files back to
// HEAD, untracked files removed
type GitResetter struct {
	repoPath string
}

// NewGitResetter creates a resetter for the checkout at repoPath
func NewGitResetter(repoPath string) *GitResetter {
	return &GitResetter{repoPath: repoPath}
}

// Reset discards all uncommitted changes in the checkout
func (g *GitResetter) Reset() error {
	if _, err := g.runGit("checkout", "--", "."); err != nil {
		return err
	}
	if _, err := g.runGit("clean", "-fd"); err != nil {
		return err
	}
	return nil
}

func (g *GitResetter) runGit(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = g.repoPath

	out, err := cmd.CombinedOutput()
	output := strings.TrimRight(string(out), " \t\r\n")
	if err != nil {
		return output, fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), output, err)
	}
	return output, nil
}

// MemResetter restores a MemTree from a snapshot copy taken at
// construction time
type MemResetter struct {
	tree     *MemTree
	snapshot *MemTree
}

// NewMemResetter captures the current state of tree as the
// known-good baseline
func NewMemResetter(tree *MemTree) *MemResetter {
	return &MemResetter{tree: tree, snapshot: tree.Clone()}
}

// Reset restores the tree to the captured baseline
func (m *MemResetter) Reset() error {
	m.tree.RestoreFrom(m.snapshot)
	return nil
}
