package patch

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"patchloop/internal/worktree"
)

// strategy is one structural way of landing a chunk onto the tree
type strategy struct {
	name  string
	apply func(c Chunk, tree worktree.Tree) error
}

// Applier attempts an ordered list of structural strategies against
// one chunk, stopping at the first success. Each strategy sees the
// unmutated tree for that chunk: a strategy either fully applies its
// chunk or leaves the tree untouched.
type Applier struct {
	strategies []strategy
}

// NewApplier creates an applier with the standard strategy order:
// fuzzy context-tolerant apply, strict apply, then line-offset apply
// as last resort
func NewApplier() *Applier {
	return &Applier{
		strategies: []strategy{
			{name: "fuzzy", apply: fuzzyApply},
			{name: "strict", apply: strictApply},
			{name: "offset", apply: offsetApply},
		},
	}
}

// Apply attempts to structurally land c onto the tree. Returns true
// with the winning strategy name, or false with the reason no
// strategy succeeded.
func (a *Applier) Apply(c Chunk, tree worktree.Tree) (bool, string) {
	var lastErr error
	for _, s := range a.strategies {
		if err := s.apply(c, tree); err == nil {
			return true, s.name
		} else {
			lastErr = fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return false, lastErr.Error()
}

// splitLines breaks file content into lines, dropping the trailing
// newline that joinLines restores on write
func splitLines(content string) []string {
	trimmed := strings.TrimSuffix(content, "\n")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// fuzzyApply re-anchors each hunk by whitespace-normalized block
// matching against the current file content, then applies with
// whitespace correction. This is the most tolerant strategy and
// handles generator patches with drifted line numbers.
func fuzzyApply(c Chunk, tree worktree.Tree) error {
	hunks := parseHunks(c.Raw)
	if len(hunks) == 0 {
		return fmt.Errorf("chunk contains no hunks")
	}

	switch c.Op {
	case OpAdd:
		return tree.Write(c.Target(), newFileContent(hunks))
	case OpDelete:
		return applyDelete(c, tree, hunks, matchNormalized, fuzzyLocate)
	default:
		return applyModify(c, tree, hunks, matchNormalized, fuzzyLocate)
	}
}

// strictApply parses the chunk with the unified-diff grammar and
// applies hunks at their stated positions, tolerating only trailing
// whitespace differences
func strictApply(c Chunk, tree worktree.Tree) error {
	fd, err := diff.ParseFileDiff([]byte(c.Raw))
	if err != nil {
		return fmt.Errorf("diff parse failed: %w", err)
	}

	hunks := make([]hunk, 0, len(fd.Hunks))
	for _, h := range fd.Hunks {
		converted := hunk{origStart: int(h.OrigStartLine), origLines: int(h.OrigLines)}
		for _, line := range strings.Split(strings.TrimSuffix(string(h.Body), "\n"), "\n") {
			if len(line) == 0 {
				continue
			}
			switch line[0] {
			case ' ', '+', '-':
				converted.lines = append(converted.lines, hunkLine{kind: line[0], text: line[1:]})
			}
		}
		hunks = append(hunks, converted)
	}
	if len(hunks) == 0 {
		return fmt.Errorf("chunk contains no hunks")
	}

	switch c.Op {
	case OpAdd:
		return tree.Write(c.Target(), newFileContent(hunks))
	case OpDelete:
		return applyDelete(c, tree, hunks, matchTrimmed, headerLocate)
	default:
		return applyModify(c, tree, hunks, matchTrimmed, headerLocate)
	}
}

// offsetApply lands hunks blindly at their header line numbers with
// no context verification. Last resort; never used for deletes, which
// must not remove a file the hunk does not describe.
func offsetApply(c Chunk, tree worktree.Tree) error {
	if c.Op == OpDelete {
		return fmt.Errorf("offset apply not attempted for deletes")
	}

	hunks := parseHunks(c.Raw)
	if len(hunks) == 0 {
		return fmt.Errorf("chunk contains no hunks")
	}
	if c.Op == OpAdd {
		return tree.Write(c.Target(), newFileContent(hunks))
	}
	return applyModify(c, tree, hunks, nil, headerLocate)
}

// locator finds the 1-based line at which a hunk should apply.
// offset is the cumulative line delta from earlier hunks.
type locator func(src []string, h hunk, offset int) (int, error)

func fuzzyLocate(src []string, h hunk, offset int) (int, error) {
	block := removedBlock(h)
	if len(block) == 0 {
		// Pure-insertion hunk: honor the header position when the
		// hunk has one, append at end only when it does not
		if start, err := headerLocate(src, h, offset); err == nil {
			return start, nil
		}
		return len(src) + 1, nil
	}
	start := matchBlock(src, block)
	if start < 0 {
		return 0, fmt.Errorf("no matching block found for hunk")
	}
	return start, nil
}

func headerLocate(src []string, h hunk, offset int) (int, error) {
	if h.origStart <= 0 {
		return 0, fmt.Errorf("hunk has no usable header position")
	}
	start := h.origStart + offset
	if h.origLines == 0 {
		// A zero-length source range names the line the insertion
		// follows, not the line it lands on
		start++
	}
	if start < 1 {
		start = 1
	}
	if start > len(src)+1 {
		start = len(src) + 1
	}
	return start, nil
}

// applyModify rewrites the chunk's target file hunk by hunk
func applyModify(c Chunk, tree worktree.Tree, hunks []hunk, match lineMatcher, locate locator) error {
	content, ok := tree.Read(c.SourcePath)
	if !ok {
		return fmt.Errorf("source %s not readable", c.SourcePath)
	}
	lines := splitLines(content)

	offset := 0
	for _, h := range hunks {
		start, err := locate(lines, h, offset)
		if err != nil {
			return err
		}
		before := len(lines)
		lines, err = applyHunkAt(lines, start, h, match)
		if err != nil {
			return err
		}
		offset += len(lines) - before
	}

	if c.DestPath != "" && c.DestPath != c.SourcePath {
		// Rename: content lands at the destination path
		if err := tree.Write(c.DestPath, joinLines(lines)); err != nil {
			return err
		}
		return tree.Remove(c.SourcePath)
	}
	return tree.Write(c.SourcePath, joinLines(lines))
}

// applyDelete removes the chunk's source file, but only when the
// hunks fully account for its current content
func applyDelete(c Chunk, tree worktree.Tree, hunks []hunk, match lineMatcher, locate locator) error {
	content, ok := tree.Read(c.SourcePath)
	if !ok {
		return fmt.Errorf("source %s not readable", c.SourcePath)
	}
	lines := splitLines(content)

	offset := 0
	for _, h := range hunks {
		start, err := locate(lines, h, offset)
		if err != nil {
			return err
		}
		before := len(lines)
		lines, err = applyHunkAt(lines, start, h, match)
		if err != nil {
			return err
		}
		offset += len(lines) - before
	}

	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			return fmt.Errorf("delete hunks leave %s non-empty", c.SourcePath)
		}
	}
	return tree.Remove(c.SourcePath)
}
