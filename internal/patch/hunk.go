package patch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// hunkLine is a single patch body line: kind is ' ', '+' or '-'
type hunkLine struct {
	kind byte
	text string
}

// hunk is one @@-delimited section of a chunk. origStart is the
// 1-based source line from the hunk header, 0 when the header was
// absent or unparsable.
type hunk struct {
	origStart int
	origLines int
	lines     []hunkLine
}

var hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// parseHunks scans a chunk body into hunks, tolerating missing or
// malformed @@ headers: body lines before the first header are
// collected into a headerless hunk
func parseHunks(raw string) []hunk {
	var hunks []hunk
	var current *hunk

	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(line, "diff --git ") ||
			strings.HasPrefix(line, "index ") ||
			strings.HasPrefix(line, "new file mode") ||
			strings.HasPrefix(line, "deleted file mode") ||
			strings.HasPrefix(line, "--- ") ||
			strings.HasPrefix(line, "+++ ") {
			continue
		}

		if m := hunkHeaderRegex.FindStringSubmatch(line); m != nil {
			if current != nil && len(current.lines) > 0 {
				hunks = append(hunks, *current)
			}
			start, _ := strconv.Atoi(m[1])
			count := 1
			if m[2] != "" {
				count, _ = strconv.Atoi(m[2])
			}
			current = &hunk{origStart: start, origLines: count}
			continue
		}

		if len(line) == 0 {
			continue
		}
		switch line[0] {
		case ' ', '+', '-':
			if current == nil {
				current = &hunk{}
			}
			current.lines = append(current.lines, hunkLine{kind: line[0], text: line[1:]})
		}
	}

	if current != nil && len(current.lines) > 0 {
		hunks = append(hunks, *current)
	}
	return hunks
}

// newFileContent assembles the full body of an added file from the
// inserted lines of its hunks
func newFileContent(hunks []hunk) string {
	var b strings.Builder
	for _, h := range hunks {
		for _, hl := range h.lines {
			if hl.kind == '+' {
				b.WriteString(hl.text)
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}

// removedBlock returns the lines a hunk expects to exist in the
// source: context and removed lines, skipping blank ones
func removedBlock(h hunk) []string {
	var block []string
	for _, hl := range h.lines {
		if (hl.kind == ' ' || hl.kind == '-') && strings.TrimSpace(hl.text) != "" {
			block = append(block, hl.text)
		}
	}
	return block
}

// normalizeLine collapses all whitespace runs to single spaces so
// comparisons tolerate indentation drift
func normalizeLine(line string) string {
	return strings.Join(strings.Fields(line), " ")
}

// matchBlock locates block inside source, tolerating whitespace and
// blank-line differences. Returns the 1-based source line where the
// match begins, or -1.
func matchBlock(source, block []string) int {
	if len(block) == 0 {
		return -1
	}

	normalized := make([]string, len(block))
	for i, line := range block {
		normalized[i] = normalizeLine(line)
	}

	var filtered []string
	var originalLineNumbers []int
	for i, line := range source {
		n := normalizeLine(line)
		if n != "" {
			filtered = append(filtered, n)
			originalLineNumbers = append(originalLineNumbers, i+1)
		}
	}

	for i := 0; i+len(normalized) <= len(filtered); i++ {
		match := true
		for j := range normalized {
			if filtered[i+j] != normalized[j] {
				match = false
				break
			}
		}
		if match {
			return originalLineNumbers[i]
		}
	}
	return -1
}

// lineMatcher compares a source line against the line a hunk expects.
// nil means trust the hunk without verification.
type lineMatcher func(source, want string) bool

func matchNormalized(source, want string) bool {
	return normalizeLine(source) == normalizeLine(want)
}

func matchTrimmed(source, want string) bool {
	return strings.TrimRight(source, " \t") == strings.TrimRight(want, " \t")
}

// applyHunkAt rewrites src by applying h starting at the 1-based line
// start. Context and removed lines are verified with match; the
// source's own version of context lines is kept, which corrects
// whitespace drift in the hunk. A nil match applies blind.
func applyHunkAt(src []string, start int, h hunk, match lineMatcher) ([]string, error) {
	if start < 1 || start > len(src)+1 {
		return nil, fmt.Errorf("hunk start %d outside source of %d lines", start, len(src))
	}

	out := make([]string, 0, len(src)+len(h.lines))
	out = append(out, src[:start-1]...)
	p := start - 1

	for i := 0; i < len(h.lines); i++ {
		hl := h.lines[i]
		switch hl.kind {
		case '+':
			out = append(out, hl.text)
		case ' ', '-':
			if match == nil {
				// Blind mode: consume a source line if one remains
				if p < len(src) {
					if hl.kind == ' ' {
						out = append(out, src[p])
					}
					p++
				} else if hl.kind == ' ' {
					out = append(out, hl.text)
				}
				continue
			}
			if p < len(src) && match(src[p], hl.text) {
				if hl.kind == ' ' {
					out = append(out, src[p])
				}
				p++
				continue
			}
			// Tolerate blank-line drift between hunk and source
			if strings.TrimSpace(hl.text) == "" {
				continue
			}
			if p < len(src) && strings.TrimSpace(src[p]) == "" {
				out = append(out, src[p])
				p++
				i-- // retry the same hunk line against the next source line
				continue
			}
			if p >= len(src) {
				return nil, fmt.Errorf("hunk expects %q past end of source", hl.text)
			}
			return nil, fmt.Errorf("context mismatch at line %d: have %q, want %q", p+1, src[p], hl.text)
		}
	}

	out = append(out, src[p:]...)
	return out, nil
}
