package patch

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoPatchFound indicates the generator output contains no
// recognizable patch marker
var ErrNoPatchFound = errors.New("no patch found in generator output")

var (
	// wrapperLineRegex matches begin/end wrapper lines a generator may
	// emit around the patch payload
	wrapperLineRegex = regexp.MustCompile(`(?i)^\s*\*{0,3}\s*(begin|end)\s+patch\s*\*{0,3}\s*$`)

	// trailerRegex matches section headings that mark the start of
	// trailing prose (summaries, test plans) after the patch body
	trailerRegex = regexp.MustCompile(`(?i)^#{0,6}\s*\**\s*(test plan|testing|summary|notes|explanation)\s*\**\s*:?\s*$`)
)

// Sanitize extracts the patch payload from raw generator output.
//
// It normalizes line endings, strips a leading BOM and wrapper lines,
// truncates everything before the first patch-start marker and
// everything at the first trailer marker, and guarantees the result
// ends with a newline. Returns ErrNoPatchFound when no patch marker
// exists. Pure function: sanitizing already-clean input is a no-op.
func Sanitize(raw string) (string, error) {
	text := strings.TrimPrefix(raw, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")

	start := -1
	for i, line := range lines {
		if isPatchStart(line) {
			start = i
			break
		}
	}
	if start < 0 {
		return "", ErrNoPatchFound
	}

	var kept []string
	for _, line := range lines[start:] {
		if isTrailer(line) {
			break
		}
		if wrapperLineRegex.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}

	// Drop trailing blank lines left behind by truncation
	for len(kept) > 0 && strings.TrimSpace(kept[len(kept)-1]) == "" {
		kept = kept[:len(kept)-1]
	}

	if len(kept) == 0 {
		return "", ErrNoPatchFound
	}

	return strings.Join(kept, "\n") + "\n", nil
}

// isPatchStart reports whether line opens a per-file patch section
func isPatchStart(line string) bool {
	return strings.HasPrefix(line, "diff --git ") ||
		strings.HasPrefix(line, "--- a/") ||
		strings.HasPrefix(line, "--- /dev/null")
}

// isTrailer reports whether line begins trailing non-patch prose.
// A fence after the patch body closes the block a generator wrapped
// the patch in, so everything past it is commentary.
func isTrailer(line string) bool {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "```") {
		return true
	}
	if wrapperLineRegex.MatchString(line) {
		// End-of-patch wrappers terminate the payload; begin wrappers
		// inside the body are stripped by the caller instead.
		return strings.Contains(strings.ToLower(trimmed), "end")
	}
	return trailerRegex.MatchString(line)
}
