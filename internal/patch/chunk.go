package patch

import (
	"regexp"
	"strings"
)

// Operation classifies what a chunk does to its target file
type Operation string

const (
	OpAdd    Operation = "add"
	OpModify Operation = "modify"
	OpDelete Operation = "delete"
)

// Chunk is the portion of a patch pertaining to exactly one file.
// SourcePath and DestPath are empty when the header could not be
// parsed; such a chunk is surfaced as a skip, never a crash.
type Chunk struct {
	Index      int
	SourcePath string
	DestPath   string
	Op         Operation
	Raw        string
}

// Parsable reports whether the chunk header yielded usable paths
func (c *Chunk) Parsable() bool {
	return c.SourcePath != "" || c.DestPath != ""
}

// Target returns the path the chunk acts on: the destination for
// adds and modifies, the source for deletes
func (c *Chunk) Target() string {
	if c.Op == OpDelete {
		return c.SourcePath
	}
	if c.DestPath != "" {
		return c.DestPath
	}
	return c.SourcePath
}

var (
	gitHeaderRegex = regexp.MustCompile(`^diff --git (?:a/)?(\S+) (?:b/)?(\S+)\s*$`)
	origPathRegex  = regexp.MustCompile(`^--- (?:a/)?(\S+)`)
	newPathRegex   = regexp.MustCompile(`^\+\+\+ (?:b/)?(\S+)`)
)

// Split breaks a sanitized multi-file patch into per-file chunks,
// keeping each file header with the chunk that follows it. Ordering
// matches the source text: first-seen order, stable.
func Split(patchText string) []Chunk {
	lines := strings.Split(strings.TrimRight(patchText, "\n"), "\n")

	var starts []int
	useGitHeaders := false
	for _, line := range lines {
		if strings.HasPrefix(line, "diff --git ") {
			useGitHeaders = true
			break
		}
	}

	for i, line := range lines {
		if useGitHeaders {
			if strings.HasPrefix(line, "diff --git ") {
				starts = append(starts, i)
			}
			continue
		}
		// Without git headers a "--- " line only opens a file section
		// when paired with a "+++ " line; a lone one is hunk content.
		if strings.HasPrefix(line, "--- ") && i+1 < len(lines) && strings.HasPrefix(lines[i+1], "+++ ") {
			starts = append(starts, i)
		}
	}

	var chunks []Chunk
	for n, start := range starts {
		end := len(lines)
		if n+1 < len(starts) {
			end = starts[n+1]
		}
		body := lines[start:end]

		chunk := Chunk{
			Index: n,
			Raw:   strings.Join(body, "\n") + "\n",
		}
		chunk.SourcePath, chunk.DestPath = parsePaths(body)
		chunk.Op = classifyOperation(body, chunk.SourcePath, chunk.DestPath)
		chunks = append(chunks, chunk)
	}

	return chunks
}

// parsePaths extracts the source and destination paths from a chunk's
// header lines. /dev/null markers yield an empty path on that side.
func parsePaths(body []string) (src, dst string) {
	for _, line := range body {
		if m := gitHeaderRegex.FindStringSubmatch(line); m != nil {
			src, dst = m[1], m[2]
			continue
		}
		if m := origPathRegex.FindStringSubmatch(line); m != nil {
			if m[1] == "/dev/null" {
				src = ""
			} else {
				src = m[1]
			}
			continue
		}
		if m := newPathRegex.FindStringSubmatch(line); m != nil {
			if m[1] == "/dev/null" {
				dst = ""
			} else {
				dst = m[1]
			}
			// Header lines precede hunk bodies; stop before a stray
			// "--- " context line inside a hunk can overwrite paths.
			break
		}
	}
	return src, dst
}

// classifyOperation determines the chunk operation from creation and
// deletion indicators in the body; modify is the default
func classifyOperation(body []string, src, dst string) Operation {
	for _, line := range body {
		switch {
		case strings.HasPrefix(line, "new file mode"), strings.HasPrefix(line, "--- /dev/null"):
			return OpAdd
		case strings.HasPrefix(line, "deleted file mode"), strings.HasPrefix(line, "+++ /dev/null"):
			return OpDelete
		}
	}
	if src == "" && dst != "" {
		return OpAdd
	}
	if dst == "" && src != "" {
		return OpDelete
	}
	return OpModify
}
