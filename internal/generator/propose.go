package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"patchloop/internal/change"
)

// ProposeRequest carries everything the generator needs for one
// candidate change
type ProposeRequest struct {
	Mode           change.Mode
	Representation change.Representation
	Task           string
	RepoContext    string
	ValidationLog  string
}

// Propose requests one candidate change from the generator. A
// malformed or empty response yields an error the caller treats as a
// failed attempt, never a crash.
func (c *Client) Propose(ctx context.Context, req ProposeRequest) (*change.Candidate, error) {
	systemPrompt := buildSystemPrompt(req.Mode, req.Representation)
	userPrompt := buildUserPrompt(req)

	result, err := c.Generate(ctx, systemPrompt, userPrompt, 0.2)
	if err != nil {
		return nil, err
	}

	var cand *change.Candidate
	switch req.Representation {
	case change.RepFiles:
		entries, err := ParseFileEntries(result.Content)
		if err != nil {
			return nil, err
		}
		cand = &change.Candidate{Kind: change.KindFiles, Entries: entries}
	default:
		cand = &change.Candidate{Kind: change.KindPatch, Patch: result.Content}
	}

	if cand.IsEmpty() {
		return nil, fmt.Errorf("generator returned an empty candidate")
	}
	return cand, nil
}

var modePrompts = map[change.Mode]string{
	change.ModeFix: `You are an expert software engineer fixing a broken build. Produce the minimal change that makes the project build and run again. Do not refactor unrelated code.`,

	change.ModeFeature: `You are an expert software engineer implementing the next planned feature. Produce a focused, complete change for exactly the requested task.`,

	change.ModeUpgrade: `You are an expert software engineer upgrading project dependencies. Update manifests and adapt call sites to the new versions, nothing more.`,
}

var representationPrompts = map[change.Representation]string{
	change.RepPatch: `Respond with a unified diff only: per-file headers (--- a/path, +++ b/path) and @@ hunk markers. No prose before or after the diff.`,

	change.RepFiles: `Respond with complete file bodies. For each file emit a line "FILE: <relative path>" followed by a fenced code block containing the entire new file content. Do not emit partial files or diffs.`,
}

func buildSystemPrompt(mode change.Mode, rep change.Representation) string {
	base := modePrompts[mode]
	if base == "" {
		base = modePrompts[change.ModeFeature]
	}
	return base + "\n\n" + representationPrompts[rep]
}

func buildUserPrompt(req ProposeRequest) string {
	var b strings.Builder
	b.WriteString("TASK:\n")
	b.WriteString(req.Task)

	if req.RepoContext != "" {
		b.WriteString("\n\nREPOSITORY CONTEXT:\n")
		b.WriteString(req.RepoContext)
	}
	if req.ValidationLog != "" {
		b.WriteString("\n\nTHE PREVIOUS ATTEMPT FAILED VALIDATION WITH THIS LOG:\n")
		b.WriteString(req.ValidationLog)
		b.WriteString("\nAddress the failure above.")
	}
	return b.String()
}

// filesPayload is the JSON shape some generators emit for a
// files-representation response
type filesPayload struct {
	Files []change.FileEntry `json:"files"`
}

// ParseFileEntries extracts full file bodies from a files-shaped
// generator response. It accepts either a JSON payload
// {"files":[{"path":...,"content":...}]} or "FILE: path" lines each
// followed by a fenced block.
func ParseFileEntries(content string) ([]change.FileEntry, error) {
	trimmed := strings.TrimSpace(content)

	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if entries, err := parseJSONEntries(trimmed); err == nil {
			return entries, nil
		}
	}

	entries := parseFencedEntries(content)
	if len(entries) == 0 {
		return nil, fmt.Errorf("no file entries found in generator response")
	}
	return entries, nil
}

func parseJSONEntries(content string) ([]change.FileEntry, error) {
	var payload filesPayload
	if err := json.Unmarshal([]byte(content), &payload); err == nil && len(payload.Files) > 0 {
		return validEntries(payload.Files)
	}

	var entries []change.FileEntry
	if err := json.Unmarshal([]byte(content), &entries); err == nil && len(entries) > 0 {
		return validEntries(entries)
	}
	return nil, fmt.Errorf("no entries in JSON payload")
}

func validEntries(entries []change.FileEntry) ([]change.FileEntry, error) {
	var valid []change.FileEntry
	for _, e := range entries {
		if e.Path == "" {
			continue
		}
		valid = append(valid, e)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("all entries missing paths")
	}
	return valid, nil
}

// parseFencedEntries scans for "FILE: path" markers, each followed by
// a fenced code block holding the file body
func parseFencedEntries(content string) []change.FileEntry {
	var entries []change.FileEntry
	lines := strings.Split(content, "\n")

	var currentPath string
	var inBlock bool
	var blockLines []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if !inBlock {
			if strings.HasPrefix(trimmed, "FILE:") {
				currentPath = strings.TrimSpace(strings.TrimPrefix(trimmed, "FILE:"))
				continue
			}
			if strings.HasPrefix(trimmed, "```") && currentPath != "" {
				inBlock = true
				blockLines = nil
			}
			continue
		}

		if strings.HasPrefix(trimmed, "```") {
			entries = append(entries, change.FileEntry{
				Path:    currentPath,
				Content: strings.Join(blockLines, "\n") + "\n",
			})
			currentPath = ""
			inBlock = false
			continue
		}
		blockLines = append(blockLines, line)
	}

	return entries
}
