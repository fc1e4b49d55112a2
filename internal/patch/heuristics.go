package patch

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"patchloop/internal/worktree"
)

// Heuristic is one narrow, reversible corrective transformation,
// keyed by operation and path pattern. Match is the guard condition:
// it must return false once the corrective state is already present,
// which makes every heuristic idempotent.
type Heuristic struct {
	Name  string
	Match func(c Chunk, tree worktree.Tree) bool
	Apply func(c Chunk, tree worktree.Tree) error
}

// TryFallback walks the registry in order and applies the first
// matching heuristic. Returns true with the heuristic name on
// success. Invoked only after every structural strategy failed.
func TryFallback(c Chunk, tree worktree.Tree, heuristics []Heuristic) (bool, string) {
	for _, h := range heuristics {
		if !h.Match(c, tree) {
			continue
		}
		if err := h.Apply(c, tree); err != nil {
			return false, fmt.Sprintf("%s: %v", h.Name, err)
		}
		return true, h.Name
	}
	return false, ""
}

var moduleExtensions = map[string]bool{
	".js": true, ".jsx": true, ".ts": true, ".tsx": true, ".mjs": true,
}

// DefaultHeuristics returns the built-in fallback table, in match
// order
func DefaultHeuristics() []Heuristic {
	return []Heuristic{
		forceDeleteHeuristic(),
		defaultExportShimHeuristic(),
		namedImportRewriteHeuristic(),
	}
}

// forceDeleteHeuristic removes a delete chunk's target directly when
// it still exists despite the structural failure. The patch declared
// the file gone; drifted content should not keep it alive.
func forceDeleteHeuristic() Heuristic {
	return Heuristic{
		Name: "force-delete",
		Match: func(c Chunk, tree worktree.Tree) bool {
			if c.Op != OpDelete || c.SourcePath == "" {
				return false
			}
			_, exists := tree.Read(c.SourcePath)
			return exists
		},
		Apply: func(c Chunk, tree worktree.Tree) error {
			return tree.Remove(c.SourcePath)
		},
	}
}

var exportedNameRegex = regexp.MustCompile(`(?m)^export\s+(?:const|function|class)\s+(\w+)`)

// defaultExportShimHeuristic appends a default re-export shim to a
// module the chunk expects to have a default export but which only
// exports named symbols
func defaultExportShimHeuristic() Heuristic {
	return Heuristic{
		Name: "default-export-shim",
		Match: func(c Chunk, tree worktree.Tree) bool {
			if c.Op != OpModify || !moduleExtensions[path.Ext(c.Target())] {
				return false
			}
			if !strings.Contains(c.Raw, "export default") {
				return false
			}
			content, ok := tree.Read(c.Target())
			if !ok || strings.Contains(content, "export default") {
				return false
			}
			return exportedNameRegex.MatchString(content)
		},
		Apply: func(c Chunk, tree worktree.Tree) error {
			content, _ := tree.Read(c.Target())
			name := exportedNameRegex.FindStringSubmatch(content)[1]
			if !strings.HasSuffix(content, "\n") {
				content += "\n"
			}
			shim := fmt.Sprintf("\nexport default %s;\n", name)
			return tree.Write(c.Target(), content+shim)
		},
	}
}

var defaultImportRegex = regexp.MustCompile(`(?m)^import\s+(\w+)\s+from\s+(['"][^'"]+['"]);?\s*$`)

// namedImportRewriteHeuristic rewrites a default import into a named
// import in a file whose chunk shows the symbol is exported by name
func namedImportRewriteHeuristic() Heuristic {
	return Heuristic{
		Name: "named-import-rewrite",
		Match: func(c Chunk, tree worktree.Tree) bool {
			if c.Op != OpModify || !moduleExtensions[path.Ext(c.Target())] {
				return false
			}
			content, ok := tree.Read(c.Target())
			if !ok {
				return false
			}
			for _, m := range defaultImportRegex.FindAllStringSubmatch(content, -1) {
				// The chunk must already reference the named form
				if strings.Contains(c.Raw, "import { "+m[1]+" }") ||
					strings.Contains(c.Raw, "import {"+m[1]+"}") {
					return true
				}
			}
			return false
		},
		Apply: func(c Chunk, tree worktree.Tree) error {
			content, _ := tree.Read(c.Target())
			rewritten := defaultImportRegex.ReplaceAllStringFunc(content, func(line string) string {
				m := defaultImportRegex.FindStringSubmatch(line)
				if strings.Contains(c.Raw, "import { "+m[1]+" }") ||
					strings.Contains(c.Raw, "import {"+m[1]+"}") {
					return fmt.Sprintf("import { %s } from %s;", m[1], m[2])
				}
				return line
			})
			return tree.Write(c.Target(), rewritten)
		},
	}
}
