package patch

import (
	"path"

	"patchloop/internal/worktree"
)

const (
	reasonUnparsable    = "unparsable chunk header"
	reasonTargetMissing = "target path does not exist"
	reasonNotAllowed    = "path outside allow-list"
)

// Pipeline applies a sanitized, split patch chunk by chunk, in
// first-seen source order. Sequential application is a correctness
// requirement: an add chunk may create a file a later modify chunk
// depends on.
type Pipeline struct {
	applier    *Applier
	heuristics []Heuristic
	allowList  []string
}

// NewPipeline creates a pipeline with the standard strategies and
// the built-in heuristic table. allowList restricts which paths may
// be touched; empty means everything is allowed.
func NewPipeline(allowList []string) *Pipeline {
	return &Pipeline{
		applier:    NewApplier(),
		heuristics: DefaultHeuristics(),
		allowList:  allowList,
	}
}

// Run applies every chunk against the tree and returns the per-chunk
// outcomes. The snapshot is mutated in place as chunks add and delete
// files so later chunks see an up-to-date view. Chunk-level failures
// are recovered locally as skips; Run itself never fails.
func (p *Pipeline) Run(chunks []Chunk, tree worktree.Tree, snap *worktree.Snapshot) []Outcome {
	outcomes := make([]Outcome, 0, len(chunks))

	for _, c := range chunks {
		outcomes = append(outcomes, p.runChunk(c, tree, snap))
	}
	return outcomes
}

func (p *Pipeline) runChunk(c Chunk, tree worktree.Tree, snap *worktree.Snapshot) Outcome {
	o := Outcome{ChunkIndex: c.Index, Path: c.Target()}

	if !c.Parsable() {
		o.Result = ResultSkipped
		o.Reason = reasonUnparsable
		return o
	}

	if !p.pathAllowed(c.Target()) {
		o.Result = ResultSkipped
		o.Reason = reasonNotAllowed
		return o
	}

	// Structural application against a nonexistent file is guaranteed
	// to fail; skip without spending a strategy round-trip.
	if (c.Op == OpModify || c.Op == OpDelete) && !snap.Has(c.SourcePath) {
		o.Result = ResultSkipped
		o.Reason = reasonTargetMissing
		return o
	}

	if ok, how := p.applier.Apply(c, tree); ok {
		o.Result = ResultApplied
		o.Reason = how
		p.updateSnapshot(c, snap)
		return o
	} else if applied, name := TryFallback(c, tree, p.heuristics); applied {
		o.Result = ResultHeuristic
		o.Reason = name
		p.updateSnapshot(c, snap)
		return o
	} else {
		o.Result = ResultSkipped
		o.Reason = how
		return o
	}
}

func (p *Pipeline) updateSnapshot(c Chunk, snap *worktree.Snapshot) {
	switch c.Op {
	case OpAdd:
		snap.Add(c.Target())
	case OpDelete:
		snap.Delete(c.SourcePath)
	case OpModify:
		if c.DestPath != "" && c.DestPath != c.SourcePath {
			snap.Delete(c.SourcePath)
			snap.Add(c.DestPath)
		}
	}
}

// Allowed reports whether target passes the configured allow-list.
// Used by callers that write full file bodies outside the chunk flow.
func (p *Pipeline) Allowed(target string) bool {
	return p.pathAllowed(target)
}

// pathAllowed checks the target against the configured allow-list of
// path prefixes and glob patterns
func (p *Pipeline) pathAllowed(target string) bool {
	if len(p.allowList) == 0 {
		return true
	}
	for _, pattern := range p.allowList {
		if matched, err := path.Match(pattern, target); err == nil && matched {
			return true
		}
		if pattern == target || hasPrefixDir(target, pattern) {
			return true
		}
	}
	return false
}

func hasPrefixDir(target, prefix string) bool {
	if len(target) <= len(prefix) {
		return false
	}
	return target[:len(prefix)] == prefix && target[len(prefix)] == '/'
}
