package patch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoChunksApplied indicates every chunk in the attempt was skipped
var ErrNoChunksApplied = errors.New("no chunks could be applied")

// Result classifies one chunk's outcome
type Result string

const (
	ResultApplied   Result = "applied"
	ResultSkipped   Result = "skipped"
	ResultHeuristic Result = "heuristic-applied"
)

// Outcome records what happened to one chunk during one attempt
type Outcome struct {
	ChunkIndex int
	Path       string
	Result     Result
	Reason     string
}

// Report aggregates all chunk outcomes of one attempt. AppliedCount
// counts every chunk that landed, structural and heuristic alike.
type Report struct {
	AppliedCount int
	Skipped      []Outcome
	Heuristics   []Outcome

	applied []Outcome
}

// Outcomes returns every recorded outcome, skips and heuristics
// included, for persistence and diagnostics
func (r *Report) Outcomes() []Outcome {
	all := make([]Outcome, 0, r.AppliedCount+len(r.Skipped)+len(r.Heuristics))
	all = append(all, r.applied...)
	all = append(all, r.Heuristics...)
	all = append(all, r.Skipped...)
	return all
}

// TouchedPaths returns the paths of chunks that landed, structurally
// or heuristically
func (r *Report) TouchedPaths() []string {
	var paths []string
	for _, o := range r.applied {
		paths = append(paths, o.Path)
	}
	for _, o := range r.Heuristics {
		paths = append(paths, o.Path)
	}
	return paths
}

// Summary renders a short human-readable account of the attempt
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d applied, %d heuristic, %d skipped", r.AppliedCount, len(r.Heuristics), len(r.Skipped))
	for _, o := range r.Heuristics {
		fmt.Fprintf(&b, "\n  heuristic %s: %s", o.Path, o.Reason)
	}
	for _, o := range r.Skipped {
		fmt.Fprintf(&b, "\n  skipped %s: %s", o.Path, o.Reason)
	}
	return b.String()
}

// Aggregate classifies chunk outcomes into one run report. The
// attempt is structurally successful when at least one chunk landed;
// partial skips are diagnostic only. Returns ErrNoChunksApplied when
// nothing landed at all.
func Aggregate(outcomes []Outcome) (*Report, error) {
	report := &Report{}
	for _, o := range outcomes {
		switch o.Result {
		case ResultApplied:
			report.AppliedCount++
			report.applied = append(report.applied, o)
		case ResultHeuristic:
			report.AppliedCount++
			report.Heuristics = append(report.Heuristics, o)
		case ResultSkipped:
			report.Skipped = append(report.Skipped, o)
		}
	}
	if report.AppliedCount == 0 {
		return nil, ErrNoChunksApplied
	}
	return report, nil
}
