package runloop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"patchloop/internal/buildcheck"
	"patchloop/internal/change"
	"patchloop/internal/config"
	"patchloop/internal/database"
	"patchloop/internal/generator"
	"patchloop/internal/metrics"
	"patchloop/internal/patch"
	"patchloop/internal/worktree"
)

// Proposer requests candidate changes from the external generator
type Proposer interface {
	Propose(ctx context.Context, req generator.ProposeRequest) (*change.Candidate, error)
}

// Validator runs the external build/check step against the tree
type Validator interface {
	Check(ctx context.Context, touched []string) *buildcheck.Result
}

// LogSource fetches the latest build/runtime log from the deployment
// provider. Optional; a fetch failure fails that call only.
type LogSource interface {
	LatestLog(ctx context.Context) (string, error)
}

// Attempt is one proposal → apply → validate cycle. The orchestrator
// holds at most two in memory for a single run; none is persisted
// beyond its history row.
type Attempt struct {
	ID             string
	Representation change.Representation
	Candidate      *change.Candidate
	Report         *patch.Report
	Validation     *buildcheck.Result
}

// Outcome is the produced contract of a run: consumed by the external
// commit/push step when OK, and by reporting regardless
type Outcome struct {
	OK     bool
	RunID  string
	Mode   change.Mode
	Report *patch.Report
	Log    string
}

// Orchestrator sequences proposal, application and validation across
// at most two candidate representations plus one corrective round,
// and decides commit, re-request or abort. Strictly sequential: one
// cycle completes before the next begins, and the working tree is
// exclusively owned by the current attempt.
type Orchestrator struct {
	cfg      *config.Config
	proposer Proposer
	tree     worktree.Tree
	resetter worktree.Resetter
	gate     Validator
	pipeline *patch.Pipeline

	logs      LogSource
	history   *database.HistoryDB
	histogram *metrics.Histogram
	logger    *log.Logger
}

// NewOrchestrator wires the loop's collaborators together
func NewOrchestrator(cfg *config.Config, proposer Proposer, tree worktree.Tree, resetter worktree.Resetter, gate Validator) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		proposer: proposer,
		tree:     tree,
		resetter: resetter,
		gate:     gate,
		pipeline: patch.NewPipeline(cfg.Run.PathAllowList),
		logger:   log.Default(),
	}
}

// WithLogSource attaches a deployment log source for mode detection
func (o *Orchestrator) WithLogSource(logs LogSource) *Orchestrator {
	o.logs = logs
	return o
}

// WithHistory attaches run-history persistence
func (o *Orchestrator) WithHistory(history *database.HistoryDB) *Orchestrator {
	o.history = history
	return o
}

// WithHistogram attaches latency recording
func (o *Orchestrator) WithHistogram(histogram *metrics.Histogram) *Orchestrator {
	o.histogram = histogram
	return o
}

// WithLogger replaces the default logger
func (o *Orchestrator) WithLogger(logger *log.Logger) *Orchestrator {
	o.logger = logger
	return o
}

// RunAttempt executes one full integration run for task. A failed run
// is a strict no-op on the repository: abort always resets the
// working tree before returning.
func (o *Orchestrator) RunAttempt(ctx context.Context, task string) (*Outcome, error) {
	latestLog := o.fetchLatestLog(ctx)
	mode := DetectMode(o.cfg.Run.ModeOverride, latestLog)

	runID := uuid.New().String()
	o.logger.Printf("run %s starting in mode %s", runID, mode)
	o.recordRunStart(runID, mode)

	// Round 1: prefer the patch representation.
	att, err := o.attempt(ctx, mode, task, change.RepPatch, "")
	if err == nil {
		o.recordAttempt(runID, att)
		if att.Validation.OK {
			return o.commit(runID, mode, att)
		}
		o.logger.Printf("run %s: patch attempt failed validation, degrading to files", runID)
		o.reset(runID)
		return o.filesRounds(ctx, runID, mode, task, att.Validation.Log)
	}

	// The patch representation failed to structurally apply; nothing
	// touched the tree. Degrade to full files for the same task.
	if errors.Is(err, patch.ErrNoPatchFound) || errors.Is(err, patch.ErrNoChunksApplied) {
		o.logger.Printf("run %s: %v, requesting files representation", runID, err)
	} else {
		o.logger.Printf("run %s: patch attempt failed (%v), requesting files representation", runID, err)
	}
	return o.filesRounds(ctx, runID, mode, task, "")
}

// filesRounds runs the files-representation attempt and, on a
// validation failure, exactly one corrective round carrying the
// validation log. There is no third round.
func (o *Orchestrator) filesRounds(ctx context.Context, runID string, mode change.Mode, task, priorLog string) (*Outcome, error) {
	att, err := o.attempt(ctx, mode, task, change.RepFiles, priorLog)
	if err != nil {
		return o.abort(runID, mode, nil, fmt.Sprintf("files attempt failed: %v", err))
	}
	o.recordAttempt(runID, att)
	if att.Validation.OK {
		return o.commit(runID, mode, att)
	}

	o.logger.Printf("run %s: files attempt failed validation, one corrective round", runID)
	o.reset(runID)

	corrective, err := o.attempt(ctx, mode, task, change.RepFiles, att.Validation.Log)
	if err != nil {
		return o.abort(runID, mode, att.Report, fmt.Sprintf("corrective attempt failed: %v", err))
	}
	o.recordAttempt(runID, corrective)
	if corrective.Validation.OK {
		return o.commit(runID, mode, corrective)
	}
	return o.abort(runID, mode, corrective.Report, corrective.Validation.Log)
}

// attempt performs one proposal → apply → validate cycle. A failure
// before validation leaves the working tree untouched.
func (o *Orchestrator) attempt(ctx context.Context, mode change.Mode, task string, rep change.Representation, priorLog string) (*Attempt, error) {
	att := &Attempt{ID: uuid.New().String(), Representation: rep}

	proposeCtx, cancel := context.WithTimeout(ctx, o.cfg.GeneratorTimeout())
	defer cancel()

	started := time.Now()
	cand, err := o.proposer.Propose(proposeCtx, generator.ProposeRequest{
		Mode:           mode,
		Representation: rep,
		Task:           task,
		ValidationLog:  priorLog,
	})
	o.recordLatency(metrics.OpGenerator, started)
	if err != nil {
		return nil, fmt.Errorf("propose: %w", err)
	}
	att.Candidate = cand

	report, err := o.applyCandidate(cand)
	if err != nil {
		return nil, err
	}
	att.Report = report

	started = time.Now()
	att.Validation = o.gate.Check(ctx, report.TouchedPaths())
	o.recordLatency(metrics.OpBuildCheck, started)
	return att, nil
}

// applyCandidate is the single point where the candidate's
// representation is handled exhaustively
func (o *Orchestrator) applyCandidate(cand *change.Candidate) (*patch.Report, error) {
	switch cand.Kind {
	case change.KindPatch:
		text, err := patch.Sanitize(cand.Patch)
		if err != nil {
			return nil, err
		}
		chunks := patch.Split(text)
		snap, err := worktree.NewSnapshot(o.tree)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot tree: %w", err)
		}
		outcomes := o.pipeline.Run(chunks, o.tree, snap)
		return patch.Aggregate(outcomes)

	case change.KindFiles:
		outcomes := make([]patch.Outcome, 0, len(cand.Entries))
		for i, entry := range cand.Entries {
			outcome := patch.Outcome{ChunkIndex: i, Path: entry.Path}
			if !o.pipeline.Allowed(entry.Path) {
				outcome.Result = patch.ResultSkipped
				outcome.Reason = "path outside allow-list"
				outcomes = append(outcomes, outcome)
				continue
			}
			if err := o.tree.Write(entry.Path, entry.Content); err != nil {
				outcome.Result = patch.ResultSkipped
				outcome.Reason = err.Error()
			} else {
				outcome.Result = patch.ResultApplied
				outcome.Reason = "full file body"
			}
			outcomes = append(outcomes, outcome)
		}
		return patch.Aggregate(outcomes)

	default:
		return nil, fmt.Errorf("unknown candidate kind %q", cand.Kind)
	}
}

func (o *Orchestrator) commit(runID string, mode change.Mode, att *Attempt) (*Outcome, error) {
	o.logger.Printf("run %s: validation passed, handing off for commit (%s)", runID, att.Report.Summary())
	o.recordRunEnd(runID, "committed", att.Validation.Log)
	return &Outcome{
		OK:     true,
		RunID:  runID,
		Mode:   mode,
		Report: att.Report,
		Log:    att.Validation.Log,
	}, nil
}

func (o *Orchestrator) abort(runID string, mode change.Mode, report *patch.Report, finalLog string) (*Outcome, error) {
	o.reset(runID)
	o.logger.Printf("run %s aborted: %s", runID, firstLine(finalLog))
	o.recordRunEnd(runID, "aborted", finalLog)
	return &Outcome{
		OK:     false,
		RunID:  runID,
		Mode:   mode,
		Report: report,
		Log:    finalLog,
	}, nil
}

// reset hard-restores the working tree to its last known-good state
func (o *Orchestrator) reset(runID string) {
	if err := o.resetter.Reset(); err != nil {
		o.logger.Printf("run %s: tree reset failed: %v", runID, err)
	}
}

// fetchLatestLog pulls the tail of the latest deployment log with a
// bounded wait; a timeout fails this call only, not the run
func (o *Orchestrator) fetchLatestLog(ctx context.Context) string {
	if o.logs == nil {
		return ""
	}
	logCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	text, err := o.logs.LatestLog(logCtx)
	if err != nil {
		o.logger.Printf("log fetch failed, continuing without: %v", err)
		return ""
	}
	if max := o.cfg.Run.LogTailBytes; len(text) > max {
		text = text[len(text)-max:]
	}
	return text
}

func (o *Orchestrator) recordRunStart(runID string, mode change.Mode) {
	if o.history == nil {
		return
	}
	if err := o.history.CreateRun(runID, string(mode)); err != nil {
		o.logger.Printf("history: failed to record run %s: %v", runID, err)
	}
}

func (o *Orchestrator) recordRunEnd(runID, status, finalLog string) {
	if o.history == nil {
		return
	}
	if err := o.history.FinishRun(runID, status, finalLog); err != nil {
		o.logger.Printf("history: failed to finish run %s: %v", runID, err)
	}
}

func (o *Orchestrator) recordAttempt(runID string, att *Attempt) {
	if o.history == nil || att.Report == nil {
		return
	}
	ok := att.Validation != nil && att.Validation.OK
	if err := o.history.CreateAttempt(att.ID, runID, string(att.Representation), att.Report.AppliedCount, ok); err != nil {
		o.logger.Printf("history: failed to record attempt %s: %v", att.ID, err)
		return
	}
	for _, outcome := range att.Report.Outcomes() {
		if err := o.history.AddOutcome(att.ID, outcome.ChunkIndex, outcome.Path, string(outcome.Result), outcome.Reason); err != nil {
			o.logger.Printf("history: failed to record outcome: %v", err)
		}
	}
}

func (o *Orchestrator) recordLatency(operation string, started time.Time) {
	if o.histogram == nil {
		return
	}
	if err := o.histogram.RecordLatency(operation, int(time.Since(started).Milliseconds())); err != nil {
		o.logger.Printf("metrics: failed to record %s latency: %v", operation, err)
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
