package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"patchloop/internal/buildcheck"
	"patchloop/internal/config"
	"patchloop/internal/database"
	"patchloop/internal/generator"
	"patchloop/internal/metrics"
	"patchloop/internal/runloop"
	"patchloop/internal/worktree"
)

func main() {
	configPath := flag.String("config", "patchloop.yaml", "path to the config file")
	task := flag.String("task", "", "task description (reads stdin when empty)")
	interval := flag.Duration("interval", 0, "rerun interval; zero runs once and exits")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	taskText := *task
	if taskText == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatalf("Failed to read task from stdin: %v", err)
		}
		taskText = strings.TrimSpace(string(data))
	}
	if taskText == "" {
		log.Fatal("No task given: pass -task or pipe a description on stdin")
	}

	apiKey := cfg.APIKey()
	if apiKey == "" {
		log.Fatalf("Missing API key: set %s", cfg.Generator.APIKeyEnv)
	}

	var historyConn *sql.DB
	var history *database.HistoryDB
	var histogram *metrics.Histogram
	if cfg.Run.HistoryDBPath != "" {
		historyConn, err = database.Open(cfg.Run.HistoryDBPath)
		if err != nil {
			log.Fatalf("Failed to open history database: %v", err)
		}
		defer historyConn.Close()
		history = database.NewHistoryDB(historyConn)
		histogram = metrics.NewHistogram(historyConn)
	}

	tree, err := worktree.NewDirTree(cfg.RepoRoot)
	if err != nil {
		log.Fatalf("Failed to open working tree: %v", err)
	}

	client := generator.NewClient(apiKey, cfg.Generator.BaseURL, cfg.Generator.Model).
		WithTimeout(cfg.GeneratorTimeout()).
		WithRateLimit(cfg.Generator.RequestsPerMinute)

	gate := buildcheck.NewGate(cfg.Build.Command, tree.Root()).
		WithTimeout(cfg.BuildTimeout()).
		WithManifestGlobs(cfg.Build.ManifestGlobs)

	orchestrator := runloop.NewOrchestrator(cfg, client, tree, worktree.NewGitResetter(tree.Root()), gate).
		WithHistory(history).
		WithHistogram(histogram)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	if *interval <= 0 {
		outcome := runOnce(ctx, orchestrator, taskText)
		dumpStats(history, histogram)
		if !outcome {
			os.Exit(1)
		}
		return
	}

	log.Printf("Worker started, running every %s", *interval)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	runOnce(ctx, orchestrator, taskText)
	for {
		select {
		case <-ticker.C:
			runOnce(ctx, orchestrator, taskText)
		case <-ctx.Done():
			dumpStats(history, histogram)
			return
		}
	}
}

// runOnce executes a single integration run and prints its report
func runOnce(ctx context.Context, orchestrator *runloop.Orchestrator, task string) bool {
	outcome, err := orchestrator.RunAttempt(ctx, task)
	if err != nil {
		log.Printf("Run failed: %v", err)
		return false
	}

	if outcome.Report != nil {
		fmt.Printf("run %s (%s): %s\n", outcome.RunID, outcome.Mode, outcome.Report.Summary())
	}
	if outcome.OK {
		log.Printf("Run %s validated, ready for commit", outcome.RunID)
	} else {
		log.Printf("Run %s aborted, repository unchanged", outcome.RunID)
		if outcome.Log != "" {
			fmt.Println(outcome.Log)
		}
	}
	return outcome.OK
}

// dumpStats prints stored run counts and latency percentiles
func dumpStats(history *database.HistoryDB, histogram *metrics.Histogram) {
	if history == nil {
		return
	}
	if stats, err := history.GetRunStats(); err == nil {
		log.Printf("History: %d runs, %d committed, %d aborted", stats.TotalRuns, stats.Committed, stats.Aborted)
	}
	if histogram == nil {
		return
	}
	for _, op := range []string{metrics.OpGenerator, metrics.OpBuildCheck} {
		if p, err := histogram.CalculatePercentiles(op, 24*60); err == nil {
			log.Printf("Latency %s: p50=%dms p95=%dms over %d calls", p.Operation, p.P50, p.P95, p.Count)
		}
	}
}
