package buildcheck

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

const (
	defaultTimeout   = 300 * time.Second
	defaultMaxOutput = 64 * 1024
)

// ErrManifestInvalid indicates a touched manifest file failed its
// structural pre-check, so the full build was not attempted
var ErrManifestInvalid = errors.New("manifest failed structural pre-check")

// Result is the outcome of one validation gate run
type Result struct {
	OK           bool   `json:"ok"`
	Log          string `json:"log"`
	ExitCode     int    `json:"exit_code"`
	DurationMs   int64  `json:"duration_ms"`
	WasTimeout   bool   `json:"was_timeout"`
	WasTruncated bool   `json:"was_truncated"`
}

// Gate runs the target project's own build/check command against the
// working tree as an opaque external step
type Gate struct {
	command        string
	workingDir     string
	timeout        time.Duration
	maxOutputBytes int
	manifestGlobs  []string
	allowedEnv     []string
}

// NewGate creates a gate running command in workingDir with defaults
func NewGate(command, workingDir string) *Gate {
	return &Gate{
		command:        command,
		workingDir:     workingDir,
		timeout:        defaultTimeout,
		maxOutputBytes: defaultMaxOutput,
		manifestGlobs:  []string{"package.json", "*/package.json"},
		allowedEnv:     []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "TERM"},
	}
}

// WithTimeout sets the build timeout
func (g *Gate) WithTimeout(timeout time.Duration) *Gate {
	g.timeout = timeout
	return g
}

// WithMaxOutputBytes sets the captured log size cap
func (g *Gate) WithMaxOutputBytes(maxBytes int) *Gate {
	g.maxOutputBytes = maxBytes
	return g
}

// WithManifestGlobs sets the patterns identifying manifest files that
// get a structural pre-check before the build runs
func (g *Gate) WithManifestGlobs(globs []string) *Gate {
	g.manifestGlobs = globs
	return g
}

// Check validates the working tree. touched lists the relative paths
// the attempt wrote; any touched manifest is pre-checked for
// structural validity first, failing fast without a full build.
func (g *Gate) Check(ctx context.Context, touched []string) *Result {
	result := &Result{}
	startTime := time.Now()

	for _, p := range touched {
		if !g.isManifest(p) {
			continue
		}
		if err := g.checkManifest(p); err != nil {
			result.OK = false
			result.Log = fmt.Sprintf("%v: %v", ErrManifestInvalid, err)
			result.DurationMs = time.Since(startTime).Milliseconds()
			return result
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", g.command)
	cmd.Dir = g.workingDir
	cmd.Env = g.filterEnvironment()

	var buf limitedBuffer
	buf.limit = g.maxOutputBytes
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	result.DurationMs = time.Since(startTime).Milliseconds()
	result.Log = buf.String()
	result.WasTruncated = buf.truncated

	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			result.WasTimeout = true
			result.Log += "\nbuild check timed out"
			if cmd.Process != nil {
				cmd.Process.Signal(syscall.SIGKILL)
			}
		} else if exitError, ok := err.(*exec.ExitError); ok {
			if status, ok := exitError.Sys().(syscall.WaitStatus); ok {
				result.ExitCode = status.ExitStatus()
			}
		} else {
			result.Log += "\n" + err.Error()
			result.ExitCode = -1
		}
		result.OK = false
		return result
	}

	result.OK = true
	return result
}

func (g *Gate) isManifest(relPath string) bool {
	for _, glob := range g.manifestGlobs {
		if matched, err := path.Match(glob, relPath); err == nil && matched {
			return true
		}
	}
	return false
}

// checkManifest confirms a manifest parses as structured data
func (g *Gate) checkManifest(relPath string) error {
	data, err := os.ReadFile(filepath.Join(g.workingDir, filepath.FromSlash(relPath)))
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", relPath, err)
	}
	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("%s: %w", relPath, err)
	}
	return nil
}

// filterEnvironment passes through only safe environment variables
func (g *Gate) filterEnvironment() []string {
	var filtered []string

	allowedSet := make(map[string]bool)
	for _, key := range g.allowedEnv {
		allowedSet[key] = true
	}

	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := parts[0]

		if allowedSet[key] {
			filtered = append(filtered, kv)
			continue
		}

		if strings.HasPrefix(key, "AWS_") ||
			strings.HasPrefix(key, "SSH_") ||
			strings.Contains(key, "TOKEN") ||
			strings.Contains(key, "SECRET") ||
			strings.Contains(key, "PASSWORD") ||
			strings.Contains(key, "API_KEY") {
			continue
		}

		if strings.HasPrefix(key, "NODE_") || strings.HasPrefix(key, "GO") || key == "SHELL" || key == "PWD" {
			filtered = append(filtered, kv)
		}
	}

	return filtered
}

// limitedBuffer caps captured output at a fixed size
type limitedBuffer struct {
	bytes.Buffer
	limit     int
	truncated bool
}

func (lb *limitedBuffer) Write(p []byte) (n int, err error) {
	if lb.Len()+len(p) > lb.limit {
		remaining := lb.limit - lb.Len()
		if remaining > 0 {
			lb.Buffer.Write(p[:remaining])
		}
		lb.truncated = true
		return len(p), nil
	}
	return lb.Buffer.Write(p)
}

// ReadFrom shadows the promoted bytes.Buffer.ReadFrom so io.Copy goes
// through the limiting Write instead of bypassing the cap.
func (lb *limitedBuffer) ReadFrom(r io.Reader) (int64, error) {
	return io.Copy(struct{ io.Writer }{lb}, r)
}
