package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"transcode-scheduler/pkg/models"
)

// versionCheckTimeout bounds the trivial "-version" probe run at construction.
const versionCheckTimeout = 5 * time.Second

// Runtime validates and invokes the external transcoding and probe binaries.
// It holds no mutable state and is safe for concurrent use by many workers.
type Runtime struct {
	execPath  string
	probePath string
	log       zerolog.Logger
}

// Result holds the outcome of a normally-completed execution.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// New locates both binaries on the system PATH and runs a trivial version
// check on each. Any failure returns a *ConfigError so construction of
// anything on top of a broken runtime fails fast.
func New(execBin, probeBin string, log zerolog.Logger) (*Runtime, error) {
	execPath, err := verifyBinary(execBin)
	if err != nil {
		return nil, &ConfigError{Binary: execBin, Err: err}
	}
	probePath, err := verifyBinary(probeBin)
	if err != nil {
		return nil, &ConfigError{Binary: probeBin, Err: err}
	}

	log.Info().
		Str("exec", execPath).
		Str("probe", probePath).
		Msg("execution runtime ready")

	return &Runtime{
		execPath:  execPath,
		probePath: probePath,
		log:       log,
	}, nil
}

// verifyBinary resolves a binary on PATH and confirms it actually runs.
func verifyBinary(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), versionCheckTimeout)
	defer cancel()

	// ffmpeg and ffprobe both exit 0 on -version; tools that ignore unknown
	// flags still prove they are executable here.
	if err := exec.CommandContext(ctx, path, "-version").Run(); err != nil {
		var exitErr *exec.ExitError
		// A non-zero exit still proves the binary launched.
		if !errors.As(err, &exitErr) {
			return "", err
		}
	}
	return path, nil
}

// Execute spawns the execution binary with args and waits up to timeout.
// A normal completion (including non-zero exit) returns a Result; the caller
// decides what a non-zero exit means. If the wall-clock budget elapses the
// child process is killed and a TimeoutError is returned - a running process
// is never leaked.
func (r *Runtime) Execute(ctx context.Context, args []string, timeout time.Duration) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.execPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	// CommandContext kills the child on deadline; Run then reports the kill.
	if runCtx.Err() == context.DeadlineExceeded {
		r.log.Warn().
			Strs("args", args).
			Dur("timeout", timeout).
			Msg("execution exceeded budget, process killed")
		return Result{}, &TimeoutError{Timeout: timeout}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{
				ExitCode: exitErr.ExitCode(),
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
			}, nil
		}
		// Start failure or an I/O error, not a process outcome.
		return Result{}, err
	}

	r.log.Debug().
		Strs("args", args).
		Dur("took", time.Since(start)).
		Msg("execution completed")

	return Result{
		ExitCode: 0,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// Probe invokes the probe binary against path and parses its JSON output into
// media metadata. A non-zero exit or unparsable output yields an *ExecError.
func (r *Runtime) Probe(ctx context.Context, path string) (models.MediaInfo, error) {
	args := []string{
		"-v", "error",
		"-show_format",
		"-show_streams",
		"-of", "json",
		path,
	}
	cmd := exec.CommandContext(ctx, r.probePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return models.MediaInfo{}, &ExecError{ExitCode: code, Stderr: stderr.String(), Err: err}
	}

	var info models.MediaInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return models.MediaInfo{}, &ExecError{Stderr: "unparsable probe output", Err: err}
	}
	return info, nil
}
