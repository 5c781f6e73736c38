package adb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Result is the outcome of one bridge invocation. Execution failures
// (spawn error, timeout, non-zero exit) are encoded here, never raised;
// callers inspect Success/Error/ExitCode instead of unwrapping errors.
type Result struct {
	// Success is true iff the process ran and exited zero.
	Success bool `json:"success"`
	// ExitCode is nil when the process never started or was killed
	// before exiting on its own (spawn failure, timeout).
	ExitCode *int `json:"exit_code,omitempty"`
	// Stdout/Stderr carry lossily decoded text in text mode; RawStdout/
	// RawStderr carry untouched bytes in binary mode. The two pairs are
	// mode-exclusive.
	Stdout    string `json:"stdout,omitempty"`
	Stderr    string `json:"stderr,omitempty"`
	RawStdout []byte `json:"-"`
	RawStderr []byte `json:"-"`
	// Error describes why the invocation failed outside the bridge's
	// own exit status: resolver failure, spawn failure, or timeout.
	Error string `json:"error,omitempty"`

	// cause keeps the typed resolution error so client helpers can
	// re-wrap it and callers can still errors.As for it.
	cause error
}

// Options control one invocation.
type Options struct {
	// Timeout bounds the child's lifetime. Required, > 0.
	Timeout time.Duration
	// Binary requests raw byte output instead of decoded text. Needed
	// for image payloads where decoding would corrupt data.
	Binary bool
}

// ErrInvalidInvocation is returned by Run for contract violations
// (empty args, non-positive timeout). Runtime failures never produce
// a Go error; they are encoded in the Result.
var ErrInvalidInvocation = errors.New("invalid adb invocation")

// diagOutputLimit caps how much child output goes to the log.
const diagOutputLimit = 500

// Executor runs single bridge invocations against the resolver's
// staged binary. Safe for concurrent use; each Run owns its own child
// process.
type Executor struct {
	resolver *Resolver
}

func NewExecutor(resolver *Resolver) *Executor {
	return &Executor{resolver: resolver}
}

// Run invokes the bridge with args, waits for exit or timeout, and
// returns a Result. ctx cancellation kills the child through the same
// path as the timeout. The returned error is non-nil only for
// precondition violations.
func (e *Executor) Run(ctx context.Context, args []string, opts Options) (Result, error) {
	if len(args) == 0 {
		return Result{}, fmt.Errorf("%w: empty args", ErrInvalidInvocation)
	}
	if opts.Timeout <= 0 {
		return Result{}, fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidInvocation, opts.Timeout)
	}

	loc, err := e.resolver.Resolve()
	if err != nil {
		res := Result{Success: false, Error: err.Error(), cause: err}
		e.logResult(args, opts, res)
		return res, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, loc.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	res := Result{}
	if opts.Binary {
		res.RawStdout = stdout.Bytes()
		res.RawStderr = stderr.Bytes()
	} else {
		res.Stdout = strings.ToValidUTF8(stdout.String(), "�")
		res.Stderr = strings.ToValidUTF8(stderr.String(), "�")
	}

	switch {
	case runErr == nil:
		res.Success = true
		code := 0
		res.ExitCode = &code

	case runCtx.Err() == context.DeadlineExceeded:
		// Child was killed by the timeout; CommandContext already sent
		// the kill, Run returned once the process died.
		res.Error = fmt.Sprintf("timeout: %v", opts.Timeout)

	case runCtx.Err() == context.Canceled:
		res.Error = "cancelled"

	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			// Non-zero exit: the bridge ran and reported a failure.
			// The caller reads stdout/stderr for the reason.
			code := exitErr.ExitCode()
			res.ExitCode = &code
		} else {
			// Spawn failure: binary vanished, permission denied, etc.
			res.Error = fmt.Sprintf("spawn failed: %v", runErr)
		}
	}

	e.logResult(args, opts, res)
	return res, nil
}

func (e *Executor) logResult(args []string, opts Options, res Result) {
	attrs := []any{
		"args", strings.Join(args, " "),
		"timeout", opts.Timeout,
		"success", res.Success,
	}
	if res.ExitCode != nil {
		attrs = append(attrs, "exit_code", *res.ExitCode)
	}
	if res.Error != "" {
		attrs = append(attrs, "error", res.Error)
	}
	if opts.Binary {
		attrs = append(attrs, "stdout_bytes", len(res.RawStdout))
	} else if res.Stdout != "" {
		attrs = append(attrs, "stdout", truncate(res.Stdout, diagOutputLimit))
	}
	if res.Stderr != "" {
		attrs = append(attrs, "stderr", truncate(res.Stderr, diagOutputLimit))
	}
	slog.Debug("adb invocation", attrs...)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + fmt.Sprintf("... (%d more bytes)", len(s)-limit)
}
