package adb

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// newTestExecutor stages the given script as the adb binary and
// returns an executor bound to it.
func newTestExecutor(t *testing.T, script string) *Executor {
	t.Helper()
	dir := t.TempDir()
	writeFakeADB(t, dir, script)
	r := NewResolverWithStrategies(dirStrategy{name: "test", dir: dir})
	t.Cleanup(r.Cleanup)
	return NewExecutor(r)
}

func TestRunSuccess(t *testing.T) {
	e := newTestExecutor(t, `echo "hello $1"`)

	res, err := e.Run(context.Background(), []string{"world"}, Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %v", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "hello world" {
		t.Errorf("unexpected stdout: %q", res.Stdout)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	e := newTestExecutor(t, `echo "boom" >&2; exit 3`)

	res, err := e.Run(context.Background(), []string{"x"}, Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("expected failure")
	}
	if res.ExitCode == nil || *res.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %v", res.ExitCode)
	}
	if res.Error != "" {
		t.Errorf("non-zero exit must not set Error, got %q", res.Error)
	}
	if !strings.Contains(res.Stderr, "boom") {
		t.Errorf("stderr not captured: %q", res.Stderr)
	}
}

func TestRunTimeoutKillsChild(t *testing.T) {
	e := newTestExecutor(t, `sleep 30`)

	start := time.Now()
	res, err := e.Run(context.Background(), []string{"x"}, Options{Timeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("child was not killed promptly, took %v", elapsed)
	}
	if res.Success {
		t.Error("expected failure")
	}
	if res.ExitCode != nil {
		t.Errorf("timeout must leave ExitCode nil, got %v", *res.ExitCode)
	}
	if !strings.Contains(res.Error, "timeout") || !strings.Contains(res.Error, "200ms") {
		t.Errorf("error must report the timeout duration, got %q", res.Error)
	}
}

func TestRunCancellation(t *testing.T) {
	e := newTestExecutor(t, `sleep 30`)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res, err := e.Run(ctx, []string{"x"}, Options{Timeout: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("cancellation did not terminate the child promptly")
	}
	if res.Success || res.Error != "cancelled" {
		t.Errorf("expected cancelled result, got %+v", res)
	}
}

func TestRunBinaryModePreservesBytes(t *testing.T) {
	// Emits a null byte and invalid UTF-8 sequences.
	e := newTestExecutor(t, `printf 'a\000b\377\376c'`)

	res, err := e.Run(context.Background(), []string{"x"}, Options{Timeout: 5 * time.Second, Binary: true})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("run failed: %+v", res)
	}
	want := []byte{'a', 0x00, 'b', 0xff, 0xfe, 'c'}
	if !bytes.Equal(res.RawStdout, want) {
		t.Errorf("binary output corrupted: got %v want %v", res.RawStdout, want)
	}
	if res.Stdout != "" {
		t.Error("text field populated in binary mode")
	}
}

func TestRunTextModeToleratesInvalidUTF8(t *testing.T) {
	e := newTestExecutor(t, `printf 'ok\377ok'`)

	res, err := e.Run(context.Background(), []string{"x"}, Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("run failed: %+v", res)
	}
	if !strings.HasPrefix(res.Stdout, "ok") || !strings.HasSuffix(res.Stdout, "ok") {
		t.Errorf("stray byte broke text decoding: %q", res.Stdout)
	}
	if res.RawStdout != nil {
		t.Error("raw field populated in text mode")
	}
}

func TestRunContractViolations(t *testing.T) {
	e := newTestExecutor(t, `echo ok`)

	if _, err := e.Run(context.Background(), nil, Options{Timeout: time.Second}); !errors.Is(err, ErrInvalidInvocation) {
		t.Errorf("empty args: expected ErrInvalidInvocation, got %v", err)
	}
	if _, err := e.Run(context.Background(), []string{"x"}, Options{Timeout: 0}); !errors.Is(err, ErrInvalidInvocation) {
		t.Errorf("zero timeout: expected ErrInvalidInvocation, got %v", err)
	}
}

func TestRunResolverFailureIsEncodedNotRaised(t *testing.T) {
	r := NewResolverWithStrategies(dirStrategy{name: "empty", dir: t.TempDir()})
	e := NewExecutor(r)

	res, err := e.Run(context.Background(), []string{"devices"}, Options{Timeout: time.Second})
	if err != nil {
		t.Fatalf("resolution failure must not be a Go error: %v", err)
	}
	if res.Success {
		t.Error("expected failure")
	}
	if res.ExitCode != nil {
		t.Error("no process ran, ExitCode must be nil")
	}
	if !strings.Contains(res.Error, "resolution failed") {
		t.Errorf("error must identify the resolver failure, got %q", res.Error)
	}
}

func TestConcurrentRunsDoNotInterfere(t *testing.T) {
	e := newTestExecutor(t, `echo "run $1"`)

	const n = 8
	results := make(chan Result, n)
	for i := 0; i < n; i++ {
		go func() {
			res, err := e.Run(context.Background(), []string{"p"}, Options{Timeout: 5 * time.Second})
			if err != nil {
				t.Errorf("Run: %v", err)
			}
			results <- res
		}()
	}
	for i := 0; i < n; i++ {
		res := <-results
		if !res.Success || strings.TrimSpace(res.Stdout) != "run p" {
			t.Errorf("concurrent run corrupted: %+v", res)
		}
	}
}
