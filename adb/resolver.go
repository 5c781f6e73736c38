package adb

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// binaryName is the bridge executable we look for in every candidate
// location.
const binaryName = "adb"

// BinaryLocation is a staged, ready-to-run bridge binary. Dir is the
// private working directory that owns the copy; removing Dir removes
// everything the resolver staged.
type BinaryLocation struct {
	Path string
	Dir  string
}

// ResolutionError means no candidate location yielded a usable bridge
// binary. It is a recoverable failure distinct from a command that ran
// and failed; callers surface it as "tool unavailable".
type ResolutionError struct {
	Reason string
}

func (e *ResolutionError) Error() string {
	return "adb binary resolution failed: " + e.Reason
}

// Strategy is one candidate location for the bridge binary. Locate
// returns the directory (or single file) holding the binary and true
// on a hit. Strategies never stage anything themselves.
type Strategy interface {
	Name() string
	Locate() (string, bool)
}

// Resolver finds the bridge binary across an ordered strategy chain
// and stages the winner into a fresh temp directory. The result is
// cached for the process lifetime; Cleanup drops the cache and the
// staged directory.
type Resolver struct {
	strategies []Strategy

	mu       sync.Mutex
	location *BinaryLocation
}

// NewResolver builds a resolver with the default candidate chain:
// a configured override directory (when non-empty), bundle resources
// next to the executable, an adb/ directory next to the executable,
// an adb/ directory under the working directory, and finally the
// system PATH.
func NewResolver(overrideDir string) *Resolver {
	var chain []Strategy
	if overrideDir != "" {
		chain = append(chain, dirStrategy{name: "override", dir: overrideDir})
	}
	chain = append(chain,
		exeRelativeStrategy{name: "bundle-resources", sub: filepath.Join("resources", binaryName)},
		exeRelativeStrategy{name: "exe-sibling", sub: binaryName},
		cwdStrategy{},
		pathStrategy{},
	)
	return &Resolver{strategies: chain}
}

// NewResolverWithStrategies builds a resolver with an explicit chain.
func NewResolverWithStrategies(strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies}
}

// Resolve walks the strategy chain until one yields a usable binary,
// stages it into a fresh private directory, and prepends that
// directory to PATH so the bridge can shell out to co-located helper
// tools. The staged location is cached; call Cleanup to force a later
// re-resolution.
func (r *Resolver) Resolve() (*BinaryLocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.location != nil {
		return r.location, nil
	}

	for _, s := range r.strategies {
		candidate, ok := s.Locate()
		if !ok {
			continue
		}
		loc, err := stage(candidate)
		if err != nil {
			slog.Warn("staging adb candidate failed", "strategy", s.Name(), "candidate", candidate, "error", err)
			continue
		}
		if err := prependPath(loc.Dir); err != nil {
			slog.Warn("failed to prepend staged dir to PATH", "dir", loc.Dir, "error", err)
		}
		slog.Info("resolved adb binary", "strategy", s.Name(), "path", loc.Path)
		r.location = loc
		return loc, nil
	}

	return nil, &ResolutionError{Reason: "no candidate location holds an adb executable"}
}

// Cleanup removes the staged directory and drops the cached location.
// Safe to call multiple times and before any Resolve.
func (r *Resolver) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.location == nil {
		return
	}
	if err := os.RemoveAll(r.location.Dir); err != nil {
		slog.Warn("failed to remove staged adb directory", "dir", r.location.Dir, "error", err)
	} else {
		slog.Info("removed staged adb directory", "dir", r.location.Dir)
	}
	// Drop the dead staging dir from PATH so resolve/cleanup cycles do
	// not accumulate stale entries.
	removeFromPath(r.location.Dir)
	r.location = nil
}

// stage copies a candidate into a fresh temp directory. A directory
// candidate is copied file by file (the bridge ships with helper DLLs
// on some platforms); a file candidate is copied alone.
func stage(candidate string) (*BinaryLocation, error) {
	info, err := os.Stat(candidate)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "tvbridge-adb-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	if info.IsDir() {
		entries, err := os.ReadDir(candidate)
		if err != nil {
			os.RemoveAll(dir)
			return nil, err
		}
		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			src := filepath.Join(candidate, entry.Name())
			dst := filepath.Join(dir, entry.Name())
			if err := copyFile(src, dst); err != nil {
				os.RemoveAll(dir)
				return nil, err
			}
		}
	} else {
		if err := copyFile(candidate, filepath.Join(dir, exeName())); err != nil {
			os.RemoveAll(dir)
			return nil, err
		}
	}

	path := filepath.Join(dir, exeName())
	if _, err := os.Stat(path); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("candidate %s does not contain %s: %w", candidate, exeName(), err)
	}
	if err := os.Chmod(path, 0o755); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	return &BinaryLocation{Path: path, Dir: dir}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func exeName() string {
	if runtime.GOOS == "windows" {
		return binaryName + ".exe"
	}
	return binaryName
}

func prependPath(dir string) error {
	return os.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func removeFromPath(dir string) {
	entries := strings.Split(os.Getenv("PATH"), string(os.PathListSeparator))
	kept := entries[:0]
	for _, e := range entries {
		if e != dir {
			kept = append(kept, e)
		}
	}
	os.Setenv("PATH", strings.Join(kept, string(os.PathListSeparator)))
}

// dirStrategy checks a fixed directory for the binary.
type dirStrategy struct {
	name string
	dir  string
}

func (s dirStrategy) Name() string { return s.name }

func (s dirStrategy) Locate() (string, bool) {
	if _, err := os.Stat(filepath.Join(s.dir, exeName())); err != nil {
		return "", false
	}
	return s.dir, true
}

// exeRelativeStrategy checks a subdirectory next to the running
// program, covering both packaged bundles and loose installs.
type exeRelativeStrategy struct {
	name string
	sub  string
}

func (s exeRelativeStrategy) Name() string { return s.name }

func (s exeRelativeStrategy) Locate() (string, bool) {
	exe, err := os.Executable()
	if err != nil {
		return "", false
	}
	dir := filepath.Join(filepath.Dir(exe), s.sub)
	if _, err := os.Stat(filepath.Join(dir, exeName())); err != nil {
		return "", false
	}
	return dir, true
}

// cwdStrategy checks an adb/ directory under the current working
// directory, the layout used when running from a source checkout.
type cwdStrategy struct{}

func (cwdStrategy) Name() string { return "cwd" }

func (cwdStrategy) Locate() (string, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	dir := filepath.Join(cwd, binaryName)
	if _, err := os.Stat(filepath.Join(dir, exeName())); err != nil {
		return "", false
	}
	return dir, true
}

// pathStrategy falls back to the system executable search path.
type pathStrategy struct{}

func (pathStrategy) Name() string { return "system-path" }

func (pathStrategy) Locate() (string, bool) {
	path, err := exec.LookPath(binaryName)
	if err != nil {
		return "", false
	}
	return path, true
}
