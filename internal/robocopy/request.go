// Package robocopy models the engine's external contract with the Robocopy
// copy tool: validated transfer requests, deterministic invocation building,
// output parsing, exit-code classification, and the process boundary the
// supervisor drives. Nothing in this package performs bulk file I/O; that is
// the child process's job.
package robocopy

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/reelworks/reeltransfer/internal/constants"
	"github.com/reelworks/reeltransfer/internal/pathutil"
)

// Mode selects between copying and moving (delete-from-source) semantics.
type Mode string

const (
	ModeCopy Mode = "copy"
	ModeMove Mode = "move"
)

// ErrInvalidRequest indicates a request that must be rejected before any I/O
// happens: bad option combinations, relative paths, or a destination that
// overlaps a source.
var ErrInvalidRequest = errors.New("invalid transfer request")

// TransferRequest describes one transfer. It is assembled by the caller and
// treated as immutable once handed to preflight.
type TransferRequest struct {
	// Sources is the ordered list of paths to transfer. Either a single
	// directory, or one or more files sharing a single parent directory
	// (SourcesAreFiles=true) — the shapes Robocopy can express.
	Sources []string

	// SourcesAreFiles marks Sources as individual files rather than a
	// directory tree. Set by the caller, which knows how the paths were
	// selected; keeping it explicit keeps Build free of filesystem probes.
	SourcesAreFiles bool

	// Dest is the destination directory.
	Dest string

	// Executable overrides the copy-tool binary. Empty means
	// constants.DefaultExecutable resolved via PATH at spawn time.
	Executable string

	Mode           Mode
	IncludeSubdirs bool
	Mirror         bool // destructive sync: deletes destination extras
	DryRun         bool

	// Retries is both the per-file retry count handed to the tool (/R) and
	// the supervisor's relaunch budget for transient exit codes.
	Retries          int
	RetryWaitSeconds int

	// Threads is the tool's multithread count (/MT). 0 omits the flag.
	Threads int
}

// SourceRoot returns the directory Robocopy will be pointed at: the single
// source directory, or the shared parent when individual files are selected.
func (r *TransferRequest) SourceRoot() string {
	if len(r.Sources) == 0 {
		return ""
	}
	if r.SourcesAreFiles {
		return filepath.Dir(r.Sources[0])
	}
	return r.Sources[0]
}

// Validate checks structural invariants. It performs no filesystem access;
// readability and existence are preflight's responsibility.
func (r *TransferRequest) Validate() error {
	if r.Mode != ModeCopy && r.Mode != ModeMove {
		return fmt.Errorf("%w: mode must be copy or move, got %q", ErrInvalidRequest, r.Mode)
	}
	if len(r.Sources) == 0 {
		return fmt.Errorf("%w: no source paths", ErrInvalidRequest)
	}
	if r.Dest == "" {
		return fmt.Errorf("%w: no destination", ErrInvalidRequest)
	}
	if !filepath.IsAbs(r.Dest) {
		return fmt.Errorf("%w: destination %q is not absolute", ErrInvalidRequest, r.Dest)
	}

	dest := filepath.Clean(r.Dest)
	for _, src := range r.Sources {
		if !filepath.IsAbs(src) {
			return fmt.Errorf("%w: source %q is not absolute", ErrInvalidRequest, src)
		}
		src = filepath.Clean(src)
		if src == dest {
			return fmt.Errorf("%w: source and destination are the same path", ErrInvalidRequest)
		}
		if pathutil.ContainsPath(src, dest) {
			return fmt.Errorf("%w: destination %q is inside source %q", ErrInvalidRequest, dest, src)
		}
	}

	if r.SourcesAreFiles {
		parent := filepath.Dir(r.Sources[0])
		for _, src := range r.Sources[1:] {
			if filepath.Dir(src) != parent {
				return fmt.Errorf("%w: file sources must share one parent directory", ErrInvalidRequest)
			}
		}
		if r.Mirror {
			return fmt.Errorf("%w: mirror mode is not supported for file selections", ErrInvalidRequest)
		}
	} else if len(r.Sources) > 1 {
		return fmt.Errorf("%w: multiple directory sources are not expressible in one invocation", ErrInvalidRequest)
	}

	if r.Mirror && !r.IncludeSubdirs {
		// /MIR implies subdirectory traversal; accepting the combination
		// would silently widen the deletion scope beyond what was asked.
		return fmt.Errorf("%w: mirror mode requires subdirectories to be included", ErrInvalidRequest)
	}

	if r.Retries < 0 {
		return fmt.Errorf("%w: retries must be non-negative", ErrInvalidRequest)
	}
	if r.RetryWaitSeconds < 0 {
		return fmt.Errorf("%w: retry wait must be non-negative", ErrInvalidRequest)
	}
	if r.Threads < 0 || r.Threads > constants.MaxThreads {
		return fmt.Errorf("%w: threads must be in 0..%d", ErrInvalidRequest, constants.MaxThreads)
	}
	return nil
}
