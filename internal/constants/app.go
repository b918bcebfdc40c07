package constants

import (
	"time"
)

// Robocopy invocation defaults
const (
	// DefaultExecutable - child process name when no override is configured.
	// Resolved through PATH at spawn time, never at build time.
	DefaultExecutable = "robocopy"

	// DefaultRetries - per-file retry count passed as /R and reused as the
	// supervisor-level relaunch budget for transient exit codes.
	DefaultRetries = 1

	// DefaultRetryWaitSeconds - wait between retries, passed as /W.
	DefaultRetryWaitSeconds = 1

	// DefaultThreads - multithread count passed as /MT.
	DefaultThreads = 4

	// MaxThreads - Robocopy's documented /MT upper bound.
	MaxThreads = 128
)

// Exit-code classification boundaries.
// Robocopy's exit value is a bitmask: 1 = files copied, 2 = extra entries in
// destination, 4 = mismatched entries, 8 = copy failures, 16 = fatal error.
const (
	// ExitBitCopied - at least one file was copied.
	ExitBitCopied = 1

	// ExitBitExtras - extra files or directories were detected.
	ExitBitExtras = 2

	// ExitBitMismatch - mismatched files or directories were detected.
	ExitBitMismatch = 4

	// ExitBitFailures - some files or directories could not be copied.
	ExitBitFailures = 8

	// ExitBitFatal - serious error; no files were copied.
	ExitBitFatal = 16

	// ExitMax - highest exit value Robocopy can legitimately produce.
	ExitMax = 31
)

// Preflight
const (
	// DiskSpaceSafetyMargin - extra fraction of the transfer size required
	// beyond the raw total, to absorb allocation overhead and concurrent
	// writers on the destination volume.
	DiskSpaceSafetyMargin = 0.05

	// CollisionSampleLimit - maximum collisions echoed in CLI summaries.
	CollisionSampleLimit = 12
)

// Supervisor
const (
	// CancelGracePeriod - how long a cancelled child process is given to exit
	// after a graceful termination request before it is killed.
	CancelGracePeriod = 5 * time.Second

	// EventBusDefaultBuffer - default buffer size for event subscriber
	// channels. Progress output from a single child process is line-rate, so
	// this is generous.
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - cap for caller-supplied buffer sizes.
	EventBusMaxBuffer = 5000
)

// UI updates
const (
	// ProgressRefreshRate - refresh interval for terminal progress bars.
	ProgressRefreshRate = 300 * time.Millisecond
)
