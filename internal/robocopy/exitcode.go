package robocopy

import "github.com/reelworks/reeltransfer/internal/constants"

// ExitClass is the supervisor-facing meaning of a child exit code.
type ExitClass int

const (
	// ExitSuccess: nothing to do, or everything copied cleanly.
	ExitSuccess ExitClass = iota

	// ExitWarning: files were copied but the tool flagged extras or
	// mismatches. The transfer succeeded with warnings.
	ExitWarning

	// ExitTransient: some files failed. These are the retryable codes —
	// a share dropping mid-copy, a file briefly locked.
	ExitTransient

	// ExitFatal: a serious error; no point relaunching.
	ExitFatal

	// ExitUnknown: a code outside the tool's documented range. Classified
	// fail-closed as a terminal failure.
	ExitUnknown
)

func (c ExitClass) String() string {
	switch c {
	case ExitSuccess:
		return "success"
	case ExitWarning:
		return "warning"
	case ExitTransient:
		return "transient"
	case ExitFatal:
		return "fatal"
	}
	return "unknown"
}

// Retryable reports whether the supervisor may relaunch after this class.
func (c ExitClass) Retryable() bool {
	return c == ExitTransient
}

// ClassifyExit maps a Robocopy exit code to its class. The code is a bitmask:
// bit 0 = files copied, bit 1 = extra files present, bit 2 = mismatches,
// bit 3 = copy failures, bit 4 = fatal error. The table is total: every
// possible integer gets a class, with anything outside 0..31 treated as
// unknown rather than guessed at.
func ClassifyExit(code int) ExitClass {
	switch {
	case code < 0 || code > constants.ExitMax:
		return ExitUnknown
	case code&constants.ExitBitFatal != 0:
		return ExitFatal
	case code&constants.ExitBitFailures != 0:
		return ExitTransient
	case code&(constants.ExitBitExtras|constants.ExitBitMismatch) != 0:
		return ExitWarning
	default:
		// 0 (nothing to do) or 1 (files copied).
		return ExitSuccess
	}
}
