// Package supervisor drives one transfer from preflight to a terminal
// result: it owns the child process, classifies its exit, retries transient
// failures, applies the post-transfer rename plan, and reports everything as
// ordered events. One supervisor handles one transfer at a time; concurrent
// starts are rejected, never queued.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/reelworks/reeltransfer/internal/constants"
	"github.com/reelworks/reeltransfer/internal/duplicates"
	"github.com/reelworks/reeltransfer/internal/events"
	"github.com/reelworks/reeltransfer/internal/logging"
	"github.com/reelworks/reeltransfer/internal/preflight"
	"github.com/reelworks/reeltransfer/internal/robocopy"
)

// State is the supervisor's position in the transfer lifecycle.
type State string

const (
	StateIdle               State = "idle"
	StatePreflighting       State = "preflighting"
	StateAwaitingResolution State = "awaiting_resolution"
	StateReady              State = "ready"
	StateRunning            State = "running"
	StateRetrying           State = "retrying"
	StateSucceeded          State = "succeeded"
	StateFailed             State = "failed"
	StateCancelled          State = "cancelled"
)

// Terminal reports whether the state ends the lifecycle.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Outcome is the terminal classification carried by a Result.
type Outcome string

const (
	OutcomeSucceeded             Outcome = "succeeded"
	OutcomeSucceededWithWarnings Outcome = "succeeded_with_warnings"
	OutcomeFailed                Outcome = "failed"
	OutcomeCancelled             Outcome = "cancelled"
)

// FileError is one error observed during the transfer, in emission order.
type FileError struct {
	Path    string
	Code    int
	Message string
}

// Result is produced exactly once per transfer, at process exit,
// cancellation, or unrecoverable failure. Partial transfers are not rolled
// back: whatever the child already copied stays on disk, and the tool's own
// resume semantics govern what a rerun does with it.
type Result struct {
	Outcome     Outcome
	FilesCopied int
	BytesCopied int64
	Errors      []FileError
	Elapsed     time.Duration
	ExitCode    int
}

var (
	// ErrAlreadyRunning rejects a second concurrent start.
	ErrAlreadyRunning = errors.New("a transfer is already running")

	// ErrNotReady means Run was called before preflight and resolution
	// produced an invocation.
	ErrNotReady = errors.New("transfer is not ready to run")

	// ErrNotRunning means Cancel was called outside Running/Retrying.
	ErrNotRunning = errors.New("no transfer is running")

	// ErrNoCollisions means Resolve was called when nothing needs
	// resolving.
	ErrNoCollisions = errors.New("no collisions awaiting resolution")
)

// Supervisor owns one transfer lifecycle. Safe for concurrent use: Cancel
// and State may be called from a different goroutine than Run.
type Supervisor struct {
	runner robocopy.Runner
	bus    *events.Bus
	log    *logging.Logger
	grace  time.Duration

	mu         sync.Mutex
	state      State
	req        *robocopy.TransferRequest
	report     *preflight.Report
	resolution duplicates.Resolution
	inv        *robocopy.Invocation
	proc       robocopy.Process
	procDone   chan struct{}
	cancelReq  chan struct{}
	cancelled  bool
}

// Option tweaks supervisor construction.
type Option func(*Supervisor)

// WithGracePeriod overrides how long cancellation waits for a graceful exit
// before killing the child.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Supervisor) { s.grace = d }
}

// New builds a supervisor around a runner and an event bus.
func New(runner robocopy.Runner, bus *events.Bus, log *logging.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		runner: runner,
		bus:    bus,
		log:    log,
		grace:  constants.CancelGracePeriod,
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Report returns the preflight report of the current cycle, or nil.
func (s *Supervisor) Report() *preflight.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Invocation returns the built invocation for preview, or nil before Ready.
func (s *Supervisor) Invocation() *robocopy.Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inv
}

func (s *Supervisor) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev == next {
		return
	}
	s.log.Debug().Str("from", string(prev)).Str("to", string(next)).Msg("transfer state change")
	s.bus.Publish(&events.StateChangeEvent{
		BaseEvent: events.NewBaseEvent(events.EventStateChange),
		From:      string(prev),
		To:        string(next),
	})
}

// Preflight starts a new cycle: it walks the sources, probes the
// destination, and either arms the transfer (no collisions) or parks it in
// AwaitingResolution. Allowed from Idle or any terminal state.
func (s *Supervisor) Preflight(req *robocopy.TransferRequest, opts preflight.Options) (*preflight.Report, error) {
	s.mu.Lock()
	if s.state != StateIdle && !s.state.Terminal() {
		state := s.state
		s.mu.Unlock()
		if state == StateRunning || state == StateRetrying {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("cannot preflight while %s", state)
	}
	s.req = nil
	s.report = nil
	s.resolution = nil
	s.inv = nil
	s.cancelled = false
	s.mu.Unlock()
	s.setState(StatePreflighting)

	report, err := preflight.Run(req, opts)
	if err != nil {
		s.setState(StateIdle)
		return nil, err
	}

	s.mu.Lock()
	s.req = req
	s.report = report
	s.mu.Unlock()

	if len(report.Collisions) > 0 {
		s.log.Info().Int("collisions", len(report.Collisions)).Msg("duplicates found at destination")
		s.setState(StateAwaitingResolution)
		return report, nil
	}
	return report, s.arm(nil)
}

// Resolve assigns actions to the pending collisions and arms the transfer.
func (s *Supervisor) Resolve(defaultAction duplicates.Action, overrides map[string]duplicates.Action) error {
	s.mu.Lock()
	if s.state != StateAwaitingResolution {
		s.mu.Unlock()
		return ErrNoCollisions
	}
	report := s.report
	s.mu.Unlock()

	res, err := duplicates.Resolve(report.Collisions, defaultAction, overrides)
	if err != nil {
		return err
	}
	return s.arm(res)
}

// arm builds the invocation and moves to Ready.
func (s *Supervisor) arm(res duplicates.Resolution) error {
	s.mu.Lock()
	req, report := s.req, s.report
	s.mu.Unlock()

	var collisions []string
	if report != nil {
		collisions = report.Collisions
	}
	inv, err := robocopy.Build(req, collisions, res)
	if err != nil {
		s.setState(StateIdle)
		return err
	}

	s.mu.Lock()
	s.resolution = res
	s.inv = inv
	s.mu.Unlock()
	s.setState(StateReady)
	return nil
}

// Cancel requests termination of the running transfer. It asks the child to
// exit cleanly, then kills it after the grace period. Safe to call from any
// goroutine; the terminal state is always Cancelled, even when the child was
// about to exit successfully.
func (s *Supervisor) Cancel() error {
	s.mu.Lock()
	if s.state != StateRunning && s.state != StateRetrying {
		s.mu.Unlock()
		return ErrNotRunning
	}
	if s.cancelled {
		s.mu.Unlock()
		return nil
	}
	s.cancelled = true
	proc, done, cancelReq := s.proc, s.procDone, s.cancelReq
	s.mu.Unlock()

	s.log.Info().Msg("cancellation requested")
	if cancelReq != nil {
		close(cancelReq)
	}
	if proc == nil {
		// The attempt is between launching the child and storing its
		// handle; runAttempt sees the cancelled flag once the handle
		// lands and terminates the child itself.
		return nil
	}
	s.terminate(proc, done)
	return nil
}

// terminate asks the child to exit cleanly, then kills it once the grace
// period elapses without the attempt finishing.
func (s *Supervisor) terminate(proc robocopy.Process, done chan struct{}) {
	if err := proc.Terminate(); err != nil {
		s.log.Warn().Err(err).Msg("graceful terminate failed, killing")
		proc.Kill()
		return
	}
	go func() {
		select {
		case <-done:
		case <-time.After(s.grace):
			s.log.Warn().Dur("grace", s.grace).Msg("grace period elapsed, killing child")
			proc.Kill()
		}
	}()
}

// Run executes the armed invocation and blocks until a terminal result.
// Transient exits are relaunched up to the request's retry budget; spawn
// failures, fatal exits, and unknown exit codes end the transfer
// immediately. The returned error covers preconditions only — a transfer
// that launched always yields a Result.
func (s *Supervisor) Run(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	switch s.state {
	case StateRunning, StateRetrying:
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	case StateReady:
	default:
		s.mu.Unlock()
		return nil, ErrNotReady
	}
	req, inv := s.req, s.inv
	s.cancelReq = make(chan struct{})
	cancelReq := s.cancelReq
	s.mu.Unlock()
	s.setState(StateRunning)

	start := time.Now()
	acc := newAccumulator(s.bus, s.totalBytes())
	var result *Result

	for attempt := 0; ; attempt++ {
		exitCode, runErr := s.runAttempt(ctx, inv, acc)
		if runErr != nil {
			result = s.finish(OutcomeFailed, acc, exitCode, start, FileError{
				Message: runErr.Error(),
			})
			break
		}

		if s.isCancelled() {
			result = s.finish(OutcomeCancelled, acc, exitCode, start, FileError{
				Message: "transfer cancelled by user",
			})
			break
		}

		class := robocopy.ClassifyExit(exitCode)
		s.log.Info().Int("exit_code", exitCode).Stringer("class", class).Int("attempt", attempt+1).Msg("child process exited")

		if class == robocopy.ExitSuccess || class == robocopy.ExitWarning {
			acc.finalizeCurrent()
			outcome := OutcomeSucceeded
			if class == robocopy.ExitWarning {
				outcome = OutcomeSucceededWithWarnings
			}
			if renameErrs := s.applyRenames(req, inv); len(renameErrs) > 0 {
				acc.errors = append(acc.errors, renameErrs...)
				if outcome == OutcomeSucceeded {
					outcome = OutcomeSucceededWithWarnings
				}
			}
			result = s.finish(outcome, acc, exitCode, start)
			break
		}

		if class.Retryable() && attempt < req.Retries {
			delay := time.Duration(req.RetryWaitSeconds) * time.Second
			s.setState(StateRetrying)
			s.bus.Publish(&events.RetryScheduledEvent{
				BaseEvent: events.NewBaseEvent(events.EventRetryScheduled),
				Attempt:   attempt + 1,
				Delay:     delay,
				ExitCode:  exitCode,
			})
			if !s.waitRetry(ctx, delay, cancelReq) {
				result = s.finish(OutcomeCancelled, acc, exitCode, start, FileError{
					Message: "transfer cancelled during retry wait",
				})
				break
			}
			s.setState(StateRunning)
			continue
		}

		reason := FileError{Code: exitCode, Message: fmt.Sprintf("copy tool exited with code %d (%s)", exitCode, class)}
		if class == robocopy.ExitUnknown {
			reason.Message = fmt.Sprintf("copy tool exited with unrecognized code %d", exitCode)
		}
		result = s.finish(OutcomeFailed, acc, exitCode, start, reason)
		break
	}

	return result, nil
}

func (s *Supervisor) totalBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report == nil {
		return 0
	}
	return s.report.TotalBytes
}

func (s *Supervisor) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// runAttempt launches the child once and drains its output to completion.
func (s *Supervisor) runAttempt(ctx context.Context, inv *robocopy.Invocation, acc *accumulator) (int, error) {
	proc, err := s.runner.Start(ctx, inv)
	if err != nil {
		s.log.Error().Err(err).Str("exe", inv.Exe).Msg("failed to spawn copy tool")
		return -1, err
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.proc = proc
	s.procDone = done
	requested := s.cancelled
	s.mu.Unlock()

	// Cancel may have fired before the handle was stored; it had nothing to
	// signal then, so deliver the termination now.
	if requested {
		s.terminate(proc, done)
	}

	for line := range proc.Output() {
		acc.consume(line)
	}
	exitCode, waitErr := proc.Wait()
	close(done)

	s.mu.Lock()
	s.proc = nil
	s.procDone = nil
	s.mu.Unlock()

	if waitErr != nil {
		// The process could not be reaped at all; treat like a spawn-level
		// environment failure rather than inventing an exit code.
		if s.isCancelled() {
			return exitCode, nil
		}
		return exitCode, waitErr
	}
	return exitCode, nil
}

// waitRetry sleeps the retry delay, abandoning early on cancellation or
// context expiry. Returns false when the wait was interrupted.
func (s *Supervisor) waitRetry(ctx context.Context, delay time.Duration, cancelReq chan struct{}) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-cancelReq:
		return false
	case <-ctx.Done():
		s.mu.Lock()
		s.cancelled = true
		s.mu.Unlock()
		return false
	}
}

func (s *Supervisor) finish(outcome Outcome, acc *accumulator, exitCode int, start time.Time, extraErrs ...FileError) *Result {
	result := &Result{
		Outcome:     outcome,
		FilesCopied: acc.filesCopied,
		BytesCopied: acc.bytesCopied,
		Errors:      append(acc.errors, extraErrs...),
		Elapsed:     time.Since(start),
		ExitCode:    exitCode,
	}

	switch outcome {
	case OutcomeSucceeded, OutcomeSucceededWithWarnings:
		s.setState(StateSucceeded)
	case OutcomeCancelled:
		s.setState(StateCancelled)
	default:
		s.setState(StateFailed)
	}

	s.bus.Publish(&events.CompletedEvent{
		BaseEvent:   events.NewBaseEvent(events.EventCompleted),
		Outcome:     string(outcome),
		FilesCopied: result.FilesCopied,
		BytesCopied: result.BytesCopied,
		Errors:      len(result.Errors),
		Elapsed:     result.Elapsed,
		ExitCode:    exitCode,
	})
	s.log.Info().
		Str("outcome", string(outcome)).
		Int("files", result.FilesCopied).
		Int64("bytes", result.BytesCopied).
		Dur("elapsed", result.Elapsed).
		Msg("transfer finished")
	return result
}
