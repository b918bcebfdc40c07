package robocopy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/reelworks/reeltransfer/internal/constants"
)

// DefaultExecutable returns the copy-tool binary name used when a request
// does not override it. Resolution against PATH happens at spawn time.
func DefaultExecutable() string {
	return constants.DefaultExecutable
}

// SpawnError wraps a failure to launch the child process at all. It is
// terminal and never retried: a missing or non-executable binary is an
// environment problem, not a transient one.
type SpawnError struct {
	Exe string
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawning %s: %v", e.Exe, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// IsSpawnError reports whether err is (or wraps) a SpawnError.
func IsSpawnError(err error) bool {
	var se *SpawnError
	return errors.As(err, &se)
}

// Process is one running child. Output delivers stdout and stderr merged,
// line by line, in emission order, and is closed at EOF; Wait must not be
// called until Output is drained.
type Process interface {
	Output() <-chan string
	Wait() (exitCode int, err error)
	Terminate() error
	Kill() error
}

// Runner launches invocations. The production implementation shells out;
// tests substitute a double that plays back canned output and exit codes.
type Runner interface {
	Start(ctx context.Context, inv *Invocation) (Process, error)
}

// ExecRunner runs invocations as real OS processes.
type ExecRunner struct{}

// Start spawns the invocation with stdout and stderr merged into a single
// ordered line stream. The context aborts the child if the caller gives up.
func (ExecRunner) Start(ctx context.Context, inv *Invocation) (Process, error) {
	argv := inv.CommandLine()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	configureProcAttrs(cmd)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return nil, &SpawnError{Exe: inv.Exe, Err: err}
	}

	p := &execProcess{
		cmd:    cmd,
		lines:  make(chan string, 64),
		waited: make(chan struct{}),
	}
	go p.pump(pr)
	go func() {
		// Close the write side once the child exits so the pump sees EOF.
		p.waitErr = cmd.Wait()
		close(p.waited)
		pw.Close()
	}()
	return p, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	lines   chan string
	waited  chan struct{}
	waitErr error
}

func (p *execProcess) pump(r io.ReadCloser) {
	defer r.Close()
	defer close(p.lines)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.lines <- scanner.Text()
	}
}

func (p *execProcess) Output() <-chan string { return p.lines }

func (p *execProcess) Wait() (int, error) {
	<-p.waited
	if p.waitErr == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(p.waitErr, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, p.waitErr
}

func (p *execProcess) Terminate() error {
	if p.cmd.Process == nil {
		return nil
	}
	return terminateProcess(p.cmd)
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}
