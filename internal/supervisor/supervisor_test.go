package supervisor

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/reelworks/reeltransfer/internal/duplicates"
	"github.com/reelworks/reeltransfer/internal/events"
	"github.com/reelworks/reeltransfer/internal/logging"
	"github.com/reelworks/reeltransfer/internal/preflight"
	"github.com/reelworks/reeltransfer/internal/robocopy"
)

// script is one child-process lifetime for the fake runner.
type script struct {
	lines         []string
	exit          int
	holdForCancel bool // block after emitting lines until Terminate/Kill
}

type fakeProc struct {
	out  chan string
	exit int
	done chan struct{}
	term chan struct{}
	once sync.Once
}

func (p *fakeProc) Output() <-chan string { return p.out }

func (p *fakeProc) Wait() (int, error) {
	<-p.done
	return p.exit, nil
}

func (p *fakeProc) Terminate() error {
	p.once.Do(func() { close(p.term) })
	return nil
}

func (p *fakeProc) Kill() error {
	p.once.Do(func() { close(p.term) })
	return nil
}

type fakeRunner struct {
	mu       sync.Mutex
	scripts  []script
	launches int
	spawnErr error
}

func (r *fakeRunner) launchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.launches
}

func (r *fakeRunner) Start(_ context.Context, _ *robocopy.Invocation) (robocopy.Process, error) {
	r.mu.Lock()
	idx := r.launches
	r.launches++
	r.mu.Unlock()

	if r.spawnErr != nil {
		return nil, &robocopy.SpawnError{Exe: "robocopy", Err: r.spawnErr}
	}

	sc := r.scripts[len(r.scripts)-1]
	if idx < len(r.scripts) {
		sc = r.scripts[idx]
	}

	p := &fakeProc{
		out:  make(chan string),
		exit: sc.exit,
		done: make(chan struct{}),
		term: make(chan struct{}),
	}
	go func() {
		for _, line := range sc.lines {
			p.out <- line
		}
		if sc.holdForCancel {
			<-p.term
		}
		close(p.out)
		close(p.done)
	}()
	return p, nil
}

func writeFileSize(t *testing.T, path string, size int64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(size); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func testLogger() *logging.Logger {
	return logging.NewLogger(io.Discard)
}

func newTestSupervisor(runner robocopy.Runner) (*Supervisor, *events.Bus) {
	bus := events.NewBus(0)
	return New(runner, bus, testLogger(), WithGracePeriod(100*time.Millisecond)), bus
}

func copyRequest(src, dst string) *robocopy.TransferRequest {
	return &robocopy.TransferRequest{
		Sources:        []string{src},
		Dest:           dst,
		Mode:           robocopy.ModeCopy,
		IncludeSubdirs: true,
		Retries:        1,
	}
}

func TestRunSuccess(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFileSize(t, filepath.Join(src, "a.mov"), 10*1024*1024)
	writeFileSize(t, filepath.Join(src, "b.wav"), 5*1024*1024)

	runner := &fakeRunner{scripts: []script{{
		lines: []string{
			"\t  New File  \t\t10485760\ta.mov",
			"  34.5%",
			"100%",
			"\t  New File  \t\t 5242880\tb.wav",
			"100%",
		},
		exit: 1,
	}}}
	sup, bus := newTestSupervisor(runner)
	completed := bus.Subscribe(events.EventCompleted)

	report, err := sup.Preflight(copyRequest(src, dst), preflight.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if report.TotalBytes != 15*1024*1024 {
		t.Fatalf("TotalBytes = %d, want 15 MB", report.TotalBytes)
	}
	if len(report.Collisions) != 0 {
		t.Fatalf("unexpected collisions: %v", report.Collisions)
	}
	if sup.State() != StateReady {
		t.Fatalf("state = %v, want ready without a resolution step", sup.State())
	}

	result, err := sup.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeSucceeded {
		t.Errorf("outcome = %v, want succeeded", result.Outcome)
	}
	if result.FilesCopied != 2 {
		t.Errorf("FilesCopied = %d, want 2", result.FilesCopied)
	}
	if result.BytesCopied != 15*1024*1024 {
		t.Errorf("BytesCopied = %d, want 15 MB", result.BytesCopied)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Errors = %v, want none", result.Errors)
	}
	if result.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", result.ExitCode)
	}
	if sup.State() != StateSucceeded {
		t.Errorf("state = %v, want succeeded", sup.State())
	}

	select {
	case ev := <-completed:
		done := ev.(*events.CompletedEvent)
		if done.FilesCopied != 2 || done.BytesCopied != 15*1024*1024 {
			t.Errorf("completed event = %+v", done)
		}
	default:
		t.Error("no completed event published")
	}
}

func TestRunSkipsResolvedCollision(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFileSize(t, filepath.Join(src, "a.mov"), 1024)
	writeFileSize(t, filepath.Join(src, "b.mov"), 1024)
	writeFileSize(t, filepath.Join(dst, "b.mov"), 999)

	runner := &fakeRunner{scripts: []script{{
		lines: []string{"   New File   1024   a.mov", "100%"},
		exit:  1,
	}}}
	sup, _ := newTestSupervisor(runner)

	report, err := sup.Preflight(copyRequest(src, dst), preflight.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Collisions) != 1 || sup.State() != StateAwaitingResolution {
		t.Fatalf("collisions = %v, state = %v", report.Collisions, sup.State())
	}

	if err := sup.Resolve(duplicates.ActionSkip, nil); err != nil {
		t.Fatal(err)
	}
	if sup.State() != StateReady {
		t.Fatalf("state = %v, want ready", sup.State())
	}

	result, err := sup.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeSucceeded || result.FilesCopied != 1 {
		t.Errorf("outcome = %v files = %d, want succeeded with 1 file", result.Outcome, result.FilesCopied)
	}
}

func TestRetryExhaustion(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFileSize(t, filepath.Join(src, "a.mov"), 64)

	runner := &fakeRunner{scripts: []script{{exit: 8}}}
	sup, bus := newTestSupervisor(runner)
	retries := bus.Subscribe(events.EventRetryScheduled)

	req := copyRequest(src, dst)
	req.Retries = 2
	req.RetryWaitSeconds = 0
	if _, err := sup.Preflight(req, preflight.Options{}); err != nil {
		t.Fatal(err)
	}

	result, err := sup.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeFailed {
		t.Errorf("outcome = %v, want failed", result.Outcome)
	}
	if got := runner.launchCount(); got != 3 {
		t.Errorf("launches = %d, want retries+1 = 3", got)
	}
	if len(result.Errors) == 0 {
		t.Error("failed result must carry a non-empty error list")
	}

	var attempts []int
	for {
		select {
		case ev := <-retries:
			attempts = append(attempts, ev.(*events.RetryScheduledEvent).Attempt)
			continue
		default:
		}
		break
	}
	if len(attempts) != 2 {
		t.Fatalf("RetryScheduled events = %d, want 2", len(attempts))
	}
	// The field carries the 1-based retry ordinal, not the launch count.
	if attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("retry ordinals = %v, want [1 2]", attempts)
	}
	if sup.State() != StateFailed {
		t.Errorf("state = %v, want failed", sup.State())
	}
}

func TestCancelBeatsImminentSuccess(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFileSize(t, filepath.Join(src, "a.mov"), 64)

	// The child reports a full copy and would exit 1 — but only after
	// cancellation releases it. Cancelled must still win.
	runner := &fakeRunner{scripts: []script{{
		lines:         []string{"   New File   64   a.mov", "100%"},
		exit:          1,
		holdForCancel: true,
	}}}
	sup, bus := newTestSupervisor(runner)
	started := bus.Subscribe(events.EventFileStarted)

	if _, err := sup.Preflight(copyRequest(src, dst), preflight.Options{}); err != nil {
		t.Fatal(err)
	}

	type runOut struct {
		result *Result
		err    error
	}
	outCh := make(chan runOut, 1)
	go func() {
		result, err := sup.Run(context.Background())
		outCh <- runOut{result, err}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("child never started emitting output")
	}
	if err := sup.Cancel(); err != nil {
		t.Fatal(err)
	}

	out := <-outCh
	if out.err != nil {
		t.Fatal(out.err)
	}
	if out.result.Outcome != OutcomeCancelled {
		t.Errorf("outcome = %v, want cancelled", out.result.Outcome)
	}
	if len(out.result.Errors) == 0 {
		t.Error("cancelled result must explain itself")
	}
	if sup.State() != StateCancelled {
		t.Errorf("state = %v, want cancelled", sup.State())
	}
	if got := runner.launchCount(); got != 1 {
		t.Errorf("launches = %d, want 1", got)
	}
}

// cancelBeforeHandleRunner invokes Cancel between launching the child and
// handing its process back, while the supervisor has nothing to signal yet.
type cancelBeforeHandleRunner struct {
	inner  *fakeRunner
	cancel func() error
}

func (r *cancelBeforeHandleRunner) Start(ctx context.Context, inv *robocopy.Invocation) (robocopy.Process, error) {
	if err := r.cancel(); err != nil {
		return nil, err
	}
	return r.inner.Start(ctx, inv)
}

func TestCancelBeforeProcessHandleStored(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFileSize(t, filepath.Join(src, "a.mov"), 64)

	// The child only exits when terminated; an unterminated child would
	// run forever and hang the attempt.
	runner := &cancelBeforeHandleRunner{
		inner: &fakeRunner{scripts: []script{{exit: 1, holdForCancel: true}}},
	}
	sup, _ := newTestSupervisor(runner)
	runner.cancel = sup.Cancel

	if _, err := sup.Preflight(copyRequest(src, dst), preflight.Options{}); err != nil {
		t.Fatal(err)
	}

	outCh := make(chan *Result, 1)
	go func() {
		result, _ := sup.Run(context.Background())
		outCh <- result
	}()

	select {
	case result := <-outCh:
		if result.Outcome != OutcomeCancelled {
			t.Errorf("outcome = %v, want cancelled", result.Outcome)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("child never terminated after early cancellation")
	}
	if sup.State() != StateCancelled {
		t.Errorf("state = %v, want cancelled", sup.State())
	}
	if got := runner.inner.launchCount(); got != 1 {
		t.Errorf("launches = %d, want 1", got)
	}
}

func TestAlreadyRunning(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFileSize(t, filepath.Join(src, "a.mov"), 64)

	runner := &fakeRunner{scripts: []script{{
		lines:         []string{"   New File   64   a.mov"},
		exit:          0,
		holdForCancel: true,
	}}}
	sup, bus := newTestSupervisor(runner)
	started := bus.Subscribe(events.EventFileStarted)

	if _, err := sup.Preflight(copyRequest(src, dst), preflight.Options{}); err != nil {
		t.Fatal(err)
	}
	go sup.Run(context.Background())

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("child never started")
	}

	if _, err := sup.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run: expected ErrAlreadyRunning, got %v", err)
	}
	if _, err := sup.Preflight(copyRequest(src, dst), preflight.Options{}); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Preflight while running: expected ErrAlreadyRunning, got %v", err)
	}

	sup.Cancel()
}

func TestSpawnFailureIsTerminal(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFileSize(t, filepath.Join(src, "a.mov"), 64)

	runner := &fakeRunner{spawnErr: errors.New("executable file not found")}
	sup, _ := newTestSupervisor(runner)

	req := copyRequest(src, dst)
	req.Retries = 3
	if _, err := sup.Preflight(req, preflight.Options{}); err != nil {
		t.Fatal(err)
	}

	result, err := sup.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeFailed {
		t.Errorf("outcome = %v, want failed", result.Outcome)
	}
	// Spawn failure means environment misconfiguration; no relaunches.
	if got := runner.launchCount(); got != 1 {
		t.Errorf("launches = %d, want 1", got)
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0].Message, "not found") {
		t.Errorf("errors = %v, want spawn explanation", result.Errors)
	}
}

func TestUnknownExitCodeFailsClosed(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFileSize(t, filepath.Join(src, "a.mov"), 64)

	runner := &fakeRunner{scripts: []script{{exit: 77}}}
	sup, _ := newTestSupervisor(runner)

	req := copyRequest(src, dst)
	req.Retries = 2
	if _, err := sup.Preflight(req, preflight.Options{}); err != nil {
		t.Fatal(err)
	}

	result, err := sup.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeFailed {
		t.Errorf("outcome = %v, want failed", result.Outcome)
	}
	if got := runner.launchCount(); got != 1 {
		t.Errorf("launches = %d, want 1 (unknown codes are not retried)", got)
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0].Message, "unrecognized") {
		t.Errorf("errors = %v, want unrecognized-code explanation", result.Errors)
	}
}

func TestRenameAppliedAfterSuccess(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "a.mov"), []byte("new content"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dst, "a.mov"), []byte("old content"), 0o644); err != nil {
		t.Fatal(err)
	}

	// The child has nothing to copy: the only file is a collision handled
	// by the rename plan.
	runner := &fakeRunner{scripts: []script{{exit: 0}}}
	sup, _ := newTestSupervisor(runner)

	if _, err := sup.Preflight(copyRequest(src, dst), preflight.Options{}); err != nil {
		t.Fatal(err)
	}
	if err := sup.Resolve(duplicates.ActionAutoRename, nil); err != nil {
		t.Fatal(err)
	}
	if inv := sup.Invocation(); len(inv.Renames) != 1 {
		t.Fatalf("renames = %v, want one entry", inv.Renames)
	}

	result, err := sup.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeSucceeded {
		t.Fatalf("outcome = %v (errors: %v)", result.Outcome, result.Errors)
	}

	renamed, err := os.ReadFile(filepath.Join(dst, "a (1).mov"))
	if err != nil {
		t.Fatalf("renamed copy missing: %v", err)
	}
	if string(renamed) != "new content" {
		t.Errorf("renamed content = %q", renamed)
	}
	original, err := os.ReadFile(filepath.Join(dst, "a.mov"))
	if err != nil || string(original) != "old content" {
		t.Errorf("destination original disturbed: %q, %v", original, err)
	}
	// Copy mode leaves the source in place.
	if _, err := os.Stat(filepath.Join(src, "a.mov")); err != nil {
		t.Errorf("source removed in copy mode: %v", err)
	}
}

func TestPreconditions(t *testing.T) {
	sup, _ := newTestSupervisor(&fakeRunner{scripts: []script{{exit: 0}}})

	if _, err := sup.Run(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("Run while idle: expected ErrNotReady, got %v", err)
	}
	if err := sup.Cancel(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Cancel while idle: expected ErrNotRunning, got %v", err)
	}
	if err := sup.Resolve(duplicates.ActionSkip, nil); !errors.Is(err, ErrNoCollisions) {
		t.Errorf("Resolve while idle: expected ErrNoCollisions, got %v", err)
	}
}
