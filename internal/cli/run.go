package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/reelworks/reeltransfer/internal/diskspace"
	"github.com/reelworks/reeltransfer/internal/duplicates"
	"github.com/reelworks/reeltransfer/internal/events"
	"github.com/reelworks/reeltransfer/internal/notify"
	"github.com/reelworks/reeltransfer/internal/preflight"
	"github.com/reelworks/reeltransfer/internal/progress"
	"github.com/reelworks/reeltransfer/internal/robocopy"
	"github.com/reelworks/reeltransfer/internal/settings"
	"github.com/reelworks/reeltransfer/internal/supervisor"
)

func newRunCmd() *cobra.Command {
	f := &transferFlags{}
	var onDuplicate string
	var yes, noNotify bool

	cmd := &cobra.Command{
		Use:   "run SOURCE... DEST",
		Short: "Preflight and execute a transfer",
		Long: `Run a transfer: scan the sources, check space and duplicates at the
destination, show the exact command, then supervise the copy with live
progress and automatic retries.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfer(cmd, args, f, onDuplicate, yes, noNotify)
		},
	}
	addTransferFlags(cmd, f)
	cmd.Flags().StringVar(&onDuplicate, "on-duplicate", "", "Action for destination collisions: skip, overwrite, or rename")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().BoolVar(&noNotify, "no-notify", false, "Suppress the desktop notification")
	return cmd
}

func runTransfer(cmd *cobra.Command, args []string, f *transferFlags, onDuplicate string, yes, noNotify bool) error {
	req, err := buildRequest(cmd, args, f)
	if err != nil {
		return err
	}

	bus := events.NewBus(0)
	defer bus.Close()
	sup := supervisor.New(robocopy.ExecRunner{}, bus, logger)

	var report *preflight.Report
	err = withSpinner(progress.NewScanner(), "Scanning sources", func() error {
		var perr error
		report, perr = sup.Preflight(req, preflight.Options{})
		return perr
	})
	if err != nil {
		return err
	}

	fmt.Printf("Files: %d   Size: %s   Free at destination: %s\n",
		report.TotalFiles, formatBytes(report.TotalBytes), formatBytes(report.DestinationFreeBytes))
	if !report.HasEnoughSpace {
		return &diskspace.InsufficientSpaceError{
			Path:           req.Dest,
			RequiredBytes:  report.TotalBytes,
			AvailableBytes: report.DestinationFreeBytes,
		}
	}
	if report.SubdirFilesPresent && !req.IncludeSubdirs {
		logger.Warn().Msg("subdirectories contain files that this transfer will skip")
	}

	if len(report.Collisions) > 0 {
		if err := resolveCollisions(sup, report, onDuplicate); err != nil {
			return err
		}
	}

	inv := sup.Invocation()
	fmt.Printf("Command: %s\n", inv.Preview())
	if !yes && !confirm(cmd) {
		fmt.Println("Aborted.")
		return nil
	}

	result, err := superviseRun(cmd.Context(), sup, bus, report)
	if err != nil {
		return err
	}

	printResult(result)
	notifyResult(result, req, noNotify)
	persistDefaults(req)

	switch result.Outcome {
	case supervisor.OutcomeFailed:
		return fmt.Errorf("transfer failed (exit code %d)", result.ExitCode)
	case supervisor.OutcomeCancelled:
		return errors.New("transfer cancelled")
	}
	return nil
}

// resolveCollisions picks the duplicate action from the flag or the saved
// default. With neither, the transfer refuses to run: silently clobbering a
// destination is never acceptable.
func resolveCollisions(sup *supervisor.Supervisor, report *preflight.Report, onDuplicate string) error {
	if onDuplicate == "" {
		onDuplicate = store.Get(settings.KeyDuplicateAction)
	}
	if onDuplicate == "" {
		sample := strings.Join(report.CollisionSample, "\n  ")
		return fmt.Errorf("%d file(s) already exist at the destination, for example:\n  %s\nchoose --on-duplicate skip|overwrite|rename",
			len(report.Collisions), sample)
	}

	action := duplicates.Action(onDuplicate)
	if !action.Valid() {
		return fmt.Errorf("invalid --on-duplicate action %q", onDuplicate)
	}
	fmt.Printf("Duplicates: %d file(s) will be handled with %q\n", len(report.Collisions), action)
	return sup.Resolve(action, nil)
}

// superviseRun drives the transfer while mirroring bus events onto the
// progress UI. The command context's first cancellation (Ctrl-C) requests a
// graceful stop; the supervisor escalates on its own if the child ignores it.
func superviseRun(ctx context.Context, sup *supervisor.Supervisor, bus *events.Bus, report *preflight.Report) (*supervisor.Result, error) {
	ui := progress.NewTransferUI(report.TotalBytes, report.TotalFiles)
	prevOut := logger.Output()
	logger.SetOutput(ui.Writer())
	defer logger.SetOutput(prevOut)

	sub := bus.SubscribeAll()
	uiDone := make(chan struct{})
	go func() {
		defer close(uiDone)
		for ev := range sub {
			switch e := ev.(type) {
			case *events.FileStartedEvent:
				ui.FileStarted(e.Name, e.Size)
			case *events.BytesCopiedEvent:
				ui.SetCurrent(e.Current)
			case *events.RetryScheduledEvent:
				ui.Retry(e.Attempt)
			case *events.FileErrorEvent:
				fmt.Fprintf(ui.Writer(), "error %d: %s\n", e.Code, e.Message)
			case *events.CompletedEvent:
				return
			}
		}
	}()

	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			sup.Cancel()
		case <-watchDone:
		}
	}()

	result, err := sup.Run(context.Background())
	close(watchDone)
	<-uiDone
	bus.UnsubscribeAll(sub)
	if err != nil {
		ui.Finish(false)
		return nil, err
	}
	ui.Finish(result.Outcome == supervisor.OutcomeSucceeded || result.Outcome == supervisor.OutcomeSucceededWithWarnings)
	return result, nil
}

func printResult(result *supervisor.Result) {
	fmt.Printf("%s: %d file(s), %s in %s (exit code %d)\n",
		strings.ReplaceAll(string(result.Outcome), "_", " "),
		result.FilesCopied, formatBytes(result.BytesCopied),
		result.Elapsed.Round(time.Millisecond), result.ExitCode)

	const maxShown = 10
	for i, fe := range result.Errors {
		if i == maxShown {
			fmt.Printf("  ... and %d more error(s)\n", len(result.Errors)-maxShown)
			break
		}
		fmt.Printf("  error: %s\n", fe.Message)
	}
}

func notifyResult(result *supervisor.Result, req *robocopy.TransferRequest, noNotify bool) {
	enabled := !noNotify && store.GetBool(settings.KeyNotifications, true)
	notifier := notify.NewNotifier(enabled, logger)
	switch result.Outcome {
	case supervisor.OutcomeSucceeded, supervisor.OutcomeSucceededWithWarnings:
		notifier.TransferComplete(req.Dest, result.FilesCopied, len(result.Errors))
	case supervisor.OutcomeCancelled:
		notifier.TransferCancelled()
	default:
		reason := fmt.Sprintf("exit code %d", result.ExitCode)
		if len(result.Errors) > 0 {
			reason = result.Errors[0].Message
		}
		notifier.TransferFailed(reason)
	}
}

// persistDefaults remembers the paths and options of a transfer that got as
// far as running, so the next invocation starts from them.
func persistDefaults(req *robocopy.TransferRequest) {
	settings.RememberPaths(store, req.SourceRoot(), req.Dest)
	store.SetInt(settings.KeyRetries, req.Retries)
	store.SetInt(settings.KeyRetryWait, req.RetryWaitSeconds)
	store.SetInt(settings.KeyThreads, req.Threads)
	store.SetBool(settings.KeyIncludeSubdirs, req.IncludeSubdirs)
	if err := store.Save(); err != nil {
		logger.Warn().Err(err).Msg("could not save settings")
	}
}

func confirm(cmd *cobra.Command) bool {
	fmt.Print("Proceed? [y/N]: ")
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
