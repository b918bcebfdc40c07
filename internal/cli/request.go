package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/reelworks/reeltransfer/internal/constants"
	"github.com/reelworks/reeltransfer/internal/pathutil"
	"github.com/reelworks/reeltransfer/internal/preflight"
	"github.com/reelworks/reeltransfer/internal/progress"
	"github.com/reelworks/reeltransfer/internal/robocopy"
	"github.com/reelworks/reeltransfer/internal/settings"
)

// transferFlags is the option set shared by run, preview, and preflight.
type transferFlags struct {
	move      bool
	mirror    bool
	noSubdirs bool
	dryRun    bool
	retries   int
	wait      int
	threads   int
}

func addTransferFlags(cmd *cobra.Command, f *transferFlags) {
	cmd.Flags().BoolVar(&f.move, "move", false, "Delete source files after a successful copy")
	cmd.Flags().BoolVar(&f.mirror, "mirror", false, "Mirror the destination (deletes extra destination files)")
	cmd.Flags().BoolVar(&f.noSubdirs, "no-subdirs", false, "Transfer top-level files only")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "List what would be copied without copying")
	cmd.Flags().IntVar(&f.retries, "retries", constants.DefaultRetries, "Retries for transient failures")
	cmd.Flags().IntVar(&f.wait, "wait", constants.DefaultRetryWaitSeconds, "Seconds to wait between retries")
	cmd.Flags().IntVar(&f.threads, "threads", constants.DefaultThreads, "Copy threads (0 disables multithreading)")
}

// buildRequest turns CLI arguments into a validated transfer request. The
// last argument is the destination; everything before it is the sources.
// Unset numeric flags fall back to the persisted defaults from earlier runs.
func buildRequest(cmd *cobra.Command, args []string, f *transferFlags) (*robocopy.TransferRequest, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("need SOURCE... DEST, got %d argument(s)", len(args))
	}

	dest, err := pathutil.ResolveAbsolute(args[len(args)-1])
	if err != nil {
		return nil, fmt.Errorf("resolving destination: %w", err)
	}

	var sources []string
	filesOnly := true
	dirsSeen := 0
	for _, arg := range args[:len(args)-1] {
		src, err := pathutil.ResolveAbsolute(arg)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", arg, err)
		}
		info, err := os.Stat(src)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", preflight.ErrPathUnreadable, src, err)
		}
		if info.IsDir() {
			filesOnly = false
			dirsSeen++
		}
		sources = append(sources, src)
	}
	if !filesOnly && (dirsSeen != len(sources) || len(sources) != 1) {
		return nil, fmt.Errorf("sources must be one directory or a list of files")
	}

	req := &robocopy.TransferRequest{
		Sources:          sources,
		SourcesAreFiles:  filesOnly,
		Dest:             dest,
		Executable:       executablePath(),
		Mode:             robocopy.ModeCopy,
		IncludeSubdirs:   !f.noSubdirs,
		Mirror:           f.mirror,
		DryRun:           f.dryRun,
		Retries:          f.retries,
		RetryWaitSeconds: f.wait,
		Threads:          f.threads,
	}
	if f.move {
		req.Mode = robocopy.ModeMove
	}

	if !cmd.Flags().Changed("retries") {
		req.Retries = store.GetInt(settings.KeyRetries, req.Retries)
	}
	if !cmd.Flags().Changed("wait") {
		req.RetryWaitSeconds = store.GetInt(settings.KeyRetryWait, req.RetryWaitSeconds)
	}
	if !cmd.Flags().Changed("threads") {
		req.Threads = store.GetInt(settings.KeyThreads, req.Threads)
	}

	return req, req.Validate()
}

// executablePath resolves the copy tool: flag beats settings beats PATH.
func executablePath() string {
	if toolPath != "" {
		return toolPath
	}
	return store.Get(settings.KeyExecutable)
}

// withSpinner keeps the terminal alive while fn does slow filesystem work;
// large card dumps can take a while to stat.
func withSpinner(reporter progress.Reporter, desc string, fn func() error) error {
	reporter.Start(-1, desc)
	done := make(chan struct{})
	go func() {
		var tick int64
		for {
			select {
			case <-done:
				return
			case <-time.After(100 * time.Millisecond):
				tick++
				reporter.Update(tick)
			}
		}
	}()

	err := fn()
	close(done)
	reporter.Finish()
	return err
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
