package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/reelworks/reeltransfer/internal/constants"
)

// TransferUI renders one running transfer: a single byte-level bar with the
// current file and retry count woven into the decorators. On a non-terminal
// it degrades to plain per-file lines.
type TransferUI struct {
	progress   *mpb.Progress
	bar        *mpb.Bar
	isTerminal bool
	totalBytes int64
	totalFiles int

	mu          sync.Mutex
	currentFile string
	fileIndex   int
	retries     int32
}

// NewTransferUI builds the UI for a transfer of known size.
func NewTransferUI(totalBytes int64, totalFiles int) *TransferUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))

	var p *mpb.Progress
	if isTerminal {
		enableANSIOnWindows(os.Stderr)
		p = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(constants.ProgressRefreshRate),
			mpb.WithWidth(80),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	ui := &TransferUI{
		progress:   p,
		isTerminal: isTerminal,
		totalBytes: totalBytes,
		totalFiles: totalFiles,
	}

	if isTerminal {
		ui.bar = p.New(totalBytes,
			mpb.BarStyle().
				Lbound("[").
				Filler("█").
				Tip("█").
				Padding("░").
				Rbound("]"),
			mpb.PrependDecorators(
				decor.Any(func(decor.Statistics) string {
					ui.mu.Lock()
					name, index := ui.currentFile, ui.fileIndex
					ui.mu.Unlock()
					base := fmt.Sprintf("[%d/%d] %s", index, ui.totalFiles, truncatePath(name, 2))
					if name == "" {
						base = fmt.Sprintf("[0/%d] waiting", ui.totalFiles)
					}
					if r := atomic.LoadInt32(&ui.retries); r > 0 {
						return fmt.Sprintf("%s (retry %d)", base, r)
					}
					return base
				}, decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  "),
				decor.AverageSpeed(decor.SizeB1024(0), "% .1f", decor.WCSyncSpace),
			),
		)
	}
	return ui
}

// FileStarted records that the child moved on to a new file.
func (ui *TransferUI) FileStarted(name string, size int64) {
	ui.mu.Lock()
	ui.currentFile = name
	ui.fileIndex++
	index := ui.fileIndex
	ui.mu.Unlock()

	if !ui.isTerminal {
		fmt.Fprintf(os.Stderr, "Copying [%d/%d]: %s (%.1f MiB)\n",
			index, ui.totalFiles, name, float64(size)/(1024*1024))
	}
}

// SetCurrent moves the overall bar to an absolute byte position.
func (ui *TransferUI) SetCurrent(current int64) {
	if ui.bar != nil {
		ui.bar.SetCurrent(current)
	}
}

// Retry marks the bar with the 1-based retry about to run.
func (ui *TransferUI) Retry(retry int) {
	atomic.StoreInt32(&ui.retries, int32(retry))
	if !ui.isTerminal {
		fmt.Fprintf(os.Stderr, "Transient failure, scheduling retry %d\n", retry)
	}
}

// Finish completes the bar and waits for the renderer to flush. Abandon
// instead of filling when the transfer did not complete its bytes.
func (ui *TransferUI) Finish(completed bool) {
	if ui.bar != nil {
		if completed {
			ui.bar.SetCurrent(ui.totalBytes)
		}
		ui.bar.Abort(!completed)
	}
	ui.progress.Wait()
}

// Writer returns a writer that prints safely above the live bar, so log
// lines and bar rendering do not interleave.
func (ui *TransferUI) Writer() io.Writer {
	if ui.isTerminal {
		return ui.progress
	}
	return os.Stderr
}

// IsTerminal reports whether bars are actually rendering.
func (ui *TransferUI) IsTerminal() bool {
	return ui.isTerminal
}
