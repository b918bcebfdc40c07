// Package notify sends desktop notifications for transfer outcomes.
// It uses github.com/gen2brain/beeep for cross-platform notification support.
package notify

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/reelworks/reeltransfer/internal/logging"
)

const appTitle = "ReelTransfer"

// Notifier handles desktop notifications.
type Notifier struct {
	logger  *logging.Logger
	enabled bool
	mu      sync.RWMutex
}

// NewNotifier creates a notifier. Disabled notifiers swallow every call, so
// callers never need their own enabled checks.
func NewNotifier(enabled bool, logger *logging.Logger) *Notifier {
	return &Notifier{logger: logger, enabled: enabled}
}

// SetEnabled enables or disables notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// IsEnabled returns whether notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled
}

// TransferComplete announces a finished transfer.
func (n *Notifier) TransferComplete(dest string, files int, warnings int) {
	if !n.IsEnabled() {
		return
	}
	message := fmt.Sprintf("%d file(s) transferred to:\n%s", files, shortenPath(dest))
	if warnings > 0 {
		message = fmt.Sprintf("%s\n%d warning(s).", message, warnings)
	}
	if err := beeep.Notify(appTitle, message, ""); err != nil {
		n.logger.Warn().Err(err).Msg("failed to send completion notification")
	}
}

// TransferFailed announces a failed transfer with a prominent alert.
func (n *Notifier) TransferFailed(reason string) {
	if !n.IsEnabled() {
		return
	}
	message := fmt.Sprintf("Transfer failed:\n%s", truncate(reason, 100))
	if err := beeep.Alert(appTitle, message, ""); err != nil {
		if err := beeep.Notify(appTitle, message, ""); err != nil {
			n.logger.Warn().Err(err).Msg("failed to send failure notification")
		}
	}
}

// TransferCancelled announces a cancelled transfer.
func (n *Notifier) TransferCancelled() {
	if !n.IsEnabled() {
		return
	}
	if err := beeep.Notify(appTitle, "Transfer cancelled.", ""); err != nil {
		n.logger.Warn().Err(err).Msg("failed to send cancellation notification")
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// shortenPath abbreviates a long path for display in notifications.
func shortenPath(path string) string {
	const maxLen = 60
	if len(path) <= maxLen {
		return path
	}

	_, file := filepath.Split(path)
	parentDir := filepath.Base(filepath.Dir(path))
	short := filepath.Join("...", parentDir, file)

	vol := filepath.VolumeName(path)
	if vol != "" && len(vol)+len(short)+1 <= maxLen {
		short = vol + string(filepath.Separator) + short
	}
	if len(short) > maxLen {
		return "..." + path[len(path)-(maxLen-3):]
	}
	return short
}
