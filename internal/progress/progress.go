// Package progress renders transfer activity on a terminal. Two surfaces:
// a lightweight spinner/bar for preflight scans, and a richer transfer UI
// fed from the event bus while the child process runs.
package progress

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
)

// Reporter is the minimal progress surface for single-phase operations like
// the preflight walk.
type Reporter interface {
	Start(total int64, description string)
	Update(current int64)
	Finish()
	SetDescription(desc string)
}

// Scanner reports preflight activity with an indeterminate spinner, since
// the walk does not know its total up front.
type Scanner struct {
	bar *progressbar.ProgressBar
}

// NewScanner creates an idle scanner reporter.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Start begins spinner output. total is ignored when negative
// (indeterminate), which is the preflight case.
func (s *Scanner) Start(total int64, description string) {
	s.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
	)
}

// Update advances the counter.
func (s *Scanner) Update(current int64) {
	if s.bar != nil {
		_ = s.bar.Set64(current)
	}
}

// Finish ends spinner output.
func (s *Scanner) Finish() {
	if s.bar != nil {
		_ = s.bar.Finish()
	}
}

// SetDescription replaces the spinner label.
func (s *Scanner) SetDescription(desc string) {
	if s.bar != nil {
		s.bar.Describe(desc)
	}
}

// truncatePath shows only the last n components of a path.
// truncatePath("/a/b/c/file.txt", 2) → "…/c/file.txt"
func truncatePath(path string, n int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= n {
		return filepath.Base(path)
	}
	return "…/" + strings.Join(parts[len(parts)-n:], "/")
}
