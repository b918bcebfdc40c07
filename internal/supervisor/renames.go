package supervisor

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/reelworks/reeltransfer/internal/duplicates"
	"github.com/reelworks/reeltransfer/internal/robocopy"
)

// applyRenames executes the rename plan after a successful child exit: each
// colliding source the child was told to leave alone is copied (or moved)
// under its numbered name. Failures are collected per file; one bad rename
// must not abandon the rest of the plan.
func (s *Supervisor) applyRenames(req *robocopy.TransferRequest, inv *robocopy.Invocation) []FileError {
	if req.DryRun || len(inv.Renames) == 0 {
		return nil
	}

	var errs []FileError
	for _, rn := range inv.Renames {
		target := nextFreePath(rn.Planned)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			errs = append(errs, FileError{Path: rn.Source, Message: fmt.Sprintf("rename: %v", err)})
			continue
		}

		var err error
		if req.Mode == robocopy.ModeMove {
			err = movePath(rn.Source, target)
		} else {
			err = copyFile(rn.Source, target)
		}
		if err != nil {
			errs = append(errs, FileError{Path: rn.Source, Message: fmt.Sprintf("rename to %s: %v", target, err)})
			continue
		}
		s.log.Debug().Str("from", rn.Source).Str("to", target).Msg("applied duplicate rename")
	}
	return errs
}

var numberedSuffix = regexp.MustCompile(`^(.*) \(\d+\)(\.[^.]*)?$`)

// nextFreePath returns the planned path if it is still free, otherwise the
// next numbered variant that is. The plan was computed without touching the
// disk, so a name can have been taken in the meantime.
func nextFreePath(planned string) string {
	if _, err := os.Lstat(planned); errors.Is(err, fs.ErrNotExist) {
		return planned
	}

	dir := filepath.Dir(planned)
	base := filepath.Base(planned)
	// Recover the unnumbered name so retries count up from the original
	// rather than stacking suffixes.
	if m := numberedSuffix.FindStringSubmatch(base); m != nil {
		base = m[1] + m[2]
	}

	taken := map[string]bool{base: true, filepath.Base(planned): true}
	for {
		candidate := duplicates.NextAvailableName(base, taken)
		path := filepath.Join(dir, candidate)
		if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
			return path
		}
		taken[candidate] = true
	}
}

func movePath(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// Rename across volumes fails; fall back to copy plus delete.
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	// Preserve timestamps like the copy tool does; best effort.
	os.Chtimes(dst, info.ModTime(), info.ModTime())
	return nil
}
