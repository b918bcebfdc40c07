// Package preflight inspects a transfer before anything runs: how much data
// is there, will it fit, and which files already exist at the destination.
// The report it produces is the sole input to collision resolution, so it has
// to reflect the true transfer superset rather than what the current options
// happen to select.
package preflight

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/reelworks/reeltransfer/internal/constants"
	"github.com/reelworks/reeltransfer/internal/diskspace"
	"github.com/reelworks/reeltransfer/internal/robocopy"
)

var (
	// ErrPathUnreadable marks a source path that could not be traversed.
	ErrPathUnreadable = errors.New("source path unreadable")

	// ErrDestinationUnavailable marks a destination that is missing its
	// volume or not writable.
	ErrDestinationUnavailable = errors.New("destination unavailable")
)

// Options tune a preflight run. The zero value gives native case semantics,
// the default safety margin, and real volume queries.
type Options struct {
	// CaseInsensitive folds paths when matching against destination
	// entries. Defaults to the host's native semantics; tests set it
	// explicitly to exercise both behaviors on one machine.
	CaseInsensitive bool

	// SafetyMargin is the fraction added to the required bytes before the
	// free-space comparison. Negative falls back to the default.
	SafetyMargin float64

	// SampleLimit caps the collision sample kept for display. Zero means
	// the default.
	SampleLimit int

	// FreeSpace overrides the volume query; nil uses the real one. The
	// argument is a file path on the destination volume.
	FreeSpace func(path string) int64
}

// Report is the result of walking the sources and probing the destination.
// Free space is a best-effort snapshot: another writer can consume the
// volume between preflight and transfer, so it is advisory, not a guarantee.
type Report struct {
	TotalFiles           int
	TotalBytes           int64
	DestinationFreeBytes int64
	HasEnoughSpace       bool

	// Collisions are the relative paths present both in the sources and
	// under the destination, sorted.
	Collisions []string

	// CollisionSample holds up to SampleLimit destination paths for
	// display, in collision order.
	CollisionSample []string

	// SubdirFilesPresent is true when files live below the source root.
	// Callers warn when a transfer excludes subdirectories anyway.
	SubdirFilesPresent bool
}

// Run walks the request's sources and probes the destination. Sources are
// always walked recursively, even when the request excludes subdirectories:
// the report must describe everything that could transfer so the caller can
// warn about what the options will leave behind.
func Run(req *robocopy.TransferRequest, opts Options) (*Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if opts.SafetyMargin < 0 {
		opts.SafetyMargin = constants.DiskSpaceSafetyMargin
	}
	if opts.SampleLimit <= 0 {
		opts.SampleLimit = constants.CollisionSampleLimit
	}

	destVolumeDir, err := probeDestination(req.Dest)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	srcRoot := filepath.Clean(req.SourceRoot())

	var rels []string
	if req.SourcesAreFiles {
		for _, src := range req.Sources {
			info, err := os.Stat(src)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrPathUnreadable, src, err)
			}
			if !info.Mode().IsRegular() {
				return nil, fmt.Errorf("%w: %s is not a regular file", ErrPathUnreadable, src)
			}
			report.TotalFiles++
			report.TotalBytes += info.Size()
			rels = append(rels, filepath.Base(src))
		}
	} else {
		err := filepath.WalkDir(srcRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrPathUnreadable, path, err)
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrPathUnreadable, path, err)
			}
			rel, err := filepath.Rel(srcRoot, path)
			if err != nil {
				rel = d.Name()
			}
			if filepath.Dir(rel) != "." {
				report.SubdirFilesPresent = true
			}
			report.TotalFiles++
			report.TotalBytes += info.Size()
			rels = append(rels, rel)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	index := newDestIndex(filepath.Clean(req.Dest), opts.CaseInsensitive)
	for _, rel := range rels {
		if actual, ok := index.lookup(rel); ok {
			report.Collisions = append(report.Collisions, rel)
			if len(report.CollisionSample) < opts.SampleLimit {
				report.CollisionSample = append(report.CollisionSample, actual)
			}
		}
	}
	sort.Strings(report.Collisions)

	free := opts.FreeSpace
	if free == nil {
		free = diskspace.AvailableBytes
	}
	report.DestinationFreeBytes = free(filepath.Join(destVolumeDir, "incoming"))
	report.HasEnoughSpace = diskspace.Check(req.Dest, report.DestinationFreeBytes,
		report.TotalBytes, opts.SafetyMargin) == nil

	return report, nil
}

// probeDestination verifies the destination (or its deepest existing
// ancestor, since the tool creates missing directories itself) accepts
// writes, and returns that existing directory for the free-space query.
// A read-only mount or revoked share fails here, before any child process
// is launched.
func probeDestination(dest string) (string, error) {
	dir := filepath.Clean(dest)
	for {
		if info, err := os.Stat(dir); err == nil {
			if !info.IsDir() {
				return "", fmt.Errorf("%w: %s is not a directory", ErrDestinationUnavailable, dir)
			}
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: no existing ancestor for %s", ErrDestinationUnavailable, dest)
		}
		dir = parent
	}

	probe, err := os.CreateTemp(dir, ".reeltransfer-probe-*")
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrDestinationUnavailable, dir, err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return dir, nil
}

// destIndex answers "does this relative path exist under the destination"
// with optional case folding. Directory listings are read once per distinct
// parent directory, so a flat thousand-file source costs one ReadDir.
type destIndex struct {
	root string
	fold bool
	dirs map[string]map[string]string
}

func newDestIndex(root string, fold bool) *destIndex {
	return &destIndex{root: root, fold: fold, dirs: make(map[string]map[string]string)}
}

func (ix *destIndex) lookup(rel string) (string, bool) {
	dir := filepath.Join(ix.root, filepath.Dir(rel))
	entries, ok := ix.dirs[dir]
	if !ok {
		entries = map[string]string{}
		if listing, err := os.ReadDir(dir); err == nil {
			for _, e := range listing {
				entries[ix.key(e.Name())] = filepath.Join(dir, e.Name())
			}
		}
		ix.dirs[dir] = entries
	}
	actual, found := entries[ix.key(filepath.Base(rel))]
	return actual, found
}

func (ix *destIndex) key(name string) string {
	if ix.fold {
		return strings.ToLower(name)
	}
	return name
}
