package robocopy

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/reelworks/reeltransfer/internal/duplicates"
)

// Rename is one entry of the post-transfer rename plan: Source is copied (or
// moved) to Planned after the child process succeeds, because Robocopy has no
// per-file rename capability of its own.
type Rename struct {
	// Source is the absolute source path of the colliding file.
	Source string

	// Planned is the absolute destination path carrying the numbered
	// suffix. The applier may bump the number further if the path has
	// become occupied since planning.
	Planned string
}

// Invocation is a fully determined child-process launch plus the rename plan
// that accompanies it. Building it performs no I/O; the same request,
// collision set, and resolution always produce an identical invocation.
type Invocation struct {
	Exe       string
	SourceDir string
	Dest      string
	Args      []string
	Renames   []Rename
}

// CommandLine returns the argv the runner will spawn.
func (inv *Invocation) CommandLine() []string {
	argv := make([]string, 0, len(inv.Args)+3)
	argv = append(argv, inv.Exe, inv.SourceDir, inv.Dest)
	return append(argv, inv.Args...)
}

// Preview renders the command line for display, quoting arguments that
// contain spaces. This is what the confirmation dialog and the preview
// subcommand show.
func (inv *Invocation) Preview() string {
	parts := inv.CommandLine()
	quoted := make([]string, len(parts))
	for i, p := range parts {
		if strings.ContainsAny(p, " \t") {
			quoted[i] = `"` + p + `"`
		} else {
			quoted[i] = p
		}
	}
	return strings.Join(quoted, " ")
}

// Build turns a validated request plus a fully resolved collision set into an
// invocation. Collisions are the relative paths preflight reported; res must
// cover every one of them or ErrUnresolvedCollision is returned.
//
// Flag layout, in emission order: traversal (/LEV:1 or /E), /MOVE, /MIR, /L,
// /R and /W, /MT, duplicate handling, file selection (/IF), exclusions (/XF),
// then the fixed output shape /BYTES /NDL /TEE. Per-file lines and progress
// percentages are deliberately left enabled: the parser feeds on them.
func Build(req *TransferRequest, collisions []string, res duplicates.Resolution) (*Invocation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := res.Validate(collisions); err != nil {
		return nil, err
	}

	var args []string

	if req.SourcesAreFiles {
		args = append(args, "/LEV:1")
	} else if req.IncludeSubdirs {
		args = append(args, "/E")
	}
	if req.Mode == ModeMove {
		args = append(args, "/MOVE")
	}
	if req.Mirror {
		args = append(args, "/MIR")
	}
	if req.DryRun {
		args = append(args, "/L")
	}

	args = append(args, fmt.Sprintf("/R:%d", req.Retries), fmt.Sprintf("/W:%d", req.RetryWaitSeconds))
	if req.Threads > 0 {
		args = append(args, fmt.Sprintf("/MT:%d", req.Threads))
	}

	srcRoot := filepath.Clean(req.SourceRoot())
	dest := filepath.Clean(req.Dest)

	sorted := append([]string(nil), collisions...)
	sort.Strings(sorted)

	// Partition the resolution. Skip and rename both mean "the child must
	// not touch this destination path"; rename additionally feeds the
	// post-transfer plan.
	var excluded []string
	var renames []Rename
	overwriteAny := false

	// Every collision occupies its destination name regardless of how it is
	// resolved, so planned renames must steer around all of them, not just
	// their own.
	takenByDir := make(map[string]map[string]bool)
	for _, rel := range sorted {
		dir := filepath.Join(dest, filepath.Dir(rel))
		taken := takenByDir[dir]
		if taken == nil {
			taken = make(map[string]bool)
			takenByDir[dir] = taken
		}
		taken[filepath.Base(rel)] = true
	}

	for _, rel := range sorted {
		switch res[rel] {
		case duplicates.ActionOverwrite:
			overwriteAny = true
		case duplicates.ActionSkip:
			excluded = append(excluded, filepath.Join(srcRoot, rel))
		case duplicates.ActionAutoRename:
			src := filepath.Join(srcRoot, rel)
			excluded = append(excluded, src)

			dir := filepath.Join(dest, filepath.Dir(rel))
			taken := takenByDir[dir]
			name := duplicates.NextAvailableName(filepath.Base(rel), taken)
			taken[name] = true
			renames = append(renames, Rename{Source: src, Planned: filepath.Join(dir, name)})
		}
	}

	if overwriteAny {
		// At least one collision must be re-copied, so existing files stay
		// eligible and the untouchable ones are excluded by full path.
		args = append(args, "/IS", "/IT")
		if len(excluded) > 0 {
			args = append(args, "/XF")
			args = append(args, excluded...)
		}
	} else if len(sorted) > 0 {
		// Nothing is overwritten: let the tool skip every pre-existing
		// file wholesale.
		args = append(args, "/XN", "/XO", "/XC")
	}

	if req.SourcesAreFiles {
		args = append(args, "/IF")
		for _, src := range req.Sources {
			args = append(args, filepath.Base(src))
		}
	}

	args = append(args, "/BYTES", "/NDL", "/TEE")

	exe := req.Executable
	if exe == "" {
		exe = DefaultExecutable()
	}

	return &Invocation{
		Exe:       exe,
		SourceDir: srcRoot,
		Dest:      dest,
		Args:      args,
		Renames:   renames,
	}, nil
}
