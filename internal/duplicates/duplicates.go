// Package duplicates decides what happens to files that already exist in the
// destination. Every collision reported by preflight must carry exactly one
// action before an invocation may be built; an unresolved duplicate under
// mirror mode can destroy data, so this is enforced as a hard precondition.
package duplicates

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Action is the handling chosen for a single colliding path.
type Action string

const (
	// ActionSkip leaves the destination file untouched and excludes the
	// source file from the transfer.
	ActionSkip Action = "skip"

	// ActionOverwrite replaces the destination file even when identical.
	ActionOverwrite Action = "overwrite"

	// ActionAutoRename copies the source file under a numbered name that
	// does not exist in the destination.
	ActionAutoRename Action = "rename"
)

// Valid reports whether a is one of the defined actions.
func (a Action) Valid() bool {
	switch a {
	case ActionSkip, ActionOverwrite, ActionAutoRename:
		return true
	}
	return false
}

// Resolution maps each colliding relative path to its chosen action.
type Resolution map[string]Action

// ErrUnresolvedCollision indicates a collision with no assigned action.
var ErrUnresolvedCollision = errors.New("unresolved collision")

// Resolve assigns defaultAction to every collision, then applies per-path
// overrides. Overrides naming paths outside the collision set are rejected:
// they indicate the caller is resolving against a stale preflight report.
func Resolve(collisions []string, defaultAction Action, overrides map[string]Action) (Resolution, error) {
	if !defaultAction.Valid() {
		return nil, fmt.Errorf("invalid default action %q", defaultAction)
	}

	res := make(Resolution, len(collisions))
	for _, path := range collisions {
		res[path] = defaultAction
	}
	for path, action := range overrides {
		if _, ok := res[path]; !ok {
			return nil, fmt.Errorf("override for %q: path is not in the collision set", path)
		}
		if !action.Valid() {
			return nil, fmt.Errorf("override for %q: invalid action %q", path, action)
		}
		res[path] = action
	}
	return res, nil
}

// Validate checks that every collision has exactly one resolution.
func (r Resolution) Validate(collisions []string) error {
	for _, path := range collisions {
		action, ok := r[path]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnresolvedCollision, path)
		}
		if !action.Valid() {
			return fmt.Errorf("%w: %s has invalid action %q", ErrUnresolvedCollision, path, action)
		}
	}
	return nil
}

// NextAvailableName returns name with a " (n)" suffix inserted before the
// extension, using the smallest positive n whose result is absent from
// taken. The function never probes the filesystem: taken is the caller's
// complete view of occupied names, which keeps rename planning deterministic.
func NextAvailableName(name string, taken map[string]bool) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if !taken[candidate] {
			return candidate
		}
	}
}
