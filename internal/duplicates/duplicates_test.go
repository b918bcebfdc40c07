package duplicates

import (
	"errors"
	"testing"
)

func TestResolve(t *testing.T) {
	collisions := []string{"a.mov", "b.mov", "sub/c.wav"}

	t.Run("DefaultAppliesToAll", func(t *testing.T) {
		res, err := Resolve(collisions, ActionSkip, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(res) != 3 {
			t.Fatalf("len = %d, want 3", len(res))
		}
		for _, p := range collisions {
			if res[p] != ActionSkip {
				t.Errorf("res[%q] = %q, want skip", p, res[p])
			}
		}
	})

	t.Run("OverridesWin", func(t *testing.T) {
		res, err := Resolve(collisions, ActionSkip, map[string]Action{"b.mov": ActionOverwrite})
		if err != nil {
			t.Fatal(err)
		}
		if res["b.mov"] != ActionOverwrite {
			t.Errorf("res[b.mov] = %q, want overwrite", res["b.mov"])
		}
		if res["a.mov"] != ActionSkip {
			t.Errorf("res[a.mov] = %q, want skip", res["a.mov"])
		}
	})

	t.Run("UnknownOverrideRejected", func(t *testing.T) {
		if _, err := Resolve(collisions, ActionSkip, map[string]Action{"ghost.mov": ActionSkip}); err == nil {
			t.Error("expected error for override outside the collision set")
		}
	})

	t.Run("InvalidDefaultRejected", func(t *testing.T) {
		if _, err := Resolve(collisions, Action("ask"), nil); err == nil {
			t.Error("expected error for invalid default action")
		}
	})
}

func TestValidate(t *testing.T) {
	collisions := []string{"a.mov", "b.mov"}

	t.Run("Complete", func(t *testing.T) {
		res := Resolution{"a.mov": ActionSkip, "b.mov": ActionAutoRename}
		if err := res.Validate(collisions); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("MissingEntry", func(t *testing.T) {
		res := Resolution{"a.mov": ActionSkip}
		err := res.Validate(collisions)
		if !errors.Is(err, ErrUnresolvedCollision) {
			t.Errorf("expected ErrUnresolvedCollision, got %v", err)
		}
	})

	t.Run("InvalidAction", func(t *testing.T) {
		res := Resolution{"a.mov": ActionSkip, "b.mov": Action("maybe")}
		err := res.Validate(collisions)
		if !errors.Is(err, ErrUnresolvedCollision) {
			t.Errorf("expected ErrUnresolvedCollision, got %v", err)
		}
	})
}

func TestNextAvailableName(t *testing.T) {
	tests := []struct {
		name  string
		taken map[string]bool
		want  string
	}{
		{"clip.mov", nil, "clip (1).mov"},
		{"clip.mov", map[string]bool{"clip (1).mov": true}, "clip (2).mov"},
		{"clip.mov", map[string]bool{"clip (1).mov": true, "clip (2).mov": true}, "clip (3).mov"},
		{"noext", nil, "noext (1)"},
		{"a.b.c.wav", map[string]bool{"a.b.c (1).wav": true}, "a.b.c (2).wav"},
	}
	for _, tt := range tests {
		if got := NextAvailableName(tt.name, tt.taken); got != tt.want {
			t.Errorf("NextAvailableName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
